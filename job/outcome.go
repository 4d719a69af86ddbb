package job

import "errors"

// TimeoutErrorName is the name of the Error produced when a phase runs past
// the configured execution timeout.
const TimeoutErrorName = "ExecutionTimeout"

var (
	ErrNilResult = errors.New("job returned neither a result nor an error")

	// ErrUnnamedError is the cause of the Fault reported for a result whose
	// Error has an empty name.
	ErrUnnamedError = errors.New("job error has no name")
)

// Kind tags the variant held by an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Outcome is the result of a phase or of a whole pipeline run. It is one of
// Success (a result without an error), Failure (a result carrying a named
// Error) or Fault (an unexpected error raised by the job).
type Outcome struct {
	requestID string
	kind      Kind
	result    *Result
	cause     error
}

// Of classifies r: a result carrying an Error is a Failure, any other result a
// Success. A nil result, or an Error without a name, is a Fault.
func Of(requestID string, r *Result) Outcome {
	switch {
	case r == nil:
		return Faulted(requestID, ErrNilResult)
	case r.Error != nil && r.Error.Name == "":
		return Faulted(requestID, ErrUnnamedError)
	case r.Error != nil:
		return Outcome{requestID: requestID, kind: KindFailure, result: r}
	default:
		return Outcome{requestID: requestID, kind: KindSuccess, result: r}
	}
}

// Faulted wraps an unexpected error.
func Faulted(requestID string, cause error) Outcome {
	return Outcome{requestID: requestID, kind: KindFault, cause: cause}
}

// TimedOut builds the Failure reported for a phase that ran past its deadline.
func TimedOut(requestID, phase string) Outcome {
	r := NewResult(requestID, "", "", nil).WithError(NewError(TimeoutErrorName).With("phase", phase))
	return Outcome{requestID: requestID, kind: KindFailure, result: r}
}

func (o Outcome) RequestID() string { return o.requestID }
func (o Outcome) Kind() Kind        { return o.kind }
func (o Outcome) IsSuccess() bool   { return o.kind == KindSuccess }
func (o Outcome) IsFailure() bool   { return o.kind == KindFailure }
func (o Outcome) IsFault() bool     { return o.kind == KindFault }

// Result returns the result of a Success or Failure, nil for a Fault.
func (o Outcome) Result() *Result { return o.result }

// Cause returns the error of a Fault, nil otherwise.
func (o Outcome) Cause() error { return o.cause }

// JobError returns the named error of a Failure, nil otherwise.
func (o Outcome) JobError() *Error {
	if o.kind != KindFailure {
		return nil
	}
	return o.result.Error
}

// IsTimeout reports whether o is the Failure produced by an expired phase.
func (o Outcome) IsTimeout() bool {
	e := o.JobError()
	return e != nil && e.Name == TimeoutErrorName
}
