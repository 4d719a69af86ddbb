package litecollector

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when a request arrives while the dispatcher
	// already holds its configured number of in-flight requests.
	ErrQueueFull = errors.New("queue limit reached")

	// ErrJobFault matches every FaultError.
	ErrJobFault = errors.New("collection job faulted")

	ErrDispatcherClosed = errors.New("dispatcher is closed")
	ErrInvalidConfig    = errors.New("invalid dispatcher config")
)

// FaultError is returned for a request whose job raised an unexpected error
// or panicked. The cause is available through errors.Unwrap; a panic is
// reported as a *pool.PanicError.
type FaultError struct {
	RequestID string
	Cause     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("request %s: %v: %v", e.RequestID, ErrJobFault, e.Cause)
}

func (e *FaultError) Unwrap() error { return e.Cause }

func (e *FaultError) Is(target error) bool { return target == ErrJobFault }
