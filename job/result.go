package job

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// Rfc3339Milli is like time.RFC3339Nano, but with millisecond precision
	Rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

	// nameKey holds the error name in the flat representation of an Error
	nameKey = "_name"
)

// Payload is the structured data passed into and produced by a job.
type Payload map[string]any

// Result stores the information produced by a job for a single request.
type Result struct {
	RequestID string  `json:"requestId" db:"request_id"`
	Source    string  `json:"source" db:"source"`
	Quality   string  `json:"quality" db:"quality"`
	CreatedAt string  `json:"created" db:"created"`
	Payload   Payload `json:"result"`
	Error     *Error  `json:"error,omitempty"`
}

// NewResult builds a successful result stamped with the current time.
func NewResult(requestID, source, quality string, payload Payload) *Result {
	return &Result{
		RequestID: requestID,
		Source:    source,
		Quality:   quality,
		CreatedAt: time.Now().UTC().Format(Rfc3339Milli),
		Payload:   payload,
	}
}

// WithError returns a copy of r carrying err.
func (r *Result) WithError(err *Error) *Result {
	c := *r
	c.Error = err
	return &c
}

// Failed reports whether the result carries a named error.
func (r *Result) Failed() bool { return r != nil && r.Error != nil }

// Error describes a named, expected failure of a job. The name is used to
// bucket failures in the metrics; every other field is free-form.
type Error struct {
	Name   string
	fields map[string]any
}

// NewError creates an Error with the given name. A job returning an Error
// with an empty name is reported as a fault.
func NewError(name string) *Error {
	return &Error{Name: name}
}

// With returns a copy of e with key set to value.
func (e *Error) With(key string, value any) *Error {
	fields := make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value

	return &Error{Name: e.Name, fields: fields}
}

// Field returns the value stored under key.
func (e *Error) Field(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

func (e *Error) Error() string {
	if len(e.fields) == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s %v", e.Name, e.fields)
}

// Map returns the flat representation of e, with the name stored under "_name".
func (e *Error) Map() map[string]any {
	m := make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		m[k] = v
	}
	m[nameKey] = e.Name
	return m
}

// ErrorFromMap rebuilds an Error from its flat representation. It returns nil
// when the map has no name.
func ErrorFromMap(m map[string]any) *Error {
	name, _ := m[nameKey].(string)
	if name == "" {
		return nil
	}

	fields := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != nameKey {
			fields[k] = v
		}
	}
	return &Error{Name: name, fields: fields}
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	decoded := ErrorFromMap(m)
	if decoded == nil {
		return fmt.Errorf("job error is missing %q", nameKey)
	}

	*e = *decoded
	return nil
}
