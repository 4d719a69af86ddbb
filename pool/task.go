package pool

import "context"

type Task interface {
	// Execute performs the work. ctx expires when the pool's execution timeout elapses.
	Execute(ctx context.Context) error

	// OnFailure handles any error returned from Execute(), a recovered panic
	// (*PanicError) or an expired execution timeout (ErrExecutionTimeout)
	OnFailure(error)
}
