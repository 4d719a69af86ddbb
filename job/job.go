package job

import "context"

// A Job performs the collection work for a request in two phases.
//
// Collect runs first, on the collection worker pool. It should return a
// result, optionally carrying an Error for an expected failure. A non-nil
// error or a panic is treated as a fault.
//
// PostCollect always runs after Collect, on the post-collection worker pool,
// and receives the outcome of Collect whether it succeeded or not. It can pass
// the outcome through, transform it (e.g. parse or save it) or fail itself.
//
// Both phases may block; ctx is cancelled when the execution timeout expires.
type Job interface {
	Collect(ctx context.Context, requestID string, payload Payload) (*Result, error)
	PostCollect(ctx context.Context, collected Outcome) (*Result, error)
}

// CollectFunc is the signature of a collection phase.
type CollectFunc func(ctx context.Context, requestID string, payload Payload) (*Result, error)

// PostCollectFunc is the signature of a post-collection phase.
type PostCollectFunc func(ctx context.Context, collected Outcome) (*Result, error)

// The JobFunc type is an adapter to allow the use of ordinary functions as a
// Job. A nil PostCollectFunc passes the collect outcome through.
type JobFunc struct {
	CollectFunc     CollectFunc
	PostCollectFunc PostCollectFunc
}

// New returns a Job calling collect and then post.
func New(collect CollectFunc, post PostCollectFunc) JobFunc {
	return JobFunc{CollectFunc: collect, PostCollectFunc: post}
}

// Collect calls fn.CollectFunc(ctx, requestID, payload)
func (fn JobFunc) Collect(ctx context.Context, requestID string, payload Payload) (*Result, error) {
	return fn.CollectFunc(ctx, requestID, payload)
}

// PostCollect calls fn.PostCollectFunc(ctx, collected), or PassThrough when unset
func (fn JobFunc) PostCollect(ctx context.Context, collected Outcome) (*Result, error) {
	if fn.PostCollectFunc == nil {
		return PassThrough(ctx, collected)
	}
	return fn.PostCollectFunc(ctx, collected)
}

// PassThrough returns the result of a Success or Failure unchanged and
// re-raises the cause of a Fault.
func PassThrough(_ context.Context, collected Outcome) (*Result, error) {
	if collected.IsFault() {
		return nil, collected.Cause()
	}
	return collected.Result(), nil
}
