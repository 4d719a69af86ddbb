package litecollector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jirevwe/litecollector/admission"
	"github.com/jirevwe/litecollector/job"
	"github.com/jirevwe/litecollector/metrics"
	"github.com/jirevwe/litecollector/pool"
)

// Dispatcher runs collection requests through a job's collect and
// post-collect phases, each on its own worker pool, while bounding the
// number of requests in flight.
type Dispatcher struct {
	job    job.Job
	gate   *admission.Gate
	logger *slog.Logger

	// nil when metrics are disabled
	metrics *metrics.Aggregator

	collectPool     pool.Pool
	postCollectPool pool.Pool

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg *Config) (*Dispatcher, error) {
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.withDefaults()

	gate := admission.NewGate(c.QueueCapacity)

	d := &Dispatcher{
		job:    c.Job,
		gate:   gate,
		logger: c.Logger,

		// every in-flight request has at most one task queued per pool, so
		// a buffer of QueueCapacity never blocks AddWork
		collectPool:     pool.NewWorkerPool("collect", c.CollectPoolSize, c.QueueCapacity, c.ExecutionTimeout, c.Logger),
		postCollectPool: pool.NewWorkerPool("post_collect", c.PostCollectPoolSize, c.QueueCapacity, c.ExecutionTimeout, c.Logger),
	}

	if c.MetricsEnabled {
		d.metrics = metrics.NewAggregator(gate)
	}

	d.collectPool.Start()
	d.postCollectPool.Start()

	return d, nil
}

// Submit runs the job for requestID and waits for the result.
//
// A result carrying a job.Error is returned with a nil error. A fault is
// returned as a *FaultError and a rejected request as ErrQueueFull. If ctx
// ends first Submit returns ctx.Err(), the request itself keeps running.
func (d *Dispatcher) Submit(ctx context.Context, requestID string, payload job.Payload) (*job.Result, error) {
	type response struct {
		result *job.Result
		err    error
	}

	ch := make(chan response, 1)
	err := d.SubmitAsync(requestID, payload, func(result *job.Result, err error) {
		ch <- response{result: result, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitAsync admits the request and returns immediately. ErrQueueFull and
// ErrDispatcherClosed are returned synchronously, in which case done is never
// called. Otherwise done is called exactly once with the values Submit would
// return; it should not block. done normally runs on a worker goroutine, but
// a request admitted while the dispatcher is closing is faulted with
// ErrDispatcherClosed and done runs on the caller's goroutine before
// SubmitAsync returns nil.
func (d *Dispatcher) SubmitAsync(requestID string, payload job.Payload, done func(*job.Result, error)) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}

	slot, ok := d.gate.Acquire()
	if !ok {
		d.logger.Debug("rejected collection request", "request_id", requestID, "capacity", d.gate.Capacity())
		return ErrQueueFull
	}

	r := &run{
		d:         d,
		requestID: requestID,
		payload:   payload,
		slot:      slot,
		done: func(o job.Outcome) {
			done(toResponse(o))
		},
	}
	r.collect()

	return nil
}

// SubmitDiscardResult runs the job like Submit but only reports whether it
// succeeded: a failed result is returned as its *job.Error.
func (d *Dispatcher) SubmitDiscardResult(ctx context.Context, requestID string, payload job.Payload) error {
	result, err := d.Submit(ctx, requestID, payload)
	if err != nil {
		return err
	}

	if result.Failed() {
		return result.Error
	}

	return nil
}

// Snapshot returns the current metrics, or metrics.Disabled.
func (d *Dispatcher) Snapshot() metrics.Snapshot {
	if d.metrics == nil {
		return metrics.Disabled
	}
	return d.metrics.Snapshot()
}

// Metrics returns the aggregator backing Snapshot, nil when metrics are disabled.
func (d *Dispatcher) Metrics() *metrics.Aggregator { return d.metrics }

// Close stops accepting requests and waits for the admitted ones to finish.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)

		// collect tasks schedule post-collect tasks, so drain them first
		_ = d.collectPool.Stop()
		_ = d.postCollectPool.Stop()
	})
	return nil
}

func toResponse(o job.Outcome) (*job.Result, error) {
	if o.IsFault() {
		return nil, &FaultError{RequestID: o.RequestID(), Cause: o.Cause()}
	}
	return o.Result(), nil
}
