package litecollector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jirevwe/litecollector/admission"
	"github.com/jirevwe/litecollector/job"
	"github.com/jirevwe/litecollector/pool"
)

const (
	phaseCollect     = "collect"
	phasePostCollect = "post-collect"
)

// run carries one admitted request through both phases.
type run struct {
	d         *Dispatcher
	requestID string
	payload   job.Payload
	slot      *admission.Slot
	done      func(job.Outcome)
}

func (r *run) collect() {
	r.schedule(r.d.collectPool, phaseCollect, func(ctx context.Context) (*job.Result, error) {
		return r.d.job.Collect(ctx, r.requestID, r.payload)
	}, r.postCollect)
}

// postCollect runs whatever the collect phase produced, faults included.
func (r *run) postCollect(collected job.Outcome) {
	r.schedule(r.d.postCollectPool, phasePostCollect, func(ctx context.Context) (*job.Result, error) {
		return r.d.job.PostCollect(ctx, collected)
	}, r.finish)
}

func (r *run) schedule(p pool.Pool, phase string, fn func(context.Context) (*job.Result, error), next func(job.Outcome)) {
	t := &phaseTask{
		requestID: r.requestID,
		phase:     phase,
		fn:        fn,
		next:      next,
		logger:    r.d.logger,
	}

	if err := p.AddWork(t); err != nil {
		r.finish(job.Faulted(r.requestID, fmt.Errorf("%s phase: %w", phase, ErrDispatcherClosed)))
	}
}

// finish is reached exactly once per request: the slot is released before
// the outcome is counted, and both happen before the caller hears back.
func (r *run) finish(o job.Outcome) {
	r.slot.Release()

	if r.d.metrics != nil {
		r.d.metrics.RecordOutcome(o)
	}

	switch {
	case o.IsFault():
		r.d.logger.Warn("collection job faulted", "request_id", r.requestID, "error", o.Cause())
	case o.IsTimeout():
		r.d.logger.Warn("collection job timed out", "request_id", r.requestID, "error", o.JobError())
	default:
		r.d.logger.Debug("collection job finished", "request_id", r.requestID, "outcome", o.Kind().String())
	}

	r.done(o)
}

// phaseTask adapts one phase of a job to a pool.Task. Whichever of Execute
// and OnFailure reports first wins, a late report is dropped.
type phaseTask struct {
	requestID string
	phase     string
	fn        func(context.Context) (*job.Result, error)
	next      func(job.Outcome)
	once      sync.Once
	logger    *slog.Logger
}

func (t *phaseTask) Execute(ctx context.Context) error {
	result, err := t.fn(ctx)
	if err != nil {
		return err
	}

	t.complete(job.Of(t.requestID, result))
	return nil
}

func (t *phaseTask) OnFailure(err error) {
	o := job.Faulted(t.requestID, err)
	if errors.Is(err, pool.ErrExecutionTimeout) {
		o = job.TimedOut(t.requestID, t.phase)
	}

	if !t.complete(o) {
		t.logger.Warn("dropped failure of an already completed phase",
			"request_id", t.requestID, "phase", t.phase, "error", err)
	}
}

func (t *phaseTask) complete(o job.Outcome) bool {
	fired := false
	t.once.Do(func() {
		fired = true
		t.next(o)
	})
	return fired
}
