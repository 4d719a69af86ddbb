// Package metrics aggregates the outcomes of collection jobs into running
// counters and serves point-in-time snapshots of them.
package metrics

import (
	"sync/atomic"

	"github.com/jirevwe/litecollector/job"
)

// TopEntries is the number of entries kept in the quality and error tables.
const TopEntries = 10

// Disabled is returned in place of a snapshot when metrics are turned off.
var Disabled = Snapshot{Error: "Metrics are not enabled"}

// Gauge exposes the admission queue state.
type Gauge interface {
	Capacity() int
	InFlight() int
}

// Snapshot is an immutable view of the metrics at the time it was taken.
//
//	{
//	  "total": {
//	    "jobs": {"count": 123, "failed": 12, "succeeded": 108, "faulted": 3, "timedOut": 1},
//	    "quality": {"complete": 90, "partial": 18},
//	    "errors": {"blocked": 11, "ExecutionTimeout": 1}
//	  },
//	  "queue": {"maxSize": 30, "free": 12, "occupied": 18}
//	}
type Snapshot struct {
	Total *Totals `json:"total,omitempty"`
	Queue *Queue  `json:"queue,omitempty"`

	// Error is only set on the Disabled sentinel
	Error string `json:"Error,omitempty"`
}

type Totals struct {
	Jobs    Jobs  `json:"jobs"`
	Quality Table `json:"quality"`
	Errors  Table `json:"errors"`
}

type Jobs struct {
	Count     int64 `json:"count"`
	Failed    int64 `json:"failed"`
	Succeeded int64 `json:"succeeded"`
	Faulted   int64 `json:"faulted"`
	TimedOut  int64 `json:"timedOut"`
}

type Queue struct {
	MaxSize  int `json:"maxSize"`
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
}

// Enabled reports whether s holds numbers rather than the Disabled sentinel.
func (s Snapshot) Enabled() bool { return s.Error == "" }

// Aggregator keeps running counts of job outcomes. All methods are safe for
// concurrent use and none of them takes a lock.
type Aggregator struct {
	count     atomic.Int64
	failed    atomic.Int64
	succeeded atomic.Int64
	faulted   atomic.Int64
	timedOut  atomic.Int64

	quality frequencies
	errors  frequencies

	queue Gauge
}

func NewAggregator(queue Gauge) *Aggregator {
	return &Aggregator{queue: queue}
}

// RecordOutcome counts a completed pipeline run.
func (a *Aggregator) RecordOutcome(o job.Outcome) {
	a.count.Add(1)

	switch o.Kind() {
	case job.KindFault:
		a.faulted.Add(1)
	case job.KindFailure:
		a.failed.Add(1)
		a.errors.inc(o.JobError().Name)
		if o.IsTimeout() {
			a.timedOut.Add(1)
		}
	default:
		a.succeeded.Add(1)
		a.quality.inc(o.Result().Quality)
	}
}

// Snapshot reads the current counters. Counters are read one at a time, so a
// snapshot taken while jobs complete may be off by the jobs in between.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Total: &Totals{
			Jobs: Jobs{
				Count:     a.count.Load(),
				Failed:    a.failed.Load(),
				Succeeded: a.succeeded.Load(),
				Faulted:   a.faulted.Load(),
				TimedOut:  a.timedOut.Load(),
			},
			Quality: a.quality.top(TopEntries),
			Errors:  a.errors.top(TopEntries),
		},
	}

	if a.queue != nil {
		capacity, inFlight := a.queue.Capacity(), a.queue.InFlight()
		s.Queue = &Queue{
			MaxSize:  capacity,
			Free:     capacity - inFlight,
			Occupied: inFlight,
		}
	}

	return s
}
