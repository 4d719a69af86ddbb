package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes an Aggregator to Prometheus. Values are read from a fresh
// snapshot on every scrape.
type Collector struct {
	agg *Aggregator

	jobs     *prometheus.Desc
	outcomes *prometheus.Desc
	quality  *prometheus.Desc
	errors   *prometheus.Desc
	capacity *prometheus.Desc
	occupied *prometheus.Desc
}

func NewCollector(agg *Aggregator, namespace string) *Collector {
	return &Collector{
		agg: agg,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "total"),
			"Total number of collection jobs that ran through the pipeline",
			nil, nil),
		outcomes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "outcomes_total"),
			"Number of collection jobs by outcome",
			[]string{"outcome"}, nil),
		quality: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "top_quality"),
			"Number of successful jobs for the most frequent result qualities",
			[]string{"quality"}, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "top_errors"),
			"Number of failed jobs for the most frequent error names",
			[]string{"name"}, nil),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "capacity"),
			"Maximum number of requests in flight",
			nil, nil),
		occupied: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "occupied"),
			"Number of requests currently in flight",
			nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.outcomes
	ch <- c.quality
	ch <- c.errors
	ch <- c.capacity
	ch <- c.occupied
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.agg.Snapshot()

	jobs := s.Total.Jobs
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.CounterValue, float64(jobs.Count))
	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(jobs.Succeeded), "succeeded")
	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(jobs.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(jobs.Faulted), "faulted")
	ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(jobs.TimedOut), "timed_out")

	// ranked tables are gauges, a label leaving the top entries drops its series
	for _, e := range s.Total.Quality {
		ch <- prometheus.MustNewConstMetric(c.quality, prometheus.GaugeValue, float64(e.Count), e.Key)
	}
	for _, e := range s.Total.Errors {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(e.Count), e.Key)
	}

	if s.Queue != nil {
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Queue.MaxSize))
		ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(s.Queue.Occupied))
	}
}
