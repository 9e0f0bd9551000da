package scheduler

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	processed  prometheus.Counter
	timeouts   prometheus.Counter
	failures   prometheus.Counter
	queueDepth prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kolibri",
			Subsystem: "scheduler",
			Name:      "calls_processed_total",
			Help:      "Scheduled calls that completed successfully.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kolibri",
			Subsystem: "scheduler",
			Name:      "calls_timed_out_total",
			Help:      "Scheduled calls that exceeded their deadline.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kolibri",
			Subsystem: "scheduler",
			Name:      "calls_failed_total",
			Help:      "Scheduled calls that returned an error.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kolibri",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Calls currently waiting in the queue.",
		}),
	}
}

// Register attaches the scheduler's metrics to reg. Collectors are created
// unregistered so tests can run many schedulers without collisions.
func (s *Scheduler) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		s.metrics.processed,
		s.metrics.timeouts,
		s.metrics.failures,
		s.metrics.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
