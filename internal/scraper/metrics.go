package scraper

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmap",
		Subsystem: "scraper",
		Name:      "fetch_attempts_total",
		Help:      "Fetch attempts per scraper, retries included.",
	}, []string{"scraper"})

	fetchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmap",
		Subsystem: "scraper",
		Name:      "results_total",
		Help:      "Final outcome per URL: ok, empty or dropped.",
	}, []string{"scraper", "outcome"})
)

// Register adds the scraper collectors to reg. Calling it twice on the same
// registry returns the AlreadyRegistered error from the second call.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{fetchAttempts, fetchOutcomes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
