package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LeaderboardMetrics tracks engine-level activity, including submissions that
// left the board untouched.
type LeaderboardMetrics struct {
	submissions *prometheus.CounterVec
	evictions   prometheus.Counter
	entries     prometheus.Gauge
	allowlisted prometheus.Gauge
	paused      prometheus.Gauge
	adminOps    *prometheus.CounterVec
}

var (
	leaderboardOnce     sync.Once
	leaderboardRegistry *LeaderboardMetrics
)

func Leaderboard() *LeaderboardMetrics {
	leaderboardOnce.Do(func() {
		leaderboardRegistry = &LeaderboardMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "leaderboard_submissions_total",
				Help: "Count of score submissions by outcome.",
			}, []string{"outcome"}),
			evictions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "leaderboard_evictions_total",
				Help: "Number of entries evicted to make room for a higher score.",
			}),
			entries: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "leaderboard_entries",
				Help: "Current number of entries on the board.",
			}),
			allowlisted: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "leaderboard_allowlist_size",
				Help: "Current number of allowlisted wallets.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "leaderboard_paused",
				Help: "1 when submissions are paused.",
			}),
			adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "leaderboard_admin_operations_total",
				Help: "Count of admin operations by operation and result.",
			}, []string{"operation", "result"}),
		}
		prometheus.MustRegister(
			leaderboardRegistry.submissions,
			leaderboardRegistry.evictions,
			leaderboardRegistry.entries,
			leaderboardRegistry.allowlisted,
			leaderboardRegistry.paused,
			leaderboardRegistry.adminOps,
		)
	})
	return leaderboardRegistry
}

// ObserveSubmission records a submission outcome. Rejected submissions use the
// outcome "rejected".
func (m *LeaderboardMetrics) ObserveSubmission(outcome string, evicted bool) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if evicted {
		m.evictions.Inc()
	}
}

func (m *LeaderboardMetrics) ObserveAdmin(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.adminOps.WithLabelValues(operation, result).Inc()
}

// SetState publishes the board size, allowlist size and pause flag.
func (m *LeaderboardMetrics) SetState(entries, allowlisted int, paused bool) {
	if m == nil {
		return
	}
	m.entries.Set(float64(entries))
	m.allowlisted.Set(float64(allowlisted))
	if paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}
