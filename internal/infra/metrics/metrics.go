package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jose-valero/pug-league-bot/internal/draft"
)

const namespace = "pugbot"

// Metrics holds every collector the bot exports, on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	admissions     *prometheus.CounterVec
	bursts         *prometheus.CounterVec
	readyFailures  *prometheus.CounterVec
	matchesStarted *prometheus.CounterVec
	matchFailures  *prometheus.CounterVec
	activeMatches  prometheus.Gauge
	sessions       *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_admissions_total",
			Help:      "Lobby join attempts by result",
		}, []string{"league", "result"}),
		bursts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_bursts_total",
			Help:      "Queues that reached capacity",
		}, []string{"league"}),
		readyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ready_check_failures_total",
			Help:      "Ready checks that timed out with missing players",
		}, []string{"league"}),
		matchesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Matches accepted by the league API",
		}, []string{"league"}),
		matchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_start_failures_total",
			Help:      "Match attempts that did not start",
		}, []string{"league", "reason"}),
		activeMatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Matches currently owning voice channels",
		}),
		sessions: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "draft_session_seconds",
			Help:      "Duration of draft and vote sessions",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"kind", "timed_out"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Admission(leagueID, result string) {
	m.admissions.WithLabelValues(leagueID, result).Inc()
}

func (m *Metrics) Burst(leagueID string) { m.bursts.WithLabelValues(leagueID).Inc() }

func (m *Metrics) ReadyFailed(leagueID string) { m.readyFailures.WithLabelValues(leagueID).Inc() }

func (m *Metrics) MatchStarted(leagueID string) { m.matchesStarted.WithLabelValues(leagueID).Inc() }

func (m *Metrics) MatchFailed(leagueID, reason string) {
	m.matchFailures.WithLabelValues(leagueID, reason).Inc()
}

func (m *Metrics) SetActiveMatches(n int) { m.activeMatches.Set(float64(n)) }

// ObserveSession implements draft.Observer.
func (m *Metrics) ObserveSession(kind draft.Kind, took time.Duration, timedOut bool) {
	m.sessions.WithLabelValues(string(kind), strconv.FormatBool(timedOut)).Observe(took.Seconds())
}
