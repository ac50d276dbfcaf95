package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the server's Prometheus instrumentation.
type Metrics struct {
	activeConnections prometheus.Gauge
	namedConnections  prometheus.Gauge
	activeGames       prometheus.Gauge
	robotsAvailable   prometheus.Gauge

	messagesReceived *prometheus.CounterVec
	messagesSent     prometheus.Counter
	gamesCreated     prometheus.Counter
	gamesDestroyed   prometheus.Counter
	reclaims         prometheus.Counter
	authFailures     prometheus.Counter
	forcedEndTurns   prometheus.Counter
	forcedDiscards   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics set. Collectors register with
// the default Prometheus registry once, no matter how many servers a
// process runs.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = newMetrics()
	})
	return metricsInst
}

func newMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gametable_active_connections",
			Help: "Current number of open client connections",
		}),
		namedConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gametable_named_connections",
			Help: "Current number of authenticated client connections",
		}),
		activeGames: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gametable_active_games",
			Help: "Current number of game rooms",
		}),
		robotsAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gametable_robots_available",
			Help: "Robots registered in the robot pool",
		}),
		messagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gametable_messages_received_total",
			Help: "Messages received, by protocol type",
		}, []string{"type"}),
		messagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_messages_sent_total",
			Help: "Messages sent to clients",
		}),
		gamesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_games_created_total",
			Help: "Game rooms created",
		}),
		gamesDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_games_destroyed_total",
			Help: "Game rooms destroyed",
		}),
		reclaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_nickname_reclaims_total",
			Help: "Successful nickname takeovers",
		}),
		authFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_auth_failures_total",
			Help: "Rejected authentication attempts",
		}),
		forcedEndTurns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_forced_end_turns_total",
			Help: "Turns ended by the watchdog",
		}),
		forcedDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gametable_forced_discards_total",
			Help: "Discards performed by the watchdog",
		}),
	}
}

func (m *Metrics) RecordConnection()    { m.activeConnections.Inc() }
func (m *Metrics) RecordDisconnection() { m.activeConnections.Dec() }

func (m *Metrics) RecordNamedConnections(n int) { m.namedConnections.Set(float64(n)) }
func (m *Metrics) RecordActiveGames(n int)      { m.activeGames.Set(float64(n)) }
func (m *Metrics) RecordRobotsAvailable(n int)  { m.robotsAvailable.Set(float64(n)) }

func (m *Metrics) RecordMessageReceived(msgType int) {
	m.messagesReceived.WithLabelValues(strconv.Itoa(msgType)).Inc()
}
func (m *Metrics) RecordMessageSent() { m.messagesSent.Inc() }

func (m *Metrics) RecordGameCreated()   { m.gamesCreated.Inc() }
func (m *Metrics) RecordGameDestroyed() { m.gamesDestroyed.Inc() }
func (m *Metrics) RecordReclaim()       { m.reclaims.Inc() }
func (m *Metrics) RecordAuthFailure()   { m.authFailures.Inc() }
func (m *Metrics) RecordForcedEndTurn() { m.forcedEndTurns.Inc() }
func (m *Metrics) RecordForcedDiscard() { m.forcedDiscards.Inc() }

// StartMetricsServer serves /metrics and /health on addr.
func (s *Server) startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		unnamed, named := s.registry.Counts()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d,"connections":%d,"games":%d}`+"\n",
			int(time.Since(s.startTime).Seconds()), unnamed+named, s.games.Count())
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("metrics server: %v", err)
		}
	}()
	return srv
}
