package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andarbahar_bets_total",
			Help: "Bet placements by table and result reason",
		},
		[]string{"table_id", "result"},
	)

	betDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "andarbahar_bet_duration_ms",
			Help:    "Time to validate and commit a bet in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"table_id"},
	)

	phaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andarbahar_phase_transitions_total",
			Help: "Round phase transitions by table and target phase",
		},
		[]string{"table_id", "phase"},
	)

	roundsVoided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andarbahar_rounds_voided_total",
			Help: "Rounds abandoned after an internal fault or admin reset",
		},
		[]string{"table_id"},
	)

	payoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "andarbahar_payout_amount_total",
			Help: "Sum of winnings credited",
		},
		[]string{"table_id"},
	)

	cardsDealt = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "andarbahar_cards_dealt",
			Help:    "Cards dealt before a winner was found",
			Buckets: prometheus.LinearBuckets(2, 4, 10),
		},
		[]string{"table_id"},
	)

	connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "andarbahar_connections",
			Help: "Open websocket connections by table",
		},
		[]string{"table_id"},
	)

	droppedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "andarbahar_slow_connections_closed_total",
			Help: "Connections closed because their send buffer filled",
		},
	)
)

// RecordBet records a bet placement. result is "confirmed" or the error reason.
func RecordBet(tableID, result string, started time.Time) {
	betTotal.WithLabelValues(tableID, result).Inc()
	betDuration.WithLabelValues(tableID).Observe(float64(time.Since(started).Microseconds()) / 1000)
}

func RecordPhase(tableID, phase string) {
	phaseTransitions.WithLabelValues(tableID, phase).Inc()
}

func RecordVoid(tableID string) {
	roundsVoided.WithLabelValues(tableID).Inc()
}

// RecordSettlement records the paid total and the number of cards a round took.
func RecordSettlement(tableID string, paid float64, cards int) {
	payoutsTotal.WithLabelValues(tableID).Add(paid)
	cardsDealt.WithLabelValues(tableID).Observe(float64(cards))
}

func ConnectionOpened(tableID string) {
	connections.WithLabelValues(tableID).Inc()
}

func ConnectionClosed(tableID string) {
	connections.WithLabelValues(tableID).Dec()
}

func SlowConnectionClosed() {
	droppedConnections.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
