package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"xoranyx-bot/internal/ledger"
)

// Ledger counts ledger outcomes. It implements ledger.Recorder.
type Ledger struct {
	actions   *prometheus.CounterVec
	coins     *prometheus.CounterVec
	referrals *prometheus.CounterVec
	settled   prometheus.Counter
}

var _ ledger.Recorder = (*Ledger)(nil)

func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xoranyx",
			Subsystem: "ledger",
			Name:      "actions_total",
			Help:      "Daily capped actions by type and outcome.",
		}, []string{"action", "status"}),
		coins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xoranyx",
			Subsystem: "ledger",
			Name:      "coins_credited_total",
			Help:      "Coins credited by daily capped actions.",
		}, []string{"action"}),
		referrals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xoranyx",
			Subsystem: "ledger",
			Name:      "referrals_total",
			Help:      "Referral attributions by outcome.",
		}, []string{"status", "reason"}),
		settled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xoranyx",
			Subsystem: "ledger",
			Name:      "referrals_settled_total",
			Help:      "Owed invite rewards paid by the settlement worker.",
		}),
	}
	reg.MustRegister(m.actions, m.coins, m.referrals, m.settled)
	return m
}

func (m *Ledger) ActionCompleted(action ledger.ActionType, status ledger.ActionStatus, reward int64) {
	m.actions.WithLabelValues(string(action), string(status)).Inc()
	if status == ledger.ActionCredited {
		m.coins.WithLabelValues(string(action)).Add(float64(reward))
	}
}

func (m *Ledger) ReferralCompleted(status ledger.AttributionStatus, reason ledger.SkipReason) {
	m.referrals.WithLabelValues(string(status), string(reason)).Inc()
}

func (m *Ledger) ReferralSettled() {
	m.settled.Inc()
}
