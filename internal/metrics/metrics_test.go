package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"xoranyx-bot/internal/ledger"
)

func TestLedgerCounters(t *testing.T) {
	m := NewLedger(prometheus.NewRegistry())

	m.ActionCompleted(ledger.ActionWatchAd, ledger.ActionCredited, 10)
	m.ActionCompleted(ledger.ActionWatchAd, ledger.ActionCredited, 10)
	m.ActionCompleted(ledger.ActionWatchAd, ledger.ActionLimitReached, 10)
	m.ReferralCompleted(ledger.StatusSkipped, ledger.SkipSelfReferral)
	m.ReferralSettled()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("watch_ad", "credited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("watch_ad", "limit_reached")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.coins.WithLabelValues("watch_ad")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.referrals.WithLabelValues("skipped", "self_referral")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settled))
}
