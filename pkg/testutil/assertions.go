package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
)

// AssertVerdictsEqual compares two verdict lists field by field, tolerating float
// round-trips through the database.
func AssertVerdictsEqual(t *testing.T, want, got []model.AnomalyVerdict) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.InvoiceID, g.InvoiceID, "verdict %d", i)
		assert.InDelta(t, w.Score, g.Score, 1e-9, "verdict %d score", i)
		assert.Equal(t, w.RiskLevel, g.RiskLevel, "verdict %d risk level", i)
		assert.Equal(t, w.Category, g.Category, "verdict %d category", i)
		assert.Equal(t, w.ModelVersion, g.ModelVersion, "verdict %d model version", i)
		assert.True(t, w.AmountImpact.Equal(g.AmountImpact), "verdict %d amount impact: want %s, got %s", i, w.AmountImpact, g.AmountImpact)
		assert.ElementsMatch(t, w.Abstentions, g.Abstentions, "verdict %d abstentions", i)
		if assert.Len(t, g.Signals, len(w.Signals), "verdict %d signals", i) {
			for j := range w.Signals {
				assert.Equal(t, w.Signals[j].Source, g.Signals[j].Source)
				assert.Equal(t, w.Signals[j].Code, g.Signals[j].Code)
				assert.Equal(t, w.Signals[j].Reason, g.Signals[j].Reason)
				assert.InDelta(t, w.Signals[j].Value, g.Signals[j].Value, 1e-9)
			}
		}
	}
}
