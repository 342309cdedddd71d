package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

func seedDelivery(t *testing.T, store *fakeDeliveryStore, id, webhookID, status string, latencyMS int64, completedAt int64) {
	t.Helper()
	d := &models.WebhookDelivery{
		ID:        id,
		WebhookID: webhookID,
		EventID:   "evt_" + id,
		EventType: events.PriceAlertTriggered,
		Payload:   []byte(`{}`),
		Status:    status,
		LatencyMS: latencyMS,
		Attempt:   1,
		CreatedAt: completedAt,
	}
	if status == models.DeliveryStatusSuccess || status == models.DeliveryStatusFailed {
		d.CompletedAt = &completedAt
	}
	if latencyMS > 0 {
		code := 200
		if status != models.DeliveryStatusSuccess {
			code = 500
		}
		d.ResponseStatus = &code
	}
	require.NoError(t, store.Append(d))
}

func TestStatsForMixedOutcomes(t *testing.T) {
	store := newFakeDeliveryStore()
	agg := NewAggregator(store)

	seedDelivery(t, store, "d1", "wh_1", models.DeliveryStatusSuccess, 100, 1000)
	seedDelivery(t, store, "d2", "wh_1", models.DeliveryStatusSuccess, 200, 2000)
	seedDelivery(t, store, "d3", "wh_1", models.DeliveryStatusSuccess, 300, 3000)
	seedDelivery(t, store, "d4", "wh_1", models.DeliveryStatusFailed, 400, 4000)
	// Another webhook's records must not bleed in.
	seedDelivery(t, store, "d5", "wh_2", models.DeliveryStatusFailed, 50, 5000)

	stats, err := agg.StatsFor("wh_1")
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalDeliveries)
	assert.Equal(t, 3, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 250.0, stats.AverageLatencyMS, 1e-9)
	require.NotNil(t, stats.LastSuccessAt)
	assert.Equal(t, int64(3000), *stats.LastSuccessAt)
	require.NotNil(t, stats.LastFailureAt)
	assert.Equal(t, int64(4000), *stats.LastFailureAt)
}

func TestStatsForNoDeliveries(t *testing.T) {
	agg := NewAggregator(newFakeDeliveryStore())

	stats, err := agg.StatsFor("wh_empty")
	require.NoError(t, err)

	assert.Zero(t, stats.TotalDeliveries)
	assert.Zero(t, stats.SuccessRate, "no deliveries must not divide by zero")
	assert.Zero(t, stats.AverageLatencyMS)
	assert.Nil(t, stats.LastSuccessAt)
	assert.Nil(t, stats.LastFailureAt)
}

func TestStatsCountsRetryingAttemptsAsFailures(t *testing.T) {
	store := newFakeDeliveryStore()
	agg := NewAggregator(store)

	seedDelivery(t, store, "d1", "wh_1", models.DeliveryStatusRetrying, 30, 1000)
	seedDelivery(t, store, "d2", "wh_1", models.DeliveryStatusSuccess, 40, 2000)
	// In-flight attempts are not counted either way.
	seedDelivery(t, store, "d3", "wh_1", models.DeliveryStatusSending, 0, 3000)

	stats, err := agg.StatsFor("wh_1")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalDeliveries)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
}
