package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

func testDelivery(id, webhookID, eventID string, attempt int) *models.WebhookDelivery {
	return &models.WebhookDelivery{
		ID:        id,
		WebhookID: webhookID,
		EventID:   eventID,
		EventType: events.PriceAlertTriggered,
		Payload:   []byte(`{"id":"` + eventID + `"}`),
		Status:    models.DeliveryStatusPending,
		Attempt:   attempt,
		CreatedAt: time.Now().Unix(),
	}
}

func TestDeliveryRepositoryAppendAndGet(t *testing.T) {
	repo := NewDeliveryRepository(setupTestDB(t))

	d := testDelivery("del_1", "wh_1", "evt_1", 1)
	require.NoError(t, repo.Append(d))

	got, err := repo.Get("del_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wh_1", got.WebhookID)
	assert.Equal(t, "evt_1", got.EventID)
	assert.Equal(t, events.PriceAlertTriggered, got.EventType)
	assert.Equal(t, models.DeliveryStatusPending, got.Status)
	assert.Nil(t, got.ResponseStatus)
	assert.Nil(t, got.NextRetryAt)
	assert.Nil(t, got.CompletedAt)
	assert.JSONEq(t, `{"id":"evt_1"}`, string(got.Payload))
}

func TestDeliveryRepositoryGetMissing(t *testing.T) {
	repo := NewDeliveryRepository(setupTestDB(t))

	got, err := repo.Get("del_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeliveryRepositoryUpdate(t *testing.T) {
	repo := NewDeliveryRepository(setupTestDB(t))

	d := testDelivery("del_1", "wh_1", "evt_1", 1)
	require.NoError(t, repo.Append(d))

	code := 503
	next := time.Now().Add(time.Minute).Unix()
	d.Status = models.DeliveryStatusRetrying
	d.ResponseStatus = &code
	d.ResponseBody = "service unavailable"
	d.LatencyMS = 42
	d.ErrorMessage = "unexpected status 503"
	d.NextRetryAt = &next
	require.NoError(t, repo.Update(d))

	got, err := repo.Get("del_1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusRetrying, got.Status)
	require.NotNil(t, got.ResponseStatus)
	assert.Equal(t, 503, *got.ResponseStatus)
	assert.Equal(t, "service unavailable", got.ResponseBody)
	assert.Equal(t, int64(42), got.LatencyMS)
	assert.Equal(t, "unexpected status 503", got.ErrorMessage)
	require.NotNil(t, got.NextRetryAt)
	assert.Equal(t, next, *got.NextRetryAt)
}

func TestDeliveryRepositoryListByWebhook(t *testing.T) {
	repo := NewDeliveryRepository(setupTestDB(t))

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		d := testDelivery(
			"del_"+string(rune('a'+i)), "wh_1", "evt_1", i+1)
		d.CreatedAt = base + int64(i)
		require.NoError(t, repo.Append(d))
	}
	require.NoError(t, repo.Append(testDelivery("del_other", "wh_2", "evt_2", 1)))

	got, err := repo.ListByWebhook("wh_1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	assert.Equal(t, 5, got[0].Attempt)
	assert.Equal(t, 4, got[1].Attempt)
	assert.Equal(t, 3, got[2].Attempt)

	all, err := repo.ListByWebhook("wh_1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDeliveryRepositoryListDueRetries(t *testing.T) {
	repo := NewDeliveryRepository(setupTestDB(t))
	now := time.Now().Unix()

	due := testDelivery("del_due", "wh_1", "evt_due", 1)
	due.Status = models.DeliveryStatusRetrying
	past := now - 60
	due.NextRetryAt = &past
	require.NoError(t, repo.Append(due))

	future := testDelivery("del_future", "wh_1", "evt_future", 1)
	future.Status = models.DeliveryStatusRetrying
	later := now + 3600
	future.NextRetryAt = &later
	require.NoError(t, repo.Append(future))

	done := testDelivery("del_done", "wh_1", "evt_done", 1)
	done.Status = models.DeliveryStatusSuccess
	require.NoError(t, repo.Append(done))

	// A lineage whose follow-up attempt already exists must not be
	// re-armed even though the old record still reads retrying.
	superseded := testDelivery("del_old", "wh_1", "evt_chain", 1)
	superseded.Status = models.DeliveryStatusRetrying
	superseded.NextRetryAt = &past
	require.NoError(t, repo.Append(superseded))
	successor := testDelivery("del_new", "wh_1", "evt_chain", 2)
	successor.Status = models.DeliveryStatusSending
	require.NoError(t, repo.Append(successor))

	got, err := repo.ListDueRetries(now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "del_due", got[0].ID)
}
