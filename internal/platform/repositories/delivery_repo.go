package repositories

import (
	"database/sql"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

// DeliveryRepository is the SQLite store of delivery attempt records. Rows
// are appended once per attempt and only mutated while the attempt is in
// flight; terminal rows are never rewritten.
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, webhook_id, event_id, event_type, payload, status, response_status, response_body, latency_ms, error_message, attempt, next_retry_at, created_at, completed_at`

func (r *DeliveryRepository) Append(d *models.WebhookDelivery) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.WebhookID, d.EventID, string(d.EventType), string(d.Payload), d.Status,
		d.ResponseStatus, d.ResponseBody, d.LatencyMS, d.ErrorMessage, d.Attempt,
		d.NextRetryAt, d.CreatedAt, d.CompletedAt)
	return err
}

func (r *DeliveryRepository) Update(d *models.WebhookDelivery) error {
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = ?, response_status = ?, response_body = ?, latency_ms = ?, error_message = ?, next_retry_at = ?, completed_at = ?
		WHERE id = ?
	`, d.Status, d.ResponseStatus, d.ResponseBody, d.LatencyMS, d.ErrorMessage,
		d.NextRetryAt, d.CompletedAt, d.ID)
	return err
}

func (r *DeliveryRepository) Get(id string) (*models.WebhookDelivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (r *DeliveryRepository) ListByWebhook(webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = ? ORDER BY created_at DESC, attempt DESC`
	args := []any{webhookID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListDueRetries returns retrying records whose next_retry_at has passed and
// whose lineage has no later attempt yet. A record that already spawned its
// follow-up stays in status retrying as history and must not be re-armed.
func (r *DeliveryRepository) ListDueRetries(now int64) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(`
		SELECT `+deliveryColumns+` FROM webhook_deliveries d
		WHERE d.status = ? AND d.next_retry_at IS NOT NULL AND d.next_retry_at <= ?
		AND NOT EXISTS (
			SELECT 1 FROM webhook_deliveries later
			WHERE later.event_id = d.event_id AND later.attempt > d.attempt
		)
	`, models.DeliveryStatusRetrying, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var (
		d              models.WebhookDelivery
		eventType      string
		payload        string
		responseStatus sql.NullInt64
		responseBody   sql.NullString
		errorMessage   sql.NullString
		nextRetryAt    sql.NullInt64
		completedAt    sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventID, &eventType, &payload, &d.Status,
		&responseStatus, &responseBody, &d.LatencyMS, &errorMessage, &d.Attempt,
		&nextRetryAt, &d.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	d.EventType = events.Type(eventType)
	d.Payload = []byte(payload)
	if responseStatus.Valid {
		v := int(responseStatus.Int64)
		d.ResponseStatus = &v
	}
	if responseBody.Valid {
		d.ResponseBody = responseBody.String
	}
	if errorMessage.Valid {
		d.ErrorMessage = errorMessage.String
	}
	if nextRetryAt.Valid {
		v := nextRetryAt.Int64
		d.NextRetryAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Int64
		d.CompletedAt = &v
	}
	return &d, nil
}

func collectDeliveries(rows *sql.Rows) ([]*models.WebhookDelivery, error) {
	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
