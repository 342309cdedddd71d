package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"blockpulse/internal/engine/events"
	"blockpulse/internal/platform/models"
)

// WebhookRepository is the SQLite subscription store. Lookups return
// (nil, nil) when nothing matches; every mutation is scoped to one row by id.
type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, user_id, url, events, secret, status, description, consecutive_failures, last_triggered_at, created_at, updated_at`

func (r *WebhookRepository) Create(w *models.Webhook) error {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO webhooks (`+webhookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.URL, string(eventsJSON), w.Secret, w.Status, w.Description,
		w.ConsecutiveFailures, nullInt64(w.LastTriggeredAt), w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *WebhookRepository) Get(id string) (*models.Webhook, error) {
	row := r.db.QueryRow(`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (r *WebhookRepository) Update(w *models.Webhook) error {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		UPDATE webhooks
		SET url = ?, events = ?, status = ?, description = ?, consecutive_failures = ?, updated_at = ?
		WHERE id = ?
	`, w.URL, string(eventsJSON), w.Status, w.Description, w.ConsecutiveFailures, w.UpdatedAt, w.ID)
	return err
}

func (r *WebhookRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

func (r *WebhookRepository) ListByUser(userID string) ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

func (r *WebhookRepository) CountByUser(userID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM webhooks WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// ListActiveByEvent filters the event set in the application. The events
// column holds a JSON array and per-user webhook counts are capped, so a full
// scan of the user's active rows is fine.
func (r *WebhookRepository) ListActiveByEvent(userID string, t events.Type) ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? AND status = ?`,
		userID, models.WebhookStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := collectWebhooks(rows)
	if err != nil {
		return nil, err
	}
	var matched []*models.Webhook
	for _, w := range all {
		if w.SubscribesTo(t) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

func (r *WebhookRepository) UpdateSecret(id, secret string) error {
	_, err := r.db.Exec(`UPDATE webhooks SET secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().Unix(), id)
	return err
}

func (r *WebhookRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`UPDATE webhooks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id)
	return err
}

func (r *WebhookRepository) RecordSuccess(id string, at int64) error {
	_, err := r.db.Exec(`UPDATE webhooks SET consecutive_failures = 0, last_triggered_at = ? WHERE id = ?`,
		at, id)
	return err
}

func (r *WebhookRepository) RecordFailure(id string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE webhooks SET consecutive_failures = consecutive_failures + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var count int
	if err := tx.QueryRow(`SELECT consecutive_failures FROM webhooks WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var (
		w               models.Webhook
		eventsStr       string
		description     sql.NullString
		lastTriggeredAt sql.NullInt64
	)
	err := row.Scan(&w.ID, &w.UserID, &w.URL, &eventsStr, &w.Secret, &w.Status, &description,
		&w.ConsecutiveFailures, &lastTriggeredAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		w.Description = description.String
	}
	if lastTriggeredAt.Valid {
		w.LastTriggeredAt = lastTriggeredAt.Int64
	}
	json.Unmarshal([]byte(eventsStr), &w.Events)
	return &w, nil
}

func collectWebhooks(rows *sql.Rows) ([]*models.Webhook, error) {
	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
