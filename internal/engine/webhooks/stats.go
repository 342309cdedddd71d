package webhooks

import "blockpulse/internal/platform/models"

// Stats summarizes delivery health for one webhook. Counts cover completed
// attempts: success on one side, failed and retrying (a failed attempt with a
// follow-up scheduled) on the other.
type Stats struct {
	TotalDeliveries  int     `json:"total_deliveries"`
	SuccessCount     int     `json:"success_count"`
	FailureCount     int     `json:"failure_count"`
	SuccessRate      float64 `json:"success_rate"`
	AverageLatencyMS float64 `json:"average_latency_ms"`
	LastSuccessAt    *int64  `json:"last_success_at,omitempty"`
	LastFailureAt    *int64  `json:"last_failure_at,omitempty"`
}

// Aggregator computes Stats as a pure fold over the delivery records.
type Aggregator struct {
	deliveries DeliveryStore
}

func NewAggregator(deliveries DeliveryStore) *Aggregator {
	return &Aggregator{deliveries: deliveries}
}

func (a *Aggregator) StatsFor(webhookID string) (*Stats, error) {
	records, err := a.deliveries.ListByWebhook(webhookID, 0)
	if err != nil {
		return nil, err
	}

	var (
		stats        Stats
		latencySum   int64
		latencyCount int
	)
	for _, d := range records {
		switch d.Status {
		case models.DeliveryStatusSuccess:
			stats.SuccessCount++
			if at := attemptTime(d); stats.LastSuccessAt == nil || at > *stats.LastSuccessAt {
				v := at
				stats.LastSuccessAt = &v
			}
		case models.DeliveryStatusFailed, models.DeliveryStatusRetrying:
			stats.FailureCount++
			if at := attemptTime(d); stats.LastFailureAt == nil || at > *stats.LastFailureAt {
				v := at
				stats.LastFailureAt = &v
			}
		default:
			// pending/sending attempts are still in flight
			continue
		}
		if d.ResponseStatus != nil {
			latencySum += d.LatencyMS
			latencyCount++
		}
	}

	stats.TotalDeliveries = stats.SuccessCount + stats.FailureCount
	if stats.TotalDeliveries > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalDeliveries)
	}
	if latencyCount > 0 {
		stats.AverageLatencyMS = float64(latencySum) / float64(latencyCount)
	}
	return &stats, nil
}

func attemptTime(d *models.WebhookDelivery) int64 {
	if d.CompletedAt != nil {
		return *d.CompletedAt
	}
	return d.CreatedAt
}
