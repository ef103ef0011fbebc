package repositories

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"example.com/lifeline/agent/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Backoff schedule for rejected events. The jitter spreads retries out so a
// fleet of devices recovering from a shared outage does not retry in lockstep.
const (
	BackoffBaseDelay = 5 * time.Second
	BackoffMaxDelay  = 300 * time.Second
	BackoffMaxJitter = time.Second
)

// DefaultMaxRetries is the automatic retry ceiling for a queued event.
const DefaultMaxRetries = 5

// QueueStats holds aggregate outbox counts for the status surface.
type QueueStats struct {
	Pending  int64 `json:"pending"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// QueueRepository provides access to the durable event outbox
type QueueRepository struct {
	db         *gorm.DB
	maxRetries int
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *gorm.DB, maxRetries int) *QueueRepository {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &QueueRepository{
		db:         db,
		maxRetries: maxRetries,
	}
}

// WithTx returns a repository bound to an open transaction, so an enqueue can
// commit atomically with the business mutation it mirrors.
func (r *QueueRepository) WithTx(tx *gorm.DB) *QueueRepository {
	return &QueueRepository{
		db:         tx,
		maxRetries: r.maxRetries,
	}
}

// Enqueue inserts a PENDING event and returns its client event identifier.
// The identifier is minted exactly once here and never regenerated; it is the
// idempotency key the remote system uses to recognize re-delivery.
func (r *QueueRepository) Enqueue(ctx context.Context, eventType string, payload interface{}, occurredAt time.Time) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to marshal %s payload", eventType)
	}

	event := &models.QueueEvent{
		ClientEventID: uuid.New(),
		EventType:     eventType,
		Payload:       body,
		OccurredAt:    occurredAt,
		Status:        models.EventStatusPending,
		MaxRetries:    r.maxRetries,
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to enqueue %s event", eventType)
	}

	return event.ClientEventID, nil
}

// FetchPending returns events eligible for delivery: PENDING or REJECTED rows
// below the retry ceiling whose backoff delay has elapsed, oldest first.
func (r *QueueRepository) FetchPending(ctx context.Context, limit int) ([]models.QueueEvent, error) {
	var events []models.QueueEvent
	now := time.Now()

	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.EventStatusPending, models.EventStatusRejected}).
		Where("retry_count < max_retries").
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch pending events")
	}

	return events, nil
}

// MarkPushing records that a delivery attempt has begun for the event
func (r *QueueRepository) MarkPushing(ctx context.Context, clientEventID uuid.UUID) error {
	return r.updateEvent(ctx, clientEventID, map[string]interface{}{
		"status": models.EventStatusPushing,
	})
}

// MarkAccepted records a server acceptance together with the opaque server
// response consumed during reconciliation
func (r *QueueRepository) MarkAccepted(ctx context.Context, clientEventID uuid.UUID, serverResponse []byte) error {
	now := time.Now()
	return r.updateEvent(ctx, clientEventID, map[string]interface{}{
		"status":          models.EventStatusAccepted,
		"server_response": serverResponse,
		"error_code":      nil,
		"error_message":   nil,
		"pushed_at":       now,
	})
}

// MarkDuplicate records that the remote side recognized a re-delivery.
// Counted as a success; the original delivery already reconciled.
func (r *QueueRepository) MarkDuplicate(ctx context.Context, clientEventID uuid.UUID) error {
	now := time.Now()
	return r.updateEvent(ctx, clientEventID, map[string]interface{}{
		"status":    models.EventStatusDuplicate,
		"pushed_at": now,
	})
}

// MarkRejected records a failed delivery attempt and schedules the next
// automatic retry with exponential backoff
func (r *QueueRepository) MarkRejected(ctx context.Context, clientEventID uuid.UUID, errorCode, errorMessage string) error {
	var event models.QueueEvent
	err := r.db.WithContext(ctx).
		Where("client_event_id = ?", clientEventID).
		First(&event).Error
	if err != nil {
		return errors.Wrap(err, "failed to load event for rejection")
	}

	retryCount := event.RetryCount + 1
	nextRetryAt := time.Now().Add(backoffDelay(retryCount))

	return r.updateEvent(ctx, clientEventID, map[string]interface{}{
		"status":        models.EventStatusRejected,
		"error_code":    errorCode,
		"error_message": errorMessage,
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt,
	})
}

// Retry resets a rejected event for another delivery attempt, zeroing the
// retry counter. This is the manual operator path and works regardless of how
// many automatic attempts have failed.
func (r *QueueRepository) Retry(ctx context.Context, clientEventID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.QueueEvent{}).
		Where("client_event_id = ? AND status = ?", clientEventID, models.EventStatusRejected).
		Updates(map[string]interface{}{
			"status":        models.EventStatusPending,
			"retry_count":   0,
			"next_retry_at": nil,
			"error_code":    nil,
			"error_message": nil,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to retry event")
	}
	if result.RowsAffected == 0 {
		return errors.New("no rejected event found to retry")
	}
	return nil
}

// Dismiss permanently deletes an event the operator has decided should never
// be retried. Local business-entity state is untouched.
func (r *QueueRepository) Dismiss(ctx context.Context, clientEventID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("client_event_id = ?", clientEventID).
		Delete(&models.QueueEvent{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to dismiss event")
	}
	if result.RowsAffected == 0 {
		return errors.New("no event found to dismiss")
	}
	return nil
}

// Stats returns aggregate outbox counts. PUSHING rows count as pending (an
// attempt is in flight); DUPLICATE rows count as accepted.
func (r *QueueRepository) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	counts := []struct {
		statuses []string
		dest     *int64
	}{
		{[]string{models.EventStatusPending, models.EventStatusPushing}, &stats.Pending},
		{[]string{models.EventStatusAccepted, models.EventStatusDuplicate}, &stats.Accepted},
		{[]string{models.EventStatusRejected}, &stats.Rejected},
	}

	for _, c := range counts {
		err := r.db.WithContext(ctx).
			Model(&models.QueueEvent{}).
			Where("status IN ?", c.statuses).
			Count(c.dest).Error
		if err != nil {
			return QueueStats{}, errors.Wrap(err, "failed to count queue events")
		}
	}

	return stats, nil
}

// List returns events for the operator views, optionally filtered by status,
// newest first
func (r *QueueRepository) List(ctx context.Context, status string, limit int) ([]models.QueueEvent, error) {
	var events []models.QueueEvent

	query := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&events).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list queue events")
	}

	return events, nil
}

// GetByClientEventID returns a single event by its client event identifier
func (r *QueueRepository) GetByClientEventID(ctx context.Context, clientEventID uuid.UUID) (*models.QueueEvent, error) {
	var event models.QueueEvent
	err := r.db.WithContext(ctx).
		Where("client_event_id = ?", clientEventID).
		First(&event).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queue event")
	}
	return &event, nil
}

func (r *QueueRepository) updateEvent(ctx context.Context, clientEventID uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.QueueEvent{}).
		Where("client_event_id = ?", clientEventID).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update queue event")
	}
	if result.RowsAffected == 0 {
		return errors.New("no queue event updated")
	}
	return nil
}

// backoffDelay computes the delay before the next automatic retry:
// base * 2^retryCount plus up to a second of jitter, capped at the maximum.
func backoffDelay(retryCount int) time.Duration {
	delay := BackoffMaxDelay
	if retryCount < 8 {
		delay = BackoffBaseDelay * (1 << uint(retryCount))
	}
	if delay > BackoffMaxDelay {
		delay = BackoffMaxDelay
	}
	delay += time.Duration(rand.Int63n(int64(BackoffMaxJitter)))
	if delay > BackoffMaxDelay {
		delay = BackoffMaxDelay
	}
	return delay
}
