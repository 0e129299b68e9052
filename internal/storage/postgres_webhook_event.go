package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// WebhookEventSeenWithin reports whether a payments event id was already
// recorded inside the dedup window. Best effort: there is no uniqueness
// constraint, so a redelivery racing the first delivery can slip through.
func (r *PostgresRepo) WebhookEventSeenWithin(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	var count int64

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
			Where("event_id = ? AND created_at > ?", eventID, utils.Now().Add(-window)).
			Count(&count)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "WebhookEventSeenWithin", operation)
	observer.ObserveDbOperationDuration("read", "webhook_event", time.Since(startTime), err)

	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordWebhookEvent appends to the dedup ledger.
func (r *PostgresRepo) RecordWebhookEvent(ctx context.Context, event model.WebhookEvent) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(&event)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "RecordWebhookEvent Commit", operation)
	observer.ObserveDbOperationDuration("insert", "webhook_event", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to record webhook event after retries",
			zap.String("event_id", event.EventID), zap.Error(err))
		return err
	}
	return nil
}
