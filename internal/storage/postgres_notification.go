package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// SaveNotification stores an in-app notification.
func (r *PostgresRepo) SaveNotification(ctx context.Context, notification model.Notification) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(&notification)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveNotification Commit", operation)
	observer.ObserveDbOperationDuration("insert", "notification", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save notification after retries",
			zap.String("notification_id", notification.ID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindNotificationsByUserID lists a user's notifications, newest first.
func (r *PostgresRepo) FindNotificationsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	var notifications []model.Notification

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Offset(offset).
			Find(&notifications)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindNotificationsByUserID", operation)
	observer.ObserveDbOperationDuration("read", "notification", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag. The user filter keeps one user
// from acknowledging another's notifications.
func (r *PostgresRepo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).
			Update("read", true)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: notification %s", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkNotificationRead Commit", operation)
	observer.ObserveDbOperationDuration("update", "notification", time.Since(startTime), err)
	return err
}
