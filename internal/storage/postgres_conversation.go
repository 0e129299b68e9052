package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// SaveConversation stores a conversation, upserting on the vendor's external id.
func (r *PostgresRepo) SaveConversation(ctx context.Context, conversation model.Conversation) error {
	conversation.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "status", "updated_at"}),
		}).Create(&conversation)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveConversation Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "conversation", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save conversation after retries",
			zap.String("external_id", conversation.ExternalID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindConversationByExternalID loads a conversation by its vendor id.
func (r *PostgresRepo) FindConversationByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	var conversation model.Conversation

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("external_id = ?", externalID).
			First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, externalID))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindConversationByExternalID", operation)
	observer.ObserveDbOperationDuration("read", "conversation", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// SetConversationTranscript stores the transcript exactly once. If a
// transcript is already present the stored row is returned unchanged, so a
// webhook redelivery cannot overwrite pipeline output.
func (r *PostgresRepo) SetConversationTranscript(ctx context.Context, externalID, transcript string) (*model.Conversation, error) {
	var conversation model.Conversation

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_id = ?", externalID).
			First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, externalID)
				return backoff.Permanent(txErr)
			}
			txErr = fmt.Errorf("%w: failed to lock conversation row: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		// Write-once: a stored transcript is never replaced.
		if conversation.Transcript != "" {
			if cmErr := tx.Commit().Error; cmErr != nil {
				txErr = fmt.Errorf("%w: failed to commit: %w", apperrors.ErrDatabase, cmErr)
				return txErr
			}
			return nil
		}

		now := utils.Now()
		if upErr := tx.Model(&model.Conversation{}).
			Where("external_id = ?", externalID).
			Updates(map[string]interface{}{
				"transcript": transcript,
				"updated_at": now,
			}).Error; upErr != nil {
			txErr = checkConstraintViolation(upErr)
			return txErr
		}
		conversation.Transcript = transcript
		conversation.UpdatedAt = now

		if cmErr := tx.Commit().Error; cmErr != nil {
			txErr = fmt.Errorf("%w: failed to commit: %w", apperrors.ErrDatabase, cmErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SetConversationTranscript Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to set transcript after retries",
			zap.String("external_id", externalID), zap.Error(err))
		return nil, err
	}
	return &conversation, nil
}

// ApplyConversationExtraction writes the extracted fields and marks the
// conversation processed. A nil extraction marks processed-with-no-data,
// which is terminal: there is no automatic re-extraction.
func (r *PostgresRepo) ApplyConversationExtraction(ctx context.Context, externalID string, extracted *model.ExtractedLead, raw []byte) error {
	updates := map[string]interface{}{
		"status":     model.ConversationStatusProcessed,
		"updated_at": utils.Now(),
	}
	if extracted != nil {
		updates["case_description"] = extracted.Summary
		updates["urgency_score"] = extracted.UrgencyScore
		if extracted.ContactName != "" {
			updates["contact_name"] = extracted.ContactName
		}
		if extracted.ContactEmail != "" {
			updates["contact_email"] = extracted.ContactEmail
		}
		if extracted.ContactPhone != "" {
			updates["contact_phone"] = extracted.ContactPhone
		}
	}
	if len(raw) > 0 {
		updates["extracted_data"] = raw
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("external_id = ?", externalID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, externalID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ApplyConversationExtraction Commit", operation)
	observer.ObserveDbOperationDuration("update", "conversation", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to apply extraction after retries",
			zap.String("external_id", externalID), zap.Error(err))
		return err
	}
	return nil
}
