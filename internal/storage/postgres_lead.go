package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// SaveLead stores a lead.
func (r *PostgresRepo) SaveLead(ctx context.Context, lead model.Lead) error {
	lead.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&lead)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveLead Commit", operation)
	observer.ObserveDbOperationDuration("insert", "lead", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save lead after retries",
			zap.String("lead_id", lead.ID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindLeadByID loads a lead by its id.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&lead)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, id))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindLeadByID", operation)
	observer.ObserveDbOperationDuration("read", "lead", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// FindLeadByConversationID loads the lead derived from a conversation.
func (r *PostgresRepo) FindLeadByConversationID(ctx context.Context, conversationID string) (*model.Lead, error) {
	var lead model.Lead

	operation := func() error {
		result := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&lead)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: lead for conversation %s", apperrors.ErrNotFound, conversationID))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindLeadByConversationID", operation)
	observer.ObserveDbOperationDuration("read", "lead", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// UpdateLeadStatus sets the lead's lifecycle status.
func (r *PostgresRepo) UpdateLeadStatus(ctx context.Context, id, status string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "UpdateLeadStatus Commit", operation)
	observer.ObserveDbOperationDuration("update", "lead", time.Since(startTime), err)
	return err
}

// ClaimLead performs the exclusive claim as a single conditional update:
// the row is written only if the claim fields are still unset. Two firms
// racing on the same lead therefore see exactly one success; the loser gets
// apperrors.ErrAlreadyClaimed. No application-level locking is involved.
func (r *PostgresRepo) ClaimLead(ctx context.Context, leadID, firmID, userID string, at time.Time) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND claimed_by_firm_id IS NULL AND status IN ?",
				leadID, []string{model.LeadStatusNew, model.LeadStatusMatched}).
			Updates(map[string]interface{}{
				"status":             model.LeadStatusClaimed,
				"claimed_by_firm_id": firmID,
				"claimed_by_user_id": userID,
				"claimed_at":         at,
				"updated_at":         at,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			// Either the lead does not exist, or someone else won the race.
			var count int64
			if err := r.db.WithContext(ctx).Model(&model.Lead{}).
				Where("id = ?", leadID).Count(&count).Error; err != nil {
				return checkConstraintViolation(err)
			}
			if count == 0 {
				return backoff.Permanent(fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID))
			}
			return backoff.Permanent(fmt.Errorf("%w: lead %s", apperrors.ErrAlreadyClaimed, leadID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ClaimLead Commit", operation)
	observer.ObserveDbOperationDuration("claim", "lead", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Warn("Lead claim did not apply",
			zap.String("lead_id", leadID),
			zap.String("firm_id", firmID),
			zap.Error(err))
		return err
	}
	return nil
}

// ExpireUnclaimedLeads expires leads created before the cutoff that were
// never claimed and have no remaining pending match. Re-running with nothing
// eligible is a no-op.
func (r *PostgresRepo) ExpireUnclaimedLeads(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var expired []string

	operation := func() error {
		expired = expired[:0]

		var ids []string
		subquery := r.db.Model(&model.Match{}).
			Select("1").
			Where("matches.lead_id = leads.id AND matches.status = ?", model.MatchStatusPending)
		if err := r.db.WithContext(ctx).Model(&model.Lead{}).
			Select("id").
			Where("status IN ? AND claimed_by_firm_id IS NULL AND created_at < ?",
				[]string{model.LeadStatusNew, model.LeadStatusMatched}, cutoff).
			Where("NOT EXISTS (?)", subquery).
			Limit(limit).
			Find(&ids).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if len(ids) == 0 {
			return nil
		}

		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id IN ? AND claimed_by_firm_id IS NULL", ids).
			Updates(map[string]interface{}{
				"status":     model.LeadStatusExpired,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		expired = ids
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ExpireUnclaimedLeads Commit", operation)
	observer.ObserveDbOperationDuration("expire", "lead", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return expired, nil
}
