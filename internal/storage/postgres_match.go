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

// SaveMatch stores a single match.
func (r *PostgresRepo) SaveMatch(ctx context.Context, match model.Match) error {
	match.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&match)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMatch Commit", operation)
	observer.ObserveDbOperationDuration("insert", "match", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save match after retries",
			zap.String("match_id", match.ID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// BulkCreateMatches inserts the allocator's fan-out in one statement.
func (r *PostgresRepo) BulkCreateMatches(ctx context.Context, matches []model.Match) error {
	if len(matches) == 0 {
		return nil
	}

	operation := func() error {
		result := r.db.WithContext(ctx).CreateInBatches(matches, 100)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkCreateMatches Commit", operation)
	observer.ObserveDbOperationDuration("bulk_insert", "match", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to bulk create matches after retries",
			zap.Int("count", len(matches)), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindMatchesByLeadID loads all matches for a lead.
func (r *PostgresRepo) FindMatchesByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	var matches []model.Match

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("lead_id = ?", leadID).
			Order("score DESC").
			Find(&matches)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindMatchesByLeadID", operation)
	observer.ObserveDbOperationDuration("read", "match", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return matches, nil
}

// FindPendingMatchesByLeadID loads the matches still awaiting a claim.
func (r *PostgresRepo) FindPendingMatchesByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	var matches []model.Match

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("lead_id = ? AND status = ?", leadID, model.MatchStatusPending).
			Find(&matches)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindPendingMatchesByLeadID", operation)
	observer.ObserveDbOperationDuration("read", "match", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return matches, nil
}

// AcceptMatch transitions the winning firm's pending match to accepted.
// Missing match is tolerated: a claim may land on a lead the firm was never
// matched to (e.g. platform admin routing), which must not fail the claim.
func (r *PostgresRepo) AcceptMatch(ctx context.Context, leadID, firmID string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Match{}).
			Where("lead_id = ? AND firm_id = ? AND status = ?", leadID, firmID, model.MatchStatusPending).
			Updates(map[string]interface{}{
				"status":     model.MatchStatusAccepted,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "AcceptMatch Commit", operation)
	observer.ObserveDbOperationDuration("update", "match", time.Since(startTime), err)
	return err
}

// ExpireOtherMatches expires every pending match for the lead except the
// winning firm's and returns the expired rows for notification fan-out.
func (r *PostgresRepo) ExpireOtherMatches(ctx context.Context, leadID, winnerFirmID string) ([]model.Match, error) {
	var expired []model.Match

	operation := func() error {
		expired = expired[:0]

		if err := r.db.WithContext(ctx).
			Where("lead_id = ? AND firm_id <> ? AND status = ?", leadID, winnerFirmID, model.MatchStatusPending).
			Find(&expired).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, m := range expired {
			ids = append(ids, m.ID)
		}
		result := r.db.WithContext(ctx).Model(&model.Match{}).
			Where("id IN ? AND status = ?", ids, model.MatchStatusPending).
			Updates(map[string]interface{}{
				"status":     model.MatchStatusExpired,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ExpireOtherMatches Commit", operation)
	observer.ObserveDbOperationDuration("expire", "match", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to expire losing matches after retries",
			zap.String("lead_id", leadID), zap.Error(err))
		return nil, err
	}
	return expired, nil
}

// ExpireMatchesOlderThan expires pending matches created before the cutoff.
// Used by the scheduled sweep; running it with nothing eligible is a no-op.
func (r *PostgresRepo) ExpireMatchesOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Match, error) {
	if limit <= 0 {
		return nil, backoff.Permanent(fmt.Errorf("%w: non-positive sweep limit %d", apperrors.ErrBadRequest, limit))
	}
	var expired []model.Match

	operation := func() error {
		expired = expired[:0]

		if err := r.db.WithContext(ctx).
			Where("status = ? AND created_at < ?", model.MatchStatusPending, cutoff).
			Limit(limit).
			Find(&expired).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, m := range expired {
			ids = append(ids, m.ID)
		}
		result := r.db.WithContext(ctx).Model(&model.Match{}).
			Where("id IN ? AND status = ?", ids, model.MatchStatusPending).
			Updates(map[string]interface{}{
				"status":     model.MatchStatusExpired,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ExpireMatchesOlderThan Commit", operation)
	observer.ObserveDbOperationDuration("expire", "match", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return expired, nil
}
