package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// ClaimService executes the exclusive claim: first active firm with quota
// wins, everyone else gets ErrAlreadyClaimed.
type ClaimService struct {
	leads     storage.LeadRepo
	matches   storage.MatchRepo
	firms     storage.FirmRepo
	notifier  NotificationSubmitter
	publisher EventPublisher
}

// NewClaimService creates a claim service.
func NewClaimService(
	leads storage.LeadRepo,
	matches storage.MatchRepo,
	firms storage.FirmRepo,
	notifier NotificationSubmitter,
	publisher EventPublisher,
) *ClaimService {
	return &ClaimService{
		leads:     leads,
		matches:   matches,
		firms:     firms,
		notifier:  notifier,
		publisher: publisher,
	}
}

// Claim atomically assigns the lead to the firm. The database row is the
// arbiter: a single conditional update decides the winner, so two concurrent
// claims can never both succeed. Post-claim bookkeeping (match expiry, loser
// notifications, usage increment, event) is best effort and never unwinds a
// won claim.
func (c *ClaimService) Claim(ctx context.Context, leadID, firmID, userID string) (*model.Lead, error) {
	log := logger.FromContext(ctx).With(
		zap.String("lead_id", leadID),
		zap.String("firm_id", firmID))

	firm, err := c.firms.FindByID(ctx, firmID)
	if err != nil {
		observer.IncClaimAttempt("error")
		return nil, err
	}
	if firm.SubscriptionStatus != model.SubscriptionActive {
		observer.IncClaimAttempt("subscription_inactive")
		return nil, apperrors.ErrSubscriptionInactive
	}
	if firm.LeadsUsedThisMonth >= firm.MonthlyLeadQuota {
		observer.IncClaimAttempt("quota_exceeded")
		return nil, apperrors.ErrQuotaExceeded
	}

	claimedAt := utils.Now()
	if err := c.leads.Claim(ctx, leadID, firmID, userID, claimedAt); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAlreadyClaimed):
			observer.IncClaimAttempt("already_claimed")
		case apperrors.IsNotFoundError(err):
			observer.IncClaimAttempt("not_found")
		default:
			observer.IncClaimAttempt("error")
		}
		return nil, err
	}
	observer.IncClaimAttempt("claimed")
	log.Info("Lead claimed", zap.String("user_id", userID))

	c.settleMatches(ctx, leadID, firmID, log)

	if err := c.firms.IncrementLeadsUsed(ctx, firmID); err != nil {
		log.Error("Failed to increment firm lead usage after claim", zap.Error(err))
	}

	c.publisher.Publish(ctx, events.EventLeadClaimed, map[string]interface{}{
		"lead_id": leadID,
		"firm_id": firmID,
		"user_id": userID,
	})

	lead, err := c.leads.FindByID(ctx, leadID)
	if err != nil {
		// The claim itself succeeded; synthesize the response.
		log.Warn("Failed to reload lead after claim", zap.Error(err))
		return &model.Lead{
			ID:              leadID,
			Status:          model.LeadStatusClaimed,
			ClaimedByFirmID: &firmID,
			ClaimedByUserID: &userID,
			ClaimedAt:       &claimedAt,
		}, nil
	}
	return lead, nil
}

// settleMatches accepts the winner's match and expires the rest, notifying
// each losing firm that the lead is gone.
func (c *ClaimService) settleMatches(ctx context.Context, leadID, winnerFirmID string, log *zap.Logger) {
	if err := c.matches.Accept(ctx, leadID, winnerFirmID); err != nil {
		log.Warn("Failed to accept winning match", zap.Error(err))
	}

	losers, err := c.matches.ExpireOthers(ctx, leadID, winnerFirmID)
	if err != nil {
		log.Warn("Failed to expire losing matches", zap.Error(err))
		return
	}
	if len(losers) == 0 {
		return
	}
	observer.AddMatchesExpired(len(losers))

	for _, match := range losers {
		firm, err := c.firms.FindByID(ctx, match.FirmID)
		if err != nil {
			log.Warn("Failed to load losing firm for notification",
				zap.String("firm_id", match.FirmID), zap.Error(err))
			continue
		}
		task := NotificationTask{
			Ctx:     context.WithoutCancel(ctx),
			Firm:    *firm,
			Type:    model.NotificationTypeLeadUnavailable,
			Title:   "Lead no longer available",
			Message: "A lead you were matched with has been claimed by another firm.",
			Link:    "/leads/" + leadID,
		}
		if err := c.notifier.SubmitTask(task); err != nil {
			log.Warn("Failed to submit lead-unavailable notification",
				zap.String("firm_id", match.FirmID), zap.Error(err))
		}
	}
}
