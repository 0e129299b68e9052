package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// Scorer decides whether a firm qualifies for a lead and how well it fits.
// The returned score is clamped to [0,1] before persisting. The production
// ranking formula is owned by a separate system; implementations here only
// need to answer eligibility.
type Scorer interface {
	Score(ctx context.Context, lead *model.Lead, firm *model.LawFirm) (float64, bool)
}

// EligibilityScorer gates on active subscription, remaining quota, and
// practice-area membership. Every qualifying firm scores 1.0: ordering among
// eligible firms is delegated to whatever Scorer replaces this one.
type EligibilityScorer struct{}

func (EligibilityScorer) Score(_ context.Context, lead *model.Lead, firm *model.LawFirm) (float64, bool) {
	if lead.PracticeArea == nil || !firm.HasCapacity() {
		return 0, false
	}

	var areas []string
	if err := json.Unmarshal(firm.PracticeAreas, &areas); err != nil {
		return 0, false
	}
	for _, area := range areas {
		if area == *lead.PracticeArea {
			return 1.0, true
		}
	}
	return 0, false
}

// EventPublisher is the outbound domain-event dependency.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{})
}

// NotificationSubmitter hands a fan-out task to the notifier pool.
type NotificationSubmitter interface {
	SubmitTask(task NotificationTask) error
}

// Allocator fans a new lead out to eligible firms as pending matches.
type Allocator struct {
	firms     storage.FirmRepo
	matches   storage.MatchRepo
	leads     storage.LeadRepo
	scorer    Scorer
	notifier  NotificationSubmitter
	publisher EventPublisher
}

// NewAllocator creates an allocator.
func NewAllocator(
	firms storage.FirmRepo,
	matches storage.MatchRepo,
	leads storage.LeadRepo,
	scorer Scorer,
	notifier NotificationSubmitter,
	publisher EventPublisher,
) *Allocator {
	return &Allocator{
		firms:     firms,
		matches:   matches,
		leads:     leads,
		scorer:    scorer,
		notifier:  notifier,
		publisher: publisher,
	}
}

// Allocate creates one pending Match per qualifying firm, flips the lead to
// matched when at least one match exists, and submits one notification task
// per match. Notifier failures never roll back matches: the match rows are
// the durable state, notifications are best effort.
func (a *Allocator) Allocate(ctx context.Context, lead *model.Lead) ([]model.Match, error) {
	log := logger.FromContext(ctx).With(zap.String("lead_id", lead.ID))

	if lead.PracticeArea == nil {
		log.Info("Lead has no practice area, skipping match fan-out")
		return nil, nil
	}

	candidates, err := a.firms.FindEligible(ctx, *lead.PracticeArea)
	if err != nil {
		return nil, err
	}

	matches := make([]model.Match, 0, len(candidates))
	matchedFirms := make([]model.LawFirm, 0, len(candidates))
	for i := range candidates {
		firm := candidates[i]
		score, ok := a.scorer.Score(ctx, lead, &firm)
		if !ok {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		matches = append(matches, model.Match{
			ID:        uuid.NewString(),
			LeadID:    lead.ID,
			FirmID:    firm.ID,
			Score:     score,
			Status:    model.MatchStatusPending,
			CreatedAt: utils.Now(),
			UpdatedAt: utils.Now(),
		})
		matchedFirms = append(matchedFirms, firm)
	}

	if len(matches) == 0 {
		log.Info("No eligible firms for lead",
			zap.String("practice_area", *lead.PracticeArea))
		return nil, nil
	}

	if err := a.matches.BulkCreate(ctx, matches); err != nil {
		return nil, err
	}
	observer.AddMatchesCreated(len(matches))

	if err := a.leads.UpdateStatus(ctx, lead.ID, model.LeadStatusMatched); err != nil {
		log.Error("Failed to mark lead matched after fan-out", zap.Error(err))
		return matches, err
	}
	lead.Status = model.LeadStatusMatched

	a.publisher.Publish(ctx, events.EventLeadCreated, map[string]interface{}{
		"lead_id":       lead.ID,
		"practice_area": *lead.PracticeArea,
		"match_count":   len(matches),
	})

	for _, firm := range matchedFirms {
		task := NotificationTask{
			Ctx:     context.WithoutCancel(ctx),
			Firm:    firm,
			Type:    model.NotificationTypeNewMatch,
			Title:   "New lead match",
			Message: "A new lead matching your practice areas is available to claim.",
			Link:    "/leads/" + lead.ID,
		}
		if err := a.notifier.SubmitTask(task); err != nil {
			log.Warn("Failed to submit match notification task",
				zap.String("firm_id", firm.ID), zap.Error(err))
		}
	}

	log.Info("Lead matched to firms",
		zap.String("practice_area", *lead.PracticeArea),
		zap.Int("match_count", len(matches)))
	return matches, nil
}
