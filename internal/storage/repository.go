package storage

import (
	"context"
	"time"

	"github.com/casefunnel/lead-intake/internal/model"
)

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	Save(ctx context.Context, conversation model.Conversation) error
	FindByExternalID(ctx context.Context, externalID string) (*model.Conversation, error)
	// SetTranscript stores the transcript once; a second call for the same
	// conversation is a no-op returning the already-stored state.
	SetTranscript(ctx context.Context, externalID, transcript string) (*model.Conversation, error)
	// ApplyExtraction writes the extracted fields and flips the status to
	// processed. Passing nil extracted marks processed-with-no-data.
	ApplyExtraction(ctx context.Context, externalID string, extracted *model.ExtractedLead, raw []byte) error
	Close(ctx context.Context) error
}

// LeadRepo defines lead storage operations
type LeadRepo interface {
	Save(ctx context.Context, lead model.Lead) error
	FindByID(ctx context.Context, id string) (*model.Lead, error)
	FindByConversationID(ctx context.Context, conversationID string) (*model.Lead, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// Claim performs the conditional claim update: it succeeds only if the
	// claim fields are still unset, otherwise apperrors.ErrAlreadyClaimed.
	Claim(ctx context.Context, leadID, firmID, userID string, at time.Time) error
	// ExpireUnclaimed expires leads that were never claimed and have no
	// remaining pending match. Returns the ids of expired leads.
	ExpireUnclaimed(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Close(ctx context.Context) error
}

// MatchRepo defines match storage operations
type MatchRepo interface {
	Save(ctx context.Context, match model.Match) error
	BulkCreate(ctx context.Context, matches []model.Match) error
	FindByLeadID(ctx context.Context, leadID string) ([]model.Match, error)
	FindPendingByLeadID(ctx context.Context, leadID string) ([]model.Match, error)
	// Accept transitions the winning firm's pending match to accepted.
	Accept(ctx context.Context, leadID, firmID string) error
	// ExpireOthers expires every pending match for the lead except the
	// winning firm's, returning the expired matches for notification fan-out.
	ExpireOthers(ctx context.Context, leadID, winnerFirmID string) ([]model.Match, error)
	// ExpireOlderThan expires pending matches created before the cutoff.
	ExpireOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Match, error)
	Close(ctx context.Context) error
}

// NotificationRepo defines notification storage operations
type NotificationRepo interface {
	Save(ctx context.Context, notification model.Notification) error
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	Close(ctx context.Context) error
}

// FirmRepo defines law firm storage operations
type FirmRepo interface {
	FindByID(ctx context.Context, id string) (*model.LawFirm, error)
	FindByPaymentCustomerID(ctx context.Context, customerID string) (*model.LawFirm, error)
	// FindEligible returns active firms accepting the given practice area
	// that still have monthly quota remaining.
	FindEligible(ctx context.Context, practiceArea string) ([]model.LawFirm, error)
	FindAdmins(ctx context.Context, firmID string) ([]model.FirmUser, error)
	// IncrementLeadsUsed bumps the monthly usage counter by one.
	IncrementLeadsUsed(ctx context.Context, firmID string) error
	UpdateSubscription(ctx context.Context, firmID, tier, status string, quota int) error
	ResetMonthlyUsage(ctx context.Context, firmID string) error
	Close(ctx context.Context) error
}

// WebhookEventRepo defines the payment-webhook dedup ledger operations
type WebhookEventRepo interface {
	// SeenWithin reports whether the event id was recorded within the window.
	SeenWithin(ctx context.Context, eventID string, window time.Duration) (bool, error)
	Record(ctx context.Context, event model.WebhookEvent) error
	Close(ctx context.Context) error
}
