package storage

import (
	"context"
	"time"

	"github.com/casefunnel/lead-intake/internal/model"
)

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

func (a *ConversationRepoAdapter) Save(ctx context.Context, conversation model.Conversation) error {
	return a.postgres.SaveConversation(ctx, conversation)
}

func (a *ConversationRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	return a.postgres.FindConversationByExternalID(ctx, externalID)
}

func (a *ConversationRepoAdapter) SetTranscript(ctx context.Context, externalID, transcript string) (*model.Conversation, error) {
	return a.postgres.SetConversationTranscript(ctx, externalID, transcript)
}

func (a *ConversationRepoAdapter) ApplyExtraction(ctx context.Context, externalID string, extracted *model.ExtractedLead, raw []byte) error {
	return a.postgres.ApplyConversationExtraction(ctx, externalID, extracted, raw)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

func (a *LeadRepoAdapter) Save(ctx context.Context, lead model.Lead) error {
	return a.postgres.SaveLead(ctx, lead)
}

func (a *LeadRepoAdapter) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	return a.postgres.FindLeadByID(ctx, id)
}

func (a *LeadRepoAdapter) FindByConversationID(ctx context.Context, conversationID string) (*model.Lead, error) {
	return a.postgres.FindLeadByConversationID(ctx, conversationID)
}

func (a *LeadRepoAdapter) UpdateStatus(ctx context.Context, id, status string) error {
	return a.postgres.UpdateLeadStatus(ctx, id, status)
}

func (a *LeadRepoAdapter) Claim(ctx context.Context, leadID, firmID, userID string, at time.Time) error {
	return a.postgres.ClaimLead(ctx, leadID, firmID, userID, at)
}

func (a *LeadRepoAdapter) ExpireUnclaimed(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return a.postgres.ExpireUnclaimedLeads(ctx, cutoff, limit)
}

func (a *LeadRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MatchRepoAdapter adapts the PostgresRepo to the MatchRepo interface
type MatchRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMatchRepoAdapter creates a new match repository adapter
func NewMatchRepoAdapter(postgres *PostgresRepo) MatchRepo {
	return &MatchRepoAdapter{postgres: postgres}
}

func (a *MatchRepoAdapter) Save(ctx context.Context, match model.Match) error {
	return a.postgres.SaveMatch(ctx, match)
}

func (a *MatchRepoAdapter) BulkCreate(ctx context.Context, matches []model.Match) error {
	return a.postgres.BulkCreateMatches(ctx, matches)
}

func (a *MatchRepoAdapter) FindByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	return a.postgres.FindMatchesByLeadID(ctx, leadID)
}

func (a *MatchRepoAdapter) FindPendingByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	return a.postgres.FindPendingMatchesByLeadID(ctx, leadID)
}

func (a *MatchRepoAdapter) Accept(ctx context.Context, leadID, firmID string) error {
	return a.postgres.AcceptMatch(ctx, leadID, firmID)
}

func (a *MatchRepoAdapter) ExpireOthers(ctx context.Context, leadID, winnerFirmID string) ([]model.Match, error) {
	return a.postgres.ExpireOtherMatches(ctx, leadID, winnerFirmID)
}

func (a *MatchRepoAdapter) ExpireOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Match, error) {
	return a.postgres.ExpireMatchesOlderThan(ctx, cutoff, limit)
}

func (a *MatchRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// NotificationRepoAdapter adapts the PostgresRepo to the NotificationRepo interface
type NotificationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewNotificationRepoAdapter creates a new notification repository adapter
func NewNotificationRepoAdapter(postgres *PostgresRepo) NotificationRepo {
	return &NotificationRepoAdapter{postgres: postgres}
}

func (a *NotificationRepoAdapter) Save(ctx context.Context, notification model.Notification) error {
	return a.postgres.SaveNotification(ctx, notification)
}

func (a *NotificationRepoAdapter) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	return a.postgres.FindNotificationsByUserID(ctx, userID, limit, offset)
}

func (a *NotificationRepoAdapter) MarkRead(ctx context.Context, id, userID string) error {
	return a.postgres.MarkNotificationRead(ctx, id, userID)
}

func (a *NotificationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// FirmRepoAdapter adapts the PostgresRepo to the FirmRepo interface
type FirmRepoAdapter struct {
	postgres *PostgresRepo
}

// NewFirmRepoAdapter creates a new firm repository adapter
func NewFirmRepoAdapter(postgres *PostgresRepo) FirmRepo {
	return &FirmRepoAdapter{postgres: postgres}
}

func (a *FirmRepoAdapter) FindByID(ctx context.Context, id string) (*model.LawFirm, error) {
	return a.postgres.FindFirmByID(ctx, id)
}

func (a *FirmRepoAdapter) FindByPaymentCustomerID(ctx context.Context, customerID string) (*model.LawFirm, error) {
	return a.postgres.FindFirmByPaymentCustomerID(ctx, customerID)
}

func (a *FirmRepoAdapter) FindEligible(ctx context.Context, practiceArea string) ([]model.LawFirm, error) {
	return a.postgres.FindEligibleFirms(ctx, practiceArea)
}

func (a *FirmRepoAdapter) FindAdmins(ctx context.Context, firmID string) ([]model.FirmUser, error) {
	return a.postgres.FindFirmAdmins(ctx, firmID)
}

func (a *FirmRepoAdapter) IncrementLeadsUsed(ctx context.Context, firmID string) error {
	return a.postgres.IncrementFirmLeadsUsed(ctx, firmID)
}

func (a *FirmRepoAdapter) UpdateSubscription(ctx context.Context, firmID, tier, status string, quota int) error {
	return a.postgres.UpdateFirmSubscription(ctx, firmID, tier, status, quota)
}

func (a *FirmRepoAdapter) ResetMonthlyUsage(ctx context.Context, firmID string) error {
	return a.postgres.ResetFirmMonthlyUsage(ctx, firmID)
}

func (a *FirmRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// WebhookEventRepoAdapter adapts the PostgresRepo to the WebhookEventRepo interface
type WebhookEventRepoAdapter struct {
	postgres *PostgresRepo
}

// NewWebhookEventRepoAdapter creates a new webhook event repository adapter
func NewWebhookEventRepoAdapter(postgres *PostgresRepo) WebhookEventRepo {
	return &WebhookEventRepoAdapter{postgres: postgres}
}

func (a *WebhookEventRepoAdapter) SeenWithin(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	return a.postgres.WebhookEventSeenWithin(ctx, eventID, window)
}

func (a *WebhookEventRepoAdapter) Record(ctx context.Context, event model.WebhookEvent) error {
	return a.postgres.RecordWebhookEvent(ctx, event)
}

func (a *WebhookEventRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
