package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/casefunnel/lead-intake/internal/model"
)

// ConversationRepoMock is a testify mock for storage.ConversationRepo
type ConversationRepoMock struct {
	mock.Mock
}

func (m *ConversationRepoMock) Save(ctx context.Context, conversation model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

func (m *ConversationRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.Conversation, error) {
	args := m.Called(ctx, externalID)
	if conv, ok := args.Get(0).(*model.Conversation); ok {
		return conv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ConversationRepoMock) SetTranscript(ctx context.Context, externalID, transcript string) (*model.Conversation, error) {
	args := m.Called(ctx, externalID, transcript)
	if conv, ok := args.Get(0).(*model.Conversation); ok {
		return conv, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ConversationRepoMock) ApplyExtraction(ctx context.Context, externalID string, extracted *model.ExtractedLead, raw []byte) error {
	args := m.Called(ctx, externalID, extracted, raw)
	return args.Error(0)
}

func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// LeadRepoMock is a testify mock for storage.LeadRepo
type LeadRepoMock struct {
	mock.Mock
}

func (m *LeadRepoMock) Save(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *LeadRepoMock) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if lead, ok := args.Get(0).(*model.Lead); ok {
		return lead, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LeadRepoMock) FindByConversationID(ctx context.Context, conversationID string) (*model.Lead, error) {
	args := m.Called(ctx, conversationID)
	if lead, ok := args.Get(0).(*model.Lead); ok {
		return lead, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LeadRepoMock) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *LeadRepoMock) Claim(ctx context.Context, leadID, firmID, userID string, at time.Time) error {
	args := m.Called(ctx, leadID, firmID, userID, at)
	return args.Error(0)
}

func (m *LeadRepoMock) ExpireUnclaimed(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, limit)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MatchRepoMock is a testify mock for storage.MatchRepo
type MatchRepoMock struct {
	mock.Mock
}

func (m *MatchRepoMock) Save(ctx context.Context, match model.Match) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MatchRepoMock) BulkCreate(ctx context.Context, matches []model.Match) error {
	args := m.Called(ctx, matches)
	return args.Error(0)
}

func (m *MatchRepoMock) FindByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	args := m.Called(ctx, leadID)
	if matches, ok := args.Get(0).([]model.Match); ok {
		return matches, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MatchRepoMock) FindPendingByLeadID(ctx context.Context, leadID string) ([]model.Match, error) {
	args := m.Called(ctx, leadID)
	if matches, ok := args.Get(0).([]model.Match); ok {
		return matches, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MatchRepoMock) Accept(ctx context.Context, leadID, firmID string) error {
	args := m.Called(ctx, leadID, firmID)
	return args.Error(0)
}

func (m *MatchRepoMock) ExpireOthers(ctx context.Context, leadID, winnerFirmID string) ([]model.Match, error) {
	args := m.Called(ctx, leadID, winnerFirmID)
	if matches, ok := args.Get(0).([]model.Match); ok {
		return matches, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MatchRepoMock) ExpireOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.Match, error) {
	args := m.Called(ctx, cutoff, limit)
	if matches, ok := args.Get(0).([]model.Match); ok {
		return matches, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MatchRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// NotificationRepoMock is a testify mock for storage.NotificationRepo
type NotificationRepoMock struct {
	mock.Mock
}

func (m *NotificationRepoMock) Save(ctx context.Context, notification model.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *NotificationRepoMock) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	if notifications, ok := args.Get(0).([]model.Notification); ok {
		return notifications, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NotificationRepoMock) MarkRead(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *NotificationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// FirmRepoMock is a testify mock for storage.FirmRepo
type FirmRepoMock struct {
	mock.Mock
}

func (m *FirmRepoMock) FindByID(ctx context.Context, id string) (*model.LawFirm, error) {
	args := m.Called(ctx, id)
	if firm, ok := args.Get(0).(*model.LawFirm); ok {
		return firm, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *FirmRepoMock) FindByPaymentCustomerID(ctx context.Context, customerID string) (*model.LawFirm, error) {
	args := m.Called(ctx, customerID)
	if firm, ok := args.Get(0).(*model.LawFirm); ok {
		return firm, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *FirmRepoMock) FindEligible(ctx context.Context, practiceArea string) ([]model.LawFirm, error) {
	args := m.Called(ctx, practiceArea)
	if firms, ok := args.Get(0).([]model.LawFirm); ok {
		return firms, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *FirmRepoMock) FindAdmins(ctx context.Context, firmID string) ([]model.FirmUser, error) {
	args := m.Called(ctx, firmID)
	if admins, ok := args.Get(0).([]model.FirmUser); ok {
		return admins, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *FirmRepoMock) IncrementLeadsUsed(ctx context.Context, firmID string) error {
	args := m.Called(ctx, firmID)
	return args.Error(0)
}

func (m *FirmRepoMock) UpdateSubscription(ctx context.Context, firmID, tier, status string, quota int) error {
	args := m.Called(ctx, firmID, tier, status, quota)
	return args.Error(0)
}

func (m *FirmRepoMock) ResetMonthlyUsage(ctx context.Context, firmID string) error {
	args := m.Called(ctx, firmID)
	return args.Error(0)
}

func (m *FirmRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// WebhookEventRepoMock is a testify mock for storage.WebhookEventRepo
type WebhookEventRepoMock struct {
	mock.Mock
}

func (m *WebhookEventRepoMock) SeenWithin(ctx context.Context, eventID string, window time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, window)
	return args.Bool(0), args.Error(1)
}

func (m *WebhookEventRepoMock) Record(ctx context.Context, event model.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *WebhookEventRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
