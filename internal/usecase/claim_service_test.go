package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/model"
	storagemock "github.com/casefunnel/lead-intake/internal/storage/mock"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

type claimFixture struct {
	leads     *storagemock.LeadRepoMock
	matches   *storagemock.MatchRepoMock
	firms     *storagemock.FirmRepoMock
	submitter *fakeSubmitter
	publisher *fakePublisher
	service   *ClaimService
}

func newClaimFixture() *claimFixture {
	f := &claimFixture{
		leads:     new(storagemock.LeadRepoMock),
		matches:   new(storagemock.MatchRepoMock),
		firms:     new(storagemock.FirmRepoMock),
		submitter: &fakeSubmitter{},
		publisher: &fakePublisher{},
	}
	f.service = NewClaimService(f.leads, f.matches, f.firms, f.submitter, f.publisher)
	return f
}

func claimCtx(t *testing.T) context.Context {
	return logger.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestClaim_Success(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm()
	lead := model.NewLead(&model.Lead{Status: model.LeadStatusMatched})
	userID := "user-1"

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	f.leads.On("Claim", mock.Anything, lead.ID, firm.ID, userID, mock.Anything).Return(nil)
	f.matches.On("Accept", mock.Anything, lead.ID, firm.ID).Return(nil)
	f.matches.On("ExpireOthers", mock.Anything, lead.ID, firm.ID).Return([]model.Match{}, nil)
	f.firms.On("IncrementLeadsUsed", mock.Anything, firm.ID).Return(nil)
	claimed := *lead
	claimed.Status = model.LeadStatusClaimed
	claimed.ClaimedByFirmID = &firm.ID
	f.leads.On("FindByID", mock.Anything, lead.ID).Return(&claimed, nil)

	result, err := f.service.Claim(claimCtx(t), lead.ID, firm.ID, userID)

	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusClaimed, result.Status)
	require.NotNil(t, result.ClaimedByFirmID)
	assert.Equal(t, firm.ID, *result.ClaimedByFirmID)

	f.firms.AssertCalled(t, "IncrementLeadsUsed", mock.Anything, firm.ID)
	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventLeadClaimed, published[0].Event)
}

func TestClaim_NotifiesLosingFirms(t *testing.T) {
	f := newClaimFixture()
	winner := model.NewLawFirm()
	loserA := model.NewLawFirm()
	loserB := model.NewLawFirm()
	lead := model.NewLead()
	userID := "user-1"

	f.firms.On("FindByID", mock.Anything, winner.ID).Return(winner, nil)
	f.firms.On("FindByID", mock.Anything, loserA.ID).Return(loserA, nil)
	f.firms.On("FindByID", mock.Anything, loserB.ID).Return(loserB, nil)
	f.leads.On("Claim", mock.Anything, lead.ID, winner.ID, userID, mock.Anything).Return(nil)
	f.matches.On("Accept", mock.Anything, lead.ID, winner.ID).Return(nil)
	f.matches.On("ExpireOthers", mock.Anything, lead.ID, winner.ID).Return([]model.Match{
		*model.NewMatch(&model.Match{LeadID: lead.ID, FirmID: loserA.ID, Status: model.MatchStatusExpired}),
		*model.NewMatch(&model.Match{LeadID: lead.ID, FirmID: loserB.ID, Status: model.MatchStatusExpired}),
	}, nil)
	f.firms.On("IncrementLeadsUsed", mock.Anything, winner.ID).Return(nil)
	f.leads.On("FindByID", mock.Anything, lead.ID).Return(lead, nil)

	_, err := f.service.Claim(claimCtx(t), lead.ID, winner.ID, userID)

	require.NoError(t, err)
	tasks := f.submitter.submitted()
	require.Len(t, tasks, 2)
	notified := map[string]bool{tasks[0].Firm.ID: true, tasks[1].Firm.ID: true}
	assert.True(t, notified[loserA.ID])
	assert.True(t, notified[loserB.ID])
	assert.Equal(t, model.NotificationTypeLeadUnavailable, tasks[0].Type)
}

func TestClaim_SubscriptionInactive(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm(&model.LawFirm{SubscriptionStatus: model.SubscriptionPastDue})

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)

	_, err := f.service.Claim(claimCtx(t), "lead-1", firm.ID, "user-1")

	require.ErrorIs(t, err, apperrors.ErrSubscriptionInactive)
	f.leads.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClaim_QuotaExceeded(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm()
	firm.LeadsUsedThisMonth = firm.MonthlyLeadQuota

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)

	_, err := f.service.Claim(claimCtx(t), "lead-1", firm.ID, "user-1")

	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	f.leads.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClaim_AlreadyClaimed(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm()

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	f.leads.On("Claim", mock.Anything, "lead-1", firm.ID, "user-1", mock.Anything).
		Return(apperrors.ErrAlreadyClaimed)

	_, err := f.service.Claim(claimCtx(t), "lead-1", firm.ID, "user-1")

	require.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)
	f.firms.AssertNotCalled(t, "IncrementLeadsUsed", mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.published())
}

func TestClaim_LeadNotFound(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm()

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	f.leads.On("Claim", mock.Anything, "missing", firm.ID, "user-1", mock.Anything).
		Return(apperrors.ErrNotFound)

	_, err := f.service.Claim(claimCtx(t), "missing", firm.ID, "user-1")

	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClaim_PostClaimFailuresDoNotUnwind(t *testing.T) {
	f := newClaimFixture()
	firm := model.NewLawFirm()
	lead := model.NewLead()
	userID := "user-1"

	f.firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	f.leads.On("Claim", mock.Anything, lead.ID, firm.ID, userID, mock.Anything).Return(nil)
	f.matches.On("Accept", mock.Anything, lead.ID, firm.ID).Return(apperrors.ErrDatabase)
	f.matches.On("ExpireOthers", mock.Anything, lead.ID, firm.ID).Return(nil, apperrors.ErrDatabase)
	f.firms.On("IncrementLeadsUsed", mock.Anything, firm.ID).Return(apperrors.ErrDatabase)
	f.leads.On("FindByID", mock.Anything, lead.ID).Return(nil, apperrors.ErrDatabase)

	result, err := f.service.Claim(claimCtx(t), lead.ID, firm.ID, userID)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.LeadStatusClaimed, result.Status)
	require.NotNil(t, result.ClaimedAt)
}
