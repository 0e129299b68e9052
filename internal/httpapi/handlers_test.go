package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/payments"
	"github.com/casefunnel/lead-intake/internal/reqctx"
	storagemock "github.com/casefunnel/lead-intake/internal/storage/mock"
	"github.com/casefunnel/lead-intake/internal/usecase"
)

// actorMiddleware injects a fixed authenticated actor, standing in for Auth.
func actorMiddleware(userID, firmID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := reqctx.WithActor(c.Request.Context(), userID, firmID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// --- Claim handler ---

func newClaimRouter(leads *storagemock.LeadRepoMock, matches *storagemock.MatchRepoMock, firms *storagemock.FirmRepoMock, userID, firmID string) *gin.Engine {
	service := usecase.NewClaimService(leads, matches, firms, noopSubmitter{}, noopPublisher{})
	router := gin.New()
	router.Use(RequestID())
	router.POST("/api/leads/:id/claim", actorMiddleware(userID, firmID), NewClaimHandler(service).HandleClaim)
	return router
}

func TestHandleClaim_Success(t *testing.T) {
	leads := new(storagemock.LeadRepoMock)
	matches := new(storagemock.MatchRepoMock)
	firms := new(storagemock.FirmRepoMock)
	firm := model.NewLawFirm()
	lead := model.NewLead(&model.Lead{Status: model.LeadStatusClaimed})

	firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	leads.On("Claim", mock.Anything, lead.ID, firm.ID, "user-1", mock.Anything).Return(nil)
	matches.On("Accept", mock.Anything, lead.ID, firm.ID).Return(nil)
	matches.On("ExpireOthers", mock.Anything, lead.ID, firm.ID).Return([]model.Match{}, nil)
	firms.On("IncrementLeadsUsed", mock.Anything, firm.ID).Return(nil)
	leads.On("FindByID", mock.Anything, lead.ID).Return(lead, nil)

	router := newClaimRouter(leads, matches, firms, "user-1", firm.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/"+lead.ID+"/claim", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), lead.ID)
}

func TestHandleClaim_AlreadyClaimedIs409(t *testing.T) {
	leads := new(storagemock.LeadRepoMock)
	matches := new(storagemock.MatchRepoMock)
	firms := new(storagemock.FirmRepoMock)
	firm := model.NewLawFirm()

	firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)
	leads.On("Claim", mock.Anything, "lead-1", firm.ID, "user-1", mock.Anything).
		Return(apperrors.ErrAlreadyClaimed)

	router := newClaimRouter(leads, matches, firms, "user-1", firm.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/lead-1/claim", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleClaim_QuotaExceededIs403(t *testing.T) {
	leads := new(storagemock.LeadRepoMock)
	matches := new(storagemock.MatchRepoMock)
	firms := new(storagemock.FirmRepoMock)
	firm := model.NewLawFirm()
	firm.LeadsUsedThisMonth = firm.MonthlyLeadQuota

	firms.On("FindByID", mock.Anything, firm.ID).Return(firm, nil)

	router := newClaimRouter(leads, matches, firms, "user-1", firm.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/lead-1/claim", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota")
}

func TestHandleClaim_NoFirmIs403(t *testing.T) {
	router := newClaimRouter(new(storagemock.LeadRepoMock), new(storagemock.MatchRepoMock),
		new(storagemock.FirmRepoMock), "user-1", "")
	req := httptest.NewRequest(http.MethodPost, "/api/leads/lead-1/claim", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Payment webhook ---

func newPaymentRouter(firms *storagemock.FirmRepoMock, ledger *storagemock.WebhookEventRepoMock, secret string) *gin.Engine {
	verifier := payments.NewVerifier(secret, 5*time.Minute)
	billing := usecase.NewBillingService(firms, ledger, noopSubmitter{}, noopPublisher{}, 24*time.Hour)
	router := gin.New()
	router.Use(RequestID())
	router.POST("/webhooks/payments", NewPaymentWebhookHandler(verifier, billing).HandlePaymentWebhook)
	return router
}

func TestHandlePaymentWebhook_ValidSignature(t *testing.T) {
	firms := new(storagemock.FirmRepoMock)
	ledger := new(storagemock.WebhookEventRepoMock)
	firm := model.NewLawFirm()

	ledger.On("SeenWithin", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	firms.On("FindByPaymentCustomerID", mock.Anything, firm.PaymentCustomerID).Return(firm, nil)
	firms.On("ResetMonthlyUsage", mock.Anything, firm.ID).Return(nil)
	ledger.On("Record", mock.Anything, mock.Anything).Return(nil)

	secret := "whsec_test"
	body := []byte(fmt.Sprintf(`{"id": "evt_ok", "type": "invoice.payment_succeeded",
		"data": {"object": {"customer": %q}}}`, firm.PaymentCustomerID))
	verifier := payments.NewVerifier(secret, 5*time.Minute)

	router := newPaymentRouter(firms, ledger, secret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewBuffer(body))
	req.Header.Set("X-Payment-Signature", verifier.Sign(time.Now(), body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	firms.AssertCalled(t, "ResetMonthlyUsage", mock.Anything, firm.ID)
}

func TestHandlePaymentWebhook_BadSignature(t *testing.T) {
	firms := new(storagemock.FirmRepoMock)
	ledger := new(storagemock.WebhookEventRepoMock)

	router := newPaymentRouter(firms, ledger, "whsec_test")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments",
		bytes.NewBufferString(`{"id": "evt_x", "type": "invoice.payment_succeeded"}`))
	req.Header.Set("X-Payment-Signature", "t=123,v1=deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ledger.AssertNotCalled(t, "SeenWithin", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentWebhook_TamperedBody(t *testing.T) {
	firms := new(storagemock.FirmRepoMock)
	ledger := new(storagemock.WebhookEventRepoMock)
	secret := "whsec_test"
	verifier := payments.NewVerifier(secret, 5*time.Minute)

	signed := []byte(`{"id": "evt_1"}`)
	router := newPaymentRouter(firms, ledger, secret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments",
		bytes.NewBufferString(`{"id": "evt_2"}`))
	req.Header.Set("X-Payment-Signature", verifier.Sign(time.Now(), signed))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Notifications ---

func newNotificationRouter(repo *storagemock.NotificationRepoMock, userID string) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	handler := NewNotificationHandler(repo)
	group := router.Group("/api", actorMiddleware(userID, "firm-1"))
	group.GET("/notifications", handler.HandleList)
	group.POST("/notifications/:id/read", handler.HandleMarkRead)
	return router
}

func TestHandleListNotifications(t *testing.T) {
	repo := new(storagemock.NotificationRepoMock)
	repo.On("FindByUserID", mock.Anything, "user-1", 20, 0).Return([]model.Notification{
		{ID: "n1", Type: model.NotificationTypeNewMatch, Title: "New lead match"},
	}, nil)

	router := newNotificationRouter(repo, "user-1")
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "n1")
}

func TestHandleListNotifications_ClampsLimit(t *testing.T) {
	repo := new(storagemock.NotificationRepoMock)
	repo.On("FindByUserID", mock.Anything, "user-1", 20, 40).Return([]model.Notification{}, nil)

	router := newNotificationRouter(repo, "user-1")
	req := httptest.NewRequest(http.MethodGet, "/api/notifications?limit=5000&offset=40", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertCalled(t, "FindByUserID", mock.Anything, "user-1", 20, 40)
}

func TestHandleMarkRead(t *testing.T) {
	repo := new(storagemock.NotificationRepoMock)
	repo.On("MarkRead", mock.Anything, "n1", "user-1").Return(nil)

	router := newNotificationRouter(repo, "user-1")
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/n1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMarkRead_NotFound(t *testing.T) {
	repo := new(storagemock.NotificationRepoMock)
	repo.On("MarkRead", mock.Anything, "ghost", "user-1").Return(apperrors.ErrNotFound)

	router := newNotificationRouter(repo, "user-1")
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/ghost/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Health ---

func TestHealthEndpoints(t *testing.T) {
	healthy := NewHealthHandler(map[string]ReadinessCheck{
		"postgres": func(_ context.Context) error { return nil },
	})
	router := gin.New()
	router.GET("/health", healthy.HandleHealth)
	router.GET("/ready", healthy.HandleReady)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestReady_FailingDependency(t *testing.T) {
	handler := NewHealthHandler(map[string]ReadinessCheck{
		"postgres": func(_ context.Context) error { return errors.New("connection refused") },
	})
	router := gin.New()
	router.GET("/ready", handler.HandleReady)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
