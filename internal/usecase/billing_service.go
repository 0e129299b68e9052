package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/events"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// Payment event types the service reacts to. Anything else is acknowledged
// and ignored so the vendor can add event types without breaking us.
const (
	paymentEventCheckoutCompleted   = "checkout.session.completed"
	paymentEventSubscriptionUpdated = "customer.subscription.updated"
	paymentEventSubscriptionDeleted = "customer.subscription.deleted"
	paymentEventInvoicePaid         = "invoice.payment_succeeded"
	paymentEventInvoiceFailed       = "invoice.payment_failed"
)

// paymentEvent is the vendor's event envelope, reduced to the fields we read.
type paymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
			Status   string `json:"status"`
			Metadata struct {
				Tier string `json:"tier"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// BillingService applies verified payment webhook events to firm subscription
// state. Signature verification happens in the HTTP layer before this service
// sees the payload.
type BillingService struct {
	firms       storage.FirmRepo
	ledger      storage.WebhookEventRepo
	notifier    NotificationSubmitter
	publisher   EventPublisher
	dedupWindow time.Duration
}

// NewBillingService creates a billing service. dedupWindow bounds how far back
// the processed-event ledger is consulted for duplicate suppression.
func NewBillingService(
	firms storage.FirmRepo,
	ledger storage.WebhookEventRepo,
	notifier NotificationSubmitter,
	publisher EventPublisher,
	dedupWindow time.Duration,
) *BillingService {
	return &BillingService{
		firms:       firms,
		ledger:      ledger,
		notifier:    notifier,
		publisher:   publisher,
		dedupWindow: dedupWindow,
	}
}

// HandleEvent processes one verified payment webhook payload. Unknown event
// types and unknown customers are logged and acknowledged: returning an error
// would make the vendor retry something we will never handle. Duplicates
// within the dedup window are acknowledged without reprocessing.
func (b *BillingService) HandleEvent(ctx context.Context, body []byte) error {
	log := logger.FromContext(ctx)

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		observer.IncPaymentEvent("unknown", "malformed")
		return fmt.Errorf("%w: malformed payment event: %w", apperrors.ErrBadRequest, err)
	}
	if event.ID == "" {
		observer.IncPaymentEvent(event.Type, "malformed")
		return fmt.Errorf("%w: payment event missing id", apperrors.ErrBadRequest)
	}
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	seen, err := b.ledger.SeenWithin(ctx, event.ID, b.dedupWindow)
	if err != nil {
		// Ledger trouble must not drop subscription updates; process anyway.
		log.Warn("Failed to consult webhook event ledger", zap.Error(err))
	}
	if seen {
		log.Info("Duplicate payment event, acknowledging without reprocessing")
		observer.IncPaymentEvent(event.Type, "duplicate")
		return nil
	}

	if err := b.applyEvent(ctx, event, log); err != nil {
		observer.IncPaymentEvent(event.Type, "error")
		return err
	}

	if err := b.ledger.Record(ctx, model.WebhookEvent{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   datatypes.JSON(body),
	}); err != nil {
		log.Warn("Failed to record payment event in ledger", zap.Error(err))
	}
	observer.IncPaymentEvent(event.Type, "processed")
	return nil
}

func (b *BillingService) applyEvent(ctx context.Context, event paymentEvent, log *zap.Logger) error {
	customerID := event.Data.Object.Customer
	if customerID == "" {
		log.Info("Payment event carries no customer, ignoring")
		return nil
	}

	firm, err := b.firms.FindByPaymentCustomerID(ctx, customerID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			log.Info("Payment event for unknown customer, ignoring",
				zap.String("customer_id", customerID))
			return nil
		}
		return err
	}
	log = log.With(zap.String("firm_id", firm.ID))

	switch event.Type {
	case paymentEventCheckoutCompleted, paymentEventSubscriptionUpdated:
		tier := event.Data.Object.Metadata.Tier
		if tier == "" {
			tier = firm.SubscriptionTier
		}
		status := event.Data.Object.Status
		if status == "" {
			status = model.SubscriptionActive
		}
		if err := b.firms.UpdateSubscription(ctx, firm.ID, tier, status, model.QuotaForTier(tier)); err != nil {
			return err
		}
		log.Info("Firm subscription updated",
			zap.String("tier", tier), zap.String("status", status))
		b.notifyFirm(ctx, firm, model.NotificationTypeSubscription,
			"Subscription updated",
			fmt.Sprintf("Your subscription is now on the %s plan.", tier))
		b.publishSubscription(ctx, firm.ID, tier, status)

	case paymentEventSubscriptionDeleted:
		if err := b.firms.UpdateSubscription(ctx, firm.ID,
			firm.SubscriptionTier, model.SubscriptionCanceled,
			model.QuotaForTier(firm.SubscriptionTier)); err != nil {
			return err
		}
		log.Info("Firm subscription canceled")
		b.notifyFirm(ctx, firm, model.NotificationTypeSubscription,
			"Subscription canceled",
			"Your subscription has been canceled. You will no longer receive new lead matches.")
		b.publishSubscription(ctx, firm.ID, firm.SubscriptionTier, model.SubscriptionCanceled)

	case paymentEventInvoicePaid:
		if err := b.firms.ResetMonthlyUsage(ctx, firm.ID); err != nil {
			return err
		}
		log.Info("Monthly lead usage reset on invoice payment")
		b.notifyFirm(ctx, firm, model.NotificationTypePaymentSuccess,
			"Payment received",
			"Your payment was received and your monthly lead quota has been reset.")

	case paymentEventInvoiceFailed:
		if err := b.firms.UpdateSubscription(ctx, firm.ID,
			firm.SubscriptionTier, model.SubscriptionPastDue,
			model.QuotaForTier(firm.SubscriptionTier)); err != nil {
			return err
		}
		log.Warn("Firm subscription marked past due on failed payment")
		b.notifyFirm(ctx, firm, model.NotificationTypePaymentFailed,
			"Payment failed",
			"Your latest payment failed. Update your billing details to keep receiving leads.")
		b.publishSubscription(ctx, firm.ID, firm.SubscriptionTier, model.SubscriptionPastDue)

	default:
		log.Info("Unhandled payment event type, acknowledging")
	}
	return nil
}

func (b *BillingService) notifyFirm(ctx context.Context, firm *model.LawFirm, notificationType, title, message string) {
	task := NotificationTask{
		Ctx:     context.WithoutCancel(ctx),
		Firm:    *firm,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Link:    "/billing",
	}
	if err := b.notifier.SubmitTask(task); err != nil {
		logger.FromContext(ctx).Warn("Failed to submit billing notification",
			zap.String("firm_id", firm.ID), zap.Error(err))
	}
}

func (b *BillingService) publishSubscription(ctx context.Context, firmID, tier, status string) {
	b.publisher.Publish(ctx, events.EventSubscriptionUpdated, map[string]interface{}{
		"firm_id": firmID,
		"tier":    tier,
		"status":  status,
	})
}
