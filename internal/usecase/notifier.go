package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/config"
	"github.com/casefunnel/lead-intake/internal/mailer"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// NotificationTask is one firm-level notification: every admin of the firm
// gets an in-app row and an email.
type NotificationTask struct {
	Ctx     context.Context // derived for the task, NOT the original request context
	Firm    model.LawFirm
	Type    string
	Title   string
	Message string
	Link    string
}

// Notifier fans notifications out to firm admins on a bounded worker pool.
// Per-admin failures are logged and counted, never propagated: a broken email
// vendor must not fail a claim or a match fan-out.
type Notifier struct {
	pool             *ants.PoolWithFunc
	firmRepo         storage.FirmRepo
	notificationRepo storage.NotificationRepo
	mail             mailer.Sender
	baseLogger       *zap.Logger
}

// Ensure Notifier implements NotificationSubmitter
var _ NotificationSubmitter = (*Notifier)(nil)

// NewNotifier creates and initializes the notifier pool.
func NewNotifier(
	cfg config.NotifierConfig,
	firmRepo storage.FirmRepo,
	notificationRepo storage.NotificationRepo,
	mail mailer.Sender,
	baseLogger *zap.Logger,
) (*Notifier, error) {
	n := &Notifier{
		firmRepo:         firmRepo,
		notificationRepo: notificationRepo,
		mail:             mail,
		baseLogger:       baseLogger.Named("notifier"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(NotificationTask)
		if !ok {
			n.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		n.processTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			n.baseLogger.Error("Panic recovered in notifier worker",
				zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier pool: %w", err)
	}
	n.pool = pool
	n.baseLogger.Info("Notifier pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize))
	return n, nil
}

// SubmitTask submits a notification task to the pool.
func (n *Notifier) SubmitTask(task NotificationTask) error {
	observer.IncNotifierTasksSubmitted()
	observer.SetNotifierQueueLength(n.pool.Waiting())

	if err := n.pool.Invoke(task); err != nil {
		n.baseLogger.Warn("Failed to submit notification task",
			zap.String("firm_id", task.Firm.ID),
			zap.String("type", task.Type),
			zap.Error(err))
		return fmt.Errorf("failed to invoke notification task: %w", err)
	}
	return nil
}

// Stop releases the pool.
func (n *Notifier) Stop() {
	n.pool.Release()
	n.baseLogger.Info("Notifier pool stopped")
}

// processTask delivers the task to every admin of the firm concurrently.
func (n *Notifier) processTask(task NotificationTask) {
	start := time.Now()
	observer.SetNotifierWorkersActive(n.pool.Running())
	defer func() {
		observer.ObserveNotifierProcessingDuration(time.Since(start))
	}()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := n.baseLogger.With(
		zap.String("firm_id", task.Firm.ID),
		zap.String("type", task.Type))

	admins, err := n.firmRepo.FindAdmins(ctx, task.Firm.ID)
	if err != nil {
		log.Warn("Failed to load firm admins for notification", zap.Error(err))
		observer.IncNotificationsSent("in_app", "error")
		return
	}
	if len(admins) == 0 {
		log.Debug("Firm has no admins to notify")
		return
	}

	var wg sync.WaitGroup
	for _, admin := range admins {
		admin := admin
		wg.Add(1)
		utils.SafeGo(func() {
			defer wg.Done()
			n.deliverToAdmin(ctx, task, admin, log)
		}, func(rec interface{}, stack []byte) {
			log.Error("Panic delivering notification",
				zap.Any("panic", rec), zap.ByteString("stack", stack))
		})
	}
	wg.Wait()
}

func (n *Notifier) deliverToAdmin(ctx context.Context, task NotificationTask, admin model.FirmUser, log *zap.Logger) {
	userID := admin.UserID
	firmID := task.Firm.ID
	notification := model.Notification{
		ID:        uuid.NewString(),
		UserID:    &userID,
		FirmID:    &firmID,
		Type:      task.Type,
		Title:     task.Title,
		Message:   task.Message,
		Link:      task.Link,
		CreatedAt: utils.Now(),
	}
	if err := n.notificationRepo.Save(ctx, notification); err != nil {
		log.Warn("Failed to save in-app notification",
			zap.String("user_id", admin.UserID), zap.Error(err))
		observer.IncNotificationsSent("in_app", "error")
	} else {
		observer.IncNotificationsSent("in_app", "sent")
	}

	if err := n.mail.Send(ctx, admin.Email, task.Title, task.Message); err != nil {
		log.Warn("Failed to send notification email",
			zap.String("user_id", admin.UserID), zap.Error(err))
		observer.IncNotificationsSent("email", "error")
	} else {
		observer.IncNotificationsSent("email", "sent")
	}
}
