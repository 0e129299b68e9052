package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// FindFirmByID loads a firm by its id.
func (r *PostgresRepo) FindFirmByID(ctx context.Context, id string) (*model.LawFirm, error) {
	var firm model.LawFirm

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&firm)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: firm %s", apperrors.ErrNotFound, id))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindFirmByID", operation)
	observer.ObserveDbOperationDuration("read", "firm", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &firm, nil
}

// FindFirmByPaymentCustomerID resolves the firm behind a payments-vendor customer.
func (r *PostgresRepo) FindFirmByPaymentCustomerID(ctx context.Context, customerID string) (*model.LawFirm, error) {
	var firm model.LawFirm

	operation := func() error {
		result := r.db.WithContext(ctx).Where("payment_customer_id = ?", customerID).First(&firm)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: firm for customer %s", apperrors.ErrNotFound, customerID))
			}
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindFirmByPaymentCustomerID", operation)
	observer.ObserveDbOperationDuration("read", "firm", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return &firm, nil
}

// FindEligibleFirms returns active firms accepting the given practice area
// that still have monthly quota remaining. The JSONB containment check keeps
// the filter on the database side.
func (r *PostgresRepo) FindEligibleFirms(ctx context.Context, practiceArea string) ([]model.LawFirm, error) {
	var firms []model.LawFirm

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("subscription_status = ?", model.SubscriptionActive).
			Where("leads_used_this_month < monthly_lead_quota").
			Where("practice_areas @> ?", fmt.Sprintf(`["%s"]`, practiceArea)).
			Find(&firms)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindEligibleFirms", operation)
	observer.ObserveDbOperationDuration("read", "firm", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return firms, nil
}

// FindFirmAdmins returns the admin users of a firm for notification fan-out.
func (r *PostgresRepo) FindFirmAdmins(ctx context.Context, firmID string) ([]model.FirmUser, error) {
	var admins []model.FirmUser

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("firm_id = ? AND role = ?", firmID, "admin").
			Find(&admins)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "FindFirmAdmins", operation)
	observer.ObserveDbOperationDuration("read", "firm_user", time.Since(startTime), err)

	if err != nil {
		return nil, err
	}
	return admins, nil
}

// IncrementFirmLeadsUsed bumps the monthly usage counter by exactly one,
// as an atomic SQL increment rather than a read-modify-write.
func (r *PostgresRepo) IncrementFirmLeadsUsed(ctx context.Context, firmID string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.LawFirm{}).
			Where("id = ?", firmID).
			Updates(map[string]interface{}{
				"leads_used_this_month": gorm.Expr("leads_used_this_month + 1"),
				"updated_at":            utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: firm %s", apperrors.ErrNotFound, firmID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "IncrementFirmLeadsUsed Commit", operation)
	observer.ObserveDbOperationDuration("update", "firm", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to increment firm usage after retries",
			zap.String("firm_id", firmID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateFirmSubscription applies the payment webhook's tier/status/quota change.
func (r *PostgresRepo) UpdateFirmSubscription(ctx context.Context, firmID, tier, status string, quota int) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.LawFirm{}).
			Where("id = ?", firmID).
			Updates(map[string]interface{}{
				"subscription_tier":   tier,
				"subscription_status": status,
				"monthly_lead_quota":  quota,
				"updated_at":          utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: firm %s", apperrors.ErrNotFound, firmID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "UpdateFirmSubscription Commit", operation)
	observer.ObserveDbOperationDuration("update", "firm", time.Since(startTime), err)
	return err
}

// ResetFirmMonthlyUsage zeroes the usage counter on billing-period rollover.
func (r *PostgresRepo) ResetFirmMonthlyUsage(ctx context.Context, firmID string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.LawFirm{}).
			Where("id = ?", firmID).
			Updates(map[string]interface{}{
				"leads_used_this_month": 0,
				"updated_at":            utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: firm %s", apperrors.ErrNotFound, firmID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ResetFirmMonthlyUsage Commit", operation)
	observer.ObserveDbOperationDuration("update", "firm", time.Since(startTime), err)
	return err
}
