package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"snackorder/internal/apperror"
	"snackorder/internal/metrics"
	"snackorder/internal/model"
	"snackorder/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cache scopes invalidated after mutations
const (
	ScopeOrders  = "orders"
	ScopeBudgets = "budgets"
)

// CacheInvalidator is told which cached read responses went stale.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) error
}

// approver is the single budget-debit path shared by admin approval, buy-now
// and confirmed online payments.
type approver struct {
	ledger    BudgetLedger
	orderRepo repository.OrderRepository
	auditRepo repository.AuditRepository
}

// approve debits the current period and moves the order to APPROVED. It must
// run inside a transaction that already holds the order row.
func (a *approver) approve(txCtx context.Context, order *model.Order, actor model.Identity, adminMessage string) error {
	if !order.CanTransition(model.OrderStatusApproved) {
		return apperror.InvalidOrderState("order " + order.ID.String() + " is already " + order.Status)
	}

	period := a.ledger.CurrentPeriod()
	if _, err := a.ledger.Debit(txCtx, order.CompanyID, period.Year, period.Month, order.TotalPrice); err != nil {
		return err
	}

	if err := order.Approve(actor.Name, adminMessage); err != nil {
		return err
	}
	if err := a.orderRepo.SaveDecision(txCtx, order); err != nil {
		return fmt.Errorf("failed to save order decision: %w", err)
	}

	return writeAudit(txCtx, a.auditRepo, actor, model.ActionApproveOrder, order, map[string]interface{}{
		"total_price":   order.TotalPrice.String(),
		"period":        fmt.Sprintf("%04d-%02d", period.Year, period.Month),
		"admin_message": adminMessage,
	})
}

// sideEffects runs the post-commit, non-transactional follow ups of a mutation.
type sideEffects struct {
	productRepo repository.ProductRepository
	invalidator CacheInvalidator
	metrics     *metrics.Core
	log         *zap.Logger
}

// recordSales bumps cumulative sales per distinct product. Failures are
// logged and never undo the approval that triggered them.
func (s *sideEffects) recordSales(ctx context.Context, order *model.Order) {
	for productID, qty := range order.QuantityByProduct() {
		if err := s.productRepo.IncrementSales(ctx, productID, qty); err != nil {
			s.log.Warn("failed to increment cumulative sales",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", productID.String()),
				zap.Int("quantity", qty),
				zap.Error(err))
		}
	}
}

func (s *sideEffects) invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, companyID, scopes...); err != nil {
		s.log.Warn("cache invalidation failed",
			zap.String("company_id", companyID.String()),
			zap.Strings("scopes", scopes),
			zap.Error(err))
	}
}

func (s *sideEffects) transitioned(status string) {
	s.metrics.OrderTransitions.WithLabelValues(status).Inc()
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, actor model.Identity, action string, order *model.Order, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)

	var userID *uuid.UUID
	if actor.ID != uuid.Nil {
		id := actor.ID
		userID = &id
	}
	companyID := order.CompanyID

	entry := &model.AuditLog{
		UserID:     userID,
		CompanyID:  &companyID,
		Action:     action,
		EntityID:   order.ID.String(),
		EntityName: "order",
		Details:    string(payload),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// notFound translates gorm's missing-row error into the domain kind.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(what + " not found")
	}
	return err
}
