package service

import (
	"context"
	"errors"
	"fmt"

	"snackorder/internal/apperror"
	"snackorder/internal/metrics"
	"snackorder/internal/model"
	"snackorder/internal/payment"
	"snackorder/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentGateway confirms a client-side authorized payment with the provider.
type PaymentGateway interface {
	Confirm(ctx context.Context, paymentKey string, orderID uuid.UUID, amount decimal.Decimal) (*payment.Receipt, error)
}

// DTOs
type ConfirmPaymentRequest struct {
	PaymentKey string          `json:"payment_key" binding:"required"`
	OrderID    uuid.UUID       `json:"order_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

type PaymentService interface {
	ConfirmOrderPayment(ctx context.Context, identity model.Identity, req ConfirmPaymentRequest) (*model.Payment, error)
}

type paymentService struct {
	txManager   repository.TransactionManager
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
	ledger      BudgetLedger
	gateway     PaymentGateway
	compensator Compensator
	approver    *approver
	effects     *sideEffects
	metrics     *metrics.Core
	log         *zap.Logger
}

func NewPaymentService(
	txManager repository.TransactionManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	ledger BudgetLedger,
	gateway PaymentGateway,
	compensator Compensator,
	invalidator CacheInvalidator,
	m *metrics.Core,
	log *zap.Logger,
) PaymentService {
	log = log.Named("payments")
	return &paymentService{
		txManager:   txManager,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		ledger:      ledger,
		gateway:     gateway,
		compensator: compensator,
		approver:    &approver{ledger: ledger, orderRepo: orderRepo, auditRepo: auditRepo},
		effects:     &sideEffects{productRepo: productRepo, invalidator: invalidator, metrics: m, log: log},
		metrics:     m,
		log:         log,
	}
}

// ConfirmOrderPayment captures the payment for a pending order and approves it
// against the company budget. When the capture fails the order is
// compensated: the cart lines come back and the order disappears. Budget
// shortfalls found before the capture leave the order untouched.
func (s *paymentService) ConfirmOrderPayment(ctx context.Context, identity model.Identity, req ConfirmPaymentRequest) (*model.Payment, error) {
	if req.PaymentKey == "" {
		return nil, apperror.InvalidInput("payment key is required")
	}

	order, err := s.orderRepo.FindByIDWithItems(ctx, req.OrderID)
	if err != nil {
		return nil, notFound(err, "order "+req.OrderID.String())
	}
	if order.RequesterID != identity.ID {
		return nil, apperror.Forbidden("order " + order.ID.String() + " belongs to another user")
	}
	if order.Status != model.OrderStatusPending {
		return nil, apperror.InvalidOrderState("order " + order.ID.String() + " is " + order.Status)
	}
	if !req.Amount.Equal(order.TotalPrice) {
		return nil, apperror.InvalidInput(fmt.Sprintf(
			"payment amount %s does not match order total %s", req.Amount.String(), order.TotalPrice.String()))
	}

	if err := s.ensureNotCaptured(ctx, order.ID); err != nil {
		return nil, err
	}

	// Never capture money that could not be approved afterwards. The order
	// stays PENDING; only a failed capture runs the saga.
	if err := s.precheckBudget(ctx, order); err != nil {
		if errors.Is(err, apperror.ErrInsufficientBudget) {
			s.metrics.BudgetRejections.Inc()
		}
		return nil, err
	}

	receipt, err := s.gateway.Confirm(ctx, req.PaymentKey, order.ID, order.TotalPrice)
	if err != nil {
		s.metrics.GatewayConfirms.WithLabelValues("failed").Inc()
		s.log.Warn("payment confirmation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return nil, s.compensate(ctx, order, gatewayFailure(err))
	}
	s.metrics.GatewayConfirms.WithLabelValues("captured").Inc()
	if receipt != nil && receipt.Incomplete {
		s.log.Warn("payment captured with unreadable receipt",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_key", req.PaymentKey))
	}

	var record *model.Payment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.orderRepo.FindByIDForUpdate(txCtx, order.ID)
		if err != nil {
			return notFound(err, "order "+order.ID.String())
		}

		// The payer approves their own order.
		if err := s.approver.approve(txCtx, locked, identity, ""); err != nil {
			return err
		}

		record = paymentFromReceipt(locked.ID, req.PaymentKey, receipt)
		if err := s.paymentRepo.Create(txCtx, record); err != nil {
			return fmt.Errorf("failed to store payment: %w", err)
		}
		if err := writeAudit(txCtx, s.auditRepo, identity, model.ActionConfirmPayment, locked, map[string]interface{}{
			"payment_key":  req.PaymentKey,
			"total_amount": record.TotalAmount.String(),
			"method":       record.Method,
		}); err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, s.capturedUnapproved(ctx, order, identity, req.PaymentKey, receipt, err)
	}

	s.log.Info("payment confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_key", req.PaymentKey))
	s.effects.transitioned(model.OrderStatusApproved)
	s.effects.recordSales(ctx, order)
	s.effects.invalidate(ctx, order.CompanyID, ScopeOrders, ScopeBudgets)
	return record, nil
}

// ensureNotCaptured refuses orders that already carry a captured payment,
// including ones whose approval failed after capture.
func (s *paymentService) ensureNotCaptured(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.paymentRepo.FindByOrderID(ctx, orderID)
	if err == nil {
		return apperror.InvalidOrderState("payment for order " + orderID.String() + " was already captured")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return fmt.Errorf("failed to check existing payment: %w", err)
}

// capturedUnapproved handles money taken by the provider for an order that
// could not be approved. The payment row is kept outside the failed
// transaction so the order cannot be paid twice; the order itself needs
// manual repair.
func (s *paymentService) capturedUnapproved(ctx context.Context, order *model.Order, identity model.Identity, paymentKey string, receipt *payment.Receipt, cause error) error {
	record := paymentFromReceipt(order.ID, paymentKey, receipt)
	recordErr := s.paymentRepo.Create(ctx, record)

	s.metrics.GatewayConfirms.WithLabelValues("captured_unapproved").Inc()
	fields := []zap.Field{
		zap.Bool("critical", true),
		zap.String("order_id", order.ID.String()),
		zap.String("requester_id", identity.ID.String()),
		zap.String("payment_key", paymentKey),
		zap.String("amount", order.TotalPrice.String()),
		zap.Error(cause),
	}
	if recordErr != nil {
		fields = append(fields, zap.NamedError("record_error", recordErr))
	}
	s.log.Error("payment captured but approval failed", fields...)

	return apperror.Wrap(apperror.KindInconsistentCompensation,
		"payment was captured but the order could not be approved; manual repair required",
		errors.Join(cause, recordErr))
}

func (s *paymentService) precheckBudget(ctx context.Context, order *model.Order) error {
	budget, err := s.ledger.GetCurrent(ctx, order.CompanyID)
	if err != nil {
		return err
	}
	if !budget.CanAfford(order.TotalPrice) {
		return apperror.New(apperror.KindInsufficientBudget, fmt.Sprintf(
			"remaining budget %s is less than order total %s", budget.Remaining().StringFixed(0), order.TotalPrice.StringFixed(0)))
	}
	return nil
}

// compensate runs the saga for a failed payment and returns the error the
// caller should see: cause when the saga succeeded, an inconsistency
// otherwise.
func (s *paymentService) compensate(ctx context.Context, order *model.Order, cause error) error {
	sagaErr := s.compensator.Compensate(ctx, order.ID)
	if sagaErr == nil {
		s.metrics.Compensations.WithLabelValues("compensated").Inc()
		s.effects.invalidate(ctx, order.CompanyID, ScopeOrders)
		return cause
	}

	s.metrics.Compensations.WithLabelValues("failed").Inc()
	s.log.Error("order compensation failed",
		zap.Bool("critical", true),
		zap.String("order_id", order.ID.String()),
		zap.String("requester_id", order.RequesterID.String()),
		zap.NamedError("cause", cause),
		zap.NamedError("compensation_error", sagaErr))
	return apperror.Wrap(apperror.KindInconsistentCompensation,
		"payment failed and the order could not be rolled back; manual repair required",
		errors.Join(cause, sagaErr))
}

// gatewayFailure maps a gateway error onto the domain kind. Provider
// rejections keep their status; any message the provider sent is passed on.
func gatewayFailure(err error) error {
	appErr := &apperror.Error{Kind: apperror.KindGateway, Message: "payment failed", Err: err}

	var gwErr *payment.GatewayError
	if !errors.As(err, &gwErr) {
		return appErr
	}
	if gwErr.Rejected() {
		appErr.Status = gwErr.StatusCode
	}
	if (gwErr.Rejected() || gwErr.FromProvider) && gwErr.Message != "" {
		appErr.Message = gwErr.Message
	}
	return appErr
}

func paymentFromReceipt(orderID uuid.UUID, paymentKey string, r *payment.Receipt) *model.Payment {
	p := &model.Payment{
		OrderID:    orderID,
		PaymentKey: paymentKey,
	}
	if r == nil {
		return p
	}
	if r.PaymentKey != "" {
		p.PaymentKey = r.PaymentKey
	}
	p.OrderName = r.OrderName
	p.Method = r.Method
	p.RequestedAt = r.RequestedAt
	p.ApprovedAt = r.ApprovedAt
	p.TotalAmount = r.TotalAmount
	p.SuppliedAmount = r.SuppliedAmount
	p.VAT = r.VAT
	return p
}
