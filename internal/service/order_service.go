package service

import (
	"context"
	"errors"
	"fmt"

	"snackorder/internal/apperror"
	"snackorder/internal/metrics"
	"snackorder/internal/model"
	"snackorder/internal/repository"
	"snackorder/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DTOs
type CreateOrderRequest struct {
	CartItemIDs    []uuid.UUID `json:"cart_item_ids" binding:"required,min=1"`
	RequestMessage string      `json:"request_message"`
}

type DecisionRequest struct {
	Approve      bool   `json:"approve"`
	AdminMessage string `json:"admin_message"`
}

type ListOrdersQuery struct {
	Status string
	Page   int
	Limit  int
}

type OrderService interface {
	CreateOrder(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error)
	CreateInstantOrder(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error)
	BuyNow(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error)
	ApproveOrReject(ctx context.Context, identity model.Identity, orderID uuid.UUID, req DecisionRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, identity model.Identity, orderID uuid.UUID) (*model.Order, error)
	GetOrder(ctx context.Context, identity model.Identity, orderID uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, identity model.Identity, q ListOrdersQuery) ([]model.Order, int64, error)
}

type orderService struct {
	txManager repository.TransactionManager
	orderRepo repository.OrderRepository
	auditRepo repository.AuditRepository
	cart      CartSnapshot
	approver  *approver
	effects   *sideEffects
	log       *zap.Logger
}

func NewOrderService(
	txManager repository.TransactionManager,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	ledger BudgetLedger,
	cart CartSnapshot,
	invalidator CacheInvalidator,
	m *metrics.Core,
	log *zap.Logger,
) OrderService {
	log = log.Named("orders")
	return &orderService{
		txManager: txManager,
		orderRepo: orderRepo,
		auditRepo: auditRepo,
		cart:      cart,
		approver:  &approver{ledger: ledger, orderRepo: orderRepo, auditRepo: auditRepo},
		effects:   &sideEffects{productRepo: productRepo, invalidator: invalidator, metrics: m, log: log},
		log:       log,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error) {
	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.placeOrder(txCtx, identity, req, model.OrderKindRequest)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("company_id", order.CompanyID.String()),
		zap.String("total_price", order.TotalPrice.String()))
	s.effects.transitioned(model.OrderStatusPending)
	s.effects.invalidate(ctx, order.CompanyID, ScopeOrders)
	return order, nil
}

// CreateInstantOrder creates an INSTANT order awaiting online payment. It does
// not touch the budget.
func (s *orderService) CreateInstantOrder(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error) {
	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.placeOrder(txCtx, identity, req, model.OrderKindInstant)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("instant order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total_price", order.TotalPrice.String()))
	s.effects.transitioned(model.OrderStatusPending)
	s.effects.invalidate(ctx, order.CompanyID, ScopeOrders)
	return order, nil
}

// BuyNow creates an INSTANT order and approves it against the company budget
// in a single transaction.
func (s *orderService) BuyNow(ctx context.Context, identity model.Identity, req CreateOrderRequest) (*model.Order, error) {
	if !identity.IsAdmin() {
		return nil, apperror.Forbidden("only admins can buy with the company budget")
	}

	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.placeOrder(txCtx, identity, req, model.OrderKindInstant)
		if err != nil {
			return err
		}
		return s.approver.approve(txCtx, order, identity, "")
	})
	if err != nil {
		s.countBudgetRejection(err)
		return nil, err
	}

	s.log.Info("order bought",
		zap.String("order_id", order.ID.String()),
		zap.String("total_price", order.TotalPrice.String()))
	s.effects.transitioned(model.OrderStatusApproved)
	s.effects.recordSales(ctx, order)
	s.effects.invalidate(ctx, order.CompanyID, ScopeOrders, ScopeBudgets)
	return order, nil
}

// placeOrder resolves the cart, stores the order with its receipt lines and
// consumes the cart lines. Callers provide the transaction.
func (s *orderService) placeOrder(txCtx context.Context, identity model.Identity, req CreateOrderRequest, kind string) (*model.Order, error) {
	lines, err := s.cart.Resolve(txCtx, identity.ID, req.CartItemIDs)
	if err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, line.ToOrderItem())
	}

	order := &model.Order{
		CompanyID:   identity.CompanyID,
		RequesterID: identity.ID,
		Kind:        kind,
		Status:      model.OrderStatusPending,
		TotalPrice:  model.SumItems(items),
	}
	if req.RequestMessage != "" {
		msg := req.RequestMessage
		order.RequestMessage = &msg
	}

	if err := s.orderRepo.Create(txCtx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.orderRepo.CreateItems(txCtx, items); err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	order.Items = items

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ID)
	}
	if err := s.cart.Consume(txCtx, ids); err != nil {
		return nil, err
	}

	action := model.ActionCreateOrder
	if kind == model.OrderKindInstant {
		action = model.ActionCreateInstantOrder
	}
	if err := writeAudit(txCtx, s.auditRepo, identity, action, order, map[string]interface{}{
		"total_price": order.TotalPrice.String(),
		"items":       len(items),
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ApproveOrReject(ctx context.Context, identity model.Identity, orderID uuid.UUID, req DecisionRequest) (*model.Order, error) {
	if !identity.IsAdmin() {
		return nil, apperror.Forbidden("only admins can decide on orders")
	}

	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := s.lockCompanyOrder(txCtx, identity, orderID)
		if err != nil {
			return err
		}

		if req.Approve {
			if err := s.approver.approve(txCtx, o, identity, req.AdminMessage); err != nil {
				return err
			}
		} else {
			if err := o.Reject(identity.Name, req.AdminMessage); err != nil {
				return err
			}
			if err := s.orderRepo.SaveDecision(txCtx, o); err != nil {
				return fmt.Errorf("failed to save order decision: %w", err)
			}
			if err := writeAudit(txCtx, s.auditRepo, identity, model.ActionRejectOrder, o, map[string]interface{}{
				"admin_message": req.AdminMessage,
			}); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		s.countBudgetRejection(err)
		return nil, err
	}

	s.log.Info("order decided",
		zap.String("order_id", order.ID.String()),
		zap.String("status", order.Status),
		zap.String("approver", identity.Name))
	s.effects.transitioned(order.Status)

	if order.Status == model.OrderStatusApproved {
		s.effects.recordSales(ctx, order)
		s.effects.invalidate(ctx, order.CompanyID, ScopeOrders, ScopeBudgets)
	} else {
		s.effects.invalidate(ctx, order.CompanyID, ScopeOrders)
	}
	return order, nil
}

// CancelOrder withdraws the caller's own pending order and puts the consumed
// lines back into their cart.
func (s *orderService) CancelOrder(ctx context.Context, identity model.Identity, orderID uuid.UUID) (*model.Order, error) {
	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := s.orderRepo.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return notFound(err, "order "+orderID.String())
		}
		if err := o.Cancel(identity.ID); err != nil {
			return err
		}
		if err := s.orderRepo.SaveDecision(txCtx, o); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if err := s.cart.Revert(txCtx, o.RequesterID, o.ProductIDs()); err != nil {
			return err
		}
		if err := writeAudit(txCtx, s.auditRepo, identity, model.ActionCancelOrder, o, nil); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order canceled", zap.String("order_id", order.ID.String()))
	s.effects.transitioned(model.OrderStatusCanceled)
	s.effects.invalidate(ctx, order.CompanyID, ScopeOrders)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, identity model.Identity, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.FindByIDWithItems(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order "+orderID.String())
	}
	if !canView(identity, order) {
		return nil, apperror.NotFound("order " + orderID.String() + " not found")
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, identity model.Identity, q ListOrdersQuery) ([]model.Order, int64, error) {
	p := pagination.Normalize(q.Page, q.Limit)
	filter := repository.OrderFilter{CompanyID: identity.CompanyID, Status: q.Status}
	if !identity.IsAdmin() {
		filter.RequesterID = identity.ID
	}

	orders, total, err := s.orderRepo.List(ctx, filter, p.Page, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// lockCompanyOrder locks the order row. Orders of other companies are
// reported as missing.
func (s *orderService) lockCompanyOrder(txCtx context.Context, identity model.Identity, orderID uuid.UUID) (*model.Order, error) {
	o, err := s.orderRepo.FindByIDForUpdate(txCtx, orderID)
	if err != nil {
		return nil, notFound(err, "order "+orderID.String())
	}
	if o.CompanyID != identity.CompanyID {
		return nil, apperror.NotFound("order " + orderID.String() + " not found")
	}
	return o, nil
}

func (s *orderService) countBudgetRejection(err error) {
	if errors.Is(err, apperror.ErrInsufficientBudget) {
		s.effects.metrics.BudgetRejections.Inc()
	}
}

func canView(identity model.Identity, order *model.Order) bool {
	if order.RequesterID == identity.ID {
		return true
	}
	return identity.IsAdmin() && order.CompanyID == identity.CompanyID
}
