package service

import (
	"context"
	"fmt"

	"snackorder/internal/apperror"
	"snackorder/internal/model"
	"snackorder/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compensator undoes an order whose online payment did not go through.
type Compensator interface {
	Compensate(ctx context.Context, orderID uuid.UUID) error
}

type compensator struct {
	txManager repository.TransactionManager
	orderRepo repository.OrderRepository
	auditRepo repository.AuditRepository
	cart      CartSnapshot
	log       *zap.Logger
}

func NewCompensator(
	txManager repository.TransactionManager,
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditRepository,
	cart CartSnapshot,
	log *zap.Logger,
) Compensator {
	return &compensator{
		txManager: txManager,
		orderRepo: orderRepo,
		auditRepo: auditRepo,
		cart:      cart,
		log:       log.Named("compensation"),
	}
}

// Compensate restores the requester's cart lines and hard deletes the order
// and its items. Only PENDING orders are touched.
func (c *compensator) Compensate(ctx context.Context, orderID uuid.UUID) error {
	var order *model.Order
	err := c.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := c.orderRepo.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return notFound(err, "order "+orderID.String())
		}
		if o.Status != model.OrderStatusPending {
			return apperror.InvalidOrderState("order " + orderID.String() + " is " + o.Status + " and cannot be compensated")
		}

		if err := c.cart.Revert(txCtx, o.RequesterID, o.ProductIDs()); err != nil {
			return err
		}
		if err := c.orderRepo.Delete(txCtx, o.ID); err != nil {
			return fmt.Errorf("failed to delete order: %w", notFound(err, "order "+orderID.String()))
		}

		requester := model.Identity{ID: o.RequesterID, CompanyID: o.CompanyID}
		if err := writeAudit(txCtx, c.auditRepo, requester, model.ActionCompensateOrder, o, map[string]interface{}{
			"total_price":       o.TotalPrice.String(),
			"restored_products": len(o.ProductIDs()),
		}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Info("order compensated",
		zap.String("order_id", order.ID.String()),
		zap.String("requester_id", order.RequesterID.String()))
	return nil
}
