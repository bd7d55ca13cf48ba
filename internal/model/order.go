package model

import (
	"time"

	"snackorder/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus constants
const (
	OrderStatusPending  = "PENDING"
	OrderStatusApproved = "APPROVED"
	OrderStatusRejected = "REJECTED"
	OrderStatusCanceled = "CANCELED"
)

// OrderKind distinguishes request-then-approve orders from instant purchases.
// Both share the same shape and invariants.
const (
	OrderKindRequest = "REQUEST"
	OrderKindInstant = "INSTANT"
)

// Order is a purchase request raised from a user's cart.
type Order struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	RequesterID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"requester_id"`
	Kind           string          `gorm:"type:varchar(20);not null;default:'REQUEST'" json:"kind"`
	Status         string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ApproverName   *string         `gorm:"type:varchar(255)" json:"approver_name"`
	AdminMessage   *string         `gorm:"type:text" json:"admin_message"`
	RequestMessage *string         `gorm:"type:text" json:"request_message"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_price"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem is the receipt line of an order: a copy of the product as it was
// when the order was placed. Catalog edits never reach it.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price"`
	ImageURL    string          `gorm:"type:text" json:"image_url"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals the given receipt lines.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ProductIDs returns the distinct product ids referenced by the order's items,
// in first-seen order.
func (o *Order) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// QuantityByProduct sums item quantities per distinct product.
func (o *Order) QuantityByProduct() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

// CanTransition reports whether the order may move to status. Only PENDING
// orders move; APPROVED, REJECTED and CANCELED are terminal.
func (o *Order) CanTransition(to string) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	switch to {
	case OrderStatusApproved, OrderStatusRejected, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

func (o *Order) transition(to string) error {
	if !o.CanTransition(to) {
		return apperror.InvalidOrderState("order " + o.ID.String() + " is " + o.Status + ", cannot move to " + to)
	}
	o.Status = to
	return nil
}

// Approve moves a pending order to APPROVED and records the decision.
func (o *Order) Approve(approverName, adminMessage string) error {
	if err := o.transition(OrderStatusApproved); err != nil {
		return err
	}
	o.recordDecision(approverName, adminMessage)
	return nil
}

// Reject moves a pending order to REJECTED and records the decision.
func (o *Order) Reject(approverName, adminMessage string) error {
	if err := o.transition(OrderStatusRejected); err != nil {
		return err
	}
	o.recordDecision(approverName, adminMessage)
	return nil
}

// Cancel moves a pending order to CANCELED. Only the requester may cancel.
func (o *Order) Cancel(requesterID uuid.UUID) error {
	if o.RequesterID != requesterID {
		return apperror.Forbidden("only the requester can cancel order " + o.ID.String())
	}
	return o.transition(OrderStatusCanceled)
}

func (o *Order) recordDecision(approverName, adminMessage string) {
	name := approverName
	o.ApproverName = &name
	if adminMessage != "" {
		msg := adminMessage
		o.AdminMessage = &msg
	}
}
