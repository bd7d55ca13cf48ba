package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the evidence of a confirmed gateway capture. Append-only.
type Payment struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	PaymentKey     string          `gorm:"type:varchar(200);not null;uniqueIndex" json:"payment_key"`
	OrderName      string          `gorm:"type:varchar(255)" json:"order_name"`
	Method         string          `gorm:"type:varchar(50)" json:"method"`
	RequestedAt    time.Time       `json:"requested_at"`
	ApprovedAt     time.Time       `json:"approved_at"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_amount"`
	SuppliedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"supplied_amount"`
	VAT            decimal.Decimal `gorm:"column:vat;type:decimal(15,2);not null" json:"vat"`
	CreatedAt      time.Time       `json:"created_at"`
}
