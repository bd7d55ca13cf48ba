package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateOrder        = "CREATE_ORDER"
	ActionCreateInstantOrder = "CREATE_INSTANT_ORDER"
	ActionApproveOrder       = "APPROVE_ORDER"
	ActionRejectOrder        = "REJECT_ORDER"
	ActionCancelOrder        = "CANCEL_ORDER"

	// Payment workflow actions
	ActionConfirmPayment  = "CONFIRM_PAYMENT"
	ActionCompensateOrder = "COMPENSATE_ORDER"
)

// AuditLog tracks Who, What, and When for order and budget changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for system-initiated entries
	CompanyID  *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
