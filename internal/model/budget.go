package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CompanyBudget is a company's budget bucket for one calendar month.
// Rows are created by the monthly scheduler and only ever debited afterwards.
type CompanyBudget struct {
	ID                  uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_company_budget_period" json:"company_id"`
	Year                int             `gorm:"not null;uniqueIndex:idx_company_budget_period" json:"year"`
	Month               int             `gorm:"not null;uniqueIndex:idx_company_budget_period" json:"month"`
	CurrentBudget       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"current_budget"`
	SpentAmount         decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"spent_amount"`
	PreviousBudget      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"previous_budget"`
	PreviousSpentAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"previous_spent_amount"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Remaining is the amount still available in the period.
func (b CompanyBudget) Remaining() decimal.Decimal {
	return b.CurrentBudget.Sub(b.SpentAmount)
}

// CanAfford reports whether amount fits in the remaining budget.
func (b CompanyBudget) CanAfford(amount decimal.Decimal) bool {
	return b.Remaining().GreaterThanOrEqual(amount)
}

// Period identifies a (year, month) budget bucket.
type Period struct {
	Year  int
	Month int
}

// PeriodOf returns the budget period containing t, evaluated in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc != nil {
		t = t.In(loc)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}
}
