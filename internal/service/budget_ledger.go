package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snackorder/internal/apperror"
	"snackorder/internal/model"
	"snackorder/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BudgetLedger reads and debits company budget periods.
type BudgetLedger interface {
	GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error)
	GetCurrent(ctx context.Context, companyID uuid.UUID) (*model.CompanyBudget, error)
	CurrentPeriod() model.Period
	// Debit must be called inside the transaction of the status change it pays for.
	Debit(ctx context.Context, companyID uuid.UUID, year, month int, amount decimal.Decimal) (*model.CompanyBudget, error)
}

type budgetLedger struct {
	budgetRepo repository.BudgetRepository
	loc        *time.Location
	now        func() time.Time
}

// NewBudgetLedger builds a ledger whose "current" month is evaluated in loc.
// now may be nil.
func NewBudgetLedger(budgetRepo repository.BudgetRepository, loc *time.Location, now func() time.Time) BudgetLedger {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &budgetLedger{budgetRepo: budgetRepo, loc: loc, now: now}
}

func (l *budgetLedger) CurrentPeriod() model.Period {
	return model.PeriodOf(l.now(), l.loc)
}

func (l *budgetLedger) GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	budget, err := l.budgetRepo.FindPeriod(ctx, companyID, year, month)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, periodNotFound(year, month)
		}
		return nil, fmt.Errorf("failed to load budget period: %w", err)
	}
	return budget, nil
}

func (l *budgetLedger) GetCurrent(ctx context.Context, companyID uuid.UUID) (*model.CompanyBudget, error) {
	p := l.CurrentPeriod()
	return l.GetPeriod(ctx, companyID, p.Year, p.Month)
}

func (l *budgetLedger) Debit(ctx context.Context, companyID uuid.UUID, year, month int, amount decimal.Decimal) (*model.CompanyBudget, error) {
	if !amount.IsPositive() {
		return nil, apperror.InvalidInput("debit amount must be positive, got " + amount.String())
	}

	// The row lock serializes concurrent approvals on the same period; the
	// sufficiency check below runs on the locked pre-debit snapshot.
	budget, err := l.budgetRepo.FindPeriodForUpdate(ctx, companyID, year, month)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, periodNotFound(year, month)
		}
		return nil, fmt.Errorf("failed to lock budget period: %w", err)
	}

	if !budget.CanAfford(amount) {
		return nil, apperror.New(apperror.KindInsufficientBudget, fmt.Sprintf(
			"remaining budget %s is less than order total %s", budget.Remaining().StringFixed(0), amount.StringFixed(0)))
	}

	if err := l.budgetRepo.AddSpent(ctx, budget.ID, amount); err != nil {
		return nil, fmt.Errorf("failed to debit budget: %w", err)
	}
	budget.SpentAmount = budget.SpentAmount.Add(amount)
	return budget, nil
}

func periodNotFound(year, month int) error {
	return apperror.NotFound(fmt.Sprintf("budget for %04d-%02d not found", year, month))
}
