package repository

import (
	"context"

	"snackorder/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BudgetRepository interface {
	FindPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error)
	FindPeriodForUpdate(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error)
	AddSpent(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

func (r *budgetRepository) FindPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	var budget model.CompanyBudget
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND year = ? AND month = ?", companyID, year, month).
		First(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

// FindPeriodForUpdate locks the period row until the surrounding transaction ends.
func (r *budgetRepository) FindPeriodForUpdate(ctx context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	var budget model.CompanyBudget
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND year = ? AND month = ?", companyID, year, month).
		First(&budget).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

func (r *budgetRepository) AddSpent(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.CompanyBudget{}).
		Where("id = ?", id).
		Update("spent_amount", gorm.Expr("spent_amount + ?", amount)).Error
}
