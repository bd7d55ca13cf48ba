package service

import (
	"context"
	"fmt"
	"time"

	"snackorder/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const budgetCacheTTL = 5 * time.Minute

// ResponseCache stores read responses under keys built with KeyFunc.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// KeyFunc builds the cache key for (scope, company, suffix).
type KeyFunc func(scope string, companyID uuid.UUID, suffix string) string

type BudgetResponse struct {
	Year                int             `json:"year"`
	Month               int             `json:"month"`
	CurrentBudget       decimal.Decimal `json:"current_budget"`
	SpentAmount         decimal.Decimal `json:"spent_amount"`
	Remaining           decimal.Decimal `json:"remaining"`
	PreviousBudget      decimal.Decimal `json:"previous_budget"`
	PreviousSpentAmount decimal.Decimal `json:"previous_spent_amount"`
}

type BudgetService interface {
	GetCurrent(ctx context.Context, identity model.Identity) (*BudgetResponse, error)
	GetPeriod(ctx context.Context, identity model.Identity, year, month int) (*BudgetResponse, error)
}

type budgetService struct {
	ledger BudgetLedger
	cache  ResponseCache
	key    KeyFunc
	log    *zap.Logger
}

// NewBudgetService serves budget reads through cache. cache may be nil.
func NewBudgetService(ledger BudgetLedger, cache ResponseCache, key KeyFunc, log *zap.Logger) BudgetService {
	return &budgetService{ledger: ledger, cache: cache, key: key, log: log.Named("budgets")}
}

func (s *budgetService) GetCurrent(ctx context.Context, identity model.Identity) (*BudgetResponse, error) {
	p := s.ledger.CurrentPeriod()
	return s.GetPeriod(ctx, identity, p.Year, p.Month)
}

func (s *budgetService) GetPeriod(ctx context.Context, identity model.Identity, year, month int) (*BudgetResponse, error) {
	var key string
	if s.cache != nil {
		key = s.key(ScopeBudgets, identity.CompanyID, fmt.Sprintf("%04d-%02d", year, month))
		var cached BudgetResponse
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn("budget cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	b, err := s.ledger.GetPeriod(ctx, identity.CompanyID, year, month)
	if err != nil {
		return nil, err
	}
	res := &BudgetResponse{
		Year:                b.Year,
		Month:               b.Month,
		CurrentBudget:       b.CurrentBudget,
		SpentAmount:         b.SpentAmount,
		Remaining:           b.Remaining(),
		PreviousBudget:      b.PreviousBudget,
		PreviousSpentAmount: b.PreviousSpentAmount,
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, res, budgetCacheTTL); err != nil {
			s.log.Warn("budget cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}
