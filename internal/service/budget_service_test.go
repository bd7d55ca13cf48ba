package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"snackorder/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	readErr error
}

func (m *mapCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return false, m.readErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *mapCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func testKey(scope string, companyID uuid.UUID, suffix string) string {
	return scope + ":" + companyID.String() + ":" + suffix
}

func TestBudgetServiceCachesReads(t *testing.T) {
	h := newHarness(t)
	company := uuid.New()
	id := h.seedBudget(company, 100000, 25000)
	c := &mapCache{entries: map[string][]byte{}}
	svc := NewBudgetService(h.ledger, c, testKey, zap.NewNop())
	alice := h.user(company, "alice")

	first, err := svc.GetCurrent(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, first.Remaining.Equal(decimal.NewFromInt(75000)))

	// Served from cache until invalidated.
	h.store.mu.Lock()
	b := h.store.budgets[id]
	b.SpentAmount = decimal.NewFromInt(99000)
	h.store.budgets[id] = b
	h.store.mu.Unlock()

	second, err := svc.GetPeriod(context.Background(), alice, 2026, 10)
	require.NoError(t, err)
	assert.True(t, second.SpentAmount.Equal(decimal.NewFromInt(25000)))
	assert.Contains(t, c.entries, testKey(ScopeBudgets, company, "2026-10"))
}

func TestBudgetServiceFallsBackWhenCacheFails(t *testing.T) {
	h := newHarness(t)
	company := uuid.New()
	h.seedBudget(company, 100000, 0)
	svc := NewBudgetService(h.ledger, &mapCache{entries: map[string][]byte{}, readErr: errors.New("redis down")}, testKey, zap.NewNop())

	got, err := svc.GetCurrent(context.Background(), h.user(company, "alice"))

	require.NoError(t, err)
	assert.True(t, got.CurrentBudget.Equal(decimal.NewFromInt(100000)))
}

func TestBudgetServiceMissingPeriod(t *testing.T) {
	h := newHarness(t)
	svc := NewBudgetService(h.ledger, nil, testKey, zap.NewNop())

	_, err := svc.GetCurrent(context.Background(), h.user(uuid.New(), "alice"))

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
