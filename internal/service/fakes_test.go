package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"snackorder/internal/metrics"
	"snackorder/internal/model"
	"snackorder/internal/payment"
	"snackorder/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the database. A transaction holds
// txMu for its whole duration, which serializes writers the way the row locks
// do, and restores a snapshot when it fails.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	budgets  map[uuid.UUID]model.CompanyBudget
	carts    map[uuid.UUID]model.CartItem
	products map[uuid.UUID]model.Product
	orders   map[uuid.UUID]model.Order
	items    map[uuid.UUID][]model.OrderItem
	payments map[uuid.UUID]model.Payment
	audits   []model.AuditLog

	failures map[string]error
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		budgets:  map[uuid.UUID]model.CompanyBudget{},
		carts:    map[uuid.UUID]model.CartItem{},
		products: map[uuid.UUID]model.Product{},
		orders:   map[uuid.UUID]model.Order{},
		items:    map[uuid.UUID][]model.OrderItem{},
		payments: map[uuid.UUID]model.Payment{},
		failures: map[string]error{},
	}
}

type snapshot struct {
	budgets  map[uuid.UUID]model.CompanyBudget
	carts    map[uuid.UUID]model.CartItem
	products map[uuid.UUID]model.Product
	orders   map[uuid.UUID]model.Order
	items    map[uuid.UUID][]model.OrderItem
	payments map[uuid.UUID]model.Payment
	audits   []model.AuditLog
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make(map[uuid.UUID][]model.OrderItem, len(s.items))
	for k, v := range s.items {
		items[k] = append([]model.OrderItem(nil), v...)
	}
	return snapshot{
		budgets:  copyMap(s.budgets),
		carts:    copyMap(s.carts),
		products: copyMap(s.products),
		orders:   copyMap(s.orders),
		items:    items,
		payments: copyMap(s.payments),
		audits:   append([]model.AuditLog(nil), s.audits...),
	}
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = snap.budgets
	s.carts = snap.carts
	s.products = snap.products
	s.orders = snap.orders
	s.items = snap.items
	s.payments = snap.payments
	s.audits = snap.audits
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// failure must be called with mu held.
func (s *memStore) failure(op string) error {
	return s.failures[op]
}

// tick returns strictly increasing timestamps so list ordering is stable.
func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

type txKeyType struct{}

type memTxManager struct {
	store *memStore
}

// RunInTx runs one transaction at a time against the whole store, so it
// cannot tell whether the budget row lock works: concurrency tests built on it
// only check the lock-check-debit sequence. The real FOR UPDATE behaviour is
// covered by repository.TestDebitRowLockPreventsOverspend against postgres.
func (m *memTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txKeyType{}) != nil {
		return fn(ctx)
	}
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, txKeyType{}, true)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type memBudgetRepo struct{ s *memStore }

func (r *memBudgetRepo) find(companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	for _, b := range r.s.budgets {
		if b.CompanyID == companyID && b.Year == year && b.Month == month {
			out := b
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memBudgetRepo) FindPeriod(_ context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(companyID, year, month)
}

func (r *memBudgetRepo) FindPeriodForUpdate(_ context.Context, companyID uuid.UUID, year, month int) (*model.CompanyBudget, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("budgets.FindPeriodForUpdate"); err != nil {
		return nil, err
	}
	return r.find(companyID, year, month)
}

func (r *memBudgetRepo) AddSpent(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.budgets[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.SpentAmount = b.SpentAmount.Add(amount)
	r.s.budgets[id] = b
	return nil
}

type memCartRepo struct{ s *memStore }

func (r *memCartRepo) FindActiveByIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.CartItem
	for _, id := range ids {
		line, ok := r.s.carts[id]
		if !ok || line.UserID != userID || line.DeletedAt.Valid {
			continue
		}
		line.Product = r.s.products[line.ProductID]
		out = append(out, line)
	}
	return out, nil
}

func (r *memCartRepo) SoftDelete(_ context.Context, ids []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("cart.SoftDelete"); err != nil {
		return err
	}
	for _, id := range ids {
		if line, ok := r.s.carts[id]; ok {
			line.DeletedAt = gorm.DeletedAt{Time: r.s.tick(), Valid: true}
			r.s.carts[id] = line
		}
	}
	return nil
}

func (r *memCartRepo) Restore(_ context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("cart.Restore"); err != nil {
		return err
	}
	wanted := make(map[uuid.UUID]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	for id, line := range r.s.carts {
		if line.UserID == userID && wanted[line.ProductID] && line.DeletedAt.Valid {
			line.DeletedAt = gorm.DeletedAt{}
			r.s.carts[id] = line
		}
	}
	return nil
}

type memOrderRepo struct{ s *memStore }

func (r *memOrderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("orders.Create"); err != nil {
		return err
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := r.s.tick()
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	stored.Items = nil
	r.s.orders[order.ID] = stored
	return nil
}

func (r *memOrderRepo) CreateItems(_ context.Context, items []model.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("orders.CreateItems"); err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		r.s.items[items[i].OrderID] = append(r.s.items[items[i].OrderID], items[i])
	}
	return nil
}

func (r *memOrderRepo) load(id uuid.UUID) (*model.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.Items = append([]model.OrderItem(nil), r.s.items[id]...)
	return &o, nil
}

func (r *memOrderRepo) FindByIDWithItems(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.load(id)
}

func (r *memOrderRepo) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("orders.FindByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.load(id)
}

func (r *memOrderRepo) SaveDecision(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("orders.SaveDecision"); err != nil {
		return err
	}
	o, ok := r.s.orders[order.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = order.Status
	o.ApproverName = order.ApproverName
	o.AdminMessage = order.AdminMessage
	o.UpdatedAt = r.s.tick()
	r.s.orders[order.ID] = o
	return nil
}

func (r *memOrderRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("orders.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.orders[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.items, id)
	delete(r.s.orders, id)
	return nil
}

func (r *memOrderRepo) List(_ context.Context, filter repository.OrderFilter, page, limit int) ([]model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []model.Order
	for id := range r.s.orders {
		o, _ := r.load(id)
		if filter.CompanyID != uuid.Nil && o.CompanyID != filter.CompanyID {
			continue
		}
		if filter.RequesterID != uuid.Nil && o.RequesterID != filter.RequesterID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, *o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []model.Order{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

type memProductRepo struct{ s *memStore }

func (r *memProductRepo) IncrementSales(_ context.Context, id uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("products.IncrementSales"); err != nil {
		return err
	}
	p, ok := r.s.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.CumulativeSales += quantity
	r.s.products[id] = p
	return nil
}

type memPaymentRepo struct{ s *memStore }

func (r *memPaymentRepo) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("payments.Create"); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.payments[p.OrderID] = *p
	return nil
}

func (r *memPaymentRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

type memAuditRepo struct{ s *memStore }

func (r *memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("audit.Log"); err != nil {
		return err
	}
	entry.ID = uuid.New()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, filter repository.AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []model.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		a := r.s.audits[i]
		if a.CompanyID == nil || *a.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Action != "" && a.Action != filter.Action {
			continue
		}
		if filter.EntityID != "" && a.EntityID != filter.EntityID {
			continue
		}
		matched = append(matched, a)
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], int64(len(matched)), nil
}

type fakeGateway struct {
	mu      sync.Mutex
	receipt *payment.Receipt
	err     error
	calls   int

	// during runs while the provider "holds" the request, outside any
	// transaction of the caller.
	during func()
}

func (g *fakeGateway) Confirm(_ context.Context, paymentKey string, orderID uuid.UUID, amount decimal.Decimal) (*payment.Receipt, error) {
	if g.during != nil {
		g.during()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if g.receipt != nil {
		return g.receipt, nil
	}
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	return &payment.Receipt{
		PaymentKey:     paymentKey,
		OrderID:        orderID.String(),
		OrderName:      "snacks",
		Method:         "CARD",
		RequestedAt:    now,
		ApprovedAt:     now,
		TotalAmount:    amount,
		SuppliedAmount: amount,
		VAT:            decimal.Zero,
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type invalidation struct {
	company uuid.UUID
	scopes  []string
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, companyID uuid.UUID, scopes ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidation{company: companyID, scopes: scopes})
	return r.err
}

// harness wires every service of the package against one memStore.
type harness struct {
	t           *testing.T
	store       *memStore
	tx          *memTxManager
	ledger      BudgetLedger
	cart        CartSnapshot
	orders      OrderService
	payments    PaymentService
	compensator Compensator
	gateway     *fakeGateway
	invalidator *recordingInvalidator
	metrics     *metrics.Core
	logs        *observer.ObservedLogs
	now         time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	h := &harness{
		t:           t,
		store:       store,
		tx:          &memTxManager{store: store},
		gateway:     &fakeGateway{},
		invalidator: &recordingInvalidator{},
		metrics:     metrics.NewCore(prometheus.NewRegistry()),
		logs:        logs,
		now:         time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}

	orderRepo := &memOrderRepo{s: store}
	productRepo := &memProductRepo{s: store}
	auditRepo := &memAuditRepo{s: store}

	h.ledger = NewBudgetLedger(&memBudgetRepo{s: store}, time.UTC, func() time.Time { return h.now })
	h.cart = NewCartSnapshot(&memCartRepo{s: store})
	h.compensator = NewCompensator(h.tx, orderRepo, auditRepo, h.cart, log)
	h.orders = NewOrderService(h.tx, orderRepo, productRepo, auditRepo, h.ledger, h.cart, h.invalidator, h.metrics, log)
	h.payments = NewPaymentService(h.tx, orderRepo, &memPaymentRepo{s: store}, productRepo, auditRepo,
		h.ledger, h.gateway, h.compensator, h.invalidator, h.metrics, log)
	return h
}

func (h *harness) user(companyID uuid.UUID, name string) model.Identity {
	return model.Identity{ID: uuid.New(), CompanyID: companyID, Name: name, Role: model.RoleUser}
}

func (h *harness) admin(companyID uuid.UUID, name string) model.Identity {
	return model.Identity{ID: uuid.New(), CompanyID: companyID, Name: name, Role: model.RoleAdmin}
}

// seedBudget creates the current-period row with the given allocation and spend.
func (h *harness) seedBudget(companyID uuid.UUID, allocated, spent int64) uuid.UUID {
	p := model.PeriodOf(h.now, time.UTC)
	id := uuid.New()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.budgets[id] = model.CompanyBudget{
		ID:            id,
		CompanyID:     companyID,
		Year:          p.Year,
		Month:         p.Month,
		CurrentBudget: decimal.NewFromInt(allocated),
		SpentAmount:   decimal.NewFromInt(spent),
	}
	return id
}

func (h *harness) seedProduct(name string, price int64) uuid.UUID {
	id := uuid.New()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.products[id] = model.Product{ID: id, Name: name, Price: decimal.NewFromInt(price), ImageURL: "https://img/" + name}
	return id
}

func (h *harness) seedCart(userID, productID uuid.UUID, qty int) uuid.UUID {
	id := uuid.New()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.carts[id] = model.CartItem{ID: id, UserID: userID, ProductID: productID, Quantity: qty, IsChecked: true}
	return id
}

// seedPendingOrder places a REQUEST order worth total for requester.
func (h *harness) seedPendingOrder(requester model.Identity, total int64) *model.Order {
	h.t.Helper()
	product := h.seedProduct("snack-"+uuid.NewString()[:8], total)
	line := h.seedCart(requester.ID, product, 1)
	order, err := h.orders.CreateOrder(context.Background(), requester, CreateOrderRequest{CartItemIDs: []uuid.UUID{line}})
	if err != nil {
		h.t.Fatalf("seed order: %v", err)
	}
	return order
}

func (h *harness) budget(id uuid.UUID) model.CompanyBudget {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.budgets[id]
}

func (h *harness) cartLine(id uuid.UUID) model.CartItem {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.carts[id]
}

func (h *harness) storedOrder(id uuid.UUID) (model.Order, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	o, ok := h.store.orders[id]
	return o, ok
}

func (h *harness) itemCount(orderID uuid.UUID) int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.items[orderID])
}

func (h *harness) sales(productID uuid.UUID) int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.products[productID].CumulativeSales
}

func (h *harness) auditActions() []string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := make([]string, 0, len(h.store.audits))
	for _, a := range h.store.audits {
		out = append(out, a.Action)
	}
	return out
}

func (h *harness) paymentFor(orderID uuid.UUID) (model.Payment, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	p, ok := h.store.payments[orderID]
	return p, ok
}
