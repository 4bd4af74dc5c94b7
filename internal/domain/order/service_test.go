package order

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

// --- In-memory repository ---

type memItem struct {
	name     string
	category catalog.Category
	price    money.Cents
	stock    int
}

type memLine struct {
	itemID int64
	qty    int
}

type memState struct {
	items  map[int64]memItem
	carts  map[string][]memLine
	orders []*Order
	nextID int64
}

func (s memState) clone() memState {
	c := memState{
		items:  make(map[int64]memItem, len(s.items)),
		carts:  make(map[string][]memLine, len(s.carts)),
		orders: append([]*Order(nil), s.orders...),
		nextID: s.nextID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]memLine(nil), v...)
	}
	return c
}

// memRepo serializes transactions with a mutex and restores a snapshot when
// the transaction function fails.
type memRepo struct {
	mu    sync.Mutex
	state memState

	txCount        int
	failInsertLine error
	forceConflict  bool
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{
		items:  map[int64]memItem{},
		carts:  map[string][]memLine{},
		nextID: 1,
	}}
}

func (m *memRepo) addItem(id int64, name string, price money.Cents, stock int) {
	m.state.items[id] = memItem{name: name, category: catalog.CategoryRings, price: price, stock: stock}
}

func (m *memRepo) addToCart(session string, itemID int64, qty int) {
	m.state.carts[session] = append(m.state.carts[session], memLine{itemID: itemID, qty: qty})
}

func (m *memRepo) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.items[id].stock
}

func (m *memRepo) cartLen(session string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.carts[session])
}

func (m *memRepo) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{repo: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.state.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.state.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, *o)
		}
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, s Status) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.state.orders {
		if o.ID == id {
			o.Status = s
			return o, nil
		}
	}
	return nil, ErrNotFound
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) CartLines(_ context.Context, sessionID string) ([]cart.Line, error) {
	var lines []cart.Line
	for _, l := range t.repo.state.carts[sessionID] {
		it := t.repo.state.items[l.itemID]
		lines = append(lines, cart.Line{
			ItemID:    l.itemID,
			Quantity:  l.qty,
			Name:      it.name,
			Category:  it.category,
			UnitPrice: it.price,
			Stock:     it.stock,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	return lines, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	o.ID = t.repo.state.nextID
	t.repo.state.nextID++
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.repo.state.orders = append(t.repo.state.orders, o)
	return nil
}

func (t *memTx) InsertLine(_ context.Context, _ int64, _ Line) error {
	return t.repo.failInsertLine
}

func (t *memTx) DecrementStock(_ context.Context, itemID int64, qty int) error {
	it := t.repo.state.items[itemID]
	if t.repo.forceConflict || it.stock < qty {
		return ErrStockConflict
	}
	it.stock -= qty
	t.repo.state.items[itemID] = it
	return nil
}

func (t *memTx) DeleteCartLines(_ context.Context, sessionID string) error {
	delete(t.repo.state.carts, sessionID)
	return nil
}

// --- Helpers ---

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc
}

func testCustomer() CustomerInfo {
	return CustomerInfo{
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		ShippingAddress: "12 St James's Square, London",
	}
}

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Pearl Earrings", 1999, 5)
	repo.addItem(2, "Silver Band", 599, 1)
	repo.addToCart("s1", 1, 2)
	repo.addToCart("s1", 2, 1)
	svc := newTestService(t, repo)

	o, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.NoError(t, err)

	assert.Equal(t, money.Cents(4597), o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "s1", o.SessionID)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, money.Cents(1999), o.Lines[0].PriceAtTime)
	assert.Equal(t, "Pearl Earrings", o.Lines[0].ItemName)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.NotZero(t, o.ID)

	assert.Equal(t, 3, repo.stock(1))
	assert.Equal(t, 0, repo.stock(2))
	assert.Zero(t, repo.cartLen("s1"))
	assert.Equal(t, 1, repo.orderCount())
}

func TestPlaceOrder_TrimsCustomerInfo(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 1)
	repo.addToCart("s1", 1, 1)
	svc := newTestService(t, repo)

	info := testCustomer()
	info.Name = "  Ada  "
	info.Email = " ada@example.com "

	o, err := svc.PlaceOrder(context.Background(), "s1", info)
	require.NoError(t, err)
	assert.Equal(t, "Ada", o.Customer.Name)
	assert.Equal(t, "ada@example.com", o.Customer.Email)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 1)
	svc := newTestService(t, repo)

	_, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, repo.orderCount())
	assert.Equal(t, 1, repo.stock(1))
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Pearl Earrings", 1999, 5)
	repo.addItem(2, "Silver Band", 599, 1)
	repo.addToCart("s1", 1, 2)
	repo.addToCart("s1", 2, 3)
	svc := newTestService(t, repo)

	_, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Items, 1)
	assert.Equal(t, Shortage{ItemID: 2, Name: "Silver Band", Requested: 3, Available: 1}, stockErr.Items[0])

	assert.Zero(t, repo.orderCount())
	assert.Equal(t, 2, repo.cartLen("s1"))
	assert.Equal(t, 5, repo.stock(1))
	assert.Equal(t, 1, repo.stock(2))
}

func TestPlaceOrder_SecondCallSeesEmptyCart(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 10)
	repo.addToCart("s1", 1, 1)
	svc := newTestService(t, repo)

	_, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 1, repo.orderCount())
	assert.Equal(t, 9, repo.stock(1))
}

func TestPlaceOrder_StorageFailureRollsBack(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 4)
	repo.addToCart("s1", 1, 2)
	repo.failInsertLine = errors.New("connection reset")
	svc := newTestService(t, repo)

	_, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert line")

	assert.Zero(t, repo.orderCount())
	assert.Equal(t, 1, repo.cartLen("s1"))
	assert.Equal(t, 4, repo.stock(1))
}

func TestPlaceOrder_DecrementConflictRollsBack(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 4)
	repo.addToCart("s1", 1, 2)
	repo.forceConflict = true
	svc := newTestService(t, repo)

	_, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Zero(t, repo.orderCount())
	assert.Equal(t, 1, repo.cartLen("s1"))
	assert.Equal(t, 4, repo.stock(1))
}

func TestPlaceOrder_ConcurrentDemandExceedsStock(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 2500, 3)
	repo.addToCart("a", 1, 2)
	repo.addToCart("b", 1, 2)
	svc := newTestService(t, repo)

	results := make([]error, 2)
	var g errgroup.Group
	for i, session := range []string{"a", "b"} {
		g.Go(func() error {
			_, results[i] = svc.PlaceOrder(context.Background(), session, testCustomer())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded, rejected int
	for _, err := range results {
		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &stockErr):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, repo.stock(1))
	assert.Equal(t, 1, repo.orderCount())
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		session string
		mutate  func(*CustomerInfo)
		field   string
	}{
		{name: "EmptySession", session: "", mutate: func(*CustomerInfo) {}, field: "session_id"},
		{name: "EmptyName", session: "s1", mutate: func(c *CustomerInfo) { c.Name = " " }, field: "customer_name"},
		{name: "BadEmail", session: "s1", mutate: func(c *CustomerInfo) { c.Email = "not-an-email" }, field: "customer_email"},
		{name: "DisplayNameEmail", session: "s1", mutate: func(c *CustomerInfo) { c.Email = "Ada <ada@example.com>" }, field: "customer_email"},
		{name: "EmptyShipping", session: "s1", mutate: func(c *CustomerInfo) { c.ShippingAddress = "" }, field: "shipping_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := newTestService(t, repo)

			info := testCustomer()
			tt.mutate(&info)

			_, err := svc.PlaceOrder(context.Background(), tt.session, info)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Zero(t, repo.txCount, "validation must happen before storage access")
		})
	}
}

func TestUpdateStatus_AnyTransition(t *testing.T) {
	repo := newMemRepo()
	repo.addItem(1, "Ring", 100, 1)
	repo.addToCart("s1", 1, 1)
	svc := newTestService(t, repo)

	o, err := svc.PlaceOrder(context.Background(), "s1", testCustomer())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), o.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
}

func TestUpdateStatus_Rejections(t *testing.T) {
	svc := newTestService(t, newMemRepo())

	_, err := svc.UpdateStatus(context.Background(), 1, "lost")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.UpdateStatus(context.Background(), 42, StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)
	for i := range 3 {
		repo.addItem(int64(i+1), "Ring", 100, 1)
		session := string(rune('a' + i))
		repo.addToCart(session, int64(i+1), 1)
		_, err := svc.PlaceOrder(context.Background(), session, testCustomer())
		require.NoError(t, err)
	}

	orders, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 3)

	orders, err = svc.List(context.Background(), ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = svc.List(context.Background(), ListFilter{Status: "bogus"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(t, newMemRepo())

	_, err := svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}
