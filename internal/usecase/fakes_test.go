package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
)

// =====================
// インメモリDB（注文・カート・在庫の流れを実際の状態で確認する）
// =====================

type memState struct {
	products    map[int64]model.Product
	cart        map[int64]map[int64]int64 // user -> product -> qty
	orders      map[int64]model.Order
	items       map[int64][]model.OrderItem
	adjustments []model.InventoryAdjustment
	audits      []model.AuditLog
	nextOrderID int64
}

func (s memState) clone() memState {
	c := memState{
		products:    make(map[int64]model.Product, len(s.products)),
		cart:        make(map[int64]map[int64]int64, len(s.cart)),
		orders:      make(map[int64]model.Order, len(s.orders)),
		items:       make(map[int64][]model.OrderItem, len(s.items)),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
		audits:      append([]model.AuditLog(nil), s.audits...),
		nextOrderID: s.nextOrderID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for u, lines := range s.cart {
		m := make(map[int64]int64, len(lines))
		for p, q := range lines {
			m[p] = q
		}
		c.cart[u] = m
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]model.OrderItem(nil), v...)
	}
	return c
}

// WithinTxは1本ずつ実行（行ロック相当）。fnがerrorならスナップショットへ戻す
type memDB struct {
	mu        sync.Mutex
	state     memState
	commitErr error
}

func newMemDB() *memDB {
	return &memDB{state: memState{
		products: map[int64]model.Product{},
		cart:     map[int64]map[int64]int64{},
		orders:   map[int64]model.Order{},
		items:    map[int64][]model.OrderItem{},
	}}
}

func (db *memDB) addProduct(id int64, name string, price string, stock int64) {
	db.state.products[id] = model.Product{
		ID:            id,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
}

func (db *memDB) putCart(userID int64, productID int64, qty int64) {
	if db.state.cart[userID] == nil {
		db.state.cart[userID] = map[int64]int64{}
	}
	db.state.cart[userID][productID] = qty
}

func (db *memDB) stock(productID int64) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.products[productID].StockQuantity
}

func (db *memDB) cartOf(userID int64) map[int64]int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := map[int64]int64{}
	for p, q := range db.state.cart[userID] {
		out[p] = q
	}
	return out
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.state.orders)
}

func (db *memDB) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.state.clone()
	if err := fn(memRepos{db: db}); err != nil {
		db.state = snapshot
		return err
	}
	if db.commitErr != nil {
		db.state = snapshot
		return db.commitErr
	}
	return nil
}

// Tx外から使う版（同時実行しないテストでだけ使う）
func (db *memDB) Orders() repo.OrderRepository         { return memOrders{db} }
func (db *memDB) OrderItems() repo.OrderItemRepository { return memOrderItems{db} }
func (db *memDB) CartItems() repo.CartItemRepository   { return memCart{db} }
func (db *memDB) Products() repo.ProductRepository     { return memProducts{db} }

type memRepos struct{ db *memDB }

// ユーザーはmemDBで持たない
func (r memRepos) Users() repo.UserRepository           { return nil }
func (r memRepos) Orders() repo.OrderRepository         { return memOrders{r.db} }
func (r memRepos) OrderItems() repo.OrderItemRepository { return memOrderItems{r.db} }
func (r memRepos) CartItems() repo.CartItemRepository   { return memCart{r.db} }
func (r memRepos) Inventory() repo.InventoryRepository  { return memInventory{r.db} }
func (r memRepos) Products() repo.ProductRepository     { return memProducts{r.db} }
func (r memRepos) AuditLogs() repo.AuditLogRepository   { return memAudit{r.db} }

var _ repo.TransactionManager = (*memDB)(nil)

// ---- orders ----

type memOrders struct{ db *memDB }

func (m memOrders) FindByID(ctx context.Context, id int64) (model.Order, error) {
	o, ok := m.db.state.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m memOrders) FindByIDForUpdate(ctx context.Context, id int64) (model.Order, error) {
	return m.FindByID(ctx, id)
}

func (m memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range m.db.state.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m memOrders) Create(ctx context.Context, o model.Order) (model.Order, error) {
	for _, existing := range m.db.state.orders {
		if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
			return model.Order{}, repo.ErrConflict
		}
	}
	m.db.state.nextOrderID++
	o.ID = m.db.state.nextOrderID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.db.state.orders[o.ID] = o
	return o, nil
}

func (m memOrders) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	o, ok := m.db.state.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	m.db.state.orders[id] = o
	return nil
}

func (m memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range m.db.state.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

// ---- order items ----

type memOrderItems struct{ db *memDB }

func (m memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		it.OrderID = orderID
		m.db.state.items[orderID] = append(m.db.state.items[orderID], it)
	}
	return nil
}

func (m memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return append([]model.OrderItem(nil), m.db.state.items[orderID]...), nil
}

func (m memOrderItems) ListByOrderIDs(ctx context.Context, ids []int64) ([]model.OrderItem, error) {
	var out []model.OrderItem
	for _, id := range ids {
		out = append(out, m.db.state.items[id]...)
	}
	return out, nil
}

// ---- cart ----

type memCart struct{ db *memDB }

func (m memCart) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	lines := m.db.state.cart[userID]
	ids := make([]int64, 0, len(lines))
	for p := range lines {
		ids = append(ids, p)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.CartItem, 0, len(ids))
	for _, pid := range ids {
		p := m.db.state.products[pid]
		out = append(out, model.CartItem{UserID: userID, ProductID: pid, Quantity: lines[pid], Product: &p})
	}
	return out, nil
}

func (m memCart) ListByUserIDForUpdate(ctx context.Context, userID int64) ([]model.CartItem, error) {
	items, _ := m.ListByUserID(ctx, userID)
	for i := range items {
		items[i].Product = nil
	}
	return items, nil
}

func (m memCart) AddQuantity(ctx context.Context, userID int64, productID int64, qty int64) (int64, error) {
	merged := m.db.state.cart[userID][productID] + qty
	m.db.putCart(userID, productID, merged)
	return merged, nil
}

func (m memCart) UpdateQuantity(ctx context.Context, userID int64, productID int64, qty int64) error {
	if _, ok := m.db.state.cart[userID][productID]; !ok {
		return repo.ErrNotFound
	}
	m.db.state.cart[userID][productID] = qty
	return nil
}

func (m memCart) Delete(ctx context.Context, userID int64, productID int64) error {
	if _, ok := m.db.state.cart[userID][productID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.db.state.cart[userID], productID)
	return nil
}

func (m memCart) DeleteByUserID(ctx context.Context, userID int64) error {
	delete(m.db.state.cart, userID)
	return nil
}

// ---- inventory ----

type memInventory struct{ db *memDB }

func (m memInventory) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := m.db.state.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	m.db.state.products[productID] = p
	return true, nil
}

func (m memInventory) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := m.db.state.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.StockQuantity += qty
	m.db.state.products[productID] = p
	return nil
}

func (m memInventory) CreateAdjustment(ctx context.Context, a model.InventoryAdjustment) error {
	m.db.state.adjustments = append(m.db.state.adjustments, a)
	return nil
}

// ---- products ----

type memProducts struct{ db *memDB }

func (m memProducts) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range m.db.state.products {
		if p.IsActive || q.IncludeInactive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := m.db.state.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (m memProducts) FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error) {
	return m.FindByID(ctx, id)
}

func (m memProducts) FindActiveByIDsForUpdate(ctx context.Context, ids []int64) ([]model.Product, error) {
	var out []model.Product
	for _, id := range ids {
		if p, ok := m.db.state.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = int64(len(m.db.state.products) + 1)
	m.db.state.products[p.ID] = p
	return p, nil
}

func (m memProducts) Update(ctx context.Context, id int64, patch repo.ProductPatch) error {
	p, ok := m.db.state.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.StockQuantity != nil {
		p.StockQuantity = *patch.StockQuantity
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	m.db.state.products[id] = p
	return nil
}

func (m memProducts) Deactivate(ctx context.Context, id int64) error {
	p, ok := m.db.state.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.IsActive = false
	m.db.state.products[id] = p
	return nil
}

// ---- audit ----

type memAudit struct{ db *memDB }

func (m memAudit) Create(ctx context.Context, log model.AuditLog) error {
	m.db.state.audits = append(m.db.state.audits, log)
	return nil
}

// =====================
// 決済・イベント
// =====================

// 呼ばれたリクエストを記録して固定の結果を返す
type stubGateway struct {
	mu       sync.Mutex
	result   usecase.PaymentResult
	err      error
	requests []usecase.PaymentRequest
}

func (g *stubGateway) CreateAndConfirm(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return usecase.PaymentResult{}, g.err
	}
	res := g.result
	if res.Reference == "" {
		res.Reference = "pi_" + req.IdempotencyKey
	}
	return res, nil
}

func (g *stubGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	if g.err != nil {
		return usecase.PaymentIntent{}, g.err
	}
	return usecase.PaymentIntent{Reference: "pi_intent", ClientSecret: "pi_intent_secret"}, nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func succeededGateway() *stubGateway {
	return &stubGateway{result: usecase.PaymentResult{Status: usecase.PaymentSucceeded}}
}

// ctxが切れるまで返さない
type hangingGateway struct{}

func (hangingGateway) CreateAndConfirm(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentResult, error) {
	<-ctx.Done()
	return usecase.PaymentResult{}, ctx.Err()
}

func (hangingGateway) CreateIntent(ctx context.Context, req usecase.PaymentIntentRequest) (usecase.PaymentIntent, error) {
	<-ctx.Done()
	return usecase.PaymentIntent{}, ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []usecase.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev usecase.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) published() []usecase.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]usecase.OrderEvent(nil), p.events...)
}
