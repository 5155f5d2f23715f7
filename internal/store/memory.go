package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/minibroker/internal/domain"
)

// orderIndexItem orders a customer's orders newest first.
type orderIndexItem struct {
	createDate time.Time
	orderID    string
}

func orderIndexLess(a, b orderIndexItem) bool {
	if !a.createDate.Equal(b.createDate) {
		return a.createDate.After(b.createDate)
	}
	return a.orderID < b.orderID
}

// Memory is a thread-safe in-memory Store. Committed state lives in maps
// guarded by mu; row locks come from a sharded lock table so units of work
// on disjoint rows never contend.
type Memory struct {
	mu          sync.RWMutex
	customers   map[string]*domain.Customer
	usernames   map[string]string // username → customer_id
	assets      map[string]*domain.Asset
	orders      map[string]*domain.Order
	byCustomer  map[string]*btree.BTreeG[orderIndexItem]
	locks       *lockTable
	lockTimeout time.Duration
}

// NewMemory creates an empty Memory store. lockTimeout bounds every row
// lock wait.
func NewMemory(lockTimeout time.Duration) *Memory {
	return &Memory{
		customers:   make(map[string]*domain.Customer),
		usernames:   make(map[string]string),
		assets:      make(map[string]*domain.Asset),
		orders:      make(map[string]*domain.Order),
		byCustomer:  make(map[string]*btree.BTreeG[orderIndexItem]),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// WithinTx runs fn against a fresh memTx, applying its staged writes only
// if fn succeeds. Locks are released either way.
func (s *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:  s,
		held:   make(map[string]struct{}),
		assets: make(map[string]*domain.Asset),
		orders: make(map[string]*domain.Order),
		added:  make(map[string]struct{}),
	}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.commit(tx)
	return nil
}

func (s *Memory) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range tx.assets {
		s.assets[key] = a
	}
	for id, o := range tx.orders {
		s.orders[id] = o
		if _, ok := tx.added[id]; ok {
			idx := s.byCustomer[o.CustomerID]
			if idx == nil {
				idx = btree.NewG(16, orderIndexLess)
				s.byCustomer[o.CustomerID] = idx
			}
			idx.ReplaceOrInsert(orderIndexItem{createDate: o.CreateDate, orderID: id})
		}
	}
}

// CreateCustomer provisions a customer together with its opening asset
// rows. It returns domain.ErrCustomerAlreadyExists if the id or username
// is taken.
func (s *Memory) CreateCustomer(_ context.Context, c *domain.Customer, assets []*domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.CustomerID]; exists {
		return domain.ErrCustomerAlreadyExists
	}
	if _, exists := s.usernames[c.Username]; exists {
		return domain.ErrCustomerAlreadyExists
	}
	for _, a := range assets {
		if err := a.Check(); err != nil {
			return err
		}
	}

	cc := *c
	s.customers[c.CustomerID] = &cc
	s.usernames[c.Username] = c.CustomerID
	for _, a := range assets {
		s.assets[a.Key()] = a.Clone()
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *Memory) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCustomerLocked(customerID)
}

func (s *Memory) getCustomerLocked(customerID string) (*domain.Customer, error) {
	c, ok := s.customers[customerID]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", customerID, domain.ErrCustomerNotFound)
	}
	cc := *c
	return &cc, nil
}

// GetCustomerByUsername retrieves a customer by login name.
func (s *Memory) GetCustomerByUsername(_ context.Context, username string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, fmt.Errorf("username %s: %w", username, domain.ErrCustomerNotFound)
	}
	return s.getCustomerLocked(id)
}

// CountCustomers returns the number of provisioned customers.
func (s *Memory) CountCustomers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers), nil
}

// GetAsset reads a committed asset row without locking it.
func (s *Memory) GetAsset(_ context.Context, customerID, symbol string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[domain.AssetKey(customerID, symbol)]
	if !ok {
		return nil, fmt.Errorf("asset %s for customer %s: %w", symbol, customerID, domain.ErrAssetNotFound)
	}
	return a.Clone(), nil
}

// ListAssets returns the customer's committed asset rows ordered by symbol.
func (s *Memory) ListAssets(_ context.Context, customerID, symbol string) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Asset, 0)
	if symbol != "" {
		if a, ok := s.assets[domain.AssetKey(customerID, symbol)]; ok {
			result = append(result, a.Clone())
		}
		return result, nil
	}

	prefix := domain.AssetKey(customerID, "")
	for key, a := range s.assets {
		if strings.HasPrefix(key, prefix) {
			result = append(result, a.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Asset) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return result, nil
}

// GetOrder reads a committed order without locking it.
func (s *Memory) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return o.Clone(), nil
}

// ListOrders returns matching orders newest first. With a customer filter
// the per-customer index is walked from EndDate down to StartDate.
func (s *Memory) ListOrders(_ context.Context, f OrderFilter) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0)

	if f.CustomerID == "" {
		for _, o := range s.orders {
			if f.Matches(o) {
				result = append(result, o.Clone())
			}
		}
		slices.SortFunc(result, func(a, b *domain.Order) int {
			ai := orderIndexItem{a.CreateDate, a.OrderID}
			bi := orderIndexItem{b.CreateDate, b.OrderID}
			switch {
			case orderIndexLess(ai, bi):
				return -1
			case orderIndexLess(bi, ai):
				return 1
			}
			return 0
		})
		return result, nil
	}

	idx := s.byCustomer[f.CustomerID]
	if idx == nil {
		return result, nil
	}

	visit := func(item orderIndexItem) bool {
		if f.StartDate != nil && item.createDate.Before(*f.StartDate) {
			return false
		}
		o := s.orders[item.orderID]
		if f.Matches(o) {
			result = append(result, o.Clone())
		}
		return true
	}
	if f.EndDate != nil {
		idx.AscendGreaterOrEqual(orderIndexItem{createDate: *f.EndDate}, visit)
	} else {
		idx.Ascend(visit)
	}
	return result, nil
}

// ListPendingOrdersBefore returns PENDING orders created before cutoff,
// oldest first.
func (s *Memory) ListPendingOrdersBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.CreateDate.Before(cutoff) {
			result = append(result, o.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Order) int {
		if c := a.CreateDate.Compare(b.CreateDate); c != 0 {
			return c
		}
		return strings.Compare(a.OrderID, b.OrderID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *Memory) Close() {}

// memTx stages writes until commit. Every row it touches is locked first;
// reads of a locked row see the staged version.
type memTx struct {
	store  *Memory
	held   map[string]struct{}
	assets map[string]*domain.Asset
	orders map[string]*domain.Order
	added  map[string]struct{}
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	if err := tx.store.locks.acquire(ctx, key, tx.store.lockTimeout); err != nil {
		return err
	}
	tx.held[key] = struct{}{}
	return nil
}

func (tx *memTx) releaseAll() {
	for key := range tx.held {
		tx.store.locks.release(key)
	}
	tx.held = nil
}

func (tx *memTx) GetAssetForUpdate(ctx context.Context, customerID, symbol string) (*domain.Asset, error) {
	key := domain.AssetKey(customerID, symbol)
	if err := tx.lock(ctx, key); err != nil {
		return nil, err
	}
	if a, ok := tx.assets[key]; ok {
		return a.Clone(), nil
	}
	return tx.store.GetAsset(ctx, customerID, symbol)
}

func (tx *memTx) SaveAsset(_ context.Context, a *domain.Asset) error {
	key := a.Key()
	if _, ok := tx.held[key]; !ok {
		return fmt.Errorf("save asset %s: row not locked", key)
	}
	if err := a.Check(); err != nil {
		return err
	}
	tx.assets[key] = a.Clone()
	return nil
}

func (tx *memTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := tx.lock(ctx, domain.OrderKey(orderID)); err != nil {
		return nil, err
	}
	if o, ok := tx.orders[orderID]; ok {
		return o.Clone(), nil
	}
	return tx.store.GetOrder(ctx, orderID)
}

func (tx *memTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	if err := tx.lock(ctx, o.Key()); err != nil {
		return err
	}
	if _, ok := tx.orders[o.OrderID]; ok {
		return fmt.Errorf("insert order %s: duplicate id", o.OrderID)
	}
	if _, err := tx.store.GetOrder(ctx, o.OrderID); err == nil {
		return fmt.Errorf("insert order %s: duplicate id", o.OrderID)
	}
	tx.orders[o.OrderID] = o.Clone()
	tx.added[o.OrderID] = struct{}{}
	return nil
}

func (tx *memTx) SaveOrder(_ context.Context, o *domain.Order) error {
	if _, ok := tx.held[o.Key()]; !ok {
		return fmt.Errorf("save order %s: row not locked", o.OrderID)
	}
	tx.orders[o.OrderID] = o.Clone()
	return nil
}

func (tx *memTx) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return tx.store.GetCustomer(ctx, customerID)
}
