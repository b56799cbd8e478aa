// Package memstore keeps stock, orders and catalog data in process memory. It backs the
// service tests and STORE_DRIVER=memory for local runs.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type product struct {
	orders.Product
	stock     int
	updatedAt time.Time
}

// Store implements inventory.Store, orders.Store, orders.Catalog and
// orders.SellerDirectory.
type Store struct {
	mu        sync.RWMutex
	products  map[string]*product
	sellers   map[string]orders.Seller
	ledger    map[string][]inventory.Entry
	orders    map[string]*orders.Order
	byExtID   map[string]string
	byNumber  map[string]string
	subOrders map[string]*orders.SubOrder
	subOrder  []string // insertion order
	now       func() time.Time
}

func New() *Store {
	return &Store{
		products:  map[string]*product{},
		sellers:   map[string]orders.Seller{},
		ledger:    map[string][]inventory.Entry{},
		orders:    map[string]*orders.Order{},
		byExtID:   map[string]string{},
		byNumber:  map[string]string{},
		subOrders: map[string]*orders.SubOrder{},
		now:       time.Now,
	}
}

// PutProduct registers a catalog product with its starting stock. It bypasses the ledger
// and is meant for seeding.
func (s *Store) PutProduct(p orders.Product, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &product{Product: p, stock: stock, updatedAt: s.now().UTC()}
}

func (s *Store) PutSeller(sl orders.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[sl.ID] = sl
}

// ---- catalog ----

func (s *Store) GetProduct(_ context.Context, id string) (orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, apperr.NotFound("product", id)
	}
	return p.Product, nil
}

func (s *Store) GetSeller(_ context.Context, id string) (orders.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sellers[id]
	if !ok {
		return orders.Seller{}, apperr.NotFound("seller", id)
	}
	return sl, nil
}

// ---- inventory ----

func (s *Store) Mutate(_ context.Context, ch inventory.Change) (inventory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[ch.ProductID]
	if !ok {
		return inventory.Entry{}, apperr.NotFound("product", ch.ProductID)
	}
	rec := p.record()
	next, err := inventory.Apply(rec, ch)
	if err != nil {
		return inventory.Entry{}, err
	}
	now := s.now()
	e := inventory.NewEntry(rec, ch, next, now)
	p.stock = next
	p.updatedAt = now.UTC()
	s.ledger[ch.ProductID] = append(s.ledger[ch.ProductID], e)
	return e, nil
}

func (s *Store) Get(_ context.Context, productID string) (inventory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return inventory.Record{}, apperr.NotFound("product", productID)
	}
	return p.record(), nil
}

// Entries returns the newest entries first.
func (s *Store) Entries(_ context.Context, productID string, limit int) ([]inventory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.products[productID]; !ok {
		return nil, apperr.NotFound("product", productID)
	}
	all := s.ledger[productID]
	out := make([]inventory.Entry, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (p *product) record() inventory.Record {
	return inventory.Record{ProductID: p.ID, SellerID: p.SellerID, QuantityOnHand: p.stock, UpdatedAt: p.updatedAt}
}

// ---- orders ----

func (s *Store) CreateOrder(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return apperr.ErrConflict
	}
	if _, ok := s.byNumber[o.Number]; ok {
		return apperr.ErrConflict
	}
	if o.ExternalID != "" {
		if _, ok := s.byExtID[o.ExternalID]; ok {
			return apperr.ErrConflict
		}
		s.byExtID[o.ExternalID] = o.ID
	}
	s.orders[o.ID] = clone(o)
	s.byNumber[o.Number] = o.ID
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return clone(o), nil
}

func (s *Store) GetOrderByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	s.mu.RLock()
	id, ok := s.byExtID[externalID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("order", externalID)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) TransitionOrder(_ context.Context, id string, t orders.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, apperr.NotFound("order", id)
	}
	if o.Status != t.From {
		return false, nil
	}
	o.Apply(t)
	return true, nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, statuses []orders.Status, limit int) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := map[orders.Status]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []orders.Order
	for _, o := range s.orders {
		if want[o.Status] {
			out = append(out, *clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountOrdersByStatus(context.Context) (map[orders.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[orders.Status]int64{}
	for _, o := range s.orders {
		out[o.Status]++
	}
	return out, nil
}

// ---- sub-orders ----

func (s *Store) CreateSubOrder(_ context.Context, so *orders.SubOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subOrders[so.Number]; ok {
		return apperr.ErrConflict
	}
	s.subOrders[so.Number] = clone(so)
	s.subOrder = append(s.subOrder, so.Number)
	return nil
}

func (s *Store) GetSubOrder(_ context.Context, number string) (*orders.SubOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	so, ok := s.subOrders[number]
	if !ok {
		return nil, apperr.NotFound("sub-order", number)
	}
	return clone(so), nil
}

func (s *Store) ListSubOrders(_ context.Context, parentNumber string) ([]orders.SubOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []orders.SubOrder
	for _, n := range s.subOrder {
		if so := s.subOrders[n]; so.ParentNumber == parentNumber {
			out = append(out, *clone(so))
		}
	}
	return out, nil
}

func (s *Store) TransitionSubOrder(_ context.Context, number string, t orders.SubOrderTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	so, ok := s.subOrders[number]
	if !ok {
		return false, apperr.NotFound("sub-order", number)
	}
	if so.Status != t.From {
		return false, nil
	}
	so.Apply(t)
	return true, nil
}

func (s *Store) ListSubOrdersByStatus(_ context.Context, statuses []orders.SubOrderStatus, limit int) ([]orders.SubOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := map[orders.SubOrderStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []orders.SubOrder
	for _, n := range s.subOrder {
		if so := s.subOrders[n]; want[so.Status] {
			out = append(out, *clone(so))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountSubOrdersByStatus(context.Context) (map[orders.SubOrderStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[orders.SubOrderStatus]int64{}
	for _, so := range s.subOrders {
		out[so.Status]++
	}
	return out, nil
}

// clone deep-copies through JSON so callers never share slices or maps with the store.
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

func (s *Store) ListProducts(context.Context) ([]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p.Product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}
