package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/service/order/domain"
)

// MemoryStore 是进程内实现，用于 storage.driver=memory 和测试。
// InTx 持有全局锁，失败时恢复进入事务前的快照。
type MemoryStore struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	producers map[string]domain.Producer
	orders    map[string]*domain.Order
	tokens    map[string]string // token -> order id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]domain.Product),
		producers: make(map[string]domain.Producer),
		orders:    make(map[string]*domain.Order),
		tokens:    make(map[string]string),
	}
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx domain.CheckoutTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := make(map[string]int, len(s.products))
	for id, p := range s.products {
		stock[id] = p.Stock
	}
	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		for id, qty := range stock {
			p := s.products[id]
			p.Stock = qty
			s.products[id] = p
		}
		for _, id := range tx.inserted {
			delete(s.tokens, s.orders[id].TrackingToken)
			delete(s.orders, id)
		}
		return err
	}
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	inserted []string
}

func (t *memoryTx) LockProducts(_ context.Context, productIDs []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := t.store.products[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (t *memoryTx) DecrementStock(_ context.Context, productID string, quantity int) error {
	p, ok := t.store.products[productID]
	if !ok || !p.Active || p.Stock < quantity {
		return &domain.OutOfStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	t.store.products[productID] = p
	return nil
}

func (t *memoryTx) InsertOrder(_ context.Context, order *domain.Order) error {
	if _, taken := t.store.tokens[order.TrackingToken]; taken {
		return domain.ErrDuplicateToken
	}
	t.store.orders[order.ID] = cloneOrder(order)
	t.store.tokens[order.TrackingToken] = order.ID
	t.inserted = append(t.inserted, order.ID)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) FindByTrackingToken(_ context.Context, token string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to domain.State, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (s *MemoryStore) ListCreatedSince(_ context.Context, since time.Time, limit int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if !o.CreatedAt.Before(since) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListMissingTrackingToken(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.TrackingToken == "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryStore) SetTrackingToken(_ context.Context, id, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.TrackingToken != "" {
		return false, nil
	}
	if _, taken := s.tokens[token]; taken {
		return false, domain.ErrDuplicateToken
	}
	o.TrackingToken = token
	s.tokens[token] = id
	return true, nil
}

func (s *MemoryStore) FindProducers(_ context.Context, ids []string) (map[string]domain.Producer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Producer, len(ids))
	for _, id := range ids {
		if p, ok := s.producers[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) FindProducts(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertCatalog(_ context.Context, producers []domain.Producer, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range producers {
		s.producers[p.ID] = p
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

// PutLegacyOrder 写入一条没有追踪码的历史订单，只用于回填测试
func (s *MemoryStore) PutLegacyOrder(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneOrder(o)
	cp.TrackingToken = ""
	s.orders[cp.ID] = cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}
