package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/code-payments/billing-bridge/billing"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]*billing.CatalogEntry
	purchases map[string]*billing.Purchase
}

// NewInMemory returns a store that serves as both the catalog and purchase
// cache of a session.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		entries:   map[string]*billing.CatalogEntry{},
		purchases: map[string]*billing.Purchase{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*billing.CatalogEntry)
	s.purchases = make(map[string]*billing.Purchase)
}

func (s *InMemoryStore) PutEntry(_ context.Context, entry *billing.CatalogEntry) error {
	if entry == nil || entry.ID == "" {
		return billing.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ID] = entry.Clone()
	return nil
}

func (s *InMemoryStore) GetEntry(_ context.Context, productID string) (*billing.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[productID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return entry.Clone(), nil
}

func (s *InMemoryStore) ListEntries(_ context.Context) ([]*billing.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*billing.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		res = append(res, entry.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *InMemoryStore) PutPurchase(_ context.Context, purchase *billing.Purchase) error {
	if purchase == nil || purchase.ProductID == "" {
		return billing.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purchases[purchase.ProductID] = purchase.Clone()
	return nil
}

func (s *InMemoryStore) GetPurchase(_ context.Context, productID string) (*billing.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[productID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return purchase.Clone(), nil
}

func (s *InMemoryStore) ListPurchases(_ context.Context) ([]*billing.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*billing.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		res = append(res, purchase.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProductID < res[j].ProductID })
	return res, nil
}

func (s *InMemoryStore) MarkAcknowledged(_ context.Context, productID, purchaseToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[productID]
	if !ok || purchase.PurchaseToken != purchaseToken {
		return billing.ErrNotFound
	}
	purchase.Acknowledged = true
	return nil
}

func (s *InMemoryStore) MarkConsumed(_ context.Context, productID, purchaseToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[productID]
	if !ok || purchase.PurchaseToken != purchaseToken {
		return billing.ErrNotFound
	}
	purchase.Consumed = true
	return nil
}
