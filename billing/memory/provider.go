package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/code-payments/billing-bridge/billing"
)

const updateBufferSize = 64

type Op uint8

const (
	OpConnect Op = iota
	OpQueryCatalog
	OpQueryOwned
	OpBeginPurchaseFlow
	OpAcknowledge
	OpConsume
	OpManage
)

// Provider is a scriptable, in-memory billing provider. Result codes can be
// forced per operation, calls can be held to simulate responses that arrive
// later, and purchase updates can be published at any time.
type Provider struct {
	mu sync.Mutex

	packageName string
	catalog     map[billing.ProductKind]map[string]*billing.CatalogEntry
	owned       map[billing.ProductKind][]*billing.Purchase

	results map[Op]billing.ResultCode
	calls   map[Op]int

	// completionState is the state of the purchase published after a
	// successful purchase flow launch. StateUnspecified disables completion.
	completionState billing.PurchaseState

	gate chan struct{}

	closed  bool
	updates chan billing.PurchaseUpdate
}

func NewProvider(packageName string) *Provider {
	return &Provider{
		packageName: packageName,
		catalog: map[billing.ProductKind]map[string]*billing.CatalogEntry{
			billing.KindOneTime:      {},
			billing.KindSubscription: {},
		},
		owned:           map[billing.ProductKind][]*billing.Purchase{},
		results:         map[Op]billing.ResultCode{},
		calls:           map[Op]int{},
		completionState: billing.StatePurchased,
		updates:         make(chan billing.PurchaseUpdate, updateBufferSize),
	}
}

func (p *Provider) AddProduct(kind billing.ProductKind, entry *billing.CatalogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.catalog[kind][entry.ID] = entry.Clone()
}

func (p *Provider) AddOwnedPurchase(kind billing.ProductKind, purchase *billing.Purchase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.owned[kind] = append(p.owned[kind], purchase.Clone())
}

// SetResult forces op to return code. ResultOK restores normal behaviour.
func (p *Provider) SetResult(op Op, code billing.ResultCode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.results[op] = code
}

// SetCompletionState sets the state of purchases published after a successful
// purchase flow. StateUnspecified stops the provider from publishing anything.
func (p *Provider) SetCompletionState(state billing.PurchaseState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completionState = state
}

func (p *Provider) Calls(op Op) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls[op]
}

// Hold blocks every subsequent provider call until Release is called.
func (p *Provider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gate == nil {
		p.gate = make(chan struct{})
	}
}

func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Publish delivers a batch on the purchase update stream.
func (p *Provider) Publish(code billing.ResultCode, purchases ...*billing.Purchase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.publishLocked(code, purchases)
}

func (p *Provider) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.catalog = map[billing.ProductKind]map[string]*billing.CatalogEntry{
		billing.KindOneTime:      {},
		billing.KindSubscription: {},
	}
	p.owned = map[billing.ProductKind][]*billing.Purchase{}
	p.results = map[Op]billing.ResultCode{}
	p.calls = map[Op]int{}
	p.completionState = billing.StatePurchased

	if p.closed {
		return
	}
	for {
		select {
		case <-p.updates:
		default:
			return
		}
	}
}

func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.updates)
}

func (p *Provider) Connect(ctx context.Context) billing.ResultCode {
	code, unlock := p.begin(ctx, OpConnect)
	unlock()
	return code
}

func (p *Provider) QueryCatalog(ctx context.Context, ids []string, kind billing.ProductKind) (billing.ResultCode, []*billing.CatalogEntry) {
	code, unlock := p.begin(ctx, OpQueryCatalog)
	defer unlock()
	if !code.OK() {
		return code, nil
	}

	var res []*billing.CatalogEntry
	for _, id := range ids {
		if entry, ok := p.catalog[kind][id]; ok {
			res = append(res, entry.Clone())
		}
	}
	return billing.ResultOK, res
}

func (p *Provider) QueryOwnedPurchases(ctx context.Context, kind billing.ProductKind) (billing.ResultCode, []*billing.Purchase) {
	code, unlock := p.begin(ctx, OpQueryOwned)
	defer unlock()
	if !code.OK() {
		return code, nil
	}

	res := make([]*billing.Purchase, 0, len(p.owned[kind]))
	for _, purchase := range p.owned[kind] {
		res = append(res, purchase.Clone())
	}
	return billing.ResultOK, res
}

func (p *Provider) BeginPurchaseFlow(ctx context.Context, entry *billing.CatalogEntry) billing.ResultCode {
	code, unlock := p.begin(ctx, OpBeginPurchaseFlow)
	defer unlock()
	if !code.OK() {
		return code
	}

	if p.completionState == billing.StateUnspecified {
		return billing.ResultOK
	}

	kind := billing.KindOneTime
	if _, ok := p.catalog[billing.KindSubscription][entry.ID]; ok {
		kind = billing.KindSubscription
	}

	purchase := &billing.Purchase{
		ProductID:     entry.ID,
		OrderID:       "GPA." + strings.ToUpper(uuid.NewString()[:18]),
		PackageName:   p.packageName,
		PurchaseToken: uuid.NewString(),
		State:         p.completionState,
	}
	p.owned[kind] = append(p.owned[kind], purchase.Clone())
	p.publishLocked(billing.ResultOK, []*billing.Purchase{purchase})

	return billing.ResultOK
}

func (p *Provider) Acknowledge(ctx context.Context, purchaseToken string) billing.ResultCode {
	code, unlock := p.begin(ctx, OpAcknowledge)
	defer unlock()
	if !code.OK() {
		return code
	}

	purchase := p.findOwnedLocked(purchaseToken)
	if purchase == nil {
		return billing.ResultItemNotOwned
	}
	purchase.Acknowledged = true
	return billing.ResultOK
}

func (p *Provider) Consume(ctx context.Context, purchaseToken string) (billing.ResultCode, string) {
	code, unlock := p.begin(ctx, OpConsume)
	defer unlock()
	if !code.OK() {
		return code, ""
	}

	for kind, purchases := range p.owned {
		for i, purchase := range purchases {
			if purchase.PurchaseToken == purchaseToken {
				p.owned[kind] = append(purchases[:i:i], purchases[i+1:]...)
				return billing.ResultOK, purchaseToken
			}
		}
	}
	return billing.ResultItemNotOwned, ""
}

func (p *Provider) ManageSubscriptions(ctx context.Context) billing.ResultCode {
	code, unlock := p.begin(ctx, OpManage)
	unlock()
	return code
}

func (p *Provider) PurchaseUpdates() <-chan billing.PurchaseUpdate {
	return p.updates
}

// begin records the call, waits on the hold gate and returns the forced result
// for op. When the result is OK the provider lock is still held; the returned
// func releases it and is a no-op otherwise.
func (p *Provider) begin(ctx context.Context, op Op) (billing.ResultCode, func()) {
	p.mu.Lock()
	p.calls[op]++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return billing.ResultServiceTimeout, func() {}
		}
	}

	p.mu.Lock()
	if code := p.results[op]; !code.OK() {
		p.mu.Unlock()
		return code, func() {}
	}
	return billing.ResultOK, p.mu.Unlock
}

func (p *Provider) findOwnedLocked(purchaseToken string) *billing.Purchase {
	for _, purchases := range p.owned {
		for _, purchase := range purchases {
			if purchase.PurchaseToken == purchaseToken {
				return purchase
			}
		}
	}
	return nil
}

func (p *Provider) publishLocked(code billing.ResultCode, purchases []*billing.Purchase) {
	if p.closed {
		return
	}

	batch := billing.PurchaseUpdate{Code: code}
	for _, purchase := range purchases {
		batch.Purchases = append(batch.Purchases, purchase.Clone())
	}
	p.updates <- batch
}
