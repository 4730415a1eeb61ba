package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/billing/memory"
)

// Fixture seeds a memory provider.
//
//	products:
//	  - id: coins_100
//	    kind: inapp
//	    title: 100 Coins
//	    price: $0.99
//	    price_micros: 990000
//	owned:
//	  - product_id: premium
//	    kind: subs
//	    token: abc
//	    state: 1
type Fixture struct {
	Products []FixtureProduct  `yaml:"products"`
	Owned    []FixturePurchase `yaml:"owned"`

	// Results forces a result code per provider operation, keyed by the
	// operation name (connect, query_catalog, query_owned, purchase,
	// acknowledge, consume, manage).
	Results map[string]int `yaml:"results"`

	// CompletionState is the state of purchases published after a purchase
	// flow; 0 disables completion.
	CompletionState *int `yaml:"completion_state"`
}

type FixtureProduct struct {
	ID               string `yaml:"id"`
	Kind             string `yaml:"kind"`
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	Price            string `yaml:"price"`
	PriceMicros      int64  `yaml:"price_micros"`
	IntroPrice       string `yaml:"intro_price"`
	IntroPriceMicros int64  `yaml:"intro_price_micros"`
}

type FixturePurchase struct {
	ProductID    string `yaml:"product_id"`
	Kind         string `yaml:"kind"`
	OrderID      string `yaml:"order_id"`
	Token        string `yaml:"token"`
	State        int    `yaml:"state"`
	Acknowledged bool   `yaml:"acknowledged"`
}

var fixtureOps = map[string]memory.Op{
	"connect":       memory.OpConnect,
	"query_catalog": memory.OpQueryCatalog,
	"query_owned":   memory.OpQueryOwned,
	"purchase":      memory.OpBeginPurchaseFlow,
	"acknowledge":   memory.OpAcknowledge,
	"consume":       memory.OpConsume,
	"manage":        memory.OpManage,
}

func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read fixture")
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse fixture")
	}
	return &f, nil
}

// Apply seeds p with the fixture's catalog, owned purchases and results.
func (f *Fixture) Apply(p *memory.Provider, packageName string) error {
	for _, product := range f.Products {
		kind, ok := billing.ParseProductKind(product.Kind)
		if !ok {
			return errors.Errorf("product %q: unknown kind %q", product.ID, product.Kind)
		}
		p.AddProduct(kind, &billing.CatalogEntry{
			ID:                      product.ID,
			Title:                   product.Title,
			Description:             product.Description,
			Price:                   product.Price,
			PriceAmountMicros:       product.PriceMicros,
			IntroductoryPrice:       product.IntroPrice,
			IntroductoryPriceMicros: product.IntroPriceMicros,
		})
	}

	for _, owned := range f.Owned {
		kind, ok := billing.ParseProductKind(owned.Kind)
		if !ok {
			return errors.Errorf("owned purchase %q: unknown kind %q", owned.ProductID, owned.Kind)
		}
		p.AddOwnedPurchase(kind, &billing.Purchase{
			ProductID:     owned.ProductID,
			OrderID:       owned.OrderID,
			PackageName:   packageName,
			PurchaseToken: owned.Token,
			Acknowledged:  owned.Acknowledged,
			State:         billing.PurchaseState(owned.State),
		})
	}

	for name, code := range f.Results {
		op, ok := fixtureOps[name]
		if !ok {
			return errors.Errorf("unknown provider operation %q", name)
		}
		p.SetResult(op, billing.ResultCode(code))
	}

	if f.CompletionState != nil {
		p.SetCompletionState(billing.PurchaseState(*f.CompletionState))
	}
	return nil
}
