package bridge

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/billing-bridge/billing"
)

const microsExponent = -6

type ProductResponse struct {
	ID          string
	Description string
	Price       string
	Title       string

	// IntroductoryPrice and IntroductoryPriceAmount are only reported when the
	// provider returned an introductory price.
	IntroductoryPrice       string
	IntroductoryPriceAmount *int64

	// PriceDecimal is the price amount in currency units, empty when the
	// provider didn't report micros.
	PriceDecimal string
}

type Receipt struct {
	Acknowledged  bool
	OrderID       string
	PackageName   string
	PurchaseToken string
}

type PurchaseResponse struct {
	ID       string
	Platform string
	State    billing.PurchaseState
	Receipt  Receipt
}

func FormatProduct(entry *billing.CatalogEntry) (*ProductResponse, error) {
	if entry == nil {
		return nil, errors.Wrap(ErrMalformedPayload, "nil catalog entry")
	}
	if entry.ID == "" {
		return nil, errors.Wrapf(ErrMalformedPayload, "catalog entry %q has no product id", entry.Title)
	}

	resp := &ProductResponse{
		ID:          entry.ID,
		Description: entry.Description,
		Price:       entry.Price,
		Title:       entry.Title,
	}

	if entry.IntroductoryPrice != "" {
		amount := entry.IntroductoryPriceMicros
		resp.IntroductoryPrice = entry.IntroductoryPrice
		resp.IntroductoryPriceAmount = &amount
	}

	if entry.PriceAmountMicros > 0 {
		resp.PriceDecimal = decimal.New(entry.PriceAmountMicros, microsExponent).String()
	}

	return resp, nil
}

func FormatPurchase(purchase *billing.Purchase, platform string) (*PurchaseResponse, error) {
	if purchase == nil {
		return nil, errors.Wrap(ErrMalformedPayload, "nil purchase")
	}
	if purchase.ProductID == "" {
		return nil, errors.Wrapf(ErrMalformedPayload, "purchase %q has no product id", purchase.OrderID)
	}
	if purchase.PurchaseToken == "" {
		return nil, errors.Wrapf(ErrMalformedPayload, "purchase of %q has no purchase token", purchase.ProductID)
	}

	return &PurchaseResponse{
		ID:       purchase.ProductID,
		Platform: platform,
		State:    purchase.State,
		Receipt: Receipt{
			Acknowledged:  purchase.Acknowledged,
			OrderID:       purchase.OrderID,
			PackageName:   purchase.PackageName,
			PurchaseToken: purchase.PurchaseToken,
		},
	}, nil
}

// ToValue converts the response into the host wire shape.
func (r *ProductResponse) ToValue() (*structpb.Value, error) {
	fields := map[string]any{
		"id":          r.ID,
		"description": r.Description,
		"price":       r.Price,
		"title":       r.Title,
	}
	if r.IntroductoryPrice != "" {
		fields["introductoryPrice"] = r.IntroductoryPrice
	}
	if r.IntroductoryPriceAmount != nil {
		fields["introductoryPriceAmount"] = *r.IntroductoryPriceAmount
	}
	if r.PriceDecimal != "" {
		fields["priceDecimal"] = r.PriceDecimal
	}
	return structpb.NewValue(fields)
}

// ToValue converts the response into the host wire shape.
func (r *PurchaseResponse) ToValue() (*structpb.Value, error) {
	return structpb.NewValue(map[string]any{
		"id":       r.ID,
		"platform": r.Platform,
		"state":    int64(r.State),
		"receipt": map[string]any{
			"acknowledged":  r.Receipt.Acknowledged,
			"orderId":       r.Receipt.OrderID,
			"packageName":   r.Receipt.PackageName,
			"purchaseToken": r.Receipt.PurchaseToken,
		},
	})
}
