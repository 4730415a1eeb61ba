package billing

import (
	"fmt"
	"strings"
)

type ProductKind uint8

const (
	KindUnknown ProductKind = iota
	KindOneTime
	KindSubscription
)

// ParseProductKind maps the provider's product type string ("inapp" or "subs",
// case-insensitive) to a ProductKind.
func ParseProductKind(s string) (ProductKind, bool) {
	switch strings.ToLower(s) {
	case "inapp":
		return KindOneTime, true
	case "subs":
		return KindSubscription, true
	default:
		return KindUnknown, false
	}
}

func (k ProductKind) Valid() bool {
	return k == KindOneTime || k == KindSubscription
}

func (k ProductKind) String() string {
	switch k {
	case KindOneTime:
		return "inapp"
	case KindSubscription:
		return "subs"
	default:
		return "unknown"
	}
}

// PurchaseState values match the provider's wire encoding.
type PurchaseState uint8

const (
	StateUnspecified PurchaseState = iota
	StatePurchased
	StatePending
)

func (s PurchaseState) String() string {
	switch s {
	case StatePurchased:
		return "purchased"
	case StatePending:
		return "pending"
	default:
		return "unspecified"
	}
}

// Lifecycle is the locally observed progression of a single product's
// purchase record.
type Lifecycle uint8

const (
	LifecycleUnknown Lifecycle = iota
	LifecyclePending
	LifecyclePurchased
	LifecycleAcknowledged
	LifecycleConsumed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "pending"
	case LifecyclePurchased:
		return "purchased"
	case LifecycleAcknowledged:
		return "acknowledged"
	case LifecycleConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

type CatalogEntry struct {
	ID          string
	Title       string
	Description string

	// Price is already formatted for display by the provider.
	Price             string
	PriceAmountMicros int64

	IntroductoryPrice       string
	IntroductoryPriceMicros int64
}

func (e *CatalogEntry) Clone() *CatalogEntry {
	cloned := *e
	return &cloned
}

type Purchase struct {
	ProductID     string
	OrderID       string
	PackageName   string
	PurchaseToken string
	Acknowledged  bool
	State         PurchaseState

	// Consumed is set locally after a successful consume call. The provider
	// never reports it.
	Consumed bool
}

func (p *Purchase) Clone() *Purchase {
	cloned := *p
	return &cloned
}

func (p *Purchase) Lifecycle() Lifecycle {
	switch {
	case p.Consumed:
		return LifecycleConsumed
	case p.Acknowledged:
		return LifecycleAcknowledged
	case p.State == StatePurchased:
		return LifecyclePurchased
	case p.State == StatePending:
		return LifecyclePending
	default:
		return LifecycleUnknown
	}
}

// PurchaseUpdate is a single batch delivered on the provider's purchase
// update stream.
type PurchaseUpdate struct {
	Code      ResultCode
	Purchases []*Purchase
}

// ResultCode is the provider's opaque response code. Only ResultOK has meaning
// to this module; every other value is passed through to callers unchanged.
type ResultCode int

const (
	ResultServiceTimeout      ResultCode = -3
	ResultFeatureNotSupported ResultCode = -2
	ResultServiceDisconnected ResultCode = -1
	ResultOK                  ResultCode = 0
	ResultUserCanceled        ResultCode = 1
	ResultServiceUnavailable  ResultCode = 2
	ResultBillingUnavailable  ResultCode = 3
	ResultItemUnavailable     ResultCode = 4
	ResultDeveloperError      ResultCode = 5
	ResultError               ResultCode = 6
	ResultItemAlreadyOwned    ResultCode = 7
	ResultItemNotOwned        ResultCode = 8
)

var resultCodeNames = map[ResultCode]string{
	ResultServiceTimeout:      "SERVICE_TIMEOUT",
	ResultFeatureNotSupported: "FEATURE_NOT_SUPPORTED",
	ResultServiceDisconnected: "SERVICE_DISCONNECTED",
	ResultOK:                  "OK",
	ResultUserCanceled:        "USER_CANCELED",
	ResultServiceUnavailable:  "SERVICE_UNAVAILABLE",
	ResultBillingUnavailable:  "BILLING_UNAVAILABLE",
	ResultItemUnavailable:     "ITEM_UNAVAILABLE",
	ResultDeveloperError:      "DEVELOPER_ERROR",
	ResultError:               "ERROR",
	ResultItemAlreadyOwned:    "ITEM_ALREADY_OWNED",
	ResultItemNotOwned:        "ITEM_NOT_OWNED",
}

func (c ResultCode) OK() bool {
	return c == ResultOK
}

func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// ProviderError carries a non-OK provider result code to a one-shot callback.
type ProviderError struct {
	Code ResultCode
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing provider returned %s", e.Code)
}

func NewProviderError(code ResultCode) error {
	return &ProviderError{Code: code}
}
