package bridge

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/event"
)

const (
	CommandAcknowledge              = "acknowledge"
	CommandConsume                  = "consume"
	CommandLoadProducts             = "loadProducts"
	CommandPurchase                 = "purchase"
	CommandRestore                  = "restore"
	CommandManage                   = "manage"
	CommandSubscribeProductLoaded   = "subscribeProductLoaded"
	CommandSubscribePurchaseUpdated = "subscribePurchaseUpdated"
)

// Request is a decoded host command.
type Request interface {
	Command() string
}

type AcknowledgeRequest struct {
	ProductID string
}

type ConsumeRequest struct {
	ProductID string
}

type LoadProductsRequest struct {
	ProductIDs []string
	Kind       billing.ProductKind
}

type PurchaseRequest struct {
	ProductID string
}

type RestoreRequest struct{}

type ManageRequest struct{}

type SubscribeProductLoadedRequest struct{}

type SubscribePurchaseUpdatedRequest struct{}

func (AcknowledgeRequest) Command() string              { return CommandAcknowledge }
func (ConsumeRequest) Command() string                  { return CommandConsume }
func (LoadProductsRequest) Command() string             { return CommandLoadProducts }
func (PurchaseRequest) Command() string                 { return CommandPurchase }
func (RestoreRequest) Command() string                  { return CommandRestore }
func (ManageRequest) Command() string                   { return CommandManage }
func (SubscribeProductLoadedRequest) Command() string   { return CommandSubscribeProductLoaded }
func (SubscribePurchaseUpdatedRequest) Command() string { return CommandSubscribePurchaseUpdated }

// DecodeCommand converts a host command name and its positional arguments into
// a typed Request.
func DecodeCommand(name string, args *structpb.ListValue) (Request, error) {
	switch name {
	case CommandAcknowledge:
		id, err := productIDArg(args, 0)
		if err != nil {
			return nil, err
		}
		return AcknowledgeRequest{ProductID: id}, nil

	case CommandConsume:
		id, err := productIDArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ConsumeRequest{ProductID: id}, nil

	case CommandPurchase:
		id, err := productIDArg(args, 0)
		if err != nil {
			return nil, err
		}
		return PurchaseRequest{ProductID: id}, nil

	case CommandLoadProducts:
		ids, err := productIDListArg(args, 0)
		if err != nil {
			return nil, err
		}
		rawKind, err := stringArg(args, 1)
		if err != nil {
			return nil, err
		}
		kind, ok := billing.ParseProductKind(rawKind)
		if !ok {
			return nil, errors.Wrapf(ErrMalformedRequest, "unrecognized product kind %q", rawKind)
		}
		return LoadProductsRequest{ProductIDs: ids, Kind: kind}, nil

	case CommandRestore:
		return RestoreRequest{}, nil
	case CommandManage:
		return ManageRequest{}, nil
	case CommandSubscribeProductLoaded:
		return SubscribeProductLoadedRequest{}, nil
	case CommandSubscribePurchaseUpdated:
		return SubscribePurchaseUpdatedRequest{}, nil

	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
}

// Reply receives responses for a dispatched command. One-shot commands reply
// at most once; subscriptions reply once per event. A nil value with a nil
// error is a bare success.
type Reply func(value *structpb.Value, err error)

// Dispatch decodes a host command and routes it to the session. Unknown
// commands always receive an error; malformed arguments are dropped unless the
// session is in strict mode.
func (s *Session) Dispatch(name string, args *structpb.ListValue, reply Reply) {
	if reply == nil {
		reply = func(*structpb.Value, error) {}
	}

	req, err := DecodeCommand(name, args)
	if errors.Is(err, ErrUnknownCommand) {
		reply(nil, err)
		return
	} else if err != nil {
		s.reject(name, err, func(err error) { reply(nil, err) })
		return
	}

	s.Handle(req, reply)
}

// Handle routes an already decoded request.
func (s *Session) Handle(req Request, reply Reply) {
	switch r := req.(type) {
	case AcknowledgeRequest:
		s.Acknowledge(r.ProductID, func(err error) { reply(nil, err) })
	case ConsumeRequest:
		s.Consume(r.ProductID, func(token string, err error) {
			if err != nil {
				reply(nil, err)
				return
			}
			reply(structpb.NewStringValue(token), nil)
		})
	case LoadProductsRequest:
		s.LoadProducts(r.ProductIDs, r.Kind, valueCallback[*ProductResponse](s.log, reply))
	case PurchaseRequest:
		s.Purchase(r.ProductID, valueCallback[*PurchaseResponse](s.log, reply))
	case RestoreRequest:
		s.Restore()
	case ManageRequest:
		s.Manage(func(err error) { reply(nil, err) })
	case SubscribeProductLoadedRequest:
		s.SubscribeProductLoaded(valueHandler[*ProductResponse](s.log, reply))
	case SubscribePurchaseUpdatedRequest:
		s.SubscribePurchaseUpdated(valueHandler[*PurchaseResponse](s.log, reply))
	default:
		reply(nil, errors.Wrapf(ErrUnknownCommand, "%T", req))
	}
}

type valuer interface {
	ToValue() (*structpb.Value, error)
}

func valueCallback[T valuer](log *zap.Logger, reply Reply) event.Callback[T] {
	return func(resp T, err error) {
		if err != nil {
			reply(nil, err)
			return
		}
		val, err := resp.ToValue()
		if err != nil {
			log.Warn("Failed to encode response", zap.Error(err))
			reply(nil, err)
			return
		}
		reply(val, nil)
	}
}

func valueHandler[T valuer](log *zap.Logger, reply Reply) event.Handler[T] {
	return event.HandlerFunc[T](func(resp T) {
		val, err := resp.ToValue()
		if err != nil {
			log.Warn("Failed to encode event", zap.Error(err))
			return
		}
		reply(val, nil)
	})
}

func arg(args *structpb.ListValue, i int) (*structpb.Value, error) {
	values := args.GetValues()
	if i >= len(values) {
		return nil, errors.Wrapf(ErrMalformedRequest, "missing argument %d", i)
	}
	return values[i], nil
}

func stringArg(args *structpb.ListValue, i int) (string, error) {
	v, err := arg(args, i)
	if err != nil {
		return "", err
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", errors.Wrapf(ErrMalformedRequest, "argument %d is not a string", i)
	}
	return sv.StringValue, nil
}

func productIDArg(args *structpb.ListValue, i int) (string, error) {
	id, err := stringArg(args, i)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.Wrapf(ErrMalformedRequest, "argument %d is an empty product id", i)
	}
	return id, nil
}

func productIDListArg(args *structpb.ListValue, i int) ([]string, error) {
	v, err := arg(args, i)
	if err != nil {
		return nil, err
	}
	lv, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedRequest, "argument %d is not a list", i)
	}

	items := lv.ListValue.GetValues()
	if len(items) == 0 {
		return nil, errors.Wrapf(ErrMalformedRequest, "argument %d is an empty list", i)
	}

	ids := make([]string, 0, len(items))
	for j, item := range items {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok || sv.StringValue == "" {
			return nil, errors.Wrapf(ErrMalformedRequest, "argument %d item %d is not a product id", i, j)
		}
		ids = append(ids, sv.StringValue)
	}
	return ids, nil
}
