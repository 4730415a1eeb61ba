package bridge

import "github.com/pkg/errors"

var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrMalformedPayload = errors.New("malformed provider payload")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnknownProduct   = errors.New("product has not been loaded")
	ErrUnknownPurchase  = errors.New("purchase has not been observed")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAlreadyRunning   = errors.New("session is already running")
)
