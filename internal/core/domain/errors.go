package domain

import "errors"

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDiscoveryUnavailable = errors.New("source discovery unavailable")
	ErrReceiverUnavailable  = errors.New("receiver unavailable")
	ErrPlayerClosed         = errors.New("player closed")
	ErrSourceNotFound       = errors.New("source not found")
	ErrSubscriptionClosed   = errors.New("subscription closed")
)
