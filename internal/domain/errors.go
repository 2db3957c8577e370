package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateOrder   = errors.New("order already submitted (duplicate hash)")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrInvalidSignature = errors.New("invalid order signature")
	ErrOrderTerminal    = errors.New("order is in a terminal status")
	ErrMarketInactive   = errors.New("market is not active")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")
)
