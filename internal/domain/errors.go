package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStaleCache    = errors.New("cache entry is stale")
	ErrTradingPaused = errors.New("trading paused by risk manager")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidMarket = errors.New("market violates price invariant")
	ErrContextDone   = errors.New("context cancelled")
)
