package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrCacheMiss     = errors.New("cache miss")
	ErrNoQuote       = errors.New("no quote available")
	ErrBrokerDown    = errors.New("broker unavailable")
)
