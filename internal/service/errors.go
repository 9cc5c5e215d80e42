package service

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyCart         = errors.New("cart is empty")
	// ErrStoreUnavailable covers storage, catalog and event bus failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
