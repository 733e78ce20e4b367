package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientQty   = errors.New("insufficient position quantity")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrUnknownTier       = errors.New("unknown information tier")
)
