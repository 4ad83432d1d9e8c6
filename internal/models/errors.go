package models

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("models: no matching record found")
	ErrConnection       = errors.New("billing provider connection failed")
	ErrCatalogLoad      = errors.New("catalog load failed")
	ErrProductNotFound  = errors.New("product not found")
	ErrUserCancelled    = errors.New("purchase cancelled by user")
	ErrNetwork          = errors.New("network error")
	ErrLedger           = errors.New("ledger grant failed")
	ErrSessionNotFound  = errors.New("no active purchase session")
	ErrInvalidPlatform  = errors.New("invalid platform")
	ErrInvalidProductID = errors.New("invalid product id")
)
