package model

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrUnknownChannel   = errors.New("unknown notification channel")
	ErrInvalidInterval  = errors.New("monitoring interval must be positive")
)
