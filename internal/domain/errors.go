// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrBudgetExceeded indicates a session ledger cannot afford the requested spend.
var ErrBudgetExceeded = errors.New("budget exceeded")
