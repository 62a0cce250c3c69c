// Package storage defines the errors shared by the concrete stores.
package storage

import "errors"

var (
	ErrListingNotFound  = errors.New("listing not found")
	ErrProgressNotFound = errors.New("pass progress not found")
)
