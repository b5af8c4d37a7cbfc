package repository

import "errors"

var (
	// ErrWatchRuleNotFound is returned when no rule has the requested ID.
	ErrWatchRuleNotFound = errors.New("watch rule not found")
	// ErrWatchRuleNotActive is returned when a transition targets a rule
	// that has already ended or expired.
	ErrWatchRuleNotActive = errors.New("watch rule is not active")
	// ErrCatalogEntryNotFound is returned for unknown persons or vehicles.
	ErrCatalogEntryNotFound = errors.New("catalog entry not found")
)
