package core

import "errors"

var (
	// ErrNoData means the snapshot feed produced zero months for the
	// subject/source. Fatal to that view's rendering, not retried.
	ErrNoData = errors.New("no period data available")

	// ErrInvalidRange means a pending range failed ordering or membership
	// validation on apply. The previously applied range stays in effect;
	// ranges are never silently clamped.
	ErrInvalidRange = errors.New("invalid month range")

	// ErrAllocationUnavailable is non-fatal: the resolver degrades to the
	// synthesized fallback slice instead of surfacing it.
	ErrAllocationUnavailable = errors.New("allocation breakdown unavailable")

	// ErrStaleResponse marks a refresh whose result arrived after a newer
	// refresh was issued. Control flow only, never user-visible.
	ErrStaleResponse = errors.New("stale refresh result discarded")
)

// IsStale reports whether err is a superseded-refresh discard.
func IsStale(err error) bool { return errors.Is(err, ErrStaleResponse) }
