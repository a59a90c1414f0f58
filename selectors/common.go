package selectors

import "errors"

var (
	// ErrEngineClosed is returned when subscribing to or notifying an engine that was closed.
	ErrEngineClosed = errors.New("selector engine is closed")

	// ErrNilSelector is returned when a nil selector is supplied.
	ErrNilSelector = errors.New("selector must not be nil")

	// ErrNilComparison is returned when a nil comparison is supplied explicitly.
	ErrNilComparison = errors.New("comparison must not be nil")

	// ErrNilCallback is returned when a nil callback is supplied.
	ErrNilCallback = errors.New("callback must not be nil")

	// ErrSelectorFailed wraps errors returned by a selector.
	ErrSelectorFailed = errors.New("selector evaluation failed")

	// ErrSelectorPanicked is reported when a selector panics.
	ErrSelectorPanicked = errors.New("selector panicked")

	// ErrComparisonFailed is reported when a comparison panics.
	ErrComparisonFailed = errors.New("comparison failed")

	// ErrCallbackPanicked is reported when a subscription or group callback panics.
	ErrCallbackPanicked = errors.New("callback panicked")

	// ErrGroupClosed is returned when selecting into a group that was closed.
	ErrGroupClosed = errors.New("selection group is closed")
)
