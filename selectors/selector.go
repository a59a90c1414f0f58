package selectors

import (
	"errors"
	"fmt"
)

// Selector projects a snapshot onto a derived value. It must be pure with respect to the snapshot:
// called twice on the same snapshot instance, it must return equal values.
// A returned error is reported to the subscriber, it never goes unnoticed.
type Selector[S, V any] func(snapshot S) (V, error)

// Comparison decides whether two selected values are semantically equal.
type Comparison[V any] func(a, b V) bool

// Pure lifts an infallible projection into a Selector.
func Pure[S, V any](project func(snapshot S) V) Selector[S, V] {
	if project == nil {
		return nil
	}

	return func(snapshot S) (V, error) {
		return project(snapshot), nil
	}
}

// evaluate runs the selector and turns panics into errors.
func (s Selector[S, V]) evaluate(snapshot S) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrSelectorFailed, fmt.Errorf("%w: %v", ErrSelectorPanicked, r))
		}
	}()

	value, err = s(snapshot)
	if err != nil {
		return value, errors.Join(ErrSelectorFailed, err)
	}

	return value, nil
}

// equal runs the comparison and turns panics into errors.
func (c Comparison[V]) equal(a, b V) (equal bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrComparisonFailed, r)
		}
	}()

	return c(a, b), nil
}
