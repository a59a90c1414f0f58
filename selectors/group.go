package selectors

import (
	"sync"
	"sync/atomic"
)

// groupState is what registrations of one group share with the dispatcher.
type groupState struct {
	active   atomic.Bool
	callback func()
}

// Group batches several selections behind a single callback, like a UI component that reads
// several selectors but must re-render only once per change: in each notification pass, the
// callback fires at most once, no matter how many of the group's selections changed.
type Group[S any] struct {
	engine  *Engine[S]
	state   *groupState
	mu      sync.Mutex
	members []*registration[S]
}

// Selection holds the last-known value of one selector inside a Group.
type Selection[V any] struct {
	mu    sync.RWMutex
	value V
}

// Get returns the last-known value. Inside the group callback it reflects the pass being delivered.
func (s *Selection[V]) Get() V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value
}

func (s *Selection[V]) set(value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
}

// NewGroup creates an empty group on engine.
func NewGroup[S any](engine *Engine[S], callback func()) (*Group[S], error) {
	if callback == nil {
		return nil, ErrNilCallback
	}

	state := &groupState{callback: callback}
	state.active.Store(true)

	return &Group[S]{engine: engine, state: state}, nil
}

// Select adds a selection with the default Identity comparison to the group.
func Select[S, V any](group *Group[S], selector Selector[S, V]) (*Selection[V], error) {
	return SelectWithComparison(group, selector, Identity[V])
}

// SelectWithComparison adds a selection with an explicit comparison to the group.
// The selector is evaluated immediately, Get returns that value until the first change.
func SelectWithComparison[S, V any](
	group *Group[S],
	selector Selector[S, V],
	comparison Comparison[V],
) (*Selection[V], error) {

	if selector == nil {
		return nil, ErrNilSelector
	}

	if comparison == nil {
		return nil, ErrNilComparison
	}

	if !group.state.active.Load() {
		return nil, ErrGroupClosed
	}

	selection := &Selection[V]{}

	reg, err := group.engine.register(func(snapshot S) (func(S) (bool, func(), error), error) {
		last, err := selector.evaluate(snapshot)
		if err != nil {
			return nil, err
		}

		selection.set(last)

		return func(next S) (bool, func(), error) {
			value, err := selector.evaluate(next)
			if err != nil {
				return false, nil, err
			}

			equal, err := comparison.equal(last, value)
			if err != nil {
				return false, nil, err
			}

			if equal {
				return false, nil, nil
			}

			last = value
			selection.set(value)

			return true, nil, nil
		}, nil
	}, group.state)

	if err != nil {
		return nil, err
	}

	group.mu.Lock()
	defer group.mu.Unlock()

	if !group.state.active.Load() {
		group.engine.unregister(reg)
		return nil, ErrGroupClosed
	}

	group.members = append(group.members, reg)

	return selection, nil
}

// Close removes all selections of the group from the engine. It is idempotent and safe to call
// from within any callback.
func (g *Group[S]) Close() {
	if !g.state.active.CompareAndSwap(true, false) {
		return
	}

	g.mu.Lock()
	members := g.members
	g.members = nil
	g.mu.Unlock()

	for _, reg := range members {
		g.engine.unregister(reg)
	}
}
