package selectors

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Unsubscribe removes a subscription. It is idempotent, safe to call from within any callback,
// and a no-op once the engine is closed.
type Unsubscribe func()

// Engine maintains subscriptions against a single evolving snapshot source.
//
// One mutex guards the subscriptions, their last-known values, and the current snapshot. It is held
// while a snapshot is evaluated against all subscriptions, so a subscription is never evaluated
// against two snapshots interleaved. Callbacks run after the evaluation with the mutex released,
// which makes subscribing, unsubscribing, and even delivering another snapshot from inside a
// callback safe.
type Engine[S any] struct {
	mu            sync.Mutex
	current       S
	pending       S
	hasPending    bool
	passing       bool
	closed        bool
	registrations []*registration[S]
	nextID        uint64
	settings
}

// registration is the type-erased form of a subscription or a group member.
type registration[S any] struct {
	id     uint64
	active atomic.Bool
	group  *groupState

	// evaluate recomputes the value for snapshot and compares it with the last-known value.
	// If they differ, it updates the last-known value and returns dirty=true together with
	// the function delivering the new value (nil for group members).
	evaluate func(snapshot S) (dirty bool, deliver func(), err error)
}

// dirtyRegistration is a registration whose value changed during the current pass.
type dirtyRegistration[S any] struct {
	reg     *registration[S]
	deliver func()
}

// NewEngine creates an Engine whose current snapshot is initial.
func NewEngine[S any](initial S, options ...Option) (*Engine[S], error) {
	e := &Engine[S]{current: initial}

	for _, option := range options {
		if err := option(&e.settings); err != nil {
			return nil, err
		}
	}

	e.logInfo(context.Background(), logMsgEngineCreated)

	return e, nil
}

// Subscribe registers selector with the default Identity comparison.
// See SubscribeWithComparison.
func Subscribe[S, V any](engine *Engine[S], selector Selector[S, V], callback func(V)) (Unsubscribe, error) {
	return SubscribeWithComparison(engine, selector, Identity[V], callback)
}

// SubscribeWithComparison registers selector and callback with an explicit comparison.
//
// The selector is evaluated immediately against the current snapshot to seed the last-known value.
// No callback fires for that initial evaluation; if it fails, the error is returned and nothing is
// registered. Afterwards, callback fires with the new value whenever a delivered snapshot makes
// comparison(lastKnown, selected) false.
func SubscribeWithComparison[S, V any](
	engine *Engine[S],
	selector Selector[S, V],
	comparison Comparison[V],
	callback func(V),
) (Unsubscribe, error) {

	if selector == nil {
		return nil, ErrNilSelector
	}

	if comparison == nil {
		return nil, ErrNilComparison
	}

	if callback == nil {
		return nil, ErrNilCallback
	}

	reg, err := engine.register(func(snapshot S) (func(S) (bool, func(), error), error) {
		last, err := selector.evaluate(snapshot)
		if err != nil {
			return nil, err
		}

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

			return true, func() { callback(value) }, nil
		}, nil
	}, nil)

	if err != nil {
		return nil, err
	}

	return func() { engine.unregister(reg) }, nil
}

// register seeds a new registration against the current snapshot and adds it.
func (e *Engine[S]) register(
	seed func(snapshot S) (func(S) (bool, func(), error), error),
	group *groupState,
) (*registration[S], error) {

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	evaluate, err := seed(e.current)
	if err != nil {
		e.logError(context.Background(), logMsgInitialEvaluationFailed, err)
		return nil, err
	}

	e.nextID++
	reg := &registration[S]{id: e.nextID, group: group, evaluate: evaluate}
	reg.active.Store(true)
	e.registrations = append(e.registrations, reg)

	return reg, nil
}

// unregister removes reg. Only the first call for a registration has an effect.
func (e *Engine[S]) unregister(reg *registration[S]) {
	if !reg.active.CompareAndSwap(true, false) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.registrations = slices.DeleteFunc(e.registrations, func(r *registration[S]) bool {
		return r == reg
	})
}

// OnSourceChanged delivers a new snapshot.
//
// All live subscriptions are evaluated against snapshot first. Then every subscription whose value
// changed gets its callback invoked exactly once, and every group with at least one changed member
// gets its callback invoked exactly once.
//
// If a pass is already running, because this is called from within a callback or concurrently from
// another goroutine, snapshot is queued and the running pass evaluates it after the current
// delivery finished. Only the latest queued snapshot is evaluated. In that case this method returns
// nil immediately and errors are reported to the caller driving the running pass.
//
// The returned error joins all selector, comparison, and callback failures of the passes driven
// by this call. A failing subscription keeps its last-known value and does not fire.
func (e *Engine[S]) OnSourceChanged(ctx context.Context, snapshot S) error {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}

	e.pending = snapshot
	e.hasPending = true

	if e.passing {
		e.mu.Unlock()
		e.logDebug(ctx, logMsgSnapshotQueued)

		return nil
	}

	e.passing = true

	var passErrs []error

	for e.hasPending && !e.closed {
		next := e.pending
		var zero S
		e.pending = zero
		e.hasPending = false

		passErrs = append(passErrs, e.runPassLocked(ctx, next))
	}

	e.passing = false
	e.mu.Unlock()

	return errors.Join(passErrs...)
}

// runPassLocked evaluates snapshot and dispatches the callbacks.
// It is entered and left with e.mu held, but releases it during dispatch.
func (e *Engine[S]) runPassLocked(ctx context.Context, snapshot S) error {
	start := time.Now()
	ctx, tracing := e.startPassTracing(ctx, len(e.registrations))

	e.current = snapshot
	evaluated := len(e.registrations)
	dirty, evalErrs := e.evaluateLocked(snapshot)

	for _, err := range evalErrs {
		e.logError(ctx, logMsgEvaluationFailed, err)
	}

	e.mu.Unlock()
	notified, dispatchErrs := e.dispatch(ctx, dirty)
	e.mu.Lock()

	duration := time.Since(start)
	allErrs := slices.Concat(evalErrs, dispatchErrs)

	e.recordPassMetrics(ctx, duration, evaluated, notified, len(evalErrs), len(dispatchErrs), len(e.registrations))
	e.logDebug(ctx, logMsgPassCompleted,
		logAttrEvaluated, evaluated,
		logAttrNotified, notified,
		logAttrDurationMS, toMilliseconds(duration),
	)

	if len(allErrs) > 0 {
		tracing.finishError(evaluated, notified, len(allErrs), duration)
		return errors.Join(allErrs...)
	}

	tracing.finishSuccess(evaluated, notified, duration)

	return nil
}

// evaluateLocked recomputes every live registration against snapshot. Callers hold e.mu.
func (e *Engine[S]) evaluateLocked(snapshot S) ([]dirtyRegistration[S], []error) {
	var dirty []dirtyRegistration[S]
	var errs []error

	for _, reg := range e.registrations {
		if !reg.active.Load() {
			continue
		}

		changed, deliver, err := reg.evaluate(snapshot)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %d: %w", reg.id, err))
			continue
		}

		if changed {
			dirty = append(dirty, dirtyRegistration[S]{reg: reg, deliver: deliver})
		}
	}

	return dirty, errs
}

// dispatch invokes the callbacks of the dirty registrations outside the lock.
// A registration that got unsubscribed while earlier callbacks ran is skipped.
// Each group fires at most once.
func (e *Engine[S]) dispatch(ctx context.Context, dirty []dirtyRegistration[S]) (int, []error) {
	var errs []error
	notified := 0
	firedGroups := make(map[*groupState]struct{})

	for _, d := range dirty {
		if !d.reg.active.Load() {
			continue
		}

		callback := d.deliver

		if g := d.reg.group; g != nil {
			if _, fired := firedGroups[g]; fired {
				continue
			}

			firedGroups[g] = struct{}{}

			if !g.active.Load() {
				continue
			}

			callback = g.callback
		}

		notified++

		if err := safeCall(callback); err != nil {
			err = fmt.Errorf("subscription %d: %w", d.reg.id, err)
			e.logWarn(ctx, logMsgCallbackPanicked, err)
			errs = append(errs, err)
		}
	}

	return notified, errs
}

// Current returns the snapshot of the latest evaluated pass, or the initial snapshot.
func (e *Engine[S]) Current() S {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.current
}

// Len returns the number of live registrations. Each group member counts as one.
func (e *Engine[S]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.registrations)
}

// Close releases all registrations. Afterwards, Subscribe and OnSourceChanged return
// ErrEngineClosed and every Unsubscribe is a no-op. Closing twice has no additional effect.
// Callbacks of a pass in progress that did not run yet are dropped.
func (e *Engine[S]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.closed = true

	for _, reg := range e.registrations {
		reg.active.Store(false)
	}

	e.registrations = nil
	e.hasPending = false

	var zero S
	e.pending = zero

	e.logInfo(context.Background(), logMsgEngineClosed)
}

func safeCall(callback func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCallbackPanicked, r)
		}
	}()

	callback()

	return nil
}
