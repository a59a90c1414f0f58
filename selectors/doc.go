// Package selectors provides a selector-based subscription engine over an evolving stream of
// immutable snapshots.
//
// An Engine holds the current snapshot and a set of subscriptions. Each subscription binds a pure
// Selector (snapshot -> value), a Comparison, and a callback. Whenever the external state source
// delivers a new snapshot through OnSourceChanged, the engine recomputes every selector, compares
// the result to the last value it delivered, and afterwards invokes each changed subscription's
// callback exactly once. Recomputing is cheap, the callbacks (re-rendering, re-layout, ...) are
// the expensive part, and they only run when the projected value actually differs.
//
// The default comparison is identity (see Identity). With structurally-shared snapshots, selectors
// that return a subtree are stable for free. Selectors that synthesize new containers
// (filter, map, ...) need an explicit comparison such as Shallow.
//
// Key types:
//   - Engine: owns the subscriptions and the current snapshot
//   - Selector / Comparison: the projection and its equality strategy
//   - Group / Selection: several selections sharing one callback, fired at most once per change
//
// Common usage pattern:
//
//	engine, err := selectors.NewEngine(root, selectors.WithLogger(slog.Default()))
//	if err != nil {
//		// handle error
//	}
//	defer engine.Close()
//
//	unsubscribe, err := selectors.Subscribe(engine,
//		selectors.Pure(func(root *statetree.Object) int {
//			todos, _ := root.GetList("todos")
//			return todos.Len()
//		}),
//		func(count int) { fmt.Println("todo count:", count) },
//	)
//	if err != nil {
//		// handle error
//	}
//	defer unsubscribe()
//
//	err = engine.OnSourceChanged(ctx, nextRoot)
package selectors
