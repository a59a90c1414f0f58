// Package statetree provides an immutable, structurally-shared tree of shared state.
//
// A tree is rooted in an *Object. Objects hold string-keyed fields, Lists hold ordered items,
// and leaves are plain Go scalars (string, float64, bool, nil, ...). Nothing in a tree is ever
// mutated after construction: every write returns a new root, copying only the nodes on the
// written path. Every subtree that is not on that path is the very same pointer in the old and
// the new tree, so a selector that returns a subtree is stable across unrelated changes.
//
// Common usage pattern:
//
//	root, err := statetree.FromJSON([]byte(`{"todos":[{"text":"a","done":false}],"title":"x"}`))
//	if err != nil {
//		// handle error
//	}
//
//	next, err := statetree.Apply(root, statetree.SetAt("title", "y"))
//
//	oldTodos, _ := root.GetList("todos")
//	newTodos, _ := next.GetList("todos")
//	// oldTodos == newTodos: the "todos" subtree was shared
package statetree
