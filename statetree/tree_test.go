package statetree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

func givenTodosTree(t *testing.T) *statetree.Object {
	root, err := statetree.FromJSON([]byte(`{
		"title": "groceries",
		"todos": [
			{"text": "milk", "done": false},
			{"text": "eggs", "done": true}
		],
		"settings": {"theme": "dark"}
	}`))
	require.NoError(t, err, "error in arranging test data")

	return root
}

func Test_Set_SharesUntouchedSubtrees(t *testing.T) {
	// arrange
	root := givenTodosTree(t)

	// act
	next, err := statetree.Apply(root, statetree.SetAt("title", "hardware"))

	// assert
	require.NoError(t, err)
	assert.NotSame(t, root, next, "a write must produce a new root")

	oldTodos, _ := root.GetList("todos")
	newTodos, _ := next.GetList("todos")
	assert.Same(t, oldTodos, newTodos, "the todos subtree should be shared")

	oldSettings, _ := root.GetObject("settings")
	newSettings, _ := next.GetObject("settings")
	assert.Same(t, oldSettings, newSettings, "the settings subtree should be shared")

	title, _ := root.Get("title")
	assert.Equal(t, "groceries", title, "the old root must stay untouched")
}

func Test_SetIn_CopiesOnlyTheWrittenPath(t *testing.T) {
	// arrange
	root := givenTodosTree(t)
	oldTodos, _ := root.GetList("todos")

	// act
	next, err := statetree.SetIn(root, statetree.ParsePath("todos.0.done"), true)

	// assert
	require.NoError(t, err)

	newTodos, _ := next.GetList("todos")
	assert.NotSame(t, oldTodos, newTodos, "the list on the written path must be copied")
	assert.NotSame(t, oldTodos.At(0), newTodos.At(0), "the written item must be copied")
	assert.Same(t, oldTodos.At(1), newTodos.At(1), "the sibling item must be shared")

	done, ok := statetree.GetIn(next, statetree.ParsePath("todos.0.done"))
	assert.True(t, ok)
	assert.Equal(t, true, done)
}

func Test_Set_WithIdenticalValue_ReturnsReceiver(t *testing.T) {
	// arrange
	root := givenTodosTree(t)

	// act
	next, err := statetree.Apply(root, statetree.SetAt("settings.theme", "dark"))

	// assert
	require.NoError(t, err)
	assert.Same(t, root, next, "writing an identical scalar should not copy anything")
}

type labeled struct {
	Payload any
}

func Test_Set_ComparableTypeHoldingSlice_ReplacesWithoutPanic(t *testing.T) {
	// arrange
	root := statetree.EmptyObject().Set("meta", labeled{Payload: []string{"a"}})
	list := statetree.NewList(labeled{Payload: map[string]int{"a": 1}})

	// act
	var next *statetree.Object
	var nextList *statetree.List
	var listErr error

	assert.NotPanics(t, func() {
		next = root.Set("meta", labeled{Payload: []string{"a"}})
		nextList, listErr = list.Set(0, labeled{Payload: map[string]int{"a": 1}})
	})

	// assert
	require.NoError(t, listErr)
	assert.NotSame(t, root, next, "uncomparable contents count as a change")
	assert.NotSame(t, list, nextList)
}

func Test_InsertAndDelete_ListItems(t *testing.T) {
	// arrange
	root := givenTodosTree(t)

	// act
	next, err := statetree.Apply(root,
		statetree.InsertAt("todos.2", map[string]any{"text": "bread", "done": false}),
		statetree.DeleteAt("todos.0"),
	)

	// assert
	require.NoError(t, err)

	todos, _ := next.GetList("todos")
	assert.Equal(t, 2, todos.Len())

	text, _ := statetree.GetIn(next, statetree.ParsePath("todos.1.text"))
	assert.Equal(t, "bread", text)

	_, isObject := todos.At(1).(*statetree.Object)
	assert.True(t, isObject, "inserted maps should be normalized into objects")
}

func Test_DeleteIn_MissingField_IsNoOp(t *testing.T) {
	// arrange
	root := givenTodosTree(t)

	// act
	next, err := statetree.DeleteIn(root, statetree.ParsePath("settings.missing"))

	// assert
	require.NoError(t, err)
	assert.Same(t, root, next)
}

func Test_Apply_ErrorCases(t *testing.T) {
	tests := []struct {
		name        string
		operation   statetree.Operation
		expectedErr error
	}{
		{
			name:        "intermediate field missing",
			operation:   statetree.SetAt("missing.field", 1),
			expectedErr: statetree.ErrPathNotFound,
		},
		{
			name:        "list index out of range",
			operation:   statetree.SetAt("todos.5.done", true),
			expectedErr: statetree.ErrIndexOutOfRange,
		},
		{
			name:        "descending into a scalar",
			operation:   statetree.SetAt("title.length", 3),
			expectedErr: statetree.ErrNotAContainer,
		},
		{
			name:        "insert into an object",
			operation:   statetree.InsertAt("settings.0", "x"),
			expectedErr: statetree.ErrNotAList,
		},
		{
			name:        "empty path",
			operation:   statetree.SetAt("", 1),
			expectedErr: statetree.ErrEmptyPath,
		},
		{
			name:        "unknown kind",
			operation:   statetree.Operation{Kind: "move", Path: statetree.ParsePath("title")},
			expectedErr: statetree.ErrUnknownOpKind,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			root := givenTodosTree(t)

			// act
			next, err := statetree.Apply(root, tc.operation)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Nil(t, next)
		})
	}
}

func Test_Apply_FailingOperation_LeavesNoPartialResult(t *testing.T) {
	// arrange
	root := givenTodosTree(t)

	// act
	next, err := statetree.Apply(root,
		statetree.SetAt("title", "changed"),
		statetree.SetAt("missing.field", 1),
	)

	// assert
	assert.Error(t, err)
	assert.Nil(t, next)

	title, _ := root.Get("title")
	assert.Equal(t, "groceries", title)
}

func Test_Keys_AreSorted(t *testing.T) {
	obj := statetree.NewObject(map[string]any{"b": 1, "a": 2, "c": 3})

	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())
	assert.Equal(t, 3, obj.Len())
}
