package selectors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

func Test_Group_FiresOncePerPassForSeveralChangedSelections(t *testing.T) {
	// setup
	engine := givenEngine(t, counter{Name: "a", Value: 1})
	renders := 0

	var value *selectors.Selection[int]
	var name *selectors.Selection[string]
	seen := &recorder[counter]{}

	group, err := selectors.NewGroup(engine, func() {
		renders++
		seen.record(counter{Name: name.Get(), Value: value.Get()})
	})
	require.NoError(t, err)

	value, err = selectors.Select(group, selectValue)
	require.NoError(t, err)
	name, err = selectors.Select(group, selectName)
	require.NoError(t, err)

	// act
	err1 := engine.OnSourceChanged(context.Background(), counter{Name: "b", Value: 2})
	err2 := engine.OnSourceChanged(context.Background(), counter{Name: "b", Value: 2})
	err3 := engine.OnSourceChanged(context.Background(), counter{Name: "c", Value: 2})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Equal(t, 2, renders, "the group must render once per pass with changes and never for unchanged passes")
	assert.Equal(t, []counter{{Name: "b", Value: 2}, {Name: "c", Value: 2}}, seen.get())
}

func Test_Select_ReturnsInitialValue(t *testing.T) {
	// setup
	engine := givenEngine(t, counter{Name: "a", Value: 7})
	group, err := selectors.NewGroup(engine, func() {})
	require.NoError(t, err)

	// act
	value, err := selectors.SelectWithComparison(group, selectValue, selectors.Equal[int])

	// assert
	require.NoError(t, err)
	assert.Equal(t, 7, value.Get())
}

func Test_Group_Close(t *testing.T) {
	// setup
	engine := givenEngine(t, counter{Value: 1})
	renders := 0

	group, err := selectors.NewGroup(engine, func() { renders++ })
	require.NoError(t, err)

	_, err = selectors.Select(group, selectValue)
	require.NoError(t, err)
	_, err = selectors.Select(group, selectName)
	require.NoError(t, err)
	require.Equal(t, 2, engine.Len())

	// act
	group.Close()
	group.Close()
	err = engine.OnSourceChanged(context.Background(), counter{Name: "x", Value: 2})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 0, renders)
	assert.Equal(t, 0, engine.Len())

	_, err = selectors.Select(group, selectValue)
	assert.ErrorIs(t, err, selectors.ErrGroupClosed)
}

func Test_Group_CloseFromWithinOwnCallback(t *testing.T) {
	// setup
	engine := givenEngine(t, counter{Value: 1})
	renders := 0

	var group *selectors.Group[counter]
	group, err := selectors.NewGroup(engine, func() {
		renders++
		group.Close()
	})
	require.NoError(t, err)

	_, err = selectors.Select(group, selectValue)
	require.NoError(t, err)

	// act
	err1 := engine.OnSourceChanged(context.Background(), counter{Value: 2})
	err2 := engine.OnSourceChanged(context.Background(), counter{Value: 3})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, 1, renders)
}

func Test_Group_ErrorCases(t *testing.T) {
	engine := givenEngine(t, counter{})

	_, err := selectors.NewGroup(engine, nil)
	assert.ErrorIs(t, err, selectors.ErrNilCallback)

	group, err := selectors.NewGroup(engine, func() {})
	require.NoError(t, err)

	_, err = selectors.Select[counter, int](group, nil)
	assert.ErrorIs(t, err, selectors.ErrNilSelector)

	_, err = selectors.SelectWithComparison(group, selectValue, nil)
	assert.ErrorIs(t, err, selectors.ErrNilComparison)

	engine.Close()
	_, err = selectors.Select(group, selectValue)
	assert.ErrorIs(t, err, selectors.ErrEngineClosed)
}
