package selectors_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

type todo struct {
	Text string
	Done bool
}

func Test_Identity(t *testing.T) {
	shared := &todo{Text: "milk"}
	sharedSlice := []int{1, 2, 3}
	sharedMap := map[string]int{"a": 1}

	tests := []struct {
		name     string
		a, b     any
		expected bool
	}{
		{name: "same pointer", a: shared, b: shared, expected: true},
		{name: "equal pointees behind different pointers", a: &todo{Text: "milk"}, b: &todo{Text: "milk"}, expected: false},
		{name: "same slice", a: sharedSlice, b: sharedSlice, expected: true},
		{name: "resliced shorter", a: sharedSlice, b: sharedSlice[:2], expected: false},
		{name: "equal slices with different backing arrays", a: []int{1, 2, 3}, b: []int{1, 2, 3}, expected: false},
		{name: "same map", a: sharedMap, b: sharedMap, expected: true},
		{name: "equal strings", a: "milk", b: "milk", expected: true},
		{name: "different numbers", a: 1, b: 2, expected: false},
		{name: "different dynamic types", a: 1, b: int64(1), expected: false},
		{name: "NaN", a: math.NaN(), b: math.NaN(), expected: true},
		{name: "structs with identical fields", a: todo{Text: "milk"}, b: todo{Text: "milk"}, expected: true},
		{name: "both nil", a: nil, b: nil, expected: true},
		{name: "one nil", a: nil, b: 0, expected: false},
		{name: "non-nil funcs", a: func() {}, b: func() {}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selectors.Identity[any](tt.a, tt.b))
		})
	}
}

func Test_Shallow(t *testing.T) {
	milk := &todo{Text: "milk"}
	eggs := &todo{Text: "eggs"}

	tests := []struct {
		name     string
		a, b     any
		expected bool
	}{
		{name: "new slices with identical elements", a: []*todo{milk, eggs}, b: []*todo{milk, eggs}, expected: true},
		{name: "new slices with different order", a: []*todo{milk, eggs}, b: []*todo{eggs, milk}, expected: false},
		{name: "new slices with different length", a: []*todo{milk}, b: []*todo{milk, eggs}, expected: false},
		{name: "new slices with equal but not identical elements", a: []*todo{{Text: "milk"}}, b: []*todo{{Text: "milk"}}, expected: false},
		{name: "new maps with identical values", a: map[string]*todo{"m": milk}, b: map[string]*todo{"m": milk}, expected: true},
		{name: "new maps with different keys", a: map[string]*todo{"m": milk}, b: map[string]*todo{"e": milk}, expected: false},
		{name: "pointers to structs with identical fields", a: &todo{Text: "milk"}, b: &todo{Text: "milk"}, expected: true},
		{name: "structs with identical fields", a: todo{Text: "milk"}, b: todo{Text: "milk"}, expected: true},
		{name: "nested containers are compared by identity", a: [][]int{{1}}, b: [][]int{{1}}, expected: false},
		{name: "scalars", a: 3, b: 3, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selectors.Shallow[any](tt.a, tt.b))
		})
	}
}

func Test_Equal_And_Deep(t *testing.T) {
	assert.True(t, selectors.Equal(todo{Text: "milk"}, todo{Text: "milk"}))
	assert.False(t, selectors.Equal("milk", "eggs"))

	assert.True(t, selectors.Deep([][]int{{1}}, [][]int{{1}}))
	assert.False(t, selectors.Deep(map[string][]int{"a": {1}}, map[string][]int{"a": {2}}))
}
