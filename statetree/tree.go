package statetree

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var (
	// ErrIndexOutOfRange is returned when a list index is negative or beyond the list's bounds.
	ErrIndexOutOfRange = errors.New("list index out of range")

	// ErrPathNotFound is returned when an intermediate path segment does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrNotAContainer is returned when a path descends into a scalar leaf.
	ErrNotAContainer = errors.New("path does not address an object or a list")

	// ErrNotAList is returned when an insert addresses a parent that is not a list.
	ErrNotAList = errors.New("insert target is not a list")

	// ErrEmptyPath is returned when an operation needs at least one path segment.
	ErrEmptyPath = errors.New("path must not be empty")

	// ErrRootNotAnObject is returned when a write would replace the root with something other than an object.
	ErrRootNotAnObject = errors.New("root must be an object")
)

/***** Object *****/

// Object is an immutable node with string-keyed fields.
// The zero value is not usable, construct it with NewObject or EmptyObject.
type Object struct {
	fields map[string]any
}

// EmptyObject returns an object without fields.
func EmptyObject() *Object {
	return &Object{fields: map[string]any{}}
}

// NewObject builds an object from the given fields.
// Nested map[string]any and []any values are converted into Objects and Lists.
// The input map is copied and may be reused by the caller.
func NewObject(fields map[string]any) *Object {
	o := &Object{fields: make(map[string]any, len(fields))}
	for key, value := range fields {
		o.fields[key] = normalize(value)
	}

	return o
}

// Get returns the value of a field and whether the field exists.
func (o *Object) Get(key string) (any, bool) {
	value, ok := o.fields[key]
	return value, ok
}

// GetObject returns the field as *Object, ok is false if it is missing or not an object.
func (o *Object) GetObject(key string) (*Object, bool) {
	value, ok := o.fields[key].(*Object)
	return value, ok
}

// GetList returns the field as *List, ok is false if it is missing or not a list.
func (o *Object) GetList(key string) (*List, bool) {
	value, ok := o.fields[key].(*List)
	return value, ok
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.fields)
}

// Keys returns the field names in ascending order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.fields))
	for key := range o.fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Set returns an object with the field set to value.
// If the field already holds the identical value, the receiver itself is returned.
func (o *Object) Set(key string, value any) *Object {
	value = normalize(value)

	if current, ok := o.fields[key]; ok && sameValue(current, value) {
		return o
	}

	next := o.clone(len(o.fields) + 1)
	next.fields[key] = value

	return next
}

// Delete returns an object without the field.
// If the field does not exist, the receiver itself is returned.
func (o *Object) Delete(key string) *Object {
	if _, ok := o.fields[key]; !ok {
		return o
	}

	next := o.clone(len(o.fields))
	delete(next.fields, key)

	return next
}

func (o *Object) clone(capacity int) *Object {
	next := &Object{fields: make(map[string]any, capacity)}
	for key, value := range o.fields {
		next.fields[key] = value
	}

	return next
}

/***** List *****/

// List is an immutable node with ordered items.
type List struct {
	items []any
}

// NewList builds a list from the given items.
// Nested map[string]any and []any values are converted into Objects and Lists.
func NewList(items ...any) *List {
	l := &List{items: make([]any, len(items))}
	for i, item := range items {
		l.items[i] = normalize(item)
	}

	return l
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// At returns the item at index i. It panics if i is out of range, like a slice index would.
func (l *List) At(i int) any {
	return l.items[i]
}

// Items returns a copy of the items.
func (l *List) Items() []any {
	items := make([]any, len(l.items))
	copy(items, l.items)

	return items
}

// Set returns a list with the item at index i replaced.
// If the item is already identical to value, the receiver itself is returned.
func (l *List) Set(i int, value any) (*List, error) {
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}

	value = normalize(value)
	if sameValue(l.items[i], value) {
		return l, nil
	}

	next := &List{items: make([]any, len(l.items))}
	copy(next.items, l.items)
	next.items[i] = value

	return next, nil
}

// Insert returns a list with value inserted before index i. Inserting at Len() appends.
func (l *List) Insert(i int, value any) (*List, error) {
	if i < 0 || i > len(l.items) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}

	next := &List{items: make([]any, 0, len(l.items)+1)}
	next.items = append(next.items, l.items[:i]...)
	next.items = append(next.items, normalize(value))
	next.items = append(next.items, l.items[i:]...)

	return next, nil
}

// Push returns a list with value appended.
func (l *List) Push(value any) *List {
	next, _ := l.Insert(len(l.items), value) // appending is always in range

	return next
}

// Delete returns a list without the item at index i.
func (l *List) Delete(i int) (*List, error) {
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}

	next := &List{items: make([]any, 0, len(l.items)-1)}
	next.items = append(next.items, l.items[:i]...)
	next.items = append(next.items, l.items[i+1:]...)

	return next, nil
}

/***** helpers *****/

func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return NewObject(v)
	case []any:
		return NewList(v...)
	default:
		return value
	}
}

// sameValue reports whether two tree values are interchangeable without a copy:
// the same node pointer or equal comparable scalars. A comparable type can still hold an
// uncomparable value in an interface field, the comparison then panics and counts as "not same".
func sameValue(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()

	typeA, typeB := reflect.TypeOf(a), reflect.TypeOf(b)
	if typeA != typeB {
		return false
	}

	if typeA == nil {
		return true
	}

	if !typeA.Comparable() {
		return false
	}

	return a == b
}
