package statetree

import (
	"errors"
	"fmt"
)

// ErrUnknownOpKind is returned when an operation has a kind other than set, delete, or insert.
var ErrUnknownOpKind = errors.New("unknown operation kind")

// OpKind names the kind of write an Operation performs.
type OpKind string

const (
	// OpSet sets an object field or replaces a list item.
	OpSet OpKind = "set"

	// OpDelete removes an object field or a list item.
	OpDelete OpKind = "delete"

	// OpInsert inserts an item into a list before the addressed index.
	OpInsert OpKind = "insert"
)

// Valid reports whether k is one of the known kinds.
func (k OpKind) Valid() bool {
	switch k {
	case OpSet, OpDelete, OpInsert:
		return true
	default:
		return false
	}
}

// Operation is a single write against a tree.
type Operation struct {
	Kind  OpKind
	Path  Path
	Value any
}

// SetAt builds an OpSet operation for a dotted path.
func SetAt(path string, value any) Operation {
	return Operation{Kind: OpSet, Path: ParsePath(path), Value: value}
}

// DeleteAt builds an OpDelete operation for a dotted path.
func DeleteAt(path string) Operation {
	return Operation{Kind: OpDelete, Path: ParsePath(path)}
}

// InsertAt builds an OpInsert operation for a dotted path whose last segment is the list index.
func InsertAt(path string, value any) Operation {
	return Operation{Kind: OpInsert, Path: ParsePath(path), Value: value}
}

// Apply applies the operations in order and returns the resulting root.
// The input root is never modified. On error, no partial result is returned.
func Apply(root *Object, operations ...Operation) (*Object, error) {
	current := root

	for i, operation := range operations {
		next, err := applyOne(current, operation)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("applying operation %d (%s %q) failed", i, operation.Kind, operation.Path.String()),
				err,
			)
		}

		current = next
	}

	return current, nil
}

func applyOne(root *Object, operation Operation) (*Object, error) {
	switch operation.Kind {
	case OpSet:
		return SetIn(root, operation.Path, operation.Value)

	case OpDelete:
		return DeleteIn(root, operation.Path)

	case OpInsert:
		return InsertIn(root, operation.Path, operation.Value)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOpKind, operation.Kind)
	}
}
