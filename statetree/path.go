package statetree

import (
	"fmt"
	"strconv"
	"strings"
)

const pathSeparator = "."

// Path addresses a node in a tree. Object fields are addressed by key, list items by a decimal index.
type Path []string

// ParsePath splits a dotted path like "todos.1.done". The empty string is the root path.
func ParsePath(path string) Path {
	if path == "" {
		return Path{}
	}

	return strings.Split(path, pathSeparator)
}

// String joins the path with dots.
func (p Path) String() string {
	return strings.Join(p, pathSeparator)
}

// GetIn resolves path starting at node. ok is false if any segment does not exist.
func GetIn(node any, path Path) (any, bool) {
	current := node

	for _, segment := range path {
		switch n := current.(type) {
		case *Object:
			value, ok := n.Get(segment)
			if !ok {
				return nil, false
			}
			current = value

		case *List:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= n.Len() {
				return nil, false
			}
			current = n.At(i)

		default:
			return nil, false
		}
	}

	return current, true
}

// SetIn returns a new root with the value at path set. Missing object fields are created
// for the last segment only, intermediate segments must exist.
func SetIn(root *Object, path Path, value any) (*Object, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	updated, err := updateAt(root, path, func(any) (any, error) {
		return normalize(value), nil
	})
	if err != nil {
		return nil, err
	}

	return updated.(*Object), nil
}

// DeleteIn returns a new root with the field or list item at path removed.
// Deleting a missing object field is a no-op and returns root itself.
func DeleteIn(root *Object, path Path) (*Object, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	last := path[len(path)-1]

	updated, err := updateAt(root, path[:len(path)-1], func(parent any) (any, error) {
		switch p := parent.(type) {
		case *Object:
			return p.Delete(last), nil

		case *List:
			i, err := listIndex(last)
			if err != nil {
				return nil, err
			}
			return p.Delete(i)

		default:
			return nil, fmt.Errorf("%w: %q", ErrNotAContainer, path.String())
		}
	})
	if err != nil {
		return nil, err
	}

	return updated.(*Object), nil
}

// InsertIn returns a new root with value inserted into the list addressed by all but the last
// segment of path, before the index given by the last segment.
func InsertIn(root *Object, path Path, value any) (*Object, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	last := path[len(path)-1]

	updated, err := updateAt(root, path[:len(path)-1], func(parent any) (any, error) {
		list, ok := parent.(*List)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotAList, path.String())
		}

		i, err := listIndex(last)
		if err != nil {
			return nil, err
		}

		return list.Insert(i, value)
	})
	if err != nil {
		return nil, err
	}

	return updated.(*Object), nil
}

// updateAt copies the nodes along path and replaces the node at its end with the result of fn.
func updateAt(node any, path Path, fn func(current any) (any, error)) (any, error) {
	if len(path) == 0 {
		updated, err := fn(node)
		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	segment, rest := path[0], path[1:]

	switch n := node.(type) {
	case *Object:
		child, ok := n.Get(segment)
		if !ok && len(rest) > 0 {
			return nil, fmt.Errorf("%w: %q", ErrPathNotFound, segment)
		}

		updatedChild, err := updateAt(child, rest, fn)
		if err != nil {
			return nil, err
		}

		return n.Set(segment, updatedChild), nil

	case *List:
		i, err := listIndex(segment)
		if err != nil {
			return nil, err
		}

		if i >= n.Len() {
			return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, n.Len())
		}

		updatedChild, err := updateAt(n.At(i), rest, fn)
		if err != nil {
			return nil, err
		}

		return n.Set(i, updatedChild)

	default:
		return nil, fmt.Errorf("%w: segment %q", ErrNotAContainer, segment)
	}
}

func listIndex(segment string) (int, error) {
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrIndexOutOfRange, segment)
	}

	return i, nil
}
