package statetree

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidJSON is returned when the input is not valid JSON.
	ErrInvalidJSON = errors.New("tree json is not valid")

	// ErrJSONNotAnObject is returned when a root document is valid JSON but not an object.
	ErrJSONNotAnObject = errors.New("tree json root is not an object")

	// ErrInvalidPathJSON is returned when an encoded path is neither a JSON array of strings nor a dotted path.
	ErrInvalidPathJSON = errors.New("path json is not valid")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FromJSON decodes a JSON object into a tree. Numbers become float64.
func FromJSON(data []byte) (*Object, error) {
	value, err := DecodeValue(data)
	if err != nil {
		return nil, err
	}

	root, ok := value.(*Object)
	if !ok {
		return nil, ErrJSONNotAnObject
	}

	return root, nil
}

// DecodeValue decodes any JSON value into its tree representation.
func DecodeValue(data []byte) (any, error) {
	var native any
	if err := json.Unmarshal(data, &native); err != nil {
		return nil, errors.Join(ErrInvalidJSON, err)
	}

	return normalize(native), nil
}

// EncodeValue encodes any tree value as JSON.
func EncodeValue(value any) ([]byte, error) {
	return json.Marshal(ToNative(value))
}

// ToNative converts a tree value back into plain map[string]any / []any / scalars.
func ToNative(value any) any {
	switch v := value.(type) {
	case *Object:
		native := make(map[string]any, len(v.fields))
		for key, field := range v.fields {
			native[key] = ToNative(field)
		}
		return native

	case *List:
		native := make([]any, len(v.items))
		for i, item := range v.items {
			native[i] = ToNative(item)
		}
		return native

	default:
		return value
	}
}

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	return EncodeValue(o)
}

// MarshalJSON implements json.Marshaler.
func (l *List) MarshalJSON() ([]byte, error) {
	return EncodeValue(l)
}

// EncodePath encodes path as a JSON array of its segments, so keys containing dots or empty keys
// survive a round trip.
func EncodePath(path Path) (string, error) {
	segments := []string(path)
	if segments == nil {
		segments = []string{}
	}

	encoded, err := json.Marshal(segments)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

// DecodePath reverses EncodePath. Input that does not start with '[' is read as a dotted path.
func DecodePath(encoded string) (Path, error) {
	if !strings.HasPrefix(encoded, "[") {
		return ParsePath(encoded), nil
	}

	var segments []string
	if err := json.UnmarshalFromString(encoded, &segments); err != nil {
		return nil, errors.Join(ErrInvalidPathJSON, err)
	}

	return Path(segments), nil
}
