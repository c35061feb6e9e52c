package graph

import (
	"fmt"
	"strings"
)

// KeySeparator joins the file path and local name of a FunctionKey.
const KeySeparator = "::"

// FunctionKey is the composite identity of a function definition: the file
// that defines it and its local (unqualified) name. Two definitions with the
// same local name in different files have different keys.
type FunctionKey struct {
	File string
	Name string
}

// NewFunctionKey builds the composite key for localName defined in filePath.
func NewFunctionKey(localName, filePath string) FunctionKey {
	return FunctionKey{File: filePath, Name: localName}
}

// ParseFunctionKey recovers a key from its string form. The split happens on
// the last separator so paths that contain "::" round-trip.
func ParseFunctionKey(s string) (FunctionKey, error) {
	idx := strings.LastIndex(s, KeySeparator)
	if idx < 0 {
		return FunctionKey{}, fmt.Errorf("parse function key %q: missing %q", s, KeySeparator)
	}
	name := s[idx+len(KeySeparator):]
	if name == "" {
		return FunctionKey{}, fmt.Errorf("parse function key %q: %w", s, ErrEmptyName)
	}
	return FunctionKey{File: s[:idx], Name: name}, nil
}

func (k FunctionKey) String() string { return k.File + KeySeparator + k.Name }

// LocalName returns the unqualified function name, used for display.
func (k FunctionKey) LocalName() string { return k.Name }

// IsZero reports whether k is the zero key.
func (k FunctionKey) IsZero() bool { return k.File == "" && k.Name == "" }

// Less orders keys by file, then by name.
func (k FunctionKey) Less(o FunctionKey) bool { return compareKeys(k, o) < 0 }

func (k FunctionKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *FunctionKey) UnmarshalText(b []byte) error {
	parsed, err := ParseFunctionKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
