package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached resource. The first part is the resource name;
// later parts are parameters such as page numbers.
type Key struct {
	parts []string
}

// NewKey builds a key from a resource name and parameters. Parameters are
// formatted with fmt.Sprint.
func NewKey(resource string, params ...any) Key {
	parts := make([]string, 0, 1+len(params))
	parts = append(parts, resource)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return Key{parts: parts}
}

// Resource returns the first key part.
func (k Key) Resource() string {
	if len(k.parts) == 0 {
		return ""
	}
	return k.parts[0]
}

// Parts returns a copy of the key parts.
func (k Key) Parts() []string {
	return append([]string(nil), k.parts...)
}

// HasPrefix reports whether p's parts are a leading subsequence of k's.
// NewKey("posts") is a prefix of NewKey("posts", 1, 10).
func (k Key) HasPrefix(p Key) bool {
	if len(p.parts) > len(k.parts) {
		return false
	}
	for i := range p.parts {
		if k.parts[i] != p.parts[i] {
			return false
		}
	}
	return true
}

// Equal reports whether k and o have identical parts.
func (k Key) Equal(o Key) bool {
	return len(k.parts) == len(o.parts) && k.HasPrefix(o)
}

func (k Key) String() string {
	return strings.Join(k.parts, "/")
}

// id is an unambiguous map key.
func (k Key) id() string {
	b, _ := json.Marshal(k.parts)
	return string(b)
}
