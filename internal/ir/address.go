package ir

import (
	"fmt"
	"strings"
)

// Wildcard is the path value that matches any instance name.
const Wildcard = "*"

// PathElement is one address segment: a key and a value, written key=value.
type PathElement struct {
	Key   string
	Value string
}

// PE is a shorthand constructor for PathElement.
func PE(key, value string) PathElement {
	return PathElement{Key: key, Value: value}
}

// ParsePathElement parses "key=value".
func ParsePathElement(s string) (PathElement, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" || value == "" {
		return PathElement{}, fmt.Errorf("invalid path element %q: want key=value", s)
	}
	if strings.ContainsAny(key, "/=*") || strings.ContainsAny(value, "/=") {
		return PathElement{}, fmt.Errorf("invalid path element %q: reserved character", s)
	}
	return PathElement{Key: key, Value: value}, nil
}

// MustPathElement is like ParsePathElement but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPathElement(s string) PathElement {
	pe, err := ParsePathElement(s)
	if err != nil {
		panic(err)
	}
	return pe
}

func (p PathElement) String() string {
	return p.Key + "=" + p.Value
}

// IsZero reports whether p is the zero element.
func (p PathElement) IsZero() bool {
	return p.Key == "" && p.Value == ""
}

// IsWildcard reports whether p matches any value for its key.
func (p PathElement) IsWildcard() bool {
	return p.Value == Wildcard
}

// Matches reports whether the concrete element other is addressed by p.
func (p PathElement) Matches(other PathElement) bool {
	if p.Key != other.Key {
		return false
	}
	return p.IsWildcard() || p.Value == other.Value
}

// MarshalText encodes the element as key=value.
func (p PathElement) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes key=value.
func (p *PathElement) UnmarshalText(data []byte) error {
	pe, err := ParsePathElement(string(data))
	if err != nil {
		return err
	}
	*p = pe
	return nil
}

// Address is an ordered path from the root to a resource. The empty address
// is the root.
type Address []PathElement

// ParseAddress parses "/key=value/key=value". "/" and "" are the root.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return Address{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("invalid address %q: must start with /", s)
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	addr := make(Address, 0, len(parts))
	for _, part := range parts {
		pe, err := ParsePathElement(part)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		addr = append(addr, pe)
	}
	return addr, nil
}

// MustAddress is like ParseAddress but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	if len(a) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, pe := range a {
		b.WriteByte('/')
		b.WriteString(pe.String())
	}
	return b.String()
}

// IsRoot reports whether a addresses the root.
func (a Address) IsRoot() bool {
	return len(a) == 0
}

// Parent returns the address without its last element. The root's parent is
// the root.
func (a Address) Parent() Address {
	if len(a) == 0 {
		return Address{}
	}
	return a[:len(a)-1:len(a)-1]
}

// Last returns the final element, or the zero element for the root.
func (a Address) Last() PathElement {
	if len(a) == 0 {
		return PathElement{}
	}
	return a[len(a)-1]
}

// Append returns a new address with elems added. a is never modified.
func (a Address) Append(elems ...PathElement) Address {
	out := make(Address, 0, len(a)+len(elems))
	out = append(out, a...)
	return append(out, elems...)
}

// Equal reports whether two addresses are identical.
func (a Address) Equal(b Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of a or equal to it.
func (a Address) HasPrefix(prefix Address) bool {
	if len(prefix) > len(a) {
		return false
	}
	return a[:len(prefix)].Equal(prefix)
}

// MarshalText encodes the address in its slash form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes the slash form.
func (a *Address) UnmarshalText(data []byte) error {
	addr, err := ParseAddress(string(data))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}
