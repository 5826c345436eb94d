// Package constant implements process-wide interning of named constants.
//
// A [Pool] guarantees that there is exactly one constant per unique name. The
// constants it hands out are compared by identity, and are intended to be
// stored in package level variables, then reused as keys (see the option
// package, which builds typed configuration keys on top of this package).
package constant

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrEmptyName is returned when a constant is requested with an empty name.
	ErrEmptyName = errors.New("constant: empty name")

	// ErrDuplicateName is returned by [Pool.NewInstance] when a constant with
	// the requested name already exists.
	ErrDuplicateName = errors.New("constant: duplicate name")
)

// Constant is a singleton identified by a unique name, within its [Pool].
type Constant interface {
	// ID returns the numeric identifier, unique within the pool.
	ID() int
	// Name returns the unique name.
	Name() string
}

// Base implements [Constant], and is intended to be embedded.
type Base struct {
	name string
	id   int
}

var _ Constant = (*Base)(nil)

// NewBase initializes a Base, which is normally only done from within the
// factory passed to [NewPool].
func NewBase(id int, name string) Base {
	return Base{id: id, name: name}
}

// ID implements [Constant].
func (x *Base) ID() int { return x.id }

// Name implements [Constant].
func (x *Base) Name() string { return x.name }

// String returns the name.
func (x *Base) String() string { return x.name }

// Compare orders constants by ID, returning -1, 0 or +1.
func Compare(a, b Constant) int {
	switch ai, bi := a.ID(), b.ID(); {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

// QualifiedName builds a name scoped by the type of component, in the form
// "<package path>.<type name>#<name>".
func QualifiedName(component any, name string) string {
	t := reflect.TypeOf(component)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var b strings.Builder
	if t != nil {
		if t.PkgPath() != `` {
			b.WriteString(t.PkgPath())
			b.WriteByte('.')
		}
		b.WriteString(t.Name())
	}
	b.WriteByte('#')
	b.WriteString(name)
	return b.String()
}

func checkName(name string) error {
	if name == `` {
		return ErrEmptyName
	}
	return nil
}

func duplicateError(name string) error {
	return fmt.Errorf("%w: %q is already in use", ErrDuplicateName, name)
}
