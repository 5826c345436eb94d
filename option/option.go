// Package option provides typed, named and validated configuration keys,
// interned by name in a single process-wide pool.
//
// Each [Option] has a fixed value type, however all options share one
// namespace, regardless of type. Options are compared by identity, and are
// normally stored in package level variables (see the catalogue in this
// package, e.g. [ConnectTimeout] and [SoBacklog]). Values are held by a
// [Config], which validates values as they are set, and exposes the
// configured values to the transport layer.
package option

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"

	"github.com/joeycumines/go-transport/constant"
)

var (
	// ErrInvalidValue indicates that a value was rejected by an option's
	// validation, e.g. because it was absent (nil).
	ErrInvalidValue = errors.New("option: invalid configuration value")

	// ErrTypeMismatch indicates an option exists, under the requested name,
	// with a different value type.
	ErrTypeMismatch = errors.New("option: value type mismatch")

	// ErrUnknownOption indicates no option exists for a given name.
	ErrUnknownOption = errors.New("option: unknown option")
)

type (
	// Key is the untyped view of an [Option], used where the value type is
	// not statically known, e.g. by [Config.SetValue] or config loaders.
	Key interface {
		constant.Constant

		// ValueType returns the value type of the option.
		ValueType() reflect.Type

		// ValidateValue validates an untyped value, including that it is
		// of the expected type.
		ValidateValue(value any) error

		option()
	}

	// Option is a configuration key with value type T.
	Option[T any] struct {
		constant.Base
		validators []Validator[T]
	}

	// Validator performs additional validation of an option's value.
	Validator[T any] func(value T) error
)

var pool = constant.NewPool(newOption[any])

var _ Key = (*Option[int])(nil)

// ValueOf returns the option with the given name, creating it if necessary.
// Fails with [ErrTypeMismatch] if the name is in use by an option with a
// different value type.
func ValueOf[T any](name string) (*Option[T], error) {
	k, err := pool.ValueOfFunc(name, func(id int, name string) Key {
		return newOption[T](id, name)
	})
	if err != nil {
		return nil, err
	}
	return assertType[T](k)
}

// MustValueOf is like [ValueOf] but panics on error.
func MustValueOf[T any](name string) *Option[T] {
	o, err := ValueOf[T](name)
	if err != nil {
		panic(err)
	}
	return o
}

// NewInstance creates a new option, failing with [constant.ErrDuplicateName]
// if the name is already in use. The validators are applied, in order, after
// the default check (that the value is not absent).
func NewInstance[T any](name string, validators ...Validator[T]) (*Option[T], error) {
	k, err := pool.NewInstanceFunc(name, func(id int, name string) Key {
		return &Option[T]{
			Base:       constant.NewBase(id, name),
			validators: validators,
		}
	})
	if err != nil {
		return nil, err
	}
	return k.(*Option[T]), nil
}

// Exists returns true if an option exists for name.
func Exists(name string) bool {
	return pool.Exists(name)
}

// Lookup returns the option for name, without creating it.
func Lookup(name string) (Key, bool) {
	return pool.Lookup(name)
}

// QualifiedValueOf is shorthand for ValueOf(constant.QualifiedName(component, name)).
func QualifiedValueOf[T any](component any, name string) (*Option[T], error) {
	return ValueOf[T](constant.QualifiedName(component, name))
}

func newOption[T any](id int, name string) Key {
	return &Option[T]{Base: constant.NewBase(id, name)}
}

func assertType[T any](k Key) (*Option[T], error) {
	if o, ok := k.(*Option[T]); ok {
		return o, nil
	}
	return nil, fmt.Errorf("%w: option %q has value type %s, not %s", ErrTypeMismatch, k.Name(), k.ValueType(), reflect.TypeFor[T]())
}

func (x *Option[T]) option() {}

// ValueType implements [Key].
func (x *Option[T]) ValueType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Validate checks value, rejecting absent (nil) values, then applying any
// validators the option was created with.
func (x *Option[T]) Validate(value T) error {
	if isAbsent(value) {
		return fmt.Errorf("%w: %s: absent value", ErrInvalidValue, x.Name())
	}
	for _, v := range x.validators {
		if err := v(value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidValue, x.Name(), err)
		}
	}
	return nil
}

// ValidateValue implements [Key].
func (x *Option[T]) ValidateValue(value any) error {
	if value == nil {
		return fmt.Errorf("%w: %s: absent value", ErrInvalidValue, x.Name())
	}
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: %s: expected %s, got %T", ErrInvalidValue, x.Name(), reflect.TypeFor[T](), value)
	}
	return x.Validate(v)
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

// AtLeast returns a validator rejecting values less than lower.
func AtLeast[T cmp.Ordered](lower T) Validator[T] {
	return func(value T) error {
		if value < lower {
			return fmt.Errorf("%v is less than %v", value, lower)
		}
		return nil
	}
}

// Between returns a validator rejecting values outside of [lower, upper].
func Between[T cmp.Ordered](lower, upper T) Validator[T] {
	return func(value T) error {
		if value < lower || value > upper {
			return fmt.Errorf("%v is outside of [%v, %v]", value, lower, upper)
		}
		return nil
	}
}
