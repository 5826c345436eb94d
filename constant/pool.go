package constant

import (
	"sync"
	"sync/atomic"
)

// Pool interns constants of type T by name.
//
// All methods are safe for concurrent use. Creation of a given name is
// resolved by an atomic load-or-store, so concurrent callers racing on the
// same name all observe the single winning instance. IDs are allocated before
// the race is resolved, so losing attempts may leave gaps in the sequence.
type Pool[T any] struct {
	newConstant func(id int, name string) T
	constants   sync.Map // string -> T
	nextID      atomic.Int64
}

// NewPool initializes a pool, using newConstant as the default factory.
func NewPool[T any](newConstant func(id int, name string) T) *Pool[T] {
	if newConstant == nil {
		panic(`constant: nil factory`)
	}
	return &Pool[T]{newConstant: newConstant}
}

// ValueOf returns the constant for name, creating it if it does not exist.
func (x *Pool[T]) ValueOf(name string) (T, error) {
	return x.ValueOfFunc(name, x.newConstant)
}

// ValueOfFunc is like [Pool.ValueOf], but uses newConstant instead of the
// pool's default factory, should the constant need to be created.
func (x *Pool[T]) ValueOfFunc(name string, newConstant func(id int, name string) T) (T, error) {
	if err := checkName(name); err != nil {
		var zero T
		return zero, err
	}
	if v, ok := x.constants.Load(name); ok {
		return v.(T), nil
	}
	v, _ := x.constants.LoadOrStore(name, newConstant(x.NextID(), name))
	return v.(T), nil
}

// MustValueOf is like [Pool.ValueOf], but panics on error. It is intended
// for initializing package level variables.
func (x *Pool[T]) MustValueOf(name string) T {
	v, err := x.ValueOf(name)
	if err != nil {
		panic(err)
	}
	return v
}

// NewInstance creates a new constant for name, failing with
// [ErrDuplicateName] if one already exists.
func (x *Pool[T]) NewInstance(name string) (T, error) {
	return x.NewInstanceFunc(name, x.newConstant)
}

// NewInstanceFunc is like [Pool.NewInstance], but uses newConstant instead of
// the pool's default factory.
func (x *Pool[T]) NewInstanceFunc(name string, newConstant func(id int, name string) T) (T, error) {
	var zero T
	if err := checkName(name); err != nil {
		return zero, err
	}
	if _, ok := x.constants.Load(name); ok {
		return zero, duplicateError(name)
	}
	v := newConstant(x.NextID(), name)
	if _, loaded := x.constants.LoadOrStore(name, v); loaded {
		return zero, duplicateError(name)
	}
	return v, nil
}

// Exists returns true if a constant exists for name.
func (x *Pool[T]) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	_, ok := x.constants.Load(name)
	return ok
}

// Lookup returns the constant for name, without creating it.
func (x *Pool[T]) Lookup(name string) (T, bool) {
	if v, ok := x.constants.Load(name); ok {
		return v.(T), true
	}
	var zero T
	return zero, false
}

// NextID allocates the next ID. It is exported so that constants created
// outside of the factory methods may still use a unique ID.
func (x *Pool[T]) NextID() int {
	return int(x.nextID.Add(1))
}
