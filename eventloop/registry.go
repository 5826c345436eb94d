package eventloop

import (
	"sync"

	"github.com/joeycumines/go-transport/future"
)

// registry tracks the pending promises of a loop, so they may be rejected
// when it terminates.
type registry struct {
	data   map[uint64]func(error)
	nextID uint64
	mu     sync.Mutex
	closed bool
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]func(error)),
		nextID: 1,
	}
}

// add returns false if RejectAll has already been called.
func (r *registry) add(reject func(error)) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	id := r.nextID
	r.nextID++
	r.data[id] = reject
	return id, true
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// RejectAll rejects every pending promise, and any subsequently added.
func (r *registry) RejectAll(err error) {
	r.mu.Lock()
	data := r.data
	r.data = make(map[uint64]func(error))
	r.closed = true
	r.mu.Unlock()
	for _, reject := range data {
		reject(err)
	}
}

// NewPromise returns a promise executed by the loop l, which is failed with
// [ErrLoopTerminated] if it is still pending when l terminates.
func NewPromise[V any](l *Loop) *future.Promise[V] {
	p := future.New[V](l)
	id, ok := l.registry.add(func(err error) { _ = p.SetFailure(err) })
	if !ok {
		_ = p.SetFailure(ErrLoopTerminated)
		return p
	}
	p.AddListener(func(future.Future[V]) { l.registry.remove(id) })
	return p
}
