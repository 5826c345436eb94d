package eventloop

import (
	"sync"
)

// chunkSize is the number of tasks per node: 128 * 8 bytes, ~1KB per chunk.
const chunkSize = 128

// taskQueue is the multi-producer, single-consumer task queue of a loop. It
// is a linked list of fixed-size arrays, which amortizes allocation, with
// exhausted chunks recycled via a sync.Pool.
type taskQueue struct {
	head   *chunk
	tail   *chunk
	length int
	mu     sync.Mutex
}

type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

var chunkPool = sync.Pool{New: func() any { return new(chunk) }}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk expects all popped slots to have been cleared.
func returnChunk(c *chunk) {
	for i := c.readPos; i < c.pos; i++ {
		c.tasks[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

// Push appends a task. Safe for concurrent use.
func (q *taskQueue) Push(task func()) {
	q.mu.Lock()
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	} else if q.tail.pos == len(q.tail.tasks) {
		c := newChunk()
		q.tail.next = c
		q.tail = c
	}
	q.tail.tasks[q.tail.pos] = task
	q.tail.pos++
	q.length++
	q.mu.Unlock()
}

// PopBatch moves up to len(buf) tasks into buf, in FIFO order, returning
// the number moved.
func (q *taskQueue) PopBatch(buf []func()) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	for n < len(buf) && q.head != nil {
		c := q.head
		if c.readPos == c.pos {
			if c == q.tail {
				// only chunk, reuse in place
				c.readPos = 0
				c.pos = 0
				break
			}
			q.head = c.next
			returnChunk(c)
			continue
		}
		buf[n] = c.tasks[c.readPos]
		c.tasks[c.readPos] = nil
		c.readPos++
		q.length--
		n++
	}
	return n
}

// Len returns the number of queued tasks. Safe for concurrent use.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}
