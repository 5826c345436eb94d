package eventloop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_fifoAcrossChunks(t *testing.T) {
	var q taskQueue
	const n = chunkSize*3 + 7
	var got []int
	for i := range n {
		q.Push(func() { got = append(got, i) })
	}
	assert.Equal(t, n, q.Len())

	buf := make([]func(), 50)
	for {
		k := q.PopBatch(buf)
		if k == 0 {
			break
		}
		for _, task := range buf[:k] {
			task()
		}
	}
	assert.Equal(t, 0, q.Len())
	require.Len(t, got, n)
	for i, v := range got {
		if v != i {
			t.Fatalf("expected %d at %d, got %d", i, i, v)
		}
	}
}

func TestTaskQueue_reuseAfterDrain(t *testing.T) {
	var q taskQueue
	buf := make([]func(), 1)
	for i := range chunkSize * 2 {
		q.Push(func() {})
		require.Equal(t, 1, q.PopBatch(buf), i)
		require.Equal(t, 0, q.PopBatch(buf))
	}
	assert.Same(t, q.head, q.tail)
}

func TestTaskQueue_concurrentPush(t *testing.T) {
	var q taskQueue
	const producers, perProducer = 8, 500
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				q.Push(func() {})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Len())

	buf := make([]func(), 128)
	var total int
	for k := q.PopBatch(buf); k != 0; k = q.PopBatch(buf) {
		total += k
	}
	assert.Equal(t, producers*perProducer, total)
}
