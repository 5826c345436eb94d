package constant

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConstant struct {
	Base
}

func newTestPool() *Pool[*testConstant] {
	return NewPool(func(id int, name string) *testConstant {
		return &testConstant{Base: NewBase(id, name)}
	})
}

func TestPool_ValueOf_sameInstance(t *testing.T) {
	pool := newTestPool()

	a, err := pool.ValueOf(`A`)
	require.NoError(t, err)
	b, err := pool.ValueOf(`A`)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, `A`, a.Name())
	assert.True(t, pool.Exists(`A`))
	assert.False(t, pool.Exists(`B`))
}

func TestPool_ValueOf_concurrent(t *testing.T) {
	pool := newTestPool()

	const (
		goroutines = 64
		names      = 16
	)

	results := make([][names]*testConstant, goroutines)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := range names {
				v, err := pool.ValueOf(fmt.Sprintf(`name-%d`, j))
				if err != nil {
					t.Error(err)
					return
				}
				results[i][j] = v
			}
		}()
	}
	close(start)
	wg.Wait()

	for j := range names {
		for i := 1; i < goroutines; i++ {
			if results[i][j] != results[0][j] {
				t.Fatalf("goroutine %d observed a different instance for name-%d", i, j)
			}
		}
	}
}

func TestPool_NewInstance_duplicate(t *testing.T) {
	pool := newTestPool()

	a, err := pool.NewInstance(`X`)
	require.NoError(t, err)
	require.NotNil(t, a)

	b, err := pool.NewInstance(`X`)
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, ErrDuplicateName), err)

	// valueOf still returns the original
	c, err := pool.ValueOf(`X`)
	require.NoError(t, err)
	assert.Same(t, a, c)

	_, err = pool.ValueOf(`Y`)
	require.NoError(t, err)
	_, err = pool.NewInstance(`Y`)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestPool_NewInstance_concurrentSingleWinner(t *testing.T) {
	pool := newTestPool()

	const goroutines = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		failures int
	)
	start := make(chan struct{})
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := pool.NewInstance(`contended`)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if errors.Is(err, ErrDuplicateName) {
				failures++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, goroutines-1, failures)
}

func TestPool_emptyName(t *testing.T) {
	pool := newTestPool()

	_, err := pool.ValueOf(``)
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = pool.NewInstance(``)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.False(t, pool.Exists(``))
	assert.Panics(t, func() { pool.MustValueOf(``) })
}

func TestPool_uniqueIDs(t *testing.T) {
	pool := newTestPool()
	a := pool.MustValueOf(`a`)
	b := pool.MustValueOf(`b`)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, `github.com/joeycumines/go-transport/constant.testConstant#KEY`, QualifiedName((*testConstant)(nil), `KEY`))
	assert.Equal(t, `#KEY`, QualifiedName(nil, `KEY`))
}
