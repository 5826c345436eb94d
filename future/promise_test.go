package future

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-transport/logging"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goroutineID is used to assert which goroutine ran a listener.
func goroutineID() string {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	return string(b[:bytes.IndexByte(b, ' ')])
}

type testExecutor struct {
	inLoop bool
	logger *logging.Logger
}

func (x *testExecutor) InEventLoop() bool { return x.inLoop }

func (x *testExecutor) Logger() *logging.Logger { return x.logger }

func TestPromise_listenerAfterSettlement(t *testing.T) {
	p := New[int](nil)
	require.NoError(t, p.SetSuccess(7))

	caller := goroutineID()
	var (
		called bool
		got    int
		gid    string
	)
	p.AddListener(func(f Future[int]) {
		called = true
		got = f.Value()
		gid = goroutineID()
	})
	// synchronous, so no waiting is necessary
	assert.True(t, called)
	assert.Equal(t, 7, got)
	assert.Equal(t, caller, gid)
}

func TestPromise_listenersFIFOOnSettlingGoroutine(t *testing.T) {
	p := New[string](nil)

	var (
		order []int
		gids  []string
	)
	for i := range 2 {
		p.AddListener(func(f Future[string]) {
			assert.True(t, f.IsDone())
			assert.Equal(t, `ok`, f.Value())
			order = append(order, i)
			gids = append(gids, goroutineID())
		})
	}
	assert.Empty(t, order)

	settler := make(chan string, 1)
	go func() {
		settler <- goroutineID()
		assert.NoError(t, p.SetSuccess(`ok`))
	}()
	<-p.Done()
	settlerID := <-settler
	// listeners finish before SetSuccess returns, which may be after Done
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return !p.notifying
	}, time.Second, time.Millisecond)

	assert.Equal(t, []int{0, 1}, order)
	assert.Equal(t, []string{settlerID, settlerID}, gids)
}

func TestPromise_listenerAddedDuringNotification(t *testing.T) {
	p := New[int](nil)
	var order []string
	p.AddListener(func(f Future[int]) {
		order = append(order, `a`)
		f.AddListener(func(Future[int]) { order = append(order, `c`) })
	})
	p.AddListener(func(Future[int]) { order = append(order, `b`) })
	require.NoError(t, p.SetSuccess(1))
	assert.Equal(t, []string{`a`, `b`, `c`}, order)
}

func TestPromise_listenerPanicIsolated(t *testing.T) {
	var buf bytes.Buffer
	executor := &testExecutor{logger: logging.NewStumpy(&buf, logiface.LevelInformational)}
	p := New[int](executor)

	var ran []int
	p.AddListener(func(Future[int]) { ran = append(ran, 1) })
	p.AddListener(func(Future[int]) { panic(errors.New(`listener exploded`)) })
	p.AddListener(func(Future[int]) { ran = append(ran, 3) })

	require.NotPanics(t, func() {
		require.NoError(t, p.SetSuccess(1))
	})
	assert.Equal(t, []int{1, 3}, ran)
	assert.Contains(t, buf.String(), `listener exploded`)
	assert.Contains(t, buf.String(), `future: listener panicked`)
}

func TestPromise_listenerPanicPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(logging.NewStumpy(&buf, logiface.LevelInformational))
	defer SetLogger(nil)

	p := New[int](nil)
	p.AddListener(func(Future[int]) { panic(`plain value`) })
	require.NoError(t, p.SetSuccess(1))
	assert.Contains(t, buf.String(), `plain value`)
}

func TestPromise_secondSettlement(t *testing.T) {
	p := New[int](nil)
	require.NoError(t, p.SetSuccess(1))
	assert.ErrorIs(t, p.SetSuccess(2), ErrAlreadyCompleted)
	assert.ErrorIs(t, p.SetFailure(errors.New(`late`)), ErrAlreadyCompleted)
	assert.True(t, p.IsSuccess())
	assert.Equal(t, 1, p.Value())
	assert.NoError(t, p.Cause())

	f := New[int](nil)
	cause := errors.New(`first`)
	require.NoError(t, f.SetFailure(cause))
	assert.ErrorIs(t, f.SetSuccess(1), ErrAlreadyCompleted)
	assert.Same(t, cause, f.Cause())
	assert.Zero(t, f.Value())
}

func TestPromise_nilCause(t *testing.T) {
	p := New[int](nil)
	assert.ErrorIs(t, p.SetFailure(nil), ErrNilCause)
	assert.False(t, p.IsDone())
	assert.Panics(t, func() { Failed[int](nil, nil) })
}

func TestPromise_awaitDeadlock(t *testing.T) {
	executor := &testExecutor{inLoop: true}
	p := New[int](executor)

	done := make(chan error, 1)
	go func() { done <- p.Await(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDeadlock)
	case <-time.After(time.Second):
		t.Fatal(`expected Await to fail fast`)
	}
	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, ErrDeadlock)

	// settled futures never block, so waiting is permitted
	require.NoError(t, p.SetSuccess(3))
	v, err := p.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestPromise_awaitContext(t *testing.T) {
	p := New[int](&testExecutor{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Await(ctx), context.DeadlineExceeded)
}

func TestPromise_syncFromOtherGoroutine(t *testing.T) {
	p := New[int](&testExecutor{})
	cause := errors.New(`failed`)
	time.AfterFunc(5*time.Millisecond, func() { _ = p.SetFailure(cause) })
	assert.NoError(t, p.Await(context.Background()))
	assert.Same(t, cause, p.Sync(context.Background()))
}

func TestPromise_cancel(t *testing.T) {
	p := New[int](nil)
	var cause error
	p.AddListener(func(f Future[int]) { cause = f.Cause() })
	assert.True(t, p.IsCancellable())
	assert.True(t, p.Cancel())
	assert.True(t, p.IsCancelled())
	assert.True(t, p.IsDone())
	assert.ErrorIs(t, cause, ErrCancelled)
	assert.False(t, p.Cancel())
	assert.False(t, p.SetUncancellable())
	assert.ErrorIs(t, p.SetSuccess(1), ErrAlreadyCompleted)
}

func TestPromise_uncancellable(t *testing.T) {
	p := New[int](nil)
	assert.True(t, p.SetUncancellable())
	assert.False(t, p.IsCancellable())
	assert.False(t, p.Cancel())
	assert.False(t, p.IsDone())
	require.NoError(t, p.SetSuccess(1))
	assert.True(t, p.SetUncancellable())
}

func TestPromise_concurrentSettlement(t *testing.T) {
	p := New[int](nil)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.SetSuccess(i) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPanicError(t *testing.T) {
	err := PanicError{Value: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, strings.Contains(err.Error(), `context canceled`))
	assert.NoError(t, PanicError{Value: 1}.Unwrap())
}

func TestSucceededFailed(t *testing.T) {
	s := Succeeded[string](nil, `v`)
	assert.True(t, s.IsSuccess())
	assert.Equal(t, `v`, s.Value())

	f := Failed[string](nil, ErrCancelled)
	assert.True(t, f.IsDone())
	assert.False(t, f.IsCancelled())
	assert.ErrorIs(t, f.Cause(), ErrCancelled)
}
