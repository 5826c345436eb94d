package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-transport/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_roundRobinDeterministic(t *testing.T) {
	pattern := func() []int {
		g := startGroup(t, WithLoopCount(2))
		ctx := testContext(t)
		index := func(l *Loop) int {
			for i, v := range g.Loops() {
				if v == l {
					return i
				}
			}
			t.Fatal(`loop not in group`)
			return -1
		}

		a := newTestChannel(t)
		require.NoError(t, g.Register(a).Sync(ctx))
		got := []int{index(a.EventLoop())}

		for range 10 {
			b := newTestChannel(t)
			require.NoError(t, g.Register(b).Sync(ctx))
			got = append(got, index(b.EventLoop()))
		}
		return got
	}

	first := pattern()
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}, first)
	assert.Equal(t, first, pattern())
}

func TestRoundRobin_nonPowerOfTwo(t *testing.T) {
	loops := []*Loop{{}, {}, {}}
	c := RoundRobin(loops)
	for i := range 7 {
		assert.Same(t, loops[i%3], c.Next())
	}

	single := []*Loop{{}}
	c = RoundRobin(single)
	assert.Same(t, single[0], c.Next())
	assert.Same(t, single[0], c.Next())
}

func TestGroup_leastConnections(t *testing.T) {
	g := startGroup(t, WithLoopCount(3), WithChooser(LeastConnections))
	ctx := testContext(t)
	loops := g.Loops()

	var got []*Loop
	for range 4 {
		ch := newTestChannel(t)
		require.NoError(t, g.Register(ch).Sync(ctx))
		got = append(got, ch.EventLoop())
	}
	assert.Equal(t, []*Loop{loops[0], loops[1], loops[2], loops[0]}, got)
}

func TestGroup_random(t *testing.T) {
	g := startGroup(t, WithLoopCount(2), WithChooser(Random))
	for range 10 {
		l, err := g.Next()
		require.NoError(t, err)
		assert.Contains(t, g.Loops(), l)
	}
}

func TestGroup_randomSingleLiveLoop(t *testing.T) {
	g := startGroup(t, WithLoopCount(8), WithChooser(Random))
	ctx := testContext(t)
	loops := g.Loops()
	for _, l := range loops[:7] {
		require.NoError(t, l.ShutdownGracefully(0, 0).Await(ctx))
	}

	for range 1000 {
		l, err := g.Next()
		require.NoError(t, err)
		require.Same(t, loops[7], l)
	}
	require.NoError(t, g.Execute(func() {}))
}

func TestGroup_nextSkipsShuttingDown(t *testing.T) {
	g := startGroup(t, WithLoopCount(3))
	ctx := testContext(t)
	loops := g.Loops()
	require.NoError(t, loops[1].ShutdownGracefully(0, 0).Await(ctx))

	for range 6 {
		l, err := g.Next()
		require.NoError(t, err)
		assert.NotSame(t, loops[1], l)
	}
	assert.False(t, g.IsShuttingDown())

	require.NoError(t, g.ShutdownGracefully(0, time.Second).Await(ctx))
	assert.True(t, g.IsShuttingDown())
	assert.True(t, g.IsTerminated())
	_, err := g.Next()
	assert.ErrorIs(t, err, ErrGroupShuttingDown)
	assert.ErrorIs(t, g.Register(newTestChannel(t)).Cause(), ErrGroupShuttingDown)
	assert.ErrorIs(t, g.Execute(func() {}), ErrGroupShuttingDown)
	assert.ErrorIs(t, g.Schedule(func() {}, 0).Cause(), ErrGroupShuttingDown)

	p := future.New[Channel](nil)
	assert.Same(t, p, g.RegisterWithPromise(newTestChannel(t), p))
	assert.ErrorIs(t, p.Cause(), ErrGroupShuttingDown)
}

func TestGroup_shutdownForcedUnderLoad(t *testing.T) {
	const (
		quiet   = 100 * time.Millisecond
		timeout = time.Second
		epsilon = 500 * time.Millisecond
	)
	g, err := NewGroup(WithLoopCount(2))
	require.NoError(t, err)
	waitGroupRunning(t, g)

	// keep every loop busy, so the quiet period never elapses
	var stop atomic.Bool
	defer stop.Store(true)
	for _, l := range g.Loops() {
		go func() {
			for !stop.Load() && l.Execute(func() {}) == nil {
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)

	ctx := testContext(t)
	start := time.Now()
	f := g.ShutdownGracefully(quiet, timeout)
	require.NoError(t, f.Await(ctx))
	elapsed := time.Since(start)

	assert.True(t, f.IsSuccess())
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+epsilon)
	assert.True(t, g.IsTerminated())
}

func TestGroup_shutdownContext(t *testing.T) {
	g, err := NewGroup(WithLoopCount(2))
	require.NoError(t, err)
	waitGroupRunning(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// the default quiet period outlasts the context
	assert.ErrorIs(t, g.Shutdown(ctx), context.DeadlineExceeded)
	assert.True(t, g.IsShuttingDown())

	require.NoError(t, g.ShutdownGracefully(0, 0).Await(testContext(t)))
	assert.NoError(t, g.Shutdown(context.Background()))
}

func TestGroup_executeAndSchedule(t *testing.T) {
	g := startGroup(t, WithLoopCount(2))
	ctx := testContext(t)

	assert.False(t, g.InEventLoop())
	result := make(chan bool, 1)
	require.NoError(t, g.Execute(func() { result <- g.InEventLoop() }))
	assert.True(t, <-result)

	var ran atomic.Bool
	require.NoError(t, g.Schedule(func() { ran.Store(true) }, time.Millisecond).Sync(ctx))
	assert.True(t, ran.Load())
}

func TestGroup_awaitTerminationFromLoopFailsFast(t *testing.T) {
	g := startGroup(t, WithLoopCount(2))
	result := make(chan error, 1)
	require.NoError(t, g.Execute(func() { result <- g.TerminationFuture().Await(context.Background()) }))
	select {
	case err := <-result:
		assert.ErrorIs(t, err, future.ErrDeadlock)
	case <-time.After(5 * time.Second):
		t.Fatal(`await blocked on a loop goroutine`)
	}
}

func TestGroup_options(t *testing.T) {
	_, err := NewGroup(WithLoopCount(0))
	assert.Error(t, err)
	_, err = NewGroup(WithChooser(nil))
	assert.Error(t, err)
	_, err = NewGroup(WithLoopCount(1), WithLoopOptions(WithTaskBudget(-1)))
	assert.Error(t, err)

	g := startGroup(t, nil, WithLoopCount(1), WithLoopOptions(WithTaskBudget(7)))
	require.Len(t, g.Loops(), 1)
	assert.Equal(t, 7, g.Loops()[0].taskBudget)
	assert.Nil(t, g.Logger())
	assert.NoError(t, g.Close())
}
