package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// waitLoopState waits for a loop to reach a specific state within a timeout.
// StateRunning also accepts StateSleeping.
func waitLoopState(t *testing.T, loop *Loop, expected LoopState, timeout time.Duration) {
	t.Helper()
	matches := func() bool {
		state := loop.State()
		if expected == StateRunning && state == StateSleeping {
			return true
		}
		return state == expected
	}
	deadline := time.Now().Add(timeout)
	for !matches() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !matches() {
		t.Fatalf("Loop failed to reach %v state (got %v)", expected, loop.State())
	}
}

// startLoop runs a new loop until the end of the test.
func startLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()
	waitLoopState(t, loop, StateRunning, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, loop.ShutdownGracefully(0, time.Second).Await(ctx))
		select {
		case err := <-runErr:
			assert.NoError(t, err)
		case <-ctx.Done():
			t.Error(`loop did not exit`)
		}
	})
	return loop
}

// startGroup runs a new group until the end of the test.
func startGroup(t *testing.T, opts ...GroupOption) *Group {
	t.Helper()
	g, err := NewGroup(opts...)
	require.NoError(t, err)
	waitGroupRunning(t, g)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, g.ShutdownGracefully(0, time.Second).Await(ctx))
	})
	return g
}

func waitGroupRunning(t *testing.T, g *Group) {
	t.Helper()
	for _, l := range g.Loops() {
		waitLoopState(t, l, StateRunning, time.Second)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testChannel is one end of a unix socketpair, recording the goroutine of
// each callback.
type testChannel struct {
	ChannelBase
	fd           int
	peer         int
	mu           sync.Mutex
	gids         []uint64
	registeredID uint64
	events       chan IOEvents
	data         chan []byte
}

func newTestChannel(t *testing.T) *testChannel {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return &testChannel{
		fd:     fds[0],
		peer:   fds[1],
		events: make(chan IOEvents, 64),
		data:   make(chan []byte, 64),
	}
}

func (x *testChannel) FD() int { return x.fd }

func (x *testChannel) ChannelRegistered() {
	x.mu.Lock()
	x.registeredID = getGoroutineID()
	x.mu.Unlock()
}

func (x *testChannel) HandleIO(events IOEvents) {
	x.record()
	select {
	case x.events <- events:
	default:
	}
	if events&EventRead == 0 {
		return
	}
	var buf [512]byte
	for {
		n, err := unix.Read(x.fd, buf[:])
		if n > 0 {
			x.data <- append([]byte(nil), buf[:n]...)
			continue
		}
		if !errors.Is(err, unix.EAGAIN) {
			// eof or error
			_ = x.SetInterest(0)
		}
		return
	}
}

func (x *testChannel) record() {
	x.mu.Lock()
	x.gids = append(x.gids, getGoroutineID())
	x.mu.Unlock()
}

func (x *testChannel) goroutines() (registered uint64, callbacks []uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.registeredID, append([]uint64(nil), x.gids...)
}

func (x *testChannel) send(t *testing.T, b string) {
	t.Helper()
	_, err := unix.Write(x.peer, []byte(b))
	require.NoError(t, err)
}
