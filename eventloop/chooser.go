package eventloop

import (
	"math/bits"
	"math/rand/v2"
	"sync/atomic"
)

type (
	// Chooser selects the loop for the next registration or task. It must
	// be safe for concurrent use. A [Group] skips loops that are shutting
	// down, by calling Next up to once per loop.
	Chooser interface {
		Next() *Loop
	}

	// ChooserFactory creates a [Chooser] for a group's loops, which are
	// never empty.
	ChooserFactory func(loops []*Loop) Chooser

	roundRobin struct {
		loops []*Loop
		idx   atomic.Uint64
		mask  uint64
	}

	leastConnections struct {
		loops []*Loop
	}

	random struct {
		loops []*Loop
	}
)

var (
	_ ChooserFactory = RoundRobin
	_ ChooserFactory = LeastConnections
	_ ChooserFactory = Random
)

// RoundRobin selects each loop in turn, in order, starting with the first.
func RoundRobin(loops []*Loop) Chooser {
	c := &roundRobin{loops: loops}
	if n := uint64(len(loops)); bits.OnesCount64(n) == 1 {
		c.mask = n - 1
	}
	return c
}

func (x *roundRobin) Next() *Loop {
	i := x.idx.Add(1) - 1
	if x.mask != 0 || len(x.loops) == 1 {
		return x.loops[i&x.mask]
	}
	return x.loops[i%uint64(len(x.loops))]
}

// LeastConnections selects the loop with the fewest registered channels,
// preferring the first, on ties.
func LeastConnections(loops []*Loop) Chooser {
	return &leastConnections{loops: loops}
}

func (x *leastConnections) Next() *Loop {
	var (
		best  *Loop
		count int
	)
	for _, l := range x.loops {
		if l.IsShuttingDown() {
			continue
		}
		if n := l.ChannelCount(); best == nil || n < count {
			best, count = l, n
		}
	}
	if best == nil {
		return x.loops[0]
	}
	return best
}

// Random selects a loop uniformly at random.
func Random(loops []*Loop) Chooser {
	return &random{loops: loops}
}

func (x *random) Next() *Loop {
	return x.loops[rand.IntN(len(x.loops))]
}
