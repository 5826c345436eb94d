package eventloop

import (
	"container/heap"
	"time"

	"github.com/joeycumines/go-transport/future"
)

// scheduledTask is a task with a deadline. The promise doubles as the
// cancellation flag: the task only runs if it can be made uncancellable.
type scheduledTask struct {
	when    time.Time
	task    func()
	promise *future.Promise[struct{}]
	seq     uint64
}

// timerHeap is a min-heap of scheduled tasks, by deadline then submission
// order. Owned by the loop goroutine.
type timerHeap []*scheduledTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*scheduledTask))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// peek returns the earliest live timer, discarding cancelled ones.
func (h *timerHeap) peek() *scheduledTask {
	for h.Len() > 0 {
		t := (*h)[0]
		if !t.promise.IsCancelled() {
			return t
		}
		heap.Pop(h)
	}
	return nil
}

// Schedule runs task on the loop after delay, returning a future that
// settles when the task has run, fails with a [future.PanicError] if it
// panicked, and may be cancelled while the task is pending. Tasks with
// equal deadlines run in submission order. Fails with [ErrLoopShuttingDown]
// once shutdown has begun.
func (l *Loop) Schedule(task func(), delay time.Duration) future.Future[struct{}] {
	if task == nil {
		return future.Failed[struct{}](l, ErrNilTask)
	}
	if l.state.IsShuttingDown() {
		return future.Failed[struct{}](l, ErrLoopShuttingDown)
	}
	if delay < 0 {
		delay = 0
	}
	t := &scheduledTask{
		when:    time.Now().Add(delay),
		task:    task,
		promise: future.New[struct{}](l),
		seq:     l.timerSeq.Add(1),
	}
	if err := l.Execute(func() { l.addTimer(t) }); err != nil {
		_ = t.promise.SetFailure(err)
	}
	return t.promise
}

func (l *Loop) addTimer(t *scheduledTask) {
	// accepted before shutdown began, so treated like any other pending timer
	if l.state.IsShuttingDown() {
		t.promise.Cancel()
		return
	}
	if t.promise.IsDone() {
		return
	}
	heap.Push(&l.timers, t)
}

// runTimers executes all expired timers.
func (l *Loop) runTimers() {
	now := time.Now()
	for {
		t := l.timers.peek()
		if t == nil || t.when.After(now) {
			return
		}
		heap.Pop(&l.timers)
		l.runTimer(t)
	}
}

func (l *Loop) runTimer(t *scheduledTask) {
	if !t.promise.SetUncancellable() {
		return
	}
	l.lastExecution = time.Now()
	if r := l.safeExecute(t.task); r != nil {
		_ = t.promise.SetFailure(future.PanicError{Value: r})
		return
	}
	_ = t.promise.SetSuccess(struct{}{})
}

// cancelTimers is called once shutdown begins.
func (l *Loop) cancelTimers() {
	timers := l.timers
	l.timers = nil
	for _, t := range timers {
		t.promise.Cancel()
	}
}
