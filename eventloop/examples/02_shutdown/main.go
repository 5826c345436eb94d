// Example: Shutdown Handling
//
// This example demonstrates:
// - Scheduling and cancelling tasks
// - Graceful shutdown, with a quiet period
// - Forced termination, when a loop never goes quiet
//
// Run with: go run ./examples/02_shutdown/
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-transport/eventloop"
	"github.com/joeycumines/go-transport/future"
	"github.com/joeycumines/go-transport/logging"
	"github.com/joeycumines/logiface"
)

func main() {
	logger := logging.NewStumpy(os.Stdout, logiface.LevelDebug)
	scheduleExample(logger)
	forcedShutdownExample(logger)
}

func scheduleExample(logger *logging.Logger) {
	fmt.Println("\n=== Scheduled Tasks ===")

	group, err := eventloop.NewGroup(eventloop.WithLoopCount(2), eventloop.WithGroupLogger(logger))
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	first := group.Schedule(func() { fmt.Println("Task 1: ran after 10ms") }, 10*time.Millisecond)
	second := group.Schedule(func() { fmt.Println("Task 2: never runs") }, time.Hour)
	second.AddListener(func(f future.Future[struct{}]) {
		fmt.Println("Task 2: cancelled =", f.IsCancelled())
	})

	_ = first.Sync(ctx)
	second.Cancel()

	start := time.Now()
	_ = group.ShutdownGracefully(50*time.Millisecond, time.Second).Await(ctx)
	fmt.Printf("Terminated after %v\n", time.Since(start).Round(10*time.Millisecond))
}

func forcedShutdownExample(logger *logging.Logger) {
	fmt.Println("\n=== Forced Shutdown ===")

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	go func() { _ = loop.Run(context.Background()) }()

	var stop atomic.Bool
	var count atomic.Int64
	go func() {
		for !stop.Load() && loop.Execute(func() { count.Add(1) }) == nil {
			time.Sleep(10 * time.Millisecond)
		}
	}()
	defer stop.Store(true)

	start := time.Now()
	_ = loop.ShutdownGracefully(100*time.Millisecond, 500*time.Millisecond).Await(context.Background())
	fmt.Printf("Terminated after %v, having run %d tasks\n", time.Since(start).Round(10*time.Millisecond), count.Load())
}
