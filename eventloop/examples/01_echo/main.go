// Example: Echo Channel
//
// This example demonstrates:
// - Loading group, logging and channel options from YAML
// - Registering a channel with a group
// - Handling readiness events on the loop goroutine, without locks
// - Pausing reads using the write buffer watermark
//
// Run with: go run ./examples/01_echo/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/go-transport/config"
	"github.com/joeycumines/go-transport/eventloop"
	"github.com/joeycumines/go-transport/future"
	"github.com/joeycumines/go-transport/option"
	"golang.org/x/sys/unix"
)

const configYAML = `
group:
  loops: 2
  shutdown:
    quiet_period: 100ms
    timeout: 2s
logging:
  level: info
  format: console
options:
  WRITE_BUFFER_WATER_MARK: {low: 1024, high: 4096}
`

// echoChannel writes back everything it reads. All fields are owned by the
// loop goroutine.
type echoChannel struct {
	eventloop.ChannelBase
	fd        int
	waterMark option.WaterMark
	pending   []byte
	paused    bool
	eof       bool
}

func (x *echoChannel) FD() int { return x.fd }

func (x *echoChannel) ChannelRegistered() {
	x.EventLoop().Logger().Info().
		Int(`fd`, x.fd).
		Stringer(`water_mark`, x.waterMark).
		Log(`echo: registered`)
}

func (x *echoChannel) HandleIO(events eventloop.IOEvents) {
	if events&eventloop.EventWrite != 0 {
		x.flush()
	}
	if events&(eventloop.EventRead|eventloop.EventHangup) != 0 {
		x.read()
		x.flush()
	}
	if x.eof && len(x.pending) == 0 {
		x.close()
		return
	}
	x.updateInterest()
}

func (x *echoChannel) read() {
	var buf [512]byte
	for !x.paused {
		n, err := unix.Read(x.fd, buf[:])
		if n > 0 {
			x.pending = append(x.pending, buf[:n]...)
			if len(x.pending) >= x.waterMark.High {
				x.paused = true
			}
			continue
		}
		if !errors.Is(err, unix.EAGAIN) {
			// eof, or a connection error
			x.eof = true
		}
		return
	}
}

func (x *echoChannel) flush() {
	for len(x.pending) != 0 {
		n, err := unix.Write(x.fd, x.pending)
		if n <= 0 || err != nil {
			break
		}
		x.pending = x.pending[n:]
	}
	if x.paused && len(x.pending) <= x.waterMark.Low {
		x.paused = false
	}
}

func (x *echoChannel) updateInterest() {
	var interest eventloop.IOEvents
	if !x.paused && !x.eof {
		interest |= eventloop.EventRead
	}
	if len(x.pending) != 0 {
		interest |= eventloop.EventWrite
	}
	if interest != x.Interest() {
		if err := x.SetInterest(interest); err != nil {
			x.EventLoop().Logger().Err().Err(err).Log(`echo: failed to update interest`)
		}
	}
}

func (x *echoChannel) close() {
	x.EventLoop().Deregister(x).AddListener(func(f future.Future[struct{}]) {
		_ = unix.Close(x.fd)
		x.EventLoop().Logger().Info().
			Int(`fd`, x.fd).
			Err(f.Cause()).
			Log(`echo: closed`)
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(strings.NewReader(configYAML))
	if err != nil {
		return err
	}
	logger, closer, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer closer.Close()

	opts, err := cfg.GroupOptions(logger)
	if err != nil {
		return err
	}
	group, err := eventloop.NewGroup(opts...)
	if err != nil {
		return err
	}
	defer func() {
		quiet, timeout := cfg.ShutdownPeriods()
		_ = group.ShutdownGracefully(quiet, timeout).Await(context.Background())
		fmt.Println("group terminated")
	}()

	channelConfig, err := cfg.ChannelConfig()
	if err != nil {
		return err
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}
	client := fds[1]
	defer unix.Close(client)
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := &echoChannel{
		fd:        fds[0],
		waterMark: option.GetOr(channelConfig, option.WriteBufferWaterMark, option.DefaultWaterMark),
	}
	if err := group.Register(server).Sync(ctx); err != nil {
		return err
	}

	for i := range 3 {
		msg := []byte(fmt.Sprintf("hello %d\n", i))
		if _, err := unix.Write(client, msg); err != nil {
			return err
		}
		reply := make([]byte, len(msg))
		if err := readFull(client, reply); err != nil {
			return err
		}
		if !bytes.Equal(msg, reply) {
			return errors.New("unexpected reply")
		}
		fmt.Printf("echoed: %s", reply)
	}

	// larger than the high watermark, so reads pause until the client
	// catches up
	payload := bytes.Repeat([]byte{'x'}, 64*1024)
	go func() { _, _ = unix.Write(client, payload) }()
	reply := make([]byte, len(payload))
	if err := readFull(client, reply); err != nil {
		return err
	}
	fmt.Printf("echoed %d bytes\n", len(reply))

	return unix.Shutdown(client, unix.SHUT_WR)
}

func readFull(fd int, b []byte) error {
	for len(b) != 0 {
		n, err := unix.Read(fd, b)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("unexpected eof")
		}
		b = b[n:]
	}
	return nil
}
