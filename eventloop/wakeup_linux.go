//go:build linux

package eventloop

import (
	"golang.org/x/sys/unix"
)

// createWakeFD returns an eventfd, as both the read and write end.
func createWakeFD() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}
