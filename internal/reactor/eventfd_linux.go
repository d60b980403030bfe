//go:build linux

package reactor

import "golang.org/x/sys/unix"

func tryEventfd() (int, bool) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, false
	}
	return fd, true
}
