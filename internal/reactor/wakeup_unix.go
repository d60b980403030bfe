//go:build linux || darwin

package reactor

import "golang.org/x/sys/unix"

// newWakeDescriptor returns a (readFD, writeFD) pair the worker registers
// with its poller so that Submit/ScheduleTimer from another goroutine can
// interrupt Wait. Linux gets a single eventfd; Darwin has no eventfd
// equivalent, so it falls back to a pipe(2) pair.
func newWakeDescriptor() (readFD, writeFD int, err error) {
	if fd, ok := tryEventfd(); ok {
		return fd, fd, nil
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func drainWakeIfUnix(fd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

func signalWakeDescriptor(fd int) {
	one := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, _ = unix.Write(fd, one[:])
}

func closeWakeDescriptor(readFD, writeFD int) {
	_ = unix.Close(readFD)
	if writeFD != readFD {
		_ = unix.Close(writeFD)
	}
}
