//go:build windows

package reactor

// noopPoller.Wait already degrades to a bounded sleep, so there is no fd to
// register a wakeup against; Submit/ScheduleTimer rely on that bound rather
// than an interrupt. -1 tells Worker.Run to skip fd registration/signaling.
func newWakeDescriptor() (readFD, writeFD int, err error) { return -1, -1, nil }

func drainWakeIfUnix(fd int) {}

func signalWakeDescriptor(fd int) {}

func closeWakeDescriptor(readFD, writeFD int) {}
