//go:build windows

package connio

// On Windows the wakeup signal is delivered by posting a zero-length
// completion packet directly to the completion port via
// PostQueuedCompletionStatus, rather than through a read/write fd pair;
// createWakeFd/closeWakeFd/drainWakeUpPipe exist only so Thread's
// plumbing stays uniform across platforms.

import "golang.org/x/sys/windows"

func createWakeFd(initval, flags int) (readFd, writeFd int, err error) {
	return -1, -1, nil
}

func closeWakeFd(readFd, writeFd int) error {
	return nil
}

func drainWakeUpPipe(fd int) {}

// submitGenericWakeup posts a completion packet to the port identified
// by fd (the port handle, stashed as a uintptr by Thread on Windows).
func submitGenericWakeup(fd uintptr) error {
	if fd == 0 {
		return nil
	}
	return windows.PostQueuedCompletionStatus(windows.Handle(fd), 0, 0, nil)
}
