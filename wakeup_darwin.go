//go:build darwin

package connio

import "golang.org/x/sys/unix"

// createWakeFd creates a non-blocking pipe used for cross-goroutine
// wakeup signals: kqueue has no eventfd equivalent, so a self-pipe is
// the portable choice here.
func createWakeFd(initval, flags int) (readFd, writeFd int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFd, writeFd int) error {
	_ = unix.Close(writeFd)
	return unix.Close(readFd)
}

// drainWakeUpPipe reads from fd until it would block.
func drainWakeUpPipe(fd int) {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

// submitGenericWakeup writes a single byte to the write end of the pipe.
func submitGenericWakeup(fd uintptr) error {
	buf := [1]byte{1}
	_, err := unix.Write(int(fd), buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}
