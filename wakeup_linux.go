//go:build linux

package connio

import "golang.org/x/sys/unix"

const (
	efdCloexec = unix.EFD_CLOEXEC
	efdNonblock = unix.EFD_NONBLOCK
)

// createWakeFd creates a single eventfd used as both the read and write
// end of a thread's cross-goroutine wakeup signal.
func createWakeFd(initval, flags int) (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(uint32(initval), efdCloexec|efdNonblock|flags)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFd(readFd, writeFd int) error {
	return unix.Close(readFd)
}

// drainWakeUpPipe reads from fd until it would block, clearing any
// pending wakeup counter value.
func drainWakeUpPipe(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

// submitGenericWakeup writes a single wakeup tick to fd.
func submitGenericWakeup(fd uintptr) error {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(int(fd), buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}
