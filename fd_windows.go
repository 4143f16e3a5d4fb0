//go:build windows

package connio

import "golang.org/x/sys/windows"

func closeFD(fd int) error {
	return windows.CloseHandle(windows.Handle(fd))
}

func readFD(fd int, buf []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(windows.Handle(fd), buf, &n, nil)
	return int(n), err
}

func writeFD(fd int, buf []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(windows.Handle(fd), buf, &n, nil)
	return int(n), err
}
