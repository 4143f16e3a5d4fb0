//go:build windows

package connio

import "net"

// bindListener, acceptFD, connectFD and finishConnect are thin stubs on
// Windows: connio's raw-fd accept/connect/IOCP path is sketched in
// poller_windows.go but is not wired to winsock AcceptEx/ConnectEx here.
// Production use on Windows should route through net.Listen/net.Dial
// and bridge *os.File descriptors into RegisterFD instead.

func bindListener(addr net.Addr, backlog int) (int, error) {
	return -1, &ArgumentError{Message: "bindListener: not implemented on windows"}
}

func acceptFD(listenFD int) (int, net.Addr, error) {
	return -1, nil, &ArgumentError{Message: "acceptFD: not implemented on windows"}
}

func connectFD(addr net.Addr) (int, error) {
	return -1, &ArgumentError{Message: "connectFD: not implemented on windows"}
}

func finishConnect(fd int) (bool, error) {
	return false, &ArgumentError{Message: "finishConnect: not implemented on windows"}
}
