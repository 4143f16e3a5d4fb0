// This file documents I/O event registration, backed by a
// platform-specific FastPoller implementation:
//   - Linux: epoll (poller_linux.go)
//   - Darwin/BSD: kqueue (poller_darwin.go)
//   - Windows: IOCP (poller_windows.go)
//
// Always call UnregisterFD before closing a file descriptor/handle, to
// prevent stale event delivery due to descriptor recycling.
package connio
