package connio

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID extracts the calling goroutine's runtime ID by
// parsing the header of its own stack trace. It exists purely for the
// isOwnerGoroutine sanity check; nothing in the hot path depends on it.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
