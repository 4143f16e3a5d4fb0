package connio

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// byteToStringFilter decodes []byte to string on the inbound path and
// encodes string to []byte on the outbound path.
type byteToStringFilter struct{}

func (byteToStringFilter) Inbound(data []any, out *Queue) {
	for _, v := range data {
		out.Push(string(v.([]byte)))
	}
}

func (byteToStringFilter) Outbound(data []any, out *Queue) {
	for _, v := range data {
		out.Push([]byte(v.(string)))
	}
}

// lineFrameFilter splits/join on newlines: inbound groups characters
// into lines, outbound appends a trailing newline.
type lineFrameFilter struct{ buf strings.Builder }

func (f *lineFrameFilter) Inbound(data []any, out *Queue) {
	for _, v := range data {
		s := v.(string)
		f.buf.WriteString(s)
		for {
			joined := f.buf.String()
			idx := strings.IndexByte(joined, '\n')
			if idx < 0 {
				break
			}
			out.Push(joined[:idx])
			f.buf.Reset()
			f.buf.WriteString(joined[idx+1:])
		}
	}
}

func (lineFrameFilter) Outbound(data []any, out *Queue) {
	for _, v := range data {
		out.Push(v.(string) + "\n")
	}
}

func TestChainSingleFilterShortCircuit(t *testing.T) {
	c := NewChain(byteToStringFilter{})
	out := c.PushInbound([]any{[]byte("hello")})
	require.Equal(t, []any{"hello"}, out)
}

func TestChainMultiFilterRoundTrip(t *testing.T) {
	c := NewChain(byteToStringFilter{}, &lineFrameFilter{})

	out := c.PushInbound([]any{[]byte("foo\nbar\nba")})
	require.Equal(t, []any{"foo", "bar"}, out)

	out = c.PushInbound([]any{[]byte("z\n")})
	require.Equal(t, []any{"baz"}, out)
}

func TestChainOutboundReversesFilterOrder(t *testing.T) {
	c := NewChain(byteToStringFilter{}, &lineFrameFilter{})
	out := c.PushOutbound([]any{"hi"})
	require.Len(t, out, 1)
	require.Equal(t, []byte("hi\n"), out[0].([]byte))
}

func TestChainEmptyIsIdentity(t *testing.T) {
	c := NewChain()
	data := []any{[]byte("raw")}
	require.Equal(t, data, c.PushInbound(data))
	require.Equal(t, data, c.PushOutbound(data))
}

type countingOOBFilter struct{ seen []OOBKind }

func (f *countingOOBFilter) Inbound(data []any, out *Queue)   {}
func (f *countingOOBFilter) Outbound(data []any, out *Queue)  {}
func (f *countingOOBFilter) OOB(e OOBEvent, out *OOBQueue) {
	f.seen = append(f.seen, e.Kind)
	out.Push(e)
}

func TestChainOOBPassthroughForNonOOBFilter(t *testing.T) {
	oobFilter := &countingOOBFilter{}
	c := NewChain(byteToStringFilter{}, oobFilter)
	out := c.PushOOB(OOBEvent{Kind: OOBBind})
	require.Len(t, out, 1)
	require.Equal(t, OOBBind, out[0].Kind)
	require.Equal(t, []OOBKind{OOBBind}, oobFilter.seen)
}

func TestChainRoundTripByteStringFrame(t *testing.T) {
	c := NewChain(byteToStringFilter{}, &lineFrameFilter{})
	msg := "message-" + strconv.Itoa(42)
	wire := c.PushOutbound([]any{msg})
	require.Len(t, wire, 1)

	var buf bytes.Buffer
	buf.Write(wire[0].([]byte))

	fresh := NewChain(byteToStringFilter{}, &lineFrameFilter{})
	decoded := fresh.PushInbound([]any{buf.Bytes()})
	require.Equal(t, []any{msg}, decoded)
}
