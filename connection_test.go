package connio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	mm := newManagerMetrics()
	cfg := Config{MinimumBufferSize: 64, MaximumBufferSize: 256}
	return newConnection(1, nil, ConnConfig{}, cfg, mm.newConnMetrics())
}

func TestConnectionStartsVirgin(t *testing.T) {
	c := newTestConnection(t)
	require.Equal(t, StatusVirgin, c.Status())
	require.Equal(t, uint64(1), c.ID())
}

func TestConnectionForceErrorFirstCauseWins(t *testing.T) {
	c := newTestConnection(t)
	first := errors.New("first")
	second := errors.New("second")
	c.forceError(first)
	c.forceError(second)
	require.Equal(t, first, c.Cause())
}

func TestConnectionCloseLockedIdempotent(t *testing.T) {
	c := newTestConnection(t)
	var closes int
	c.handler = recordingHandler{onClose: func(cause error) { closes++ }}

	require.NoError(t, c.closeLocked(ErrThreadClosed))
	require.NoError(t, c.closeLocked(errors.New("ignored, already closed")))
	require.Equal(t, StatusClosed, c.Status())
	require.Equal(t, 1, closes)
	require.ErrorIs(t, c.Cause(), ErrThreadClosed)
}

func TestConnectionErrorOnAlreadyClosedConnection(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.closeLocked(ErrThreadClosed))
	require.ErrorIs(t, c.Error(nil), ErrAlreadyClosed)
}

func TestConnectionGrowReadBufDoublesUpToMax(t *testing.T) {
	c := newTestConnection(t)
	require.NoError(t, c.growReadBuf(100))
	require.GreaterOrEqual(t, cap(c.readBuf), 100)
	require.LessOrEqual(t, cap(c.readBuf), c.maxSize)
}

func TestConnectionGrowReadBufExceedsMaxIsError(t *testing.T) {
	c := newTestConnection(t)
	err := c.growReadBuf(c.maxSize + 1)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConnectionPublishOOBWithoutChainReachesBus(t *testing.T) {
	c := newTestConnection(t)
	var got OOBEvent
	c.EventBus().Subscribe(OOBBind, func(e OOBEvent) { got = e })
	c.publishOOB(OOBEvent{Kind: OOBBind, Conn: c})
	require.Equal(t, OOBBind, got.Kind)
	require.Same(t, c, got.Conn)
}

func TestConnectionSetFilterChainAffectsPublishOOB(t *testing.T) {
	c := newTestConnection(t)
	oobFilter := &countingOOBFilter{}
	c.SetFilterChain(NewChain(oobFilter))

	var got int
	c.EventBus().Subscribe(OOBClosing, func(OOBEvent) { got++ })
	c.publishOOB(OOBEvent{Kind: OOBClosing, Conn: c})
	require.Equal(t, 1, got)
	require.Equal(t, []OOBKind{OOBClosing}, oobFilter.seen)
}

type recordingHandler struct {
	onBind    func()
	onReceive func(batch []any)
	onClosing func(cause error, pending [][]byte)
	onClose   func(cause error)
	onError   func(cause error, optionalBuffer []byte)
}

func (h recordingHandler) OnBind(conn *Connection) {
	if h.onBind != nil {
		h.onBind()
	}
}

func (h recordingHandler) OnReceive(conn *Connection, batch []any) {
	if h.onReceive != nil {
		h.onReceive(batch)
	}
}

func (h recordingHandler) OnClosing(conn *Connection, cause error, pending [][]byte) {
	if h.onClosing != nil {
		h.onClosing(cause, pending)
	}
}

func (h recordingHandler) OnClose(conn *Connection, cause error) {
	if h.onClose != nil {
		h.onClose(cause)
	}
}

func (h recordingHandler) OnError(conn *Connection, cause error, optionalBuffer []byte) {
	if h.onError != nil {
		h.onError(cause, optionalBuffer)
	}
}
