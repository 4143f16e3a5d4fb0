package connio

import (
	"context"
	"fmt"
	"net"
)

// Manager owns one dispatch thread and a fixed pool of I/O threads; it
// is the entry point for creating connections and for coordinated
// shutdown (spec component C7).
type Manager struct {
	cfg      Config
	dispatch *DispatchThread
	ioThreads []*IOThread
	metrics  *managerMetrics
	logger   Logger

	nextConnID uint64
}

// NewManager constructs a Manager, starting its dispatch thread and
// NIOThreads I/O threads immediately.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	resolved, err := resolveConfig(cfg, opts)
	if err != nil {
		return nil, err
	}
	logger := getGlobalLogger()
	metrics := newManagerMetrics()

	ioThreads := make([]*IOThread, resolved.NIOThreads)
	for i := range ioThreads {
		iot, err := NewIOThread(fmt.Sprintf("io-%d", i), resolved, logger)
		if err != nil {
			return nil, err
		}
		if err := iot.Start(); err != nil {
			return nil, err
		}
		ioThreads[i] = iot
	}

	dispatch, err := NewDispatchThread(resolved, logger, ioThreads)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Start(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       resolved,
		dispatch:  dispatch,
		ioThreads: ioThreads,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// NewConnection creates a Connection in StatusVirgin, initially owned
// by the dispatch thread (every Connection starts life there, whether
// its eventual Init is InitConnect or InitAccept).
func (m *Manager) NewConnection(cfg ConnConfig) *Connection {
	m.nextConnID++
	return newConnection(m.nextConnID, m.dispatch.Thread, cfg, m.cfg, m.metrics.newConnMetrics())
}

// BoundAddresses returns every address currently bound via an
// InitAccept connection.
func (m *Manager) BoundAddresses() ([]net.Addr, error) {
	f, err := m.dispatch.Request(KindGetBoundAddresses, nil, nil)
	if err != nil {
		return nil, err
	}
	res, err := f.Get()
	if err != nil {
		return nil, err
	}
	addrs, _ := res.([]net.Addr)
	return addrs, nil
}

// Connections returns a snapshot of every connection currently owned by
// any thread in the manager (dispatch thread's pending accepts/connects
// plus every I/O thread's active connections).
func (m *Manager) Connections() ([]*Connection, error) {
	var all []*Connection
	threads := append([]*Thread{m.dispatch.Thread}, threadsOf(m.ioThreads)...)
	for _, th := range threads {
		f, err := th.Request(KindGetConnections, nil, nil)
		if err != nil {
			return nil, err
		}
		res, err := f.Get()
		if err != nil {
			return nil, err
		}
		conns, _ := res.([]*Connection)
		all = append(all, conns...)
	}
	return all, nil
}

func threadsOf(ioThreads []*IOThread) []*Thread {
	out := make([]*Thread, len(ioThreads))
	for i, t := range ioThreads {
		out[i] = t.Thread
	}
	return out
}

// Metrics returns a point-in-time snapshot of queue depth, byte counts
// and latency percentile fields across every live connection (see
// ManagerMetrics: the latency fields stay 0).
func (m *Manager) Metrics() ManagerMetrics {
	conns, err := m.Connections()
	if err != nil {
		return ManagerMetrics{}
	}
	return m.metrics.snapshot(conns)
}

// Close shuts the manager down: the dispatch thread errors its pending
// accepts/connects and exits, then every I/O thread errors its active
// connections with cause and exits, then Close returns. If ctx is
// canceled before shutdown completes, Close returns ctx.Err() without
// waiting further (the shutdown continues in the background).
func (m *Manager) Close(ctx context.Context) error {
	cause := ErrThreadClosed
	if err := ctx.Err(); err != nil {
		cause = err
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		if err := m.dispatch.Close(cause); err != nil {
			errs = append(errs, err)
		}
		for _, iot := range m.ioThreads {
			if err := iot.Close(cause); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) == 0 {
			done <- nil
			return
		}
		done <- &AggregateError{Errors: errs}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
