package connio

// Queue is a plain append-only buffer of values flowing between two
// adjacent filters in a Chain. A filter only ever appends to the queue
// it was handed as output, and only ever reads the queue it was handed
// as input — nothing in the type enforces that by itself, but every
// Chain-internal call site respects it, and Filter implementations
// built through NewChain never receive a queue they didn't just get
// from the chain itself.
type Queue struct {
	items []any
}

// Push appends v to the queue.
func (q *Queue) Push(v any) { q.items = append(q.items, v) }

// Drain returns and clears every queued item.
func (q *Queue) Drain() []any {
	items := q.items
	q.items = nil
	return items
}

// Filter transforms a stream of inbound (wire-to-application) or
// outbound (application-to-wire) values. Each method pushes its results
// to out and returns nothing; in a Chain, out becomes the next filter's
// input.
type Filter interface {
	// Inbound consumes data read off the wire (or produced by the
	// previous filter) and pushes zero or more results to out.
	Inbound(data []any, out *Queue)
	// Outbound consumes application values (or the previous filter's
	// output) and pushes zero or more wire-ready results to out.
	Outbound(data []any, out *Queue)
}

// OOBFilter is implemented by filters that need to observe out-of-band
// lifecycle events (Bind/Closing/Writable) rather than just data.
// A Filter that does not implement OOBFilter passes OOB events through
// unchanged (passthroughOOB).
type OOBFilter interface {
	Filter
	OOB(event OOBEvent, out *OOBQueue)
}

// Chain composes N filters over N+1 data queues per direction: the
// first and last are the chain's boundary queues and the N-1 between
// them are the intermediate queues, 2*(N-1) across both directions. OOB
// events travel over a parallel set of N+1 queues. With N=1 the single
// filter reads from and writes to the boundary queues directly.
type Chain struct {
	filters []Filter
	// inQueues[i] is the input to filters[i] in the inbound direction;
	// inQueues[0] is the chain's wire-side boundary, fed directly by
	// the I/O thread's read buffer drain.
	inQueues []Queue
	// outQueues[i+1] is the input to filters[i] in the outbound direction
	// and outQueues[i] its output; outQueues[0] is the chain's wire-side
	// boundary, whose contents PushOutbound returns for the deferred-write
	// queue.
	outQueues []Queue

	oobQueues []OOBQueue
}

// NewChain builds a Chain over filters, in wire-to-application order.
func NewChain(filters ...Filter) *Chain {
	n := len(filters)
	c := &Chain{
		filters:   filters,
		inQueues:  make([]Queue, n+1),
		outQueues: make([]Queue, n+1),
		oobQueues: make([]OOBQueue, n+1),
	}
	return c
}

// PushInbound feeds raw data (as decoded by the caller from the read
// buffer) into the chain and returns the application-level events that
// emerge from the far end.
func (c *Chain) PushInbound(data []any) []any {
	if len(c.filters) == 0 {
		return data
	}
	c.inQueues[0].items = append(c.inQueues[0].items, data...)
	for i, f := range c.filters {
		in := c.inQueues[i].Drain()
		f.Inbound(in, &c.inQueues[i+1])
	}
	return c.inQueues[len(c.filters)].Drain()
}

// PushOutbound feeds an application value into the chain and returns
// the wire-ready results that emerge at the wire-side boundary, applying
// filters in reverse order so the last-added filter is closest to the
// application and the first-added filter is closest to the wire.
func (c *Chain) PushOutbound(data []any) []any {
	if len(c.filters) == 0 {
		return data
	}
	last := len(c.filters)
	c.outQueues[last].items = append(c.outQueues[last].items, data...)
	for i := last - 1; i >= 0; i-- {
		in := c.outQueues[i+1].Drain()
		c.filters[i].Outbound(in, &c.outQueues[i])
	}
	return c.outQueues[0].Drain()
}

// PushOOB propagates an out-of-band event through every filter in
// wire-to-application order, collecting whatever each filter (or the
// passthrough default) forwards.
func (c *Chain) PushOOB(event OOBEvent) []OOBEvent {
	if len(c.filters) == 0 {
		return []OOBEvent{event}
	}
	c.oobQueues[0].Push(event)
	for i, f := range c.filters {
		in := c.oobQueues[i].Drain()
		out := &c.oobQueues[i+1]
		if oobf, ok := f.(OOBFilter); ok {
			for _, e := range in {
				oobf.OOB(e, out)
			}
		} else {
			passthroughOOB(in, out)
		}
	}
	return c.oobQueues[len(c.filters)].Drain()
}

func passthroughOOB(in []OOBEvent, out *OOBQueue) {
	for _, e := range in {
		out.Push(e)
	}
}
