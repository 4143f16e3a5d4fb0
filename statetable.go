package connio

// Handler runs in response to an Event being dispatched against a
// Connection in a given Status. It returns the error, if any, raised
// while handling the event — the caller is responsible for feeding that
// back through the connection's error slot and status transition.
type Handler func(conn *Connection, ev Event) error

// StateTable is a declarative (status, event kind) -> Handler binding
// table, compiled at construction time into a dense lookup array so
// dispatch never reflects or scans.
//
// Wildcard resolution order, most to least specific:
//
//  1. exact (status, kind)
//  2. (status, wildcard kind)
//  3. (wildcard status, kind)
//  4. (wildcard status, wildcard kind)
//
// A lookup miss (no entry at any of the four levels) is a protocol
// violation: the connection is forced toward StatusClosing with
// ErrNoHandler as its cause.
type StateTable struct {
	exact    [numStatuses][numEventKinds]Handler
	byStatus [numStatuses]Handler // (status, *)
	byKind   [numEventKinds]Handler
	anyAny   Handler
}

// StateTableBuilder accumulates bindings before Build compiles them.
type StateTableBuilder struct {
	table StateTable
}

// NewStateTableBuilder returns an empty builder.
func NewStateTableBuilder() *StateTableBuilder {
	return &StateTableBuilder{}
}

// binding is returned by On/OnStatus/OnKind/OnAny so callers chain .Run.
type binding struct {
	b      *StateTableBuilder
	status int // wildcardStatus for "any"
	kind   int // wildcardKind for "any"
}

// On binds an exact (status, kind) pair.
func (b *StateTableBuilder) On(status Status, kind EventKind) binding {
	return binding{b: b, status: int(status), kind: int(kind)}
}

// OnStatus binds every event kind for a given status (status, *).
func (b *StateTableBuilder) OnStatus(status Status) binding {
	return binding{b: b, status: int(status), kind: wildcardKind}
}

// OnKind binds every status for a given event kind (*, kind).
func (b *StateTableBuilder) OnKind(kind EventKind) binding {
	return binding{b: b, status: wildcardStatus, kind: int(kind)}
}

// OnAny binds the full wildcard (*, *), the last-resort fallback.
func (b *StateTableBuilder) OnAny() binding {
	return binding{b: b, status: wildcardStatus, kind: wildcardKind}
}

// Run registers handler for this binding.
func (bd binding) Run(handler Handler) *StateTableBuilder {
	switch {
	case bd.status != wildcardStatus && bd.kind != wildcardKind:
		bd.b.table.exact[bd.status][bd.kind] = handler
	case bd.status != wildcardStatus:
		bd.b.table.byStatus[bd.status] = handler
	case bd.kind != wildcardKind:
		bd.b.table.byKind[bd.kind] = handler
	default:
		bd.b.table.anyAny = handler
	}
	return bd.b
}

// Build finalizes the table for use.
func (b *StateTableBuilder) Build() *StateTable {
	t := b.table
	return &t
}

// Dispatch resolves and runs the handler for (status, kind) against
// conn/ev, applying wildcard priority. Returns ErrNoHandler if nothing
// matches at any level.
func (t *StateTable) Dispatch(status Status, conn *Connection, ev Event) error {
	if h := t.exact[int(status)][int(ev.Kind)]; h != nil {
		return h(conn, ev)
	}
	if h := t.byStatus[int(status)]; h != nil {
		return h(conn, ev)
	}
	if h := t.byKind[int(ev.Kind)]; h != nil {
		return h(conn, ev)
	}
	if t.anyAny != nil {
		return t.anyAny(conn, ev)
	}
	return ErrNoHandler
}
