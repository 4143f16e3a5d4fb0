package connio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTableExactBeatsWildcards(t *testing.T) {
	var got string
	b := NewStateTableBuilder()
	b.OnAny().Run(func(*Connection, Event) error { got = "any"; return nil })
	b.OnKind(KindClose).Run(func(*Connection, Event) error { got = "kind"; return nil })
	b.OnStatus(StatusActive).Run(func(*Connection, Event) error { got = "status"; return nil })
	b.On(StatusActive, KindClose).Run(func(*Connection, Event) error { got = "exact"; return nil })
	table := b.Build()

	err := table.Dispatch(StatusActive, nil, Event{Kind: KindClose})
	require.NoError(t, err)
	require.Equal(t, "exact", got)
}

func TestStateTableStatusWildcardBeatsKindWildcard(t *testing.T) {
	var got string
	b := NewStateTableBuilder()
	b.OnKind(KindClose).Run(func(*Connection, Event) error { got = "kind"; return nil })
	b.OnStatus(StatusActive).Run(func(*Connection, Event) error { got = "status"; return nil })
	table := b.Build()

	err := table.Dispatch(StatusActive, nil, Event{Kind: KindClose})
	require.NoError(t, err)
	require.Equal(t, "status", got)
}

func TestStateTableKindWildcardBeatsFullWildcard(t *testing.T) {
	var got string
	b := NewStateTableBuilder()
	b.OnAny().Run(func(*Connection, Event) error { got = "any"; return nil })
	b.OnKind(KindClose).Run(func(*Connection, Event) error { got = "kind"; return nil })
	table := b.Build()

	err := table.Dispatch(StatusActive, nil, Event{Kind: KindClose})
	require.NoError(t, err)
	require.Equal(t, "kind", got)
}

func TestStateTableMissIsProtocolViolation(t *testing.T) {
	table := NewStateTableBuilder().Build()
	err := table.Dispatch(StatusActive, nil, Event{Kind: KindClose})
	require.ErrorIs(t, err, ErrNoHandler)
}
