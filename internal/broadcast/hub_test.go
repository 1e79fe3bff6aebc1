package broadcast

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBroadcastReachesChannelSubscribersOnly(t *testing.T) {
	h := testHub()

	var got1, got2, other []any
	h.Subscribe("s1", func(p any) error { got1 = append(got1, p); return nil })
	h.Subscribe("s1", func(p any) error { got2 = append(got2, p); return nil })
	h.Subscribe("s2", func(p any) error { other = append(other, p); return nil })

	h.Broadcast("s1", "hello")

	require.Equal(t, []any{"hello"}, got1)
	require.Equal(t, []any{"hello"}, got2)
	require.Empty(t, other)
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	h := testHub()

	var alive int
	h.Subscribe("s1", func(any) error { return errors.New("gone") })
	h.Subscribe("s1", func(any) error { alive++; return nil })

	h.Broadcast("s1", 1)
	h.Broadcast("s1", 2)

	require.Equal(t, 2, alive)
	require.Len(t, h.channels["s1"], 1)
}

func TestUnsubscribeRemovesEmptyChannels(t *testing.T) {
	h := testHub()

	id := h.Subscribe("s1", func(any) error { return nil })
	h.Unsubscribe("s1", id)

	require.NotContains(t, h.channels, "s1")

	// Unsubscribing something unknown is harmless.
	h.Unsubscribe("s1", "nope")
	h.Broadcast("s1", "void")
}
