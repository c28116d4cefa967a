package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/testutil"
)

func TestStores_PreserveEventShape(t *testing.T) {
	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	stores := map[string]core.SessionStore{
		"memory": NewInMemoryStore(),
		"sqlite": sqlite,
	}

	events := []core.Event{
		testutil.NewEventBuilder().UserText("Send the invoice").Build(),
		testutil.NewEventBuilder().Author("root").Branch("root").
			FunctionCall("c1", "transfer_to_agent", `{"agent_name":"billing"}`).
			Kind(core.EventModelResponse).Build(),
		testutil.NewEventBuilder().Author("root").Branch("root").
			FunctionResponse("c1", "transfer_to_agent", "ok", nil).
			Transfer("billing").StateDelta("handoff", "billing").Build(),
		testutil.NewEventBuilder().Author("root").Branch("root").Kind(core.EventAgentTransfer).Build(),
		testutil.NewEventBuilder().Author("billing").Branch("root").Error(core.ErrCodeModel, "rate limited").Build(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Create(ctx, "app", "alice", "s-shape")
			require.NoError(t, err)

			for _, ev := range events {
				require.NoError(t, store.AppendEvent(ctx, "s-shape", ev))
			}

			sess, err := store.Get(ctx, "s-shape")
			require.NoError(t, err)
			require.Len(t, sess.Events, len(events))

			assert.True(t, sess.Events[0].IsFromUser())
			assert.Equal(t, "billing", sess.Events[2].TransferTarget())
			assert.Equal(t, "c1", sess.Events[1].FunctionCalls()[0].ID)
			assert.Equal(t, core.EventAgentTransfer, sess.Events[3].Kind)
			assert.Equal(t, "rate limited", sess.Events[4].Error.Message)
			assert.Equal(t, "billing", sess.StateSnapshot()["handoff"])
			for i, ev := range sess.Events {
				assert.Equal(t, events[i].ID, ev.ID)
				assert.Equal(t, "s-shape", ev.SessionID)
			}
		})
	}
}

func TestInMemoryStore_ClonesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Create(ctx, "app", "alice", "s1")
	require.NoError(t, err)

	seeded := testutil.NewSessionBuilder("s1").State("tier", "gold").
		Events(testutil.NewEventBuilder().UserText("hi").Build()).Build()
	for _, ev := range seeded.GetEvents() {
		require.NoError(t, store.AppendEvent(ctx, "s1", ev))
	}

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	got.SetState("tier", "silver")

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	_, ok := again.GetState("tier")
	assert.False(t, ok)
	assert.Len(t, again.Events, 1)
}
