package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	name   string
	parent Agent
	subs   []Agent
}

func (a *stubAgent) Name() string                     { return a.name }
func (a *stubAgent) Description() string              { return "" }
func (a *stubAgent) Run(*InvocationContext) TurnResult { return TurnResult{} }
func (a *stubAgent) Parent() Agent                    { return a.parent }
func (a *stubAgent) SubAgents() []Agent               { return a.subs }
func (a *stubAgent) FindAgent(name string) Agent {
	if a.name == name {
		return a
	}
	for _, s := range a.subs {
		if f := s.FindAgent(name); f != nil {
			return f
		}
	}
	return nil
}

type recordingSessionStore struct {
	appended []Event
	fail     error
}

func (s *recordingSessionStore) Create(_ context.Context, _, _, id string) (*Session, error) {
	return NewSession(id), nil
}
func (s *recordingSessionStore) Get(context.Context, string) (*Session, error) {
	return nil, ErrSessionNotFound
}
func (s *recordingSessionStore) AppendEvent(_ context.Context, _ string, ev Event) error {
	if s.fail != nil {
		return s.fail
	}
	s.appended = append(s.appended, ev)
	return nil
}
func (s *recordingSessionStore) UpdateState(context.Context, string, map[string]any) error {
	return nil
}
func (s *recordingSessionStore) Delete(context.Context, string) error { return nil }

func newTestInvocation(t *testing.T, store SessionStore) *InvocationContext {
	t.Helper()
	root := &stubAgent{name: "root"}
	return NewInvocationContext(context.Background(), NewSession("sess"), root, RunConfig{}, Services{Sessions: store}, nil)
}

func TestInvocationContext_AppendEventStampsIdentity(t *testing.T) {
	store := &recordingSessionStore{}
	ic := newTestInvocation(t, store)

	stored, err := ic.AppendEvent(NewUserMessageEvent("hi"))
	require.NoError(t, err)

	assert.Equal(t, ic.InvocationID, stored.InvocationID)
	assert.Equal(t, "sess", stored.SessionID)
	require.Len(t, store.appended, 1)
	assert.Equal(t, stored.ID, store.appended[0].ID)
	assert.Equal(t, 1, ic.Session.Len())
}

func TestInvocationContext_AppendEventRejectsMismatch(t *testing.T) {
	ic := newTestInvocation(t, nil)

	foreignInv := NewUserMessageEvent("x")
	foreignInv.InvocationID = "someone-else"
	_, err := ic.AppendEvent(foreignInv)
	assert.ErrorIs(t, err, ErrInvocationMismatch)

	foreignSess := NewUserMessageEvent("x")
	foreignSess.SessionID = "other"
	_, err = ic.AppendEvent(foreignSess)
	assert.ErrorIs(t, err, ErrSessionMismatch)

	assert.Equal(t, 0, ic.Session.Len())
}

func TestInvocationContext_PersistFailureLeavesLogUntouched(t *testing.T) {
	store := &recordingSessionStore{fail: errors.New("disk full")}
	ic := newTestInvocation(t, store)

	_, err := ic.AppendEvent(NewUserMessageEvent("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, ic.Session.Len())
}

func TestInvocationContext_StagedStateFlushesOnAppend(t *testing.T) {
	ic := newTestInvocation(t, nil)

	ic.SetState("topic", "math")
	v, ok := ic.GetState("topic")
	require.True(t, ok)
	assert.Equal(t, "math", v)
	_, inSession := ic.Session.GetState("topic")
	assert.False(t, inSession, "staged state must not reach the session before append")

	stored, err := ic.AppendEvent(NewEvent(EventCustom, Source{Kind: SourceSystem}))
	require.NoError(t, err)

	assert.Equal(t, "math", stored.Actions.StateDelta["topic"])
	sv, _ := ic.Session.GetState("topic")
	assert.Equal(t, "math", sv)
	assert.Empty(t, ic.StateDelta)
}

func TestInvocationContext_NewChild(t *testing.T) {
	ic := newTestInvocation(t, nil)
	ic.Branch = "root"
	child := ic.NewChild(&stubAgent{name: "billing"})

	assert.Equal(t, "root.billing", child.Branch)
	assert.Equal(t, "billing", child.AgentName())
	assert.Same(t, ic, child.Parent)
	assert.Same(t, ic.Session, child.Session)
	assert.Equal(t, ic.InvocationID, child.InvocationID)

	ev, err := child.AppendEvent(NewUserMessageEvent("x"))
	require.NoError(t, err)
	assert.Equal(t, "root.billing", ev.Branch)
	assert.Equal(t, 1, ic.Session.Len())
}

func TestInvocationContext_EventsSinceMark(t *testing.T) {
	ic := newTestInvocation(t, nil)
	_, _ = ic.AppendEvent(NewUserMessageEvent("before"))
	mark := ic.Mark()
	_, _ = ic.AppendEvent(NewUserMessageEvent("after"))

	evs := ic.EventsSince(mark)
	require.Len(t, evs, 1)
	assert.Equal(t, "after", evs[0].Text())
}

func TestRootAgent(t *testing.T) {
	root := &stubAgent{name: "root"}
	mid := &stubAgent{name: "mid", parent: root}
	leaf := &stubAgent{name: "leaf", parent: mid}

	assert.Same(t, root, RootAgent(leaf))
	assert.Nil(t, RootAgent(nil))
}
