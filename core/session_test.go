package core

import (
	"errors"
	"testing"
)

func TestSession_ApplyStateDeltaAndClone(t *testing.T) {
	s := NewSession("s1")

	s.ApplyStateDelta(map[string]any{"a": 1, "b": "x"})
	if v, ok := s.GetState("a"); !ok || v.(int) != 1 {
		t.Fatalf("state not applied: %+v", s.State)
	}

	clone := s.Clone()
	if clone == s {
		t.Error("clone should be a different pointer")
	}

	clone.SetState("c", 2)
	if _, exists := s.GetState("c"); exists {
		t.Error("original should not have clone's new key")
	}
}

func TestSession_AppendPreservesOrderAndIdentity(t *testing.T) {
	s := NewSession("s2")

	first := NewUserMessageEvent("hi")
	second := NewMessageEvent("assistant", NewTextContent(RoleAssistant, "hello"))

	for _, ev := range []Event{first, second, first} {
		if _, err := s.AppendEvent(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all := s.GetEvents()
	if len(all) != 3 {
		t.Fatalf("expected 3 events (no dedup), got %d", len(all))
	}
	want := []string{first.ID, second.ID, first.ID}
	for i, ev := range all {
		if ev.ID != want[i] {
			t.Errorf("event %d: got id %s want %s", i, ev.ID, want[i])
		}
		if ev.SessionID != "s2" {
			t.Errorf("event %d: session id not stamped", i)
		}
	}

	all[0].Kind = EventCustom
	if s.GetEvents()[0].Kind != EventMessage {
		t.Error("events slice should be copied on read")
	}
}

func TestSession_AppendRejectsForeignSession(t *testing.T) {
	s := NewSession("s3")
	ev := NewUserMessageEvent("hi")
	ev.SessionID = "other"

	if _, err := s.AppendEvent(ev); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("rejected event must not be appended")
	}
}

func TestSession_AppendMergesStateDelta(t *testing.T) {
	s := NewSession("s4")
	ev := NewEvent(EventCustom, Source{Kind: SourceSystem})
	ev.Actions.StateDelta = map[string]any{"k": "v"}

	before := s.Updated
	if _, err := s.AppendEvent(ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if v, _ := s.GetState("k"); v != "v" {
		t.Fatalf("delta not merged: %+v", s.State)
	}
	if s.Updated.Before(before) {
		t.Error("updated timestamp should advance")
	}
}

func TestSession_EventsSince(t *testing.T) {
	s := NewSession("s5")
	for i := 0; i < 4; i++ {
		_, _ = s.AppendEvent(NewUserMessageEvent("x"))
	}

	if got := len(s.EventsSince(1)); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	if got := s.EventsSince(10); got != nil {
		t.Fatalf("expected nil past the end, got %v", got)
	}
	if got := len(s.EventsSince(-1)); got != 4 {
		t.Fatalf("negative mark should return all, got %d", got)
	}
}
