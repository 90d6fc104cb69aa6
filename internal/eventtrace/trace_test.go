package eventtrace

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTraceIDDeterminism(t *testing.T) {
	first := New("slack", "C1", "U1", "Ev1")
	second := New("slack", "C1", "U1", "Ev1")
	if first.TraceID != second.TraceID {
		t.Fatalf("expected deterministic trace id, got %q and %q", first.TraceID, second.TraceID)
	}

	different := New("slack", "C1", "U1", "Ev2")
	if first.TraceID == different.TraceID {
		t.Fatalf("expected different trace id when event id changes")
	}
}

func TestMarkRecordsStagesInOrder(t *testing.T) {
	trace := New("slack", "D1", "U1", "Ev1")

	if n := trace.Mark(StageFirstSight); n != 2 {
		t.Fatalf("expected 2 stages, got %d", n)
	}
	trace.Mark(StageDropped("bot"))

	got := trace.Stages()
	want := []Stage{StageReceived, StageFirstSight, "dropped_bot"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestNilTraceIsNoop(t *testing.T) {
	var trace *EventTrace
	if trace.Mark(StageSent) != 0 {
		t.Fatalf("expected nil trace to record nothing")
	}
	trace.LogTrace(nil, "ignored")
}

func TestLogTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	trace := New("twitter", "", "alice", "123")
	trace.Mark(StageSent)
	trace.LogTrace(logger, "event done", "outcome", "replied")

	out := buf.String()
	for _, want := range []string{"event done", "platform=twitter", "event_id=123", "outcome=replied"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}
