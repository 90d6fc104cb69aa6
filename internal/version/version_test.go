package version

import (
	"testing"
	"time"
)

func TestBuiltAt(t *testing.T) {
	orig := BuildTime
	t.Cleanup(func() { BuildTime = orig })

	BuildTime = "unknown"
	if !BuiltAt().IsZero() {
		t.Fatalf("expected zero time for unknown stamp")
	}
	BuildTime = "not a time"
	if !BuiltAt().IsZero() {
		t.Fatalf("expected zero time for bad stamp")
	}
	BuildTime = "2024-05-01T12:00:00Z"
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := BuiltAt(); !got.Equal(want) {
		t.Fatalf("BuiltAt = %v, want %v", got, want)
	}
}
