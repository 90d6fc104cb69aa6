package eventtrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stage is one step an inbound event passed through.
type Stage string

const (
	StageReceived     Stage = "received"
	StageFirstSight   Stage = "first_sight"
	StageBotResolved  Stage = "bot_resolved"
	StageUserResolved Stage = "user_resolved"
	StageQueried      Stage = "queried"
	StageSent         Stage = "sent"
	StageDebugUpload  Stage = "debug_uploaded"

	StageDroppedPrefix = "dropped_"
)

// StageDropped creates a Stage for an event dropped for reason.
func StageDropped(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageDroppedPrefix, reason))
}

// EventTrace follows one inbound event from receipt to its terminal outcome.
// A nil *EventTrace is valid and records nothing.
type EventTrace struct {
	Platform string
	Channel  string
	User     string
	EventID  string
	TraceID  string

	start time.Time

	mu     sync.Mutex
	stages []Stage
}

func New(platform, channel, user, eventID string) *EventTrace {
	return &EventTrace{
		Platform: platform,
		Channel:  channel,
		User:     user,
		EventID:  eventID,
		TraceID:  computeTraceID(platform, channel, user, eventID),
		start:    time.Now(),
		stages:   []Stage{StageReceived},
	}
}

// Mark appends stage and returns how many stages have been recorded.
func (t *EventTrace) Mark(stage Stage) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, stage)
	return len(t.stages)
}

func (t *EventTrace) Stages() []Stage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Stage(nil), t.stages...)
}

// LogTrace logs the trace with structured logging.
func (t *EventTrace) LogTrace(logger *slog.Logger, msg string, attrs ...any) {
	if t == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{
		"trace_id", t.TraceID,
		"platform", t.Platform,
		"channel", t.Channel,
		"user", t.User,
		"event_id", t.EventID,
		"stages", t.Stages(),
		"elapsed_ms", time.Since(t.start).Milliseconds(),
	}
	logger.Info(msg, append(args, attrs...)...)
}

func computeTraceID(platform, channel, user, eventID string) string {
	digest := sha256.Sum256([]byte(platform + "\x1f" + channel + "\x1f" + user + "\x1f" + eventID))
	return hex.EncodeToString(digest[:8])
}
