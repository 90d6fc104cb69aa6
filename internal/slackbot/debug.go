package slackbot

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/eventtrace"
)

// debugWanted reports whether the user asked for raw payloads of this skill.
func debugWanted(result core.QueryResult) bool {
	attrs := result.User.Attributes
	if !attrs.DebugEnabled || result.Skill == nil {
		return false
	}
	id := NormalizeSkillID(result.Skill.ID)
	if id == "" {
		return false
	}
	for _, candidate := range attrs.AssociatedSkillIDs {
		if NormalizeSkillID(candidate) == id {
			return true
		}
	}
	return false
}

// NormalizeSkillID lowercases id and drops punctuation.
func NormalizeSkillID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, id)
}

func prettyJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// relayDebug uploads the raw request and response next to the reply. It runs
// after the reply was sent; failures are logged and counted only.
func (b *Bot) relayDebug(ctx context.Context, token, channel string, result core.QueryResult, trace *eventtrace.EventTrace) {
	if !debugWanted(result) {
		return
	}
	files := []struct {
		name, title string
		body        json.RawMessage
	}{
		{"request.json", "Request", result.Raw.Request},
		{"response.json", "Response", result.Raw.Response},
	}
	for _, f := range files {
		if err := b.sender.UploadFile(ctx, token, channel, f.name, f.title, prettyJSON(f.body)); err != nil {
			b.logger.Warn("slackbot: debug upload failed", "file", f.name, "channel", channel, "err", err)
			b.metrics.IncDebugUploads("error")
			continue
		}
		b.metrics.IncDebugUploads("ok")
		trace.Mark(eventtrace.StageDebugUpload)
	}
}
