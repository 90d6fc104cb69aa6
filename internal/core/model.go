package core

import (
	"encoding/json"
	"time"
)

// Card is the visual card a skill attached to its response.
type Card struct {
	MainTitle string `json:"mainTitle,omitempty"`
	SubTitle  string `json:"subTitle,omitempty"`
	Content   string `json:"content,omitempty"`
	ImageURL  string `json:"imageURL,omitempty"`
}

// Skill identifies the voice skill that produced a response.
type Skill struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageURL,omitempty"`
}

type UserAttributes struct {
	AssociatedSkillIDs []string `json:"associatedSkillIDs,omitempty"`
	DebugEnabled       bool     `json:"debugEnabled,omitempty"`
}

type QueryUser struct {
	Attributes UserAttributes `json:"attributes"`
}

// RawExchange holds the request/response payloads the backend exchanged with
// the voice service. Only used for the debug relay.
type RawExchange struct {
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// QueryResult is one answer from the voice-assistant backend.
type QueryResult struct {
	Text      string      `json:"text,omitempty"`
	StreamURL string      `json:"streamURL,omitempty"`
	Card      *Card       `json:"card,omitempty"`
	Skill     *Skill      `json:"skill,omitempty"`
	User      QueryUser   `json:"user"`
	Raw       RawExchange `json:"raw"`
}

// Attachment is one formatted content block in an outbound reply.
type Attachment struct {
	AuthorName string `json:"author_name,omitempty"`
	AuthorIcon string `json:"author_icon,omitempty"`
	Color      string `json:"color,omitempty"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Outbound is a composed platform reply: a top-level body plus attachments.
type Outbound struct {
	Body        string
	Attachments []Attachment
}

// SendResult is what the messaging platform returned for a sent message.
type SendResult struct {
	OK        bool   `json:"ok"`
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}

// Outcome is the terminal state of one inbound event.
type Outcome string

const (
	OutcomeReplied          Outcome = "replied"
	OutcomeRegistered       Outcome = "registered"
	OutcomePrompted         Outcome = "prompted"
	OutcomeIgnoredSelf      Outcome = "ignored_self"
	OutcomeIgnoredInvalid   Outcome = "ignored_invalid"
	OutcomeIgnoredBot       Outcome = "ignored_bot"
	OutcomeNotAddressed     Outcome = "ignored_not_addressed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeNoSpeech         Outcome = "no_speech"
	OutcomeError            Outcome = "error"
)

// AuditEvent records the outcome of one inbound event for the audit log and
// live feeds.
type AuditEvent struct {
	ID        int64     `json:"id,omitempty"`
	Ts        time.Time `json:"ts"`
	Platform  string    `json:"platform"` // "slack" | "twitter"
	EventID   string    `json:"event_id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Query is one request to the voice-assistant backend.
type Query struct {
	Channel   string // originating platform label, e.g. "SLACK"
	ChannelID string
	UserID    string
	Text      string
	Token     string
}
