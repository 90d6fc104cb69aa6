package slackbot

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/slack-go/slack/slackevents"
)

// MessageType tells which inbound surface a Message came from.
type MessageType int

const (
	TypeCommand MessageType = iota
	TypeMessage
)

func (t MessageType) String() string {
	if t == TypeCommand {
		return "command"
	}
	return "message"
}

// Message is the canonical shape of one inbound Slack event or slash command.
// It is built once per inbound call and never modified afterwards.
type Message struct {
	Type         MessageType
	ChannelID    string
	TeamID       string
	UserID       string
	Text         string
	AuthedUserID string
	EventID      string
	AppID        string

	// Fields of the nested event used by the loop guards.
	BotID    string
	Username string
	Subtype  string

	RawPayload json.RawMessage
	valid      bool
}

type callbackEnvelope struct {
	Type        string          `json:"type"`
	TeamID      string          `json:"team_id"`
	APIAppID    string          `json:"api_app_id"`
	EventID     string          `json:"event_id"`
	AuthedUsers []string        `json:"authed_users"`
	Event       json.RawMessage `json:"event"`
}

type messageEvent struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text"`
	BotID    string `json:"bot_id"`
	Username string `json:"username"`
	Subtype  string `json:"subtype"`
}

// commandFields are the form fields a slash command must carry.
var commandFields = []string{"channel_id", "team_id", "text", "user_id"}

// FromMessage parses an Events API callback. It never fails: a payload whose
// nested event is not a "message" yields a Message with Valid() == false.
func FromMessage(payload []byte) Message {
	msg := Message{Type: TypeMessage, RawPayload: json.RawMessage(payload)}

	var env callbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return msg
	}
	msg.EventID = env.EventID
	msg.TeamID = env.TeamID
	msg.AppID = env.APIAppID
	if len(env.AuthedUsers) > 0 {
		msg.AuthedUserID = env.AuthedUsers[0]
	}

	if len(env.Event) == 0 {
		return msg
	}
	var ev messageEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return msg
	}
	if ev.Type != string(slackevents.Message) {
		return msg
	}

	msg.ChannelID = ev.Channel
	msg.UserID = ev.User
	msg.Text = ev.Text
	msg.BotID = ev.BotID
	msg.Username = ev.Username
	msg.Subtype = ev.Subtype
	msg.valid = true
	return msg
}

// FromCommand parses slash-command form fields. The command is valid when
// every required field is present, even if empty.
func FromCommand(form url.Values) Message {
	msg := Message{
		Type:      TypeCommand,
		ChannelID: form.Get("channel_id"),
		TeamID:    form.Get("team_id"),
		Text:      form.Get("text"),
		UserID:    form.Get("user_id"),
		AppID:     form.Get("api_app_id"),
	}
	if raw, err := json.Marshal(form); err == nil {
		msg.RawPayload = raw
	}

	msg.valid = true
	for _, field := range commandFields {
		if !form.Has(field) {
			msg.valid = false
			break
		}
	}
	return msg
}

func (m Message) Valid() bool { return m.valid }

// IsDirect reports whether the message arrived in a direct-message channel.
func (m Message) IsDirect() bool {
	return strings.HasPrefix(m.ChannelID, "D")
}

// TextClean returns the text with every <...> span removed. A '<' with no
// closing '>' after it is kept as literal text.
func (m Message) TextClean() string {
	return cleanText(m.Text)
}

// cleanText scans left to right. Whitespace around removed spans is kept;
// only the ends of the final string are trimmed.
func cleanText(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.IndexByte(rest, '<')
		if start == -1 {
			break
		}
		end := strings.IndexByte(rest[start:], '>')
		if end == -1 {
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+end+1:]
	}
	b.WriteString(rest)
	return strings.TrimSpace(b.String())
}
