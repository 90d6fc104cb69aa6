package slackapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/you/echo-relay/internal/core"
)

// Sender posts replies and uploads files through the Slack Web API. A client
// is built per call because every team has its own bot token.
type Sender struct {
	APIURL string
	HTTP   *http.Client
}

func New(apiURL string) *Sender {
	return &Sender{APIURL: apiURL}
}

func (s *Sender) client(token string) *slack.Client {
	opts := []slack.Option{}
	if u := strings.TrimSpace(s.APIURL); u != "" {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		opts = append(opts, slack.OptionAPIURL(u))
	}
	if s.HTTP != nil {
		opts = append(opts, slack.OptionHTTPClient(s.HTTP))
	}
	return slack.New(token, opts...)
}

func (s *Sender) Send(ctx context.Context, token, channel string, out core.Outbound) (core.SendResult, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(out.Body, false)}
	if len(out.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(toSlack(out.Attachments)...))
	}
	ch, ts, err := s.client(token).PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return core.SendResult{}, fmt.Errorf("slack: post message to %s: %w", channel, err)
	}
	return core.SendResult{OK: true, Channel: ch, Timestamp: ts}, nil
}

func (s *Sender) UploadFile(ctx context.Context, token, channel, name, title, content string) error {
	_, err := s.client(token).UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channel,
		Content:  content,
		FileSize: len(content),
		Filename: name,
		Title:    title,
	})
	if err != nil {
		return fmt.Errorf("slack: upload %s to %s: %w", name, channel, err)
	}
	return nil
}

func toSlack(in []core.Attachment) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, slack.Attachment{
			AuthorName: a.AuthorName,
			AuthorIcon: a.AuthorIcon,
			Color:      a.Color,
			Title:      a.Title,
			Text:       a.Text,
			ImageURL:   a.ImageURL,
			Fallback:   fallback(a),
		})
	}
	return out
}

func fallback(a core.Attachment) string {
	if a.Title != "" {
		return a.Title
	}
	return a.Text
}
