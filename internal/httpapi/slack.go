package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/slack-go/slack"

	"github.com/you/echo-relay/internal/slackbot"
)

const maxSlackBody = 1 << 20

type urlVerification struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// readSlackBody reads the request body and checks the Slack request
// signature when a signing secret is configured.
func (s *Server) readSlackBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSlackBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}
	if s.opts.SigningSecret == "" {
		return body, true
	}

	sv, err := slack.NewSecretsVerifier(r.Header, s.opts.SigningSecret)
	if err != nil {
		log.Printf("http: slack signature headers: %v", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	if _, err := sv.Write(body); err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	if err := sv.Ensure(); err != nil {
		log.Printf("http: slack signature mismatch from %s", remoteIP(r))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// handleSlackMessage answers URL verification inline. Every other callback
// is acknowledged before it is routed so Slack does not retry slow replies.
func (s *Server) handleSlackMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSlackBody(w, r)
	if !ok {
		return
	}

	var probe urlVerification
	if err := json.Unmarshal(body, &probe); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if probe.Challenge != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(probe.Challenge))
		return
	}

	if err := s.dispatch.Go("slack_message", func(ctx context.Context) {
		reply := s.opts.Slack.OnMessage(ctx, body)
		logReply("message", reply)
	}); err != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSlackCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSlackBody(w, r)
	if !ok {
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if err := s.dispatch.Go("slack_command", func(ctx context.Context) {
		reply := s.opts.Slack.OnCommand(ctx, form)
		logReply("command", reply)
	}); err != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// logReply logs failed routing. Ignored deliveries are expected traffic and
// only show up in the event trace.
func logReply(kind string, reply slackbot.Reply) {
	if reply.OK() {
		return
	}
	switch {
	case errors.Is(reply.Err, slackbot.ErrAlreadyProcessed),
		errors.Is(reply.Err, slackbot.ErrIgnoredSelf),
		errors.Is(reply.Err, slackbot.ErrIgnoredBot),
		errors.Is(reply.Err, slackbot.ErrNotAddressed):
		return
	}
	log.Printf("http: slack %s: %s: %v", kind, reply.Outcome, reply.Err)
}
