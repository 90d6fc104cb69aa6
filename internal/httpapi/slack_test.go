package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func signedRequest(t *testing.T, path, body, contentType, secret string, ts time.Time) *http.Request {
	t.Helper()
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + stamp + ":" + body))

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", stamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestSlackMessageChallenge(t *testing.T) {
	bot := newFakeSlackBot()
	srv := newTestServer(t, Options{Slack: bot})

	req := httptest.NewRequest(http.MethodPost, "/slack_message", strings.NewReader(`{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P" {
		t.Fatalf("challenge = %d %q", rec.Code, rec.Body.String())
	}
	if len(bot.messages) != 0 {
		t.Fatalf("challenge must not be routed")
	}
}

func TestSlackMessageAcknowledgesThenDispatches(t *testing.T) {
	bot := newFakeSlackBot()
	srv := newTestServer(t, Options{Slack: bot})

	body := `{"type":"event_callback","event_id":"Ev1","event":{"type":"message","channel":"D1","user":"U1","text":"hi"}}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slack_message", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	bot.wait(t)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.messages) != 1 || string(bot.messages[0]) != body {
		t.Fatalf("dispatched %q", bot.messages)
	}
}

func TestSlackMessageRejectsBadJSONAndMethod(t *testing.T) {
	srv := newTestServer(t, Options{Slack: newFakeSlackBot()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slack_message", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slack_message", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", rec.Code)
	}
}

func TestSlackSignatureVerification(t *testing.T) {
	body := `{"type":"url_verification","challenge":"abc"}`
	cases := []struct {
		name   string
		secret string
		ts     time.Time
		want   int
	}{
		{"valid", testSigningSecret, time.Now(), http.StatusOK},
		{"wrong secret", "not-the-secret", time.Now(), http.StatusUnauthorized},
		{"stale timestamp", testSigningSecret, time.Now().Add(-10 * time.Minute), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, Options{Slack: newFakeSlackBot(), SigningSecret: testSigningSecret})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, signedRequest(t, "/slack_message", body, "application/json", tc.secret, tc.ts))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	t.Run("missing headers", func(t *testing.T) {
		srv := newTestServer(t, Options{Slack: newFakeSlackBot(), SigningSecret: testSigningSecret})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slack_message", strings.NewReader(body)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestSlackCommandDispatch(t *testing.T) {
	bot := newFakeSlackBot()
	srv := newTestServer(t, Options{Slack: bot, SigningSecret: testSigningSecret})

	body := "channel_id=C1&team_id=T1&user_id=U1&text=what+time+is+it&command=%2Falexa"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(t, "/slack_command", body, "application/x-www-form-urlencoded", testSigningSecret, time.Now()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	bot.wait(t)

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.commands) != 1 || bot.commands[0].Get("text") != "what time is it" || bot.commands[0].Get("team_id") != "T1" {
		t.Fatalf("commands = %+v", bot.commands)
	}
}

func TestSlackAfterShutdown(t *testing.T) {
	bot := newFakeSlackBot()
	srv := New(Options{Slack: bot})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slack_message", strings.NewReader(`{"event_id":"Ev9"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
