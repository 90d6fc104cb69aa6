package twitterbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/you/echo-relay/internal/core"
)

type fakeBackend struct {
	mu      sync.Mutex
	result  core.QueryResult
	err     error
	queries []core.Query
}

func (f *fakeBackend) Query(_ context.Context, q core.Query) (core.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.result, f.err
}

type postedReply struct {
	status, inReplyTo string
}

type fakePoster struct {
	mu    sync.Mutex
	err   error
	posts []postedReply
}

func (f *fakePoster) PostReply(_ context.Context, status, inReplyTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, postedReply{status, inReplyTo})
	return nil
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

type fakeAudit struct {
	mu     sync.Mutex
	events []core.AuditEvent
}

func (f *fakeAudit) Record(ev core.AuditEvent) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func newTestBot(t *testing.T, backend *fakeBackend, poster *fakePoster, token string) (*Bot, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	bot, err := New(Deps{
		Backend: backend,
		Poster:  poster,
		Shared:  staticToken(token),
		Handle:  "@silentechobot",
		BaseURL: "https://relay.example",
		Audit:   audit,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bot, audit
}

func TestHandleTweetReplies(t *testing.T) {
	backend := &fakeBackend{result: core.QueryResult{Text: "It is noon"}}
	poster := &fakePoster{}
	bot, audit := newTestBot(t, backend, poster, "shared-token")

	post, err := bot.HandleTweet(context.Background(), Tweet{ID: "1001", Text: "@silentechobot what time is it", ScreenName: "jpk"})
	if err != nil {
		t.Fatalf("HandleTweet: %v", err)
	}
	if post == nil {
		t.Fatalf("expected a post")
	}

	if len(backend.queries) != 1 {
		t.Fatalf("queries = %d", len(backend.queries))
	}
	q := backend.queries[0]
	if q.Text != "what time is it" || q.Token != "shared-token" || q.Channel != "TWITTER" {
		t.Fatalf("query = %+v", q)
	}

	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d", len(poster.posts))
	}
	want := "@jpk It is noon https://relay.example/twitter_reply/1001"
	if poster.posts[0].status != want || poster.posts[0].inReplyTo != "1001" {
		t.Fatalf("posted %+v, want %q", poster.posts[0], want)
	}

	if _, ok := bot.Pages().Get("1001"); !ok {
		t.Fatalf("reply page not registered")
	}
	if len(audit.events) != 1 || audit.events[0].Outcome != core.OutcomeReplied || audit.events[0].Platform != "twitter" {
		t.Fatalf("audit = %+v", audit.events)
	}
}

func TestHandleTweetNoSpeech(t *testing.T) {
	backend := &fakeBackend{result: core.QueryResult{Card: &core.Card{MainTitle: "Only a card"}}}
	poster := &fakePoster{}
	bot, audit := newTestBot(t, backend, poster, "tok")

	post, err := bot.HandleTweet(context.Background(), Tweet{ID: "5", Text: "@silentechobot hi", ScreenName: "jpk"})
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if post != nil || len(poster.posts) != 0 {
		t.Fatalf("nothing should be posted without speech")
	}
	if bot.Pages().Len() != 0 {
		t.Fatalf("page registered without speech")
	}
	if audit.events[0].Outcome != core.OutcomeNoSpeech {
		t.Fatalf("outcome = %s", audit.events[0].Outcome)
	}
}

func TestHandleTweetPostsSpeechWithoutMarkup(t *testing.T) {
	backend := &fakeBackend{result: core.QueryResult{Text: "<speak>It is <emphasis>noon</emphasis></speak>"}}
	poster := &fakePoster{}
	bot, _ := newTestBot(t, backend, poster, "tok")

	if _, err := bot.HandleTweet(context.Background(), Tweet{ID: "6", Text: "@silentechobot time?", ScreenName: "bob"}); err != nil {
		t.Fatalf("HandleTweet: %v", err)
	}
	if len(poster.posts) != 1 || !strings.HasPrefix(poster.posts[0].status, "@bob It is noon ") {
		t.Fatalf("posted %+v", poster.posts)
	}
}

func TestHandleTweetIgnored(t *testing.T) {
	cases := []struct {
		name    string
		tweet   Tweet
		outcome core.Outcome
		err     error
	}{
		{"not addressed", Tweet{ID: "1", Text: "hello world", ScreenName: "jpk"}, core.OutcomeNotAddressed, ErrNotAddressed},
		{"own tweet", Tweet{ID: "2", Text: "@silentechobot hi", ScreenName: "SilentEchoBot"}, core.OutcomeIgnoredSelf, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{result: core.QueryResult{Text: "x"}}
			bot, audit := newTestBot(t, backend, &fakePoster{}, "tok")
			_, err := bot.HandleTweet(context.Background(), tc.tweet)
			if tc.err == nil && err != nil || tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if len(backend.queries) != 0 {
				t.Fatalf("backend queried for ignored tweet")
			}
			if audit.events[0].Outcome != tc.outcome {
				t.Fatalf("outcome = %s, want %s", audit.events[0].Outcome, tc.outcome)
			}
		})
	}
}

func TestHandleTweetFailures(t *testing.T) {
	tweet := Tweet{ID: "9", Text: "@silentechobot hi", ScreenName: "jpk"}

	t.Run("missing token", func(t *testing.T) {
		backend := &fakeBackend{}
		bot, _ := newTestBot(t, backend, &fakePoster{}, "  ")
		if _, err := bot.HandleTweet(context.Background(), tweet); !errors.Is(err, ErrNoQueryToken) {
			t.Fatalf("err = %v", err)
		}
		if len(backend.queries) != 0 {
			t.Fatalf("queried without a token")
		}
	})

	t.Run("backend error", func(t *testing.T) {
		backend := &fakeBackend{err: errors.New("boom")}
		bot, audit := newTestBot(t, backend, &fakePoster{}, "tok")
		_, err := bot.HandleTweet(context.Background(), tweet)
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("err = %v", err)
		}
		if audit.events[0].Outcome != core.OutcomeError || audit.events[0].Error == "" {
			t.Fatalf("audit = %+v", audit.events[0])
		}
	})

	t.Run("post error keeps page", func(t *testing.T) {
		backend := &fakeBackend{result: core.QueryResult{Text: "yo"}}
		bot, _ := newTestBot(t, backend, &fakePoster{err: errors.New("rate limited")}, "tok")
		if _, err := bot.HandleTweet(context.Background(), tweet); err == nil {
			t.Fatalf("expected post error")
		}
		if _, ok := bot.Pages().Get("9"); !ok {
			t.Fatalf("page should stay reachable after a failed post")
		}
	})
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected error for empty deps")
	}
	if _, err := New(Deps{Backend: &fakeBackend{}, Poster: &fakePoster{}, Shared: staticToken("x"), Handle: "@"}); err == nil {
		t.Fatalf("expected error for empty handle")
	}
}
