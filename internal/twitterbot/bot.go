package twitterbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/eventtrace"
	"github.com/you/echo-relay/internal/metrics"
)

const platform = "twitter"

var (
	ErrNotAddressed = errors.New("tweet does not mention the handle")
	ErrNoSpeech     = errors.New("no speech in reply")
	ErrNoQueryToken = errors.New("no query token configured")
)

// Querier asks the voice-assistant backend.
type Querier interface {
	Query(ctx context.Context, q core.Query) (core.QueryResult, error)
}

// StatusPoster publishes a reply tweet.
type StatusPoster interface {
	PostReply(ctx context.Context, status, inReplyTo string) error
}

// TokenSource yields the shared query token.
type TokenSource interface {
	Token() string
}

type Auditor interface {
	Record(core.AuditEvent)
}

type Deps struct {
	Backend Querier
	Poster  StatusPoster
	Pages   *Registry
	Shared  TokenSource
	Handle  string
	BaseURL string
	Audit   Auditor
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Bot answers tweets that mention its handle.
type Bot struct {
	backend Querier
	poster  StatusPoster
	pages   *Registry
	shared  TokenSource
	handle  string
	baseURL string
	audit   Auditor
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(d Deps) (*Bot, error) {
	if d.Backend == nil || d.Poster == nil || d.Shared == nil {
		return nil, errors.New("twitterbot: backend, poster and shared token are required")
	}
	if strings.TrimPrefix(strings.TrimSpace(d.Handle), "@") == "" {
		return nil, errors.New("twitterbot: handle is required")
	}
	if d.Pages == nil {
		d.Pages = NewRegistry(d.BaseURL)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Bot{
		backend: d.Backend,
		poster:  d.Poster,
		pages:   d.Pages,
		shared:  d.Shared,
		handle:  strings.TrimPrefix(strings.TrimSpace(d.Handle), "@"),
		baseURL: d.BaseURL,
		audit:   d.Audit,
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     time.Now,
	}, nil
}

func (b *Bot) Handle() string { return b.handle }

func (b *Bot) Pages() *Registry { return b.pages }

// HandleTweet queries the backend with the tweet text minus mentions,
// registers the reply page and posts the reply status. The returned post is
// nil when nothing was published.
func (b *Bot) HandleTweet(ctx context.Context, tweet Tweet) (*Post, error) {
	trace := eventtrace.New(platform, "", tweet.ScreenName, tweet.ID)
	post, outcome, err := b.answer(ctx, tweet, trace)
	b.finish(tweet, trace, outcome, err)
	return post, err
}

func (b *Bot) answer(ctx context.Context, tweet Tweet, trace *eventtrace.EventTrace) (*Post, core.Outcome, error) {
	if !Mentions(tweet.Text, b.handle) {
		trace.Mark(eventtrace.StageDropped("not_addressed"))
		return nil, core.OutcomeNotAddressed, fmt.Errorf("%w: @%s", ErrNotAddressed, b.handle)
	}
	if tweet.ScreenName != "" && strings.EqualFold(tweet.ScreenName, b.handle) {
		trace.Mark(eventtrace.StageDropped("self"))
		return nil, core.OutcomeIgnoredSelf, nil
	}

	token := strings.TrimSpace(b.shared.Token())
	if token == "" {
		return nil, core.OutcomeError, ErrNoQueryToken
	}

	started := b.now()
	result, err := b.backend.Query(ctx, core.Query{
		Channel:   "TWITTER",
		ChannelID: tweet.ID,
		UserID:    tweet.ScreenName,
		Text:      CleanMessage(tweet.Text),
		Token:     token,
	})
	if err != nil {
		b.metrics.ObserveBackend("error", b.now().Sub(started))
		return nil, core.OutcomeError, fmt.Errorf("query backend: %w", err)
	}
	b.metrics.ObserveBackend("ok", b.now().Sub(started))
	trace.Mark(eventtrace.StageQueried)

	post := NewPost(tweet, result, b.baseURL)
	status, ok := post.Status(b.baseURL)
	if !ok {
		trace.Mark(eventtrace.StageDropped("no_speech"))
		return nil, core.OutcomeNoSpeech, ErrNoSpeech
	}
	b.pages.Put(post)

	if err := b.poster.PostReply(ctx, status, tweet.ID); err != nil {
		b.metrics.IncRepliesSent(platform, "error")
		return post, core.OutcomeError, fmt.Errorf("post reply: %w", err)
	}
	b.metrics.IncRepliesSent(platform, "ok")
	trace.Mark(eventtrace.StageSent)
	return post, core.OutcomeReplied, nil
}

func (b *Bot) finish(tweet Tweet, trace *eventtrace.EventTrace, outcome core.Outcome, err error) {
	b.metrics.IncOutcome(platform, string(outcome))
	ev := core.AuditEvent{
		Ts:       b.now().UTC(),
		Platform: platform,
		EventID:  tweet.ID,
		UserID:   tweet.ScreenName,
		Outcome:  outcome,
	}
	attrs := []any{"outcome", outcome}
	if err != nil {
		ev.Error = err.Error()
		attrs = append(attrs, "err", err)
	}
	if b.audit != nil {
		b.audit.Record(ev)
	}
	trace.LogTrace(b.logger, "twitterbot: tweet done", attrs...)
}
