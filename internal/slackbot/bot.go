package slackbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/credentials"
	"github.com/you/echo-relay/internal/eventtrace"
	"github.com/you/echo-relay/internal/metrics"
)

// RegisteredReply confirms a successful registration.
const RegisteredReply = "Thank you for registering. Speak to Alexa!"

// OnboardingReply is sent to unregistered users in a direct message.
const OnboardingReply = "You have not registered with Silent Echo yet. " +
	"To register, just <https://silentecho.bespoken.io/link_account?token=true|click here>\n" +
	"Follow the steps, then *copy and paste the token into this chat*.\n" +
	"Questions? Here is our <https://silentecho.bespoken.io/faq|FAQ>"

const platform = "slack"

var (
	ErrAlreadyProcessed = errors.New("already processed")
	ErrIgnoredSelf      = errors.New("ignore messages from self")
	ErrInvalid          = errors.New("ignore invalid message")
	ErrIgnoredBot       = errors.New("ignore messages from the bot")
	ErrNotAddressed     = errors.New("ignore messages that do not call bot name")
	ErrNoQueryToken     = errors.New("no query token configured")
)

// Resolver is the credential lookup the router needs.
type Resolver interface {
	LookupBot(ctx context.Context, appToken, teamID string) (credentials.BotAuth, error)
	LookupUser(ctx context.Context, teamID, userID string) (string, bool, error)
	SaveUser(ctx context.Context, teamID, userID, token string) error
}

// Querier asks the voice-assistant backend.
type Querier interface {
	Query(ctx context.Context, q core.Query) (core.QueryResult, error)
}

// Sender is the outbound messaging capability.
type Sender interface {
	Send(ctx context.Context, token, channel string, out core.Outbound) (core.SendResult, error)
	UploadFile(ctx context.Context, token, channel, name, title, content string) error
}

// Auditor receives the terminal outcome of every event.
type Auditor interface {
	Record(core.AuditEvent)
}

// Reply is the tagged result of one inbound event: Err is nil on success.
type Reply struct {
	Outcome core.Outcome
	Sent    *core.SendResult
	Err     error
}

func (r Reply) OK() bool { return r.Err == nil }

type Deps struct {
	Resolver Resolver
	Backend  Querier
	Sender   Sender
	Ledger   Ledger
	Audit    Auditor
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Mode picks the channel-message token; Shared backs TokenShared.
	Mode   TokenMode
	Shared TokenSource
}

// Bot routes canonical messages. It owns no state besides its dependencies;
// the ledger and credential cache live for the process lifetime.
type Bot struct {
	resolver Resolver
	backend  Querier
	sender   Sender
	ledger   Ledger
	audit    Auditor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mode     TokenMode
	shared   TokenSource
	now      func() time.Time
}

func New(d Deps) (*Bot, error) {
	if d.Resolver == nil || d.Backend == nil || d.Sender == nil {
		return nil, errors.New("slackbot: resolver, backend and sender are required")
	}
	if d.Ledger == nil {
		d.Ledger = NewMemoryLedger()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Mode == "" {
		d.Mode = TokenShared
	}
	if d.Shared == nil {
		d.Shared = StaticToken("")
	}
	return &Bot{
		resolver: d.Resolver,
		backend:  d.Backend,
		sender:   d.Sender,
		ledger:   d.Ledger,
		audit:    d.Audit,
		metrics:  d.Metrics,
		logger:   d.Logger,
		mode:     d.Mode,
		shared:   d.Shared,
		now:      time.Now,
	}, nil
}

// OnMessage handles one Events API callback. Deliveries sharing an event id
// are processed once; later ones return ErrAlreadyProcessed. A callback
// without an event id cannot be matched to a retry and skips the ledger.
func (b *Bot) OnMessage(ctx context.Context, payload []byte) Reply {
	msg := FromMessage(payload)
	trace := eventtrace.New(platform, msg.ChannelID, msg.UserID, msg.EventID)

	if msg.EventID == "" {
		return b.finish(msg, trace, b.route(ctx, msg, trace))
	}
	first, err := b.ledger.FirstSight(ctx, msg.EventID)
	if err != nil {
		return b.finish(msg, trace, Reply{Outcome: core.OutcomeError, Err: fmt.Errorf("dedup: %w", err)})
	}
	if !first {
		trace.Mark(eventtrace.StageDropped("duplicate"))
		return b.finish(msg, trace, Reply{
			Outcome: core.OutcomeAlreadyProcessed,
			Err:     fmt.Errorf("%w: %s", ErrAlreadyProcessed, msg.EventID),
		})
	}
	trace.Mark(eventtrace.StageFirstSight)
	return b.finish(msg, trace, b.route(ctx, msg, trace))
}

// OnCommand handles a slash command. Commands carry no event id and are not
// deduplicated.
func (b *Bot) OnCommand(ctx context.Context, form url.Values) Reply {
	msg := FromCommand(form)
	trace := eventtrace.New(platform, msg.ChannelID, msg.UserID, "")
	return b.finish(msg, trace, b.route(ctx, msg, trace))
}

func (b *Bot) route(ctx context.Context, msg Message, trace *eventtrace.EventTrace) Reply {
	if msg.AuthedUserID != "" && msg.UserID == msg.AuthedUserID {
		trace.Mark(eventtrace.StageDropped("self"))
		return Reply{Outcome: core.OutcomeIgnoredSelf, Err: fmt.Errorf("%w: %s", ErrIgnoredSelf, msg.UserID)}
	}
	if !msg.Valid() {
		trace.Mark(eventtrace.StageDropped("invalid"))
		return Reply{Outcome: core.OutcomeIgnoredInvalid, Err: ErrInvalid}
	}
	if msg.IsDirect() {
		return b.direct(ctx, msg, trace)
	}
	return b.channel(ctx, msg, trace)
}

func (b *Bot) direct(ctx context.Context, msg Message, trace *eventtrace.EventTrace) Reply {
	if msg.BotID != "" {
		trace.Mark(eventtrace.StageDropped("bot"))
		return Reply{Outcome: core.OutcomeIgnoredBot, Err: fmt.Errorf("%w: %s", ErrIgnoredBot, msg.BotID)}
	}

	bot, err := b.resolver.LookupBot(ctx, "", msg.TeamID)
	if err != nil {
		return Reply{Outcome: core.OutcomeError, Err: err}
	}
	trace.Mark(eventtrace.StageBotResolved)

	userToken, registered, err := b.resolver.LookupUser(ctx, msg.TeamID, msg.UserID)
	if err != nil {
		return Reply{Outcome: core.OutcomeError, Err: err}
	}
	trace.Mark(eventtrace.StageUserResolved)

	if registered {
		return b.process(ctx, msg, bot.BotAccessToken, userToken, trace)
	}

	if IsTokenShaped(msg.Text) {
		if err := b.resolver.SaveUser(ctx, msg.TeamID, msg.UserID, msg.Text); err != nil {
			return Reply{Outcome: core.OutcomeError, Err: err}
		}
		return b.say(ctx, bot.BotAccessToken, msg.ChannelID, RegisteredReply, core.OutcomeRegistered, trace)
	}
	return b.say(ctx, bot.BotAccessToken, msg.ChannelID, OnboardingReply, core.OutcomePrompted, trace)
}

func (b *Bot) channel(ctx context.Context, msg Message, trace *eventtrace.EventTrace) Reply {
	if msg.Username != "" || msg.BotID != "" || msg.Subtype == "bot_message" {
		trace.Mark(eventtrace.StageDropped("bot"))
		return Reply{Outcome: core.OutcomeIgnoredBot, Err: fmt.Errorf("%w: %s", ErrIgnoredBot, firstNonEmpty(msg.Username, msg.BotID))}
	}

	bot, err := b.resolver.LookupBot(ctx, "", msg.TeamID)
	if err != nil {
		return Reply{Outcome: core.OutcomeError, Err: err}
	}
	trace.Mark(eventtrace.StageBotResolved)

	if bot.BotUserID == "" || !strings.Contains(msg.Text, "<@"+bot.BotUserID+">") {
		trace.Mark(eventtrace.StageDropped("not_addressed"))
		return Reply{Outcome: core.OutcomeNotAddressed, Err: fmt.Errorf("%w: %s", ErrNotAddressed, bot.BotUserID)}
	}

	userToken := b.channelToken(msg)
	if userToken == "" {
		return Reply{Outcome: core.OutcomeError, Err: ErrNoQueryToken}
	}
	trace.Mark(eventtrace.StageUserResolved)
	return b.process(ctx, msg, bot.BotAccessToken, userToken, trace)
}

func (b *Bot) channelToken(msg Message) string {
	if b.mode == TokenDerived {
		return DerivedToken(msg.AppID, msg.TeamID, msg.UserID)
	}
	return strings.TrimSpace(b.shared.Token())
}

// process queries the backend with the cleaned text, sends the formatted
// reply and then runs the debug relay.
func (b *Bot) process(ctx context.Context, msg Message, botToken, userToken string, trace *eventtrace.EventTrace) Reply {
	started := b.now()
	result, err := b.backend.Query(ctx, core.Query{
		Channel:   "SLACK",
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Text:      msg.TextClean(),
		Token:     userToken,
	})
	if err != nil {
		b.metrics.ObserveBackend("error", b.now().Sub(started))
		return Reply{Outcome: core.OutcomeError, Err: fmt.Errorf("query backend: %w", err)}
	}
	b.metrics.ObserveBackend("ok", b.now().Sub(started))
	trace.Mark(eventtrace.StageQueried)

	sent, err := b.send(ctx, botToken, msg.ChannelID, Format(result))
	if err != nil {
		return Reply{Outcome: core.OutcomeError, Err: err}
	}
	trace.Mark(eventtrace.StageSent)

	b.relayDebug(ctx, botToken, msg.ChannelID, result, trace)
	return Reply{Outcome: core.OutcomeReplied, Sent: &sent}
}

func (b *Bot) say(ctx context.Context, token, channel, text string, outcome core.Outcome, trace *eventtrace.EventTrace) Reply {
	sent, err := b.send(ctx, token, channel, core.Outbound{Body: text})
	if err != nil {
		return Reply{Outcome: core.OutcomeError, Err: err}
	}
	trace.Mark(eventtrace.StageSent)
	return Reply{Outcome: outcome, Sent: &sent}
}

func (b *Bot) send(ctx context.Context, token, channel string, out core.Outbound) (core.SendResult, error) {
	sent, err := b.sender.Send(ctx, token, channel, out)
	if err != nil {
		b.metrics.IncRepliesSent(platform, "error")
		return core.SendResult{}, fmt.Errorf("send reply: %w", err)
	}
	b.metrics.IncRepliesSent(platform, "ok")
	return sent, nil
}

func (b *Bot) finish(msg Message, trace *eventtrace.EventTrace, reply Reply) Reply {
	b.metrics.IncOutcome(platform, string(reply.Outcome))

	ev := core.AuditEvent{
		Ts:        b.now().UTC(),
		Platform:  platform,
		EventID:   msg.EventID,
		TeamID:    msg.TeamID,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Outcome:   reply.Outcome,
	}
	if reply.Err != nil {
		ev.Error = reply.Err.Error()
	}
	if b.audit != nil {
		b.audit.Record(ev)
	}

	attrs := []any{"type", msg.Type.String(), "outcome", reply.Outcome}
	if reply.Err != nil {
		attrs = append(attrs, "err", reply.Err)
	}
	trace.LogTrace(b.logger, "slackbot: event done", attrs...)
	return reply
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
