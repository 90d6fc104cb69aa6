package twitterbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
)

// Credentials are the app and account keys for the Twitter API.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// NewAPI returns an OAuth1-signed Twitter client. A *http.Client stored in
// ctx under oauth1.HTTPClient is used as the underlying transport.
func NewAPI(ctx context.Context, creds Credentials) *twitter.Client {
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	return twitter.NewClient(config.Client(ctx, token))
}

// APIPoster publishes replies with statuses/update.
type APIPoster struct {
	Client *twitter.Client
}

func (p APIPoster) PostReply(ctx context.Context, status, inReplyTo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twitter.StatusUpdateParams{}
	if inReplyTo != "" {
		id, err := strconv.ParseInt(inReplyTo, 10, 64)
		if err != nil {
			return fmt.Errorf("reply id %q: %w", inReplyTo, err)
		}
		params.InReplyToStatusID = id
	}
	_, resp, err := p.Client.Statuses.Update(status, params)
	if err != nil {
		return err
	}
	if resp != nil && resp.StatusCode/100 != 2 {
		return fmt.Errorf("statuses/update: status %d", resp.StatusCode)
	}
	return nil
}

// FromAPI converts a streamed tweet. Extended tweets carry their full text
// separately.
func FromAPI(t *twitter.Tweet) Tweet {
	out := Tweet{ID: t.IDStr, Text: t.Text}
	if out.ID == "" && t.ID != 0 {
		out.ID = strconv.FormatInt(t.ID, 10)
	}
	if t.ExtendedTweet != nil && t.ExtendedTweet.FullText != "" {
		out.Text = t.ExtendedTweet.FullText
	} else if t.FullText != "" {
		out.Text = t.FullText
	}
	if t.User != nil {
		out.ScreenName = t.User.ScreenName
	}
	return out
}

// Listener follows the public filter stream for mentions of the bot's
// handle. Tweets are handled one at a time in stream order.
type Listener struct {
	api *twitter.Client
	bot *Bot
}

func NewListener(api *twitter.Client, bot *Bot) *Listener {
	return &Listener{api: api, bot: bot}
}

// Run blocks until ctx is cancelled or the stream gives up reconnecting.
func (l *Listener) Run(ctx context.Context) error {
	stream, err := l.api.Streams.Filter(&twitter.StreamFilterParams{
		Track:         []string{"@" + l.bot.Handle()},
		StallWarnings: twitter.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("twitterbot: open stream: %w", err)
	}
	log.Printf("twitterbot: streaming mentions of @%s", l.bot.Handle())

	demux := twitter.NewSwitchDemux()
	demux.Tweet = func(t *twitter.Tweet) {
		if _, err := l.bot.HandleTweet(ctx, FromAPI(t)); err != nil && !errors.Is(err, ErrNotAddressed) {
			log.Printf("twitterbot: tweet %s: %v", t.IDStr, err)
		}
	}
	demux.StreamDisconnect = func(d *twitter.StreamDisconnect) {
		log.Printf("twitterbot: disconnect code=%d reason=%s", d.Code, d.Reason)
	}
	demux.Warning = func(w *twitter.StallWarning) {
		log.Printf("twitterbot: stall warning %s (%d%% full)", w.Code, w.PercentFull)
	}

	for {
		select {
		case <-ctx.Done():
			stream.Stop()
			return nil
		case msg, ok := <-stream.Messages:
			if !ok {
				return errors.New("twitterbot: stream closed")
			}
			demux.Handle(msg)
		}
	}
}
