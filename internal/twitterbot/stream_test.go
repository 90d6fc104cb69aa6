package twitterbot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
)

// rewriteTransport points every request at a local test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestAPIPosterPostsSignedReply(t *testing.T) {
	var gotPath, gotStatus, gotReplyTo, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = r.ParseForm()
		gotStatus = r.Form.Get("status")
		gotReplyTo = r.Form.Get("in_reply_to_status_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":2,"id_str":"2","text":"ok"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, &http.Client{Transport: rewriteTransport{target: target}})
	api := NewAPI(ctx, Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "as"})

	if err := (APIPoster{Client: api}).PostReply(context.Background(), "@jpk hi", "1001"); err != nil {
		t.Fatalf("PostReply: %v", err)
	}
	if gotPath != "/1.1/statuses/update.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotStatus != "@jpk hi" || gotReplyTo != "1001" {
		t.Fatalf("status=%q in_reply_to=%q", gotStatus, gotReplyTo)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") || !strings.Contains(gotAuth, `oauth_consumer_key="ck"`) {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestAPIPosterRejectsBadID(t *testing.T) {
	p := APIPoster{Client: twitter.NewClient(http.DefaultClient)}
	if err := p.PostReply(context.Background(), "hi", "not-a-number"); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}

func TestFromAPI(t *testing.T) {
	tw := &twitter.Tweet{
		ID:            77,
		Text:          "@silentechobot short…",
		ExtendedTweet: &twitter.ExtendedTweet{FullText: "@silentechobot the full question"},
		User:          &twitter.User{ScreenName: "jpk"},
	}
	got := FromAPI(tw)
	if got.ID != "77" || got.Text != "@silentechobot the full question" || got.ScreenName != "jpk" {
		t.Fatalf("FromAPI = %+v", got)
	}
}

func TestCredentialsComplete(t *testing.T) {
	if (Credentials{ConsumerKey: "a", ConsumerSecret: "b", AccessToken: "c"}).Complete() {
		t.Fatalf("missing secret should be incomplete")
	}
	if !(Credentials{"a", "b", "c", "d"}).Complete() {
		t.Fatalf("expected complete")
	}
}
