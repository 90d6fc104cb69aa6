package store

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/credentials"
	"github.com/you/echo-relay/internal/httpapi"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBotAuthRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetBotAuth(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent record, got ok=%v err=%v", ok, err)
	}

	want := credentials.BotAuth{TeamID: "T1", BotAccessToken: "xoxb-1", BotUserID: "U1"}
	if err := s.PutBotAuth(ctx, "T1", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.GetBotAuth(ctx, "T1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	want.BotAccessToken = "xoxb-2"
	if err := s.PutBotAuth(ctx, "T1", want); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _, _ = s.GetBotAuth(ctx, "T1")
	if got.BotAccessToken != "xoxb-2" {
		t.Fatalf("expected replaced token, got %q", got.BotAccessToken)
	}

	if err := s.PutBotAuth(ctx, "T2", credentials.BotAuth{TeamID: "T2"}); err == nil {
		t.Fatalf("expected error for empty access token")
	}

	all, err := s.ListBotAuth(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 installation, got %d", len(all))
	}
}

func TestUserRecordsAreNotMutated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := credentials.UserRecord{TeamID: "T1", UserID: "U1", Token: "c84b85ea-5338-4331-9cb2-e6685fd78369"}
	if err := s.PutUser(ctx, "T1U1", first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutUser(ctx, "T1U1", credentials.UserRecord{TeamID: "T1", UserID: "U1", Token: "other"}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, ok, err := s.GetUser(ctx, "T1U1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != first {
		t.Fatalf("got %+v want %+v", got, first)
	}
}

func TestFirstSightIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.FirstSight(ctx, "Ev1")
			if err != nil {
				t.Errorf("first sight: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one first sight, got %d", wins.Load())
	}
	if ok, _ := s.FirstSight(ctx, "Ev2"); !ok {
		t.Fatalf("expected a new id to be first sight")
	}
}

func TestAuditListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	events := []core.AuditEvent{
		{Ts: base, Platform: "slack", EventID: "E1", TeamID: "T1", Outcome: core.OutcomeReplied},
		{Ts: base.Add(time.Minute), Platform: "slack", EventID: "E2", TeamID: "T2", Outcome: core.OutcomeAlreadyProcessed},
		{Ts: base.Add(2 * time.Minute), Platform: "twitter", EventID: "99", Outcome: core.OutcomeReplied},
	}
	for _, ev := range events {
		if err := s.WriteAudit(ev); err != nil {
			t.Fatalf("write audit: %v", err)
		}
	}

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"all newest first", "", []string{"99", "E2", "E1"}},
		{"ascending", "order=asc", []string{"E1", "E2", "99"}},
		{"platform", "platform=slack", []string{"E2", "E1"}},
		{"outcome", "outcome=replied", []string{"99", "E1"}},
		{"team", "team=T2", []string{"E2"}},
		{"since", "since=2024-05-01T12:01:00Z", []string{"99", "E2"}},
		{"limit", "limit=1", []string{"99"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tc.query)
			filters, err := httpapi.ParseFilters(values)
			if err != nil {
				t.Fatalf("parse filters: %v", err)
			}
			got, err := s.ListAudit(ctx, filters)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tc.want))
			}
			for i, ev := range got {
				if ev.EventID != tc.want[i] {
					t.Fatalf("event %d: got %s want %s", i, ev.EventID, tc.want[i])
				}
			}
			count, err := s.CountAudit(ctx, filters)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if tc.name != "limit" && count != int64(len(tc.want)) {
				t.Fatalf("count %d, want %d", count, len(tc.want))
			}
		})
	}
}
