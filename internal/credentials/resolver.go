package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when no bot installation exists for a team.
var ErrNotFound = errors.New("credentials: not found")

// BotAuth is the stored installation of the bot in one team.
type BotAuth struct {
	TeamID         string `json:"team_id"`
	BotAccessToken string `json:"bot_access_token"`
	BotUserID      string `json:"bot_user_id"`
}

// UserRecord links a chat identity to a voice-assistant token.
type UserRecord struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Store is the external key-value credential store.
type Store interface {
	GetBotAuth(ctx context.Context, key string) (BotAuth, bool, error)
	PutBotAuth(ctx context.Context, key string, auth BotAuth) error
	GetUser(ctx context.Context, key string) (UserRecord, bool, error)
	PutUser(ctx context.Context, key string, rec UserRecord) error
}

// BotKey builds the bot-auth key. With an empty client token the key is the
// team id alone; otherwise client token and team id are concatenated, which
// keeps installs of several apps in one team apart.
func BotKey(clientToken, teamID string) string {
	return strings.TrimSpace(clientToken) + teamID
}

func UserKey(teamID, userID string) string {
	return teamID + userID
}

// Resolver reads bot and user credentials. Resolved bot credentials are
// cached for the lifetime of the process.
type Resolver struct {
	store       Store
	clientToken string

	mu   sync.Mutex
	bots map[string]BotAuth
}

func NewResolver(store Store, clientToken string) *Resolver {
	return &Resolver{
		store:       store,
		clientToken: clientToken,
		bots:        make(map[string]BotAuth),
	}
}

// LookupBot returns the bot installation for a team. When appToken is empty
// the resolver's configured client token is used.
func (r *Resolver) LookupBot(ctx context.Context, appToken, teamID string) (BotAuth, error) {
	if strings.TrimSpace(teamID) == "" {
		return BotAuth{}, fmt.Errorf("%w: empty team id", ErrNotFound)
	}
	if appToken == "" {
		appToken = r.clientToken
	}
	key := BotKey(appToken, teamID)

	r.mu.Lock()
	cached, ok := r.bots[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	auth, found, err := r.store.GetBotAuth(ctx, key)
	if err != nil {
		return BotAuth{}, fmt.Errorf("lookup bot %s: %w", teamID, err)
	}
	if !found || auth.BotAccessToken == "" {
		return BotAuth{}, fmt.Errorf("%w: bot auth for team %s", ErrNotFound, teamID)
	}

	r.mu.Lock()
	r.bots[key] = auth
	r.mu.Unlock()
	return auth, nil
}

// LookupUser returns the registered token for a user. A missing record is
// not an error: ok is false and the user is unregistered.
func (r *Resolver) LookupUser(ctx context.Context, teamID, userID string) (token string, ok bool, err error) {
	rec, found, err := r.store.GetUser(ctx, UserKey(teamID, userID))
	if err != nil {
		return "", false, fmt.Errorf("lookup user %s/%s: %w", teamID, userID, err)
	}
	if !found || rec.Token == "" {
		return "", false, nil
	}
	return rec.Token, true, nil
}

func (r *Resolver) SaveUser(ctx context.Context, teamID, userID, token string) error {
	rec := UserRecord{TeamID: teamID, UserID: userID, Token: token}
	if err := r.store.PutUser(ctx, UserKey(teamID, userID), rec); err != nil {
		return fmt.Errorf("save user %s/%s: %w", teamID, userID, err)
	}
	return nil
}

// Forget drops a cached bot installation so the next lookup reads the store.
func (r *Resolver) Forget(appToken, teamID string) {
	if appToken == "" {
		appToken = r.clientToken
	}
	r.mu.Lock()
	delete(r.bots, BotKey(appToken, teamID))
	r.mu.Unlock()
}
