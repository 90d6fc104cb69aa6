package slackbot

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TokenMode selects how a channel message is mapped to a backend token.
type TokenMode string

const (
	// TokenShared queries with one process-wide token for every channel user.
	TokenShared TokenMode = "shared"
	// TokenDerived queries with a key derived from app, team and user ids.
	TokenDerived TokenMode = "derived"
)

func ParseTokenMode(raw string) (TokenMode, error) {
	switch TokenMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TokenShared:
		return TokenShared, nil
	case TokenDerived:
		return TokenDerived, nil
	default:
		return "", fmt.Errorf("unknown token mode %q", raw)
	}
}

// TokenSource supplies the shared token. It may change while running.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that never changes.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

var derivedNamespace = uuid.MustParse("6f1d3c2a-8b0e-5d5e-9a63-4b7f2c1e0a90")

// DerivedToken returns a stable UUID-shaped key for one user of one app
// install. The same inputs always produce the same key.
func DerivedToken(appID, teamID, userID string) string {
	return uuid.NewSHA1(derivedNamespace, []byte(appID+"/"+teamID+"/"+userID)).String()
}

// IsTokenShaped reports whether text looks like a registration token: 36
// characters split into five hyphen-separated segments.
func IsTokenShaped(text string) bool {
	return len(text) == 36 && len(strings.Split(text, "-")) == 5
}
