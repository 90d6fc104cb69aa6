package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/you/echo-relay/internal/core"
)

// DefaultBaseURL is the hosted voice-assistant query service.
const DefaultBaseURL = "https://silentecho.bespoken.io"

const defaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read; debug payloads can be large.
const maxBody = 4 << 20

var ErrEmptyToken = errors.New("backend: empty user token")

// Client sends text to the voice-assistant backend and returns what the
// assistant answered.
type Client struct {
	BaseURL string
	Timeout time.Duration
	HTTP    *http.Client
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, Timeout: timeout}
}

func (c *Client) Query(ctx context.Context, q core.Query) (core.QueryResult, error) {
	if strings.TrimSpace(q.Token) == "" {
		return core.QueryResult{}, ErrEmptyToken
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	params := url.Values{}
	params.Set("channel", q.Channel)
	params.Set("channel_id", q.ChannelID)
	params.Set("user_id", q.UserID)
	params.Set("message", q.Text)
	params.Set("token", q.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/message?"+params.Encode(), nil)
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("backend: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return core.QueryResult{}, fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed errorBody
		_ = json.Unmarshal(body, &parsed)
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = strings.TrimSpace(parsed.Message)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return core.QueryResult{}, fmt.Errorf("backend: status %d: %s", resp.StatusCode, msg)
	}

	var result core.QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return core.QueryResult{}, fmt.Errorf("backend: decode response: %w", err)
	}
	return result, nil
}
