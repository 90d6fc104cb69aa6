package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/echo-relay/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order represents the chronological order to use when listing audit events.
type Order string

const (
	// OrderDesc returns events newest first.
	OrderDesc Order = "desc"
	// OrderAsc returns events oldest first.
	OrderAsc Order = "asc"
)

// Filters captures the parsed query parameters for audit lookups.
type Filters struct {
	Platforms []string
	Outcomes  []core.Outcome
	TeamID    string
	Since     *time.Time
	Limit     int
	Order     Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderDesc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	if rawSince := values.Get("since"); rawSince != "" {
		parsed, err := parseSince(rawSince)
		if err != nil {
			return Filters{}, err
		}
		f.Since = &parsed
	}

	f.TeamID = strings.TrimSpace(values.Get("team"))

	if platforms := values["platform"]; len(platforms) > 0 {
		seen := make(map[string]struct{})
		var out []string
		var allowAll bool
		for _, raw := range platforms {
			for _, part := range splitList(raw) {
				canonical, ok := normalizePlatform(part)
				if !ok {
					return Filters{}, errors.New("invalid platform filter")
				}
				if canonical == "" {
					allowAll = true
					out = nil
					continue
				}
				if _, exists := seen[canonical]; !exists && !allowAll {
					out = append(out, canonical)
					seen[canonical] = struct{}{}
				}
			}
		}
		if !allowAll {
			f.Platforms = out
		}
	}

	if outcomes := values["outcome"]; len(outcomes) > 0 {
		seen := make(map[core.Outcome]struct{})
		for _, raw := range outcomes {
			for _, part := range splitList(raw) {
				o := core.Outcome(strings.ToLower(part))
				if _, exists := seen[o]; !exists {
					f.Outcomes = append(f.Outcomes, o)
					seen[o] = struct{}{}
				}
			}
		}
	}

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizePlatform(p string) (string, bool) {
	switch strings.ToLower(p) {
	case "slack", "s":
		return "slack", true
	case "twitter", "tw", "x":
		return "twitter", true
	case "all", "*":
		return "", true
	default:
		return "", false
	}
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC(), nil
	}
	return time.Time{}, errors.New("invalid since parameter")
}

// Matches reports whether the provided event satisfies the filters.
func (f Filters) Matches(ev core.AuditEvent) bool {
	if len(f.Platforms) > 0 {
		match := false
		for _, p := range f.Platforms {
			if ev.Platform == p {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(f.Outcomes) > 0 {
		match := false
		for _, o := range f.Outcomes {
			if ev.Outcome == o {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if f.TeamID != "" && ev.TeamID != f.TeamID {
		return false
	}

	if f.Since != nil && ev.Ts.Before(f.Since.UTC()) {
		return false
	}

	return true
}

// CloneForStream returns a copy of the filters adjusted for streaming transports.
func (f Filters) CloneForStream() Filters {
	f.Limit = 0
	return f
}
