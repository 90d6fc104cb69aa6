package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/httpapi"
)

const defaultListLimit = 100

// WriteAudit appends one event to the audit table.
func (s *SQLiteStore) WriteAudit(ev core.AuditEvent) error {
	const q = `INSERT INTO audit (ts, platform, event_id, team_id, channel_id, user_id, outcome, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
	ts := ev.Ts
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.Exec(q,
		ts.UTC().Format(time.RFC3339Nano),
		nz(ev.Platform, "slack"),
		ev.EventID,
		ev.TeamID,
		ev.ChannelID,
		ev.UserID,
		string(ev.Outcome),
		ev.Error,
	)
	return errors.Wrap(err, "insert audit")
}

func nz(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (s *SQLiteStore) CountAudit(ctx context.Context, filters httpapi.Filters) (int64, error) {
	query, args := buildAuditQuery(filters, true)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count audit")
	}
	return count, nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, filters httpapi.Filters) ([]core.AuditEvent, error) {
	query, args := buildAuditQuery(filters, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list audit")
	}
	defer rows.Close()

	var out []core.AuditEvent
	for rows.Next() {
		var (
			ev      core.AuditEvent
			ts      string
			outcome string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Platform, &ev.EventID, &ev.TeamID, &ev.ChannelID, &ev.UserID, &outcome, &ev.Error); err != nil {
			return nil, errors.Wrap(err, "scan audit")
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Ts = t
		}
		ev.Outcome = core.Outcome(outcome)
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audit")
	}
	return out, nil
}

func buildAuditQuery(filters httpapi.Filters, count bool) (string, []any) {
	var builder strings.Builder
	if count {
		builder.WriteString("SELECT COUNT(*) FROM audit")
	} else {
		builder.WriteString("SELECT id, ts, platform, event_id, team_id, channel_id, user_id, outcome, error FROM audit")
	}

	var (
		conditions []string
		args       []any
	)

	if len(filters.Platforms) > 0 {
		placeholders := make([]string, 0, len(filters.Platforms))
		for _, p := range filters.Platforms {
			placeholders = append(placeholders, "?")
			args = append(args, p)
		}
		conditions = append(conditions, fmt.Sprintf("platform IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(filters.Outcomes) > 0 {
		placeholders := make([]string, 0, len(filters.Outcomes))
		for _, o := range filters.Outcomes {
			placeholders = append(placeholders, "?")
			args = append(args, string(o))
		}
		conditions = append(conditions, fmt.Sprintf("outcome IN (%s)", strings.Join(placeholders, ",")))
	}

	if filters.TeamID != "" {
		conditions = append(conditions, "team_id = ?")
		args = append(args, filters.TeamID)
	}

	if filters.Since != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, filters.Since.UTC().Format(time.RFC3339Nano))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	if !count {
		order := "DESC"
		if filters.Order == httpapi.OrderAsc {
			order = "ASC"
		}
		builder.WriteString(" ORDER BY ts ")
		builder.WriteString(order)
		builder.WriteString(", id ")
		builder.WriteString(order)
		limit := filters.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	builder.WriteString(";")
	return builder.String(), args
}
