package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/you/echo-relay/internal/credentials"
)

const schema = `CREATE TABLE IF NOT EXISTS bot_auth (
  key TEXT NOT NULL PRIMARY KEY,
  team_id TEXT NOT NULL,
  bot_access_token TEXT NOT NULL,
  bot_user_id TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
  key TEXT NOT NULL PRIMARY KEY,
  team_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  token TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS processed_events (
  event_id TEXT NOT NULL PRIMARY KEY,
  seen_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS audit (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  platform TEXT NOT NULL,
  event_id TEXT NOT NULL DEFAULT '',
  team_id TEXT NOT NULL DEFAULT '',
  channel_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
);`

// SQLiteStore persists bot installations, user registrations, processed
// event ids and the audit log in one sqlite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "set WAL")
		}
	}
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	ApplySQLitePragmas(ctx, db)
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) RawDB() *sql.DB { return s.db }

func (s *SQLiteStore) String() string {
	return fmt.Sprintf("SQLiteStore{%p}", s.db)
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) GetBotAuth(ctx context.Context, key string) (credentials.BotAuth, bool, error) {
	const q = `SELECT team_id, bot_access_token, bot_user_id FROM bot_auth WHERE key = ?;`
	var auth credentials.BotAuth
	err := s.db.QueryRowContext(ctx, q, key).Scan(&auth.TeamID, &auth.BotAccessToken, &auth.BotUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.BotAuth{}, false, nil
	}
	if err != nil {
		return credentials.BotAuth{}, false, errors.Wrap(err, "get bot auth")
	}
	return auth, true, nil
}

// PutBotAuth inserts or replaces the installation stored under key.
func (s *SQLiteStore) PutBotAuth(ctx context.Context, key string, auth credentials.BotAuth) error {
	const q = `INSERT INTO bot_auth (key, team_id, bot_access_token, bot_user_id, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  team_id = excluded.team_id,
  bot_access_token = excluded.bot_access_token,
  bot_user_id = excluded.bot_user_id;`
	if strings.TrimSpace(auth.BotAccessToken) == "" {
		return errors.New("put bot auth: empty access token")
	}
	_, err := s.db.ExecContext(ctx, q, key, auth.TeamID, auth.BotAccessToken, auth.BotUserID, s.stamp())
	return errors.Wrap(err, "put bot auth")
}

func (s *SQLiteStore) GetUser(ctx context.Context, key string) (credentials.UserRecord, bool, error) {
	const q = `SELECT team_id, user_id, token FROM users WHERE key = ?;`
	var rec credentials.UserRecord
	err := s.db.QueryRowContext(ctx, q, key).Scan(&rec.TeamID, &rec.UserID, &rec.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.UserRecord{}, false, nil
	}
	if err != nil {
		return credentials.UserRecord{}, false, errors.Wrap(err, "get user")
	}
	return rec, true, nil
}

// PutUser creates a registration. Records are never mutated once written, so
// a second registration for the same key is kept as the first one.
func (s *SQLiteStore) PutUser(ctx context.Context, key string, rec credentials.UserRecord) error {
	const q = `INSERT INTO users (key, team_id, user_id, token, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING;`
	_, err := s.db.ExecContext(ctx, q, key, rec.TeamID, rec.UserID, rec.Token, s.stamp())
	return errors.Wrap(err, "put user")
}

// ListBotAuth returns every stored installation, newest first.
func (s *SQLiteStore) ListBotAuth(ctx context.Context) ([]credentials.BotAuth, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT team_id, bot_access_token, bot_user_id FROM bot_auth ORDER BY created_at DESC;`)
	if err != nil {
		return nil, errors.Wrap(err, "list bot auth")
	}
	defer rows.Close()

	var out []credentials.BotAuth
	for rows.Next() {
		var auth credentials.BotAuth
		if err := rows.Scan(&auth.TeamID, &auth.BotAccessToken, &auth.BotUserID); err != nil {
			return nil, errors.Wrap(err, "scan bot auth")
		}
		out = append(out, auth)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate bot auth")
	}
	return out, nil
}

// FirstSight records eventID and reports whether this call inserted it. The
// insert is a single statement, so concurrent callers cannot both win.
func (s *SQLiteStore) FirstSight(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO processed_events (event_id, seen_at) VALUES (?, ?)
ON CONFLICT(event_id) DO NOTHING;`, eventID, s.stamp())
	if err != nil {
		return false, errors.Wrap(err, "record event")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "record event rows")
	}
	return n == 1, nil
}
