package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateAddsBotUserID(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "old.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	old := `CREATE TABLE bot_auth (
  key TEXT NOT NULL PRIMARY KEY,
  team_id TEXT NOT NULL,
  bot_access_token TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE audit (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  platform TEXT NOT NULL,
  event_id TEXT NOT NULL DEFAULT '',
  team_id TEXT NOT NULL DEFAULT '',
  channel_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
);
INSERT INTO bot_auth (key, team_id, bot_access_token, created_at) VALUES ('T1', 'T1', 'xoxb-1', '2017-01-01T00:00:00Z');`
	if _, err := db.Exec(old); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cols, err := sqliteTableInfo(ctx, db, "bot_auth")
	if err != nil {
		t.Fatalf("inspect columns: %v", err)
	}
	col, ok := cols["bot_user_id"]
	if !ok {
		t.Fatalf("expected bot_user_id column to exist")
	}
	if !col.NotNull {
		t.Fatalf("expected bot_user_id NOT NULL, got %+v", col)
	}

	var botUser string
	if err := db.QueryRow(`SELECT bot_user_id FROM bot_auth WHERE key='T1';`).Scan(&botUser); err != nil {
		t.Fatalf("select: %v", err)
	}
	if botUser != "" {
		t.Fatalf("expected empty default, got %q", botUser)
	}

	hasIndex, err := sqliteHasIndex(ctx, db, "audit", "audit_outcome")
	if err != nil {
		t.Fatalf("inspect indices: %v", err)
	}
	if !hasIndex {
		t.Fatalf("expected audit_outcome index")
	}

	version, err := sqliteUserVersion(ctx, db)
	if err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != schemaVersion {
		t.Fatalf("expected user_version %d, got %d", schemaVersion, version)
	}

	// second run is a no-op
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
}
