package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// schemaVersion is written to PRAGMA user_version once Migrate succeeds.
const schemaVersion = 2

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

// Migrate upgrades databases created by older releases. Version 1 files have
// a bot_auth table without bot_user_id; version 2 adds the audit indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}
	if userVersion >= schemaVersion {
		return nil
	}
	log.Printf("store: sqlite: path=%s user_version=%d", sqlitePath(ctx, db), userVersion)

	columns, err := sqliteTableInfo(ctx, db, "bot_auth")
	if err != nil {
		return fmt.Errorf("sqlite: describe bot_auth: %w", err)
	}
	if _, ok := columns["bot_user_id"]; !ok {
		if _, err := db.ExecContext(ctx, `ALTER TABLE bot_auth ADD COLUMN bot_user_id TEXT NOT NULL DEFAULT '';`); err != nil {
			return fmt.Errorf("sqlite: ensure bot_user_id column: %w", err)
		}
		log.Printf("store: sqlite: added bot_user_id column to bot_auth")
	}

	indices := []struct {
		name string
		ddl  string
	}{
		{"audit_ts", `CREATE INDEX IF NOT EXISTS audit_ts ON audit(ts);`},
		{"audit_outcome", `CREATE INDEX IF NOT EXISTS audit_outcome ON audit(outcome, ts);`},
	}
	for _, idx := range indices {
		if _, err := db.ExecContext(ctx, idx.ddl); err != nil {
			return fmt.Errorf("sqlite: ensure %s: %w", idx.name, err)
		}
	}

	hasIndex, err := sqliteHasIndex(ctx, db, "audit", "audit_outcome")
	if err != nil {
		return fmt.Errorf("sqlite: inspect indices: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}
	log.Printf("store: sqlite: migrated to user_version=%d audit_outcome=%v", schemaVersion, hasIndex)
	return nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return 0, err
	}
	return userVersion, nil
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteColumn)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = sqliteColumn{
			Name:        name,
			Type:        strings.TrimSpace(colType),
			NotNull:     notNull == 1,
			DefaultText: strings.TrimSpace(defaultVal.String),
		}
	}
	return out, rows.Err()
}

func sqliteHasIndex(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list('%s');`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), index) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, nil
}
