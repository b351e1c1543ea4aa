package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aniketpanjwani/local-media-tools/internal/dedupe"
)

// SchemaVersion is the schema version this code targets.
const SchemaVersion = 3

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "initial schema", apply: migrateInitial},
	{version: 2, name: "event unique keys", apply: migrateUniqueKeys},
	{version: 3, name: "scraped pages and post classification", apply: migrateScrapedPages},
}

// MigrateOptions controls EnsureSchema behavior.
type MigrateOptions struct {
	// DatastorePath is the on-disk file, used for the pre-migration
	// snapshot. Empty or ":memory:" disables snapshots.
	DatastorePath string
	// Snapshot copies the datastore file aside before the first pending
	// migration runs. The copy is the only non-transactional step.
	Snapshot bool
}

// EnsureSchema reads the stored schema version and applies pending
// migrations in strict ascending order, each inside its own transaction.
// The version bump is committed in the same transaction as the migration it
// belongs to, so a failure rolls back fully and leaves no partial schema.
func EnsureSchema(ctx context.Context, db *sql.DB, opts MigrateOptions, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)"); err != nil {
		return &StorageError{Op: "ensure schema_meta", Err: err}
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		logger.Debug("schema up to date", "version", current)
		return nil
	}

	logger.Info("applying schema migrations", "from", current, "to", SchemaVersion)

	if opts.Snapshot && opts.DatastorePath != "" && opts.DatastorePath != ":memory:" {
		if err := snapshotFile(opts.DatastorePath); err != nil {
			return &StorageError{Op: "snapshot", Err: err}
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m, current == 0 && m.version == 1); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.version, "name", m.name)
		current = m.version
	}

	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_meta LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: "read schema version", Err: err}
	}
	return version, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration, firstEver bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin migration", Err: err}
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return &MigrationError{Version: m.version, Err: err}
	}

	var bump string
	if firstEver {
		bump = "INSERT INTO schema_meta (version) VALUES (?)"
	} else {
		bump = "UPDATE schema_meta SET version = ?"
	}
	if _, err := tx.ExecContext(ctx, bump, m.version); err != nil {
		return &MigrationError{Version: m.version, Err: fmt.Errorf("record version: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: m.version, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// snapshotFile copies the datastore aside with scoped handles that are
// closed on every path. It must complete before any migration begins; on
// migration failure the copy is left in place for manual recovery.
func snapshotFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to snapshot yet
		}
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".bak")
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

func migrateInitial(ctx context.Context, tx *sql.Tx) error {
	const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform TEXT NOT NULL CHECK(platform IN ('social_profile', 'web_aggregator')),
    handle TEXT NOT NULL,
    display_name TEXT,
    category TEXT,
    location TEXT,
    last_scraped_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE(platform, handle)
);
CREATE INDEX IF NOT EXISTS idx_profiles_handle ON profiles(handle);

CREATE TABLE IF NOT EXISTS venues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    address TEXT,
    city TEXT,
    handle TEXT,
    website TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_venues_normalized_name ON venues(normalized_name);

CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id INTEGER NOT NULL,
    platform_post_id TEXT NOT NULL,
    post_url TEXT,
    caption TEXT,
    media_urls TEXT,
    posted_at TEXT,
    scraped_at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE,
    UNIQUE(profile_id, platform_post_id)
);
CREATE INDEX IF NOT EXISTS idx_posts_profile_id ON posts(profile_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    venue_id INTEGER NOT NULL,
    post_id INTEGER,
    title TEXT NOT NULL,
    event_date TEXT NOT NULL,
    start_time TEXT,
    end_time TEXT,
    source TEXT NOT NULL CHECK(source IN ('social_profile', 'web_aggregator', 'adhoc_link')),
    description TEXT,
    category TEXT NOT NULL DEFAULT 'other',
    price TEXT,
    is_free INTEGER NOT NULL DEFAULT 0 CHECK(is_free IN (0, 1)),
    ticket_url TEXT,
    event_url TEXT,
    image_url TEXT,
    source_url TEXT,
    confidence REAL NOT NULL DEFAULT 1.0,
    needs_review INTEGER NOT NULL DEFAULT 0 CHECK(needs_review IN (0, 1)),
    review_notes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (venue_id) REFERENCES venues(id),
    FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_events_date ON events(event_date);
CREATE INDEX IF NOT EXISTS idx_events_venue_id ON events(venue_id);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
`
	_, err := tx.ExecContext(ctx, schema)
	return err
}

// migrateUniqueKeys adds the derived identity column and recomputes it for
// every existing row. Rows whose recomputed keys collide are kept (no data
// loss): the earliest row wins the key, later ones get a disambiguated key
// and are flagged for review.
func migrateUniqueKeys(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "ALTER TABLE events ADD COLUMN unique_key TEXT"); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id, title, event_date, venue_id FROM events ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	type rekey struct {
		id  int64
		key string
	}
	var updates []rekey
	seen := make(map[string]bool)
	var dupes []rekey

	for rows.Next() {
		var (
			id      int64
			title   string
			date    string
			venueID int64
		)
		if err := rows.Scan(&id, &title, &date, &venueID); err != nil {
			return err
		}
		key := dedupe.UniqueKey(title, date, venueID)
		if seen[key] {
			dupes = append(dupes, rekey{id: id, key: key})
			continue
		}
		seen[key] = true
		updates = append(updates, rekey{id: id, key: key})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			"UPDATE events SET unique_key = ? WHERE id = ?", u.key, u.id); err != nil {
			return err
		}
	}
	for _, d := range dupes {
		disambiguated := fmt.Sprintf("%s#dup%d", d.key, d.id)
		note := fmt.Sprintf("duplicate identity after key migration: %s", d.key)
		if _, err := tx.ExecContext(ctx,
			"UPDATE events SET unique_key = ?, needs_review = 1, review_notes = ? WHERE id = ?",
			disambiguated, note, d.id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		"CREATE UNIQUE INDEX idx_events_unique_key ON events(unique_key)")
	return err
}

func migrateScrapedPages(ctx context.Context, tx *sql.Tx) error {
	const schema = `
CREATE TABLE IF NOT EXISTS scraped_pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    normalized_url TEXT NOT NULL,
    original_url TEXT NOT NULL,
    events_count INTEGER NOT NULL DEFAULT 0,
    scraped_at TEXT NOT NULL,
    UNIQUE(source, normalized_url)
);
CREATE INDEX IF NOT EXISTS idx_scraped_pages_source ON scraped_pages(source);
`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}

	alters := []string{
		"ALTER TABLE posts ADD COLUMN classification TEXT NOT NULL DEFAULT 'unclassified' CHECK(classification IN ('unclassified', 'event', 'not_event', 'ambiguous'))",
		"ALTER TABLE posts ADD COLUMN classification_reason TEXT",
	}
	for _, stmt := range alters {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
