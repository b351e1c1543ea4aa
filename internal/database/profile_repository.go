package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// ProfileRepository provides natural-key upserts and reads over source
// accounts. It runs against either the store handle or a caller transaction.
type ProfileRepository struct {
	db Execer
}

// NewProfileRepository creates a profile repository bound to db.
func NewProfileRepository(db Execer) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert inserts the profile or refreshes the display metadata of the
// existing row keyed by (platform, handle). Idempotent; returns the profile
// id either way. Existing non-null metadata is kept when the incoming value
// is empty.
func (r *ProfileRepository) Upsert(ctx context.Context, profile models.Profile) (int64, error) {
	if !profile.Platform.Valid() {
		return 0, &models.ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", profile.Platform)}
	}
	handle := models.NormalizeHandle(profile.Handle)
	if handle == "" {
		return 0, &models.ValidationError{Field: "handle", Reason: "required"}
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM profiles WHERE platform = ? AND handle = ?",
		profile.Platform, handle,
	).Scan(&id)

	switch {
	case err == sql.ErrNoRows:
		now := nowText()
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO profiles (platform, handle, display_name, category, location, last_scraped_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			profile.Platform, handle,
			nullString(profile.DisplayName), nullString(profile.Category), nullString(profile.Location),
			now, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert profile %s: %w", handle, err)
		}
		return res.LastInsertId()

	case err != nil:
		return 0, fmt.Errorf("lookup profile %s: %w", handle, err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE profiles SET
			display_name = COALESCE(NULLIF(?, ''), display_name),
			category = COALESCE(NULLIF(?, ''), category),
			location = COALESCE(NULLIF(?, ''), location),
			last_scraped_at = ?,
			updated_at = ?
		WHERE id = ?`,
		profile.DisplayName, profile.Category, profile.Location,
		nowText(), nowText(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("refresh profile %s: %w", handle, err)
	}
	return id, nil
}

// GetByHandle looks a profile up by platform and handle, tolerating a
// leading @. Returns nil when no such profile exists; an empty result is
// not a fault.
func (r *ProfileRepository) GetByHandle(ctx context.Context, platform models.Platform, handle string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform, handle, display_name, category, location, last_scraped_at, created_at, updated_at
		FROM profiles WHERE platform = ? AND handle = ?`,
		platform, models.NormalizeHandle(handle),
	)

	var (
		p                               models.Profile
		displayName, category, location sql.NullString
		lastScraped                     sql.NullString
		createdAt, updatedAt            string
	)
	err := row.Scan(&p.ID, &p.Platform, &p.Handle, &displayName, &category, &location, &lastScraped, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup profile %s: %w", handle, err)
	}

	p.DisplayName = displayName.String
	p.Category = category.String
	p.Location = location.String
	if lastScraped.Valid {
		t := parseTimestamp(lastScraped.String)
		p.LastScrapedAt = &t
	}
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return &p, nil
}
