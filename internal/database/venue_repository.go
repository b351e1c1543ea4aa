package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aniketpanjwani/local-media-tools/internal/dedupe"
	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// nearWindow is how far below the threshold a score still gets logged for
// manual review instead of being silently discarded.
const nearWindow = 0.05

// VenueResolver normalizes venue names and fuzzy-matches new mentions
// against existing venues. A pure function of current state plus input;
// there is no venue cache beyond the datastore itself.
type VenueResolver struct {
	db        Execer
	threshold float64
	logger    *slog.Logger
	obs       Observer
}

// NewVenueResolver creates a resolver bound to db. threshold is the minimum
// similarity score for reusing an existing venue.
func NewVenueResolver(db Execer, threshold float64, logger *slog.Logger, obs Observer) *VenueResolver {
	return &VenueResolver{db: db, threshold: threshold, logger: logger, obs: obs}
}

type venueCandidate struct {
	id         int64
	normalized string
}

// Resolve returns the id of the venue the name refers to, reusing the best
// fuzzy match at or above the threshold and inserting a new row otherwise.
// Ties among equally scoring candidates break toward the earliest
// created_at. Null identifying fields on a matched venue are backfilled
// from the hints; populated fields are never overwritten.
func (r *VenueResolver) Resolve(ctx context.Context, name string, hints models.VenueHints) (int64, error) {
	normalized := dedupe.NormalizeVenueName(name)
	if normalized == "" {
		return 0, &models.ValidationError{Field: "venue_name", Reason: "empty after normalization"}
	}

	candidates, err := r.listCandidates(ctx)
	if err != nil {
		return 0, err
	}

	var (
		bestID    int64
		bestScore float64
	)
	for _, c := range candidates {
		score := dedupe.Similarity(normalized, c.normalized)
		// Strictly-greater keeps the earliest-created candidate on ties.
		if score > bestScore {
			bestScore = score
			bestID = c.id
		}
	}

	if bestID != 0 && bestScore >= r.threshold {
		if bestScore < r.threshold+nearWindow {
			r.logger.Warn("venue match near threshold",
				"name", name, "venue_id", bestID, "score", bestScore, "threshold", r.threshold)
			r.obs.NearThresholdMatch("venue")
		}
		if err := r.backfill(ctx, bestID, hints); err != nil {
			return 0, err
		}
		r.obs.VenueMatched()
		return bestID, nil
	}

	if bestID != 0 && bestScore >= r.threshold-nearWindow {
		r.logger.Warn("venue mention just below match threshold, inserting new venue",
			"name", name, "nearest_venue_id", bestID, "score", bestScore, "threshold", r.threshold)
		r.obs.NearThresholdMatch("venue")
	}

	return r.insert(ctx, name, normalized, hints)
}

func (r *VenueResolver) listCandidates(ctx context.Context) ([]venueCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, normalized_name FROM venues ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	var candidates []venueCandidate
	for rows.Next() {
		var c venueCandidate
		if err := rows.Scan(&c.id, &c.normalized); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *VenueResolver) backfill(ctx context.Context, venueID int64, hints models.VenueHints) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE venues SET
			address = COALESCE(address, NULLIF(?, '')),
			city = COALESCE(city, NULLIF(?, '')),
			handle = COALESCE(handle, NULLIF(?, '')),
			website = COALESCE(website, NULLIF(?, ''))
		WHERE id = ?`,
		hints.Address, hints.City, models.NormalizeHandle(hints.Handle), hints.Website, venueID,
	)
	if err != nil {
		return fmt.Errorf("backfill venue %d: %w", venueID, err)
	}
	return nil
}

func (r *VenueResolver) insert(ctx context.Context, name, normalized string, hints models.VenueHints) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO venues (name, normalized_name, address, city, handle, website, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, normalized,
		nullString(hints.Address), nullString(hints.City),
		nullString(models.NormalizeHandle(hints.Handle)), nullString(hints.Website),
		nowText(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert venue %q: %w", name, err)
	}
	r.obs.VenueCreated()
	return res.LastInsertId()
}

// GetVenue reads one venue row. Returns nil when absent.
func GetVenue(ctx context.Context, db Execer, id int64) (*models.Venue, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, normalized_name, address, city, handle, website, created_at
		FROM venues WHERE id = ?`, id)

	var (
		v                              models.Venue
		address, city, handle, website sql.NullString
		createdAt                      string
	)
	err := row.Scan(&v.ID, &v.Name, &v.NormalizedName, &address, &city, &handle, &website, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup venue %d: %w", id, err)
	}
	v.Address = strPtr(address)
	v.City = strPtr(city)
	v.Handle = strPtr(handle)
	v.Website = strPtr(website)
	v.CreatedAt = parseTimestamp(createdAt)
	return &v, nil
}
