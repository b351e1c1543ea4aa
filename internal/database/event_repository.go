package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aniketpanjwani/local-media-tools/internal/dedupe"
	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// Deduplicator computes a canonical identity key per event draft and merges
// re-submissions of the same identity instead of duplicating rows. An
// optional cross-source pass additionally fuzzy-matches titles across
// sources on the same date.
type Deduplicator struct {
	db             Execer
	titleThreshold float64
	venueThreshold float64
	crossSource    bool
	logger         *slog.Logger
	obs            Observer
}

// NewDeduplicator creates an event deduplicator bound to db.
func NewDeduplicator(db Execer, titleThreshold, venueThreshold float64, crossSource bool, logger *slog.Logger, obs Observer) *Deduplicator {
	return &Deduplicator{
		db:             db,
		titleThreshold: titleThreshold,
		venueThreshold: venueThreshold,
		crossSource:    crossSource,
		logger:         logger,
		obs:            obs,
	}
}

// Upsert validates the draft, computes its identity key against the
// resolved venue, and either inserts a new Event row or merges into the
// existing one. Merges are fill-forward only: a populated field is never
// overwritten, confidence is never lowered, needs_review is never cleared.
func (d *Deduplicator) Upsert(ctx context.Context, draft models.EventDraft, venueID int64, postID *int64) (UpsertOutcome, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}

	key := dedupe.UniqueKey(draft.Title, draft.EventDate, venueID)
	return d.upsertByKey(ctx, key, draft, venueID, postID)
}

func (d *Deduplicator) upsertByKey(ctx context.Context, key string, draft models.EventDraft, venueID int64, postID *int64) (UpsertOutcome, error) {
	existing, err := d.getByUniqueKey(ctx, key)
	if err != nil {
		return "", err
	}

	if existing == nil && d.crossSource {
		existing, err = d.findCrossSourceMatch(ctx, draft, venueID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			note := fmt.Sprintf("cross-source match: also seen via %s", draft.Source)
			if draft.SourceURL != "" {
				note += " (" + draft.SourceURL + ")"
			}
			return d.merge(ctx, existing, draft, existing.VenueID, postID, note)
		}
	}

	if existing != nil {
		if existing.VenueID != venueID {
			d.obs.EventConflict()
			return "", &ConflictError{
				UniqueKey: key,
				Field:     "venue_id",
				Existing:  strconv.FormatInt(existing.VenueID, 10),
				Incoming:  strconv.FormatInt(venueID, 10),
			}
		}
		if existing.EventDate != draft.EventDate {
			d.obs.EventConflict()
			return "", &ConflictError{
				UniqueKey: key,
				Field:     "event_date",
				Existing:  existing.EventDate,
				Incoming:  draft.EventDate,
			}
		}
		return d.merge(ctx, existing, draft, venueID, postID, "")
	}

	if err := d.insert(ctx, key, draft, venueID, postID); err != nil {
		return "", err
	}
	d.obs.EventSaved(draft.Source)
	return OutcomeSaved, nil
}

func (d *Deduplicator) insert(ctx context.Context, key string, draft models.EventDraft, venueID int64, postID *int64) error {
	now := nowText()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO events (unique_key, venue_id, post_id, title, event_date, start_time, end_time,
			source, description, category, price, is_free, ticket_url, event_url, image_url, source_url,
			confidence, needs_review, review_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, venueID, int64PtrOrNil(postID), draft.Title, draft.EventDate,
		nullString(draft.StartTime), nullString(draft.EndTime),
		draft.Source, nullString(draft.Description), draft.CategoryOrOther(),
		nullString(draft.Price), boolInt(draft.IsFree),
		nullString(draft.TicketURL), nullString(draft.EventURL),
		nullString(draft.ImageURL), nullString(draft.SourceURL),
		draft.ConfidenceOrDefault(), boolInt(draft.NeedsReview), nullString(draft.ReviewNotes),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert event %q: %w", draft.Title, err)
	}
	return nil
}

// merge applies the fill-forward policy against the stored row. note, when
// non-empty, is appended to review_notes (used by the cross-source pass).
func (d *Deduplicator) merge(ctx context.Context, existing *models.Event, draft models.EventDraft, venueID int64, postID *int64, note string) (UpsertOutcome, error) {
	confidence := existing.Confidence
	if c := draft.ConfidenceOrDefault(); c > confidence {
		confidence = c
	}

	needsReview := existing.NeedsReview || draft.NeedsReview

	reviewNotes := ""
	if existing.ReviewNotes != nil {
		reviewNotes = *existing.ReviewNotes
	} else if draft.ReviewNotes != "" {
		reviewNotes = draft.ReviewNotes
	}
	if note != "" {
		if reviewNotes != "" {
			reviewNotes += "; "
		}
		reviewNotes += note
		needsReview = true
	}

	category := existing.Category
	if category == "" || category == models.CategoryOther {
		category = draft.CategoryOrOther()
	}

	_, err := d.db.ExecContext(ctx, `
		UPDATE events SET
			start_time = COALESCE(start_time, NULLIF(?, '')),
			end_time = COALESCE(end_time, NULLIF(?, '')),
			description = COALESCE(description, NULLIF(?, '')),
			price = COALESCE(price, NULLIF(?, '')),
			ticket_url = COALESCE(ticket_url, NULLIF(?, '')),
			event_url = COALESCE(event_url, NULLIF(?, '')),
			image_url = COALESCE(image_url, NULLIF(?, '')),
			source_url = COALESCE(source_url, NULLIF(?, '')),
			post_id = COALESCE(post_id, ?),
			category = ?,
			is_free = MAX(is_free, ?),
			confidence = ?,
			needs_review = ?,
			review_notes = NULLIF(?, ''),
			updated_at = ?
		WHERE id = ?`,
		draft.StartTime, draft.EndTime, draft.Description, draft.Price,
		draft.TicketURL, draft.EventURL, draft.ImageURL, draft.SourceURL,
		int64PtrOrNil(postID), category, boolInt(draft.IsFree),
		confidence, boolInt(needsReview), reviewNotes, nowText(), existing.ID,
	)
	if err != nil {
		return "", fmt.Errorf("merge event %q: %w", existing.UniqueKey, err)
	}
	d.obs.EventUpdated(existing.Source)
	return OutcomeUpdated, nil
}

// findCrossSourceMatch looks for a same-date event from a different source
// whose title and venue both fuzzy-match the draft: the same event posted
// under slightly different wording on two platforms.
func (d *Deduplicator) findCrossSourceMatch(ctx context.Context, draft models.EventDraft, venueID int64) (*models.Event, error) {
	venue, err := GetVenue(ctx, d.db, venueID)
	if err != nil {
		return nil, err
	}
	if venue == nil {
		return nil, fmt.Errorf("resolved venue %d not found", venueID)
	}

	rows, err := d.db.QueryContext(ctx, eventSelect+`, v.normalized_name
		FROM events e JOIN venues v ON e.venue_id = v.id
		WHERE e.event_date = ? AND e.source != ?
		ORDER BY e.created_at, e.id`,
		draft.EventDate, draft.Source,
	)
	if err != nil {
		return nil, fmt.Errorf("cross-source candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		candidate, candidateVenueNorm, err := scanEventWithVenueNorm(rows)
		if err != nil {
			return nil, err
		}

		titleScore := dedupe.TitleSimilarity(draft.Title, candidate.Title)
		if titleScore < d.titleThreshold {
			continue
		}
		venueScore := dedupe.Similarity(venue.NormalizedName, candidateVenueNorm)
		if venueScore < d.venueThreshold {
			continue
		}

		if titleScore < d.titleThreshold+nearWindow {
			d.logger.Warn("cross-source title match near threshold",
				"draft_title", draft.Title, "event_id", candidate.ID, "score", titleScore)
			d.obs.NearThresholdMatch("title")
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		return candidate, nil
	}
	return nil, rows.Err()
}

const eventSelect = `
		SELECT e.id, e.unique_key, e.venue_id, e.post_id, e.title, e.event_date,
		       e.start_time, e.end_time, e.source, e.description, e.category,
		       e.price, e.is_free, e.ticket_url, e.event_url, e.image_url, e.source_url,
		       e.confidence, e.needs_review, e.review_notes, e.created_at, e.updated_at`

func (d *Deduplicator) getByUniqueKey(ctx context.Context, key string) (*models.Event, error) {
	rows, err := d.db.QueryContext(ctx, eventSelect+`
		FROM events e WHERE e.unique_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("lookup event key %q: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	event, err := scanEvent(rows)
	if err != nil {
		return nil, err
	}
	return event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e                    models.Event
		postID               sql.NullInt64
		startTime, endTime   sql.NullString
		description, price   sql.NullString
		ticketURL, eventURL  sql.NullString
		imageURL, sourceURL  sql.NullString
		reviewNotes          sql.NullString
		isFree, needsReview  int
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.UniqueKey, &e.VenueID, &postID, &e.Title, &e.EventDate,
		&startTime, &endTime, &e.Source, &description, &e.Category,
		&price, &isFree, &ticketURL, &eventURL, &imageURL, &sourceURL,
		&e.Confidence, &needsReview, &reviewNotes, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if postID.Valid {
		id := postID.Int64
		e.PostID = &id
	}
	e.StartTime = strPtr(startTime)
	e.EndTime = strPtr(endTime)
	e.Description = strPtr(description)
	e.Price = strPtr(price)
	e.TicketURL = strPtr(ticketURL)
	e.EventURL = strPtr(eventURL)
	e.ImageURL = strPtr(imageURL)
	e.SourceURL = strPtr(sourceURL)
	e.ReviewNotes = strPtr(reviewNotes)
	e.IsFree = isFree != 0
	e.NeedsReview = needsReview != 0
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	return &e, nil
}

func scanEventWithVenueNorm(rows *sql.Rows) (*models.Event, string, error) {
	// Same columns as scanEvent plus the joined venue's normalized name.
	var (
		e                    models.Event
		postID               sql.NullInt64
		startTime, endTime   sql.NullString
		description, price   sql.NullString
		ticketURL, eventURL  sql.NullString
		imageURL, sourceURL  sql.NullString
		reviewNotes          sql.NullString
		isFree, needsReview  int
		createdAt, updatedAt string
		venueNorm            string
	)
	err := rows.Scan(&e.ID, &e.UniqueKey, &e.VenueID, &postID, &e.Title, &e.EventDate,
		&startTime, &endTime, &e.Source, &description, &e.Category,
		&price, &isFree, &ticketURL, &eventURL, &imageURL, &sourceURL,
		&e.Confidence, &needsReview, &reviewNotes, &createdAt, &updatedAt, &venueNorm)
	if err != nil {
		return nil, "", fmt.Errorf("scan event candidate: %w", err)
	}

	if postID.Valid {
		id := postID.Int64
		e.PostID = &id
	}
	e.StartTime = strPtr(startTime)
	e.EndTime = strPtr(endTime)
	e.Description = strPtr(description)
	e.Price = strPtr(price)
	e.TicketURL = strPtr(ticketURL)
	e.EventURL = strPtr(eventURL)
	e.ImageURL = strPtr(imageURL)
	e.SourceURL = strPtr(sourceURL)
	e.ReviewNotes = strPtr(reviewNotes)
	e.IsFree = isFree != 0
	e.NeedsReview = needsReview != 0
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	return &e, venueNorm, nil
}

func int64PtrOrNil(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
