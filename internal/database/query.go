package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// QueryEvents returns events in the inclusive [from, to] date range joined
// with their venue, ordered by date, then start time with unscheduled events
// last, then title. Rows with a legacy empty date are excluded. The result
// order is deterministic for identical datastore contents.
func QueryEvents(ctx context.Context, db Execer, from, to time.Time) ([]models.EventWithVenue, error) {
	rows, err := db.QueryContext(ctx, eventSelect+`,
		       v.id, v.name, v.normalized_name, v.address, v.city, v.handle, v.website, v.created_at
		FROM events e
		JOIN venues v ON e.venue_id = v.id
		WHERE e.event_date != '' AND e.event_date >= ? AND e.event_date <= ?
		ORDER BY e.event_date, e.start_time IS NULL, e.start_time, e.title`,
		from.Format(models.DateLayout), to.Format(models.DateLayout),
	)
	if err != nil {
		return nil, &StorageError{Op: "query events", Err: err}
	}
	defer rows.Close()

	var out []models.EventWithVenue
	for rows.Next() {
		ev, err := scanEventWithVenue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEventWithVenue(rows *sql.Rows) (models.EventWithVenue, error) {
	var (
		ev                   models.EventWithVenue
		postID               sql.NullInt64
		startTime, endTime   sql.NullString
		description, price   sql.NullString
		ticketURL, eventURL  sql.NullString
		imageURL, sourceURL  sql.NullString
		reviewNotes          sql.NullString
		isFree, needsReview  int
		createdAt, updatedAt string
		address, city        sql.NullString
		handle, website      sql.NullString
		venueCreatedAt       string
	)
	err := rows.Scan(&ev.ID, &ev.UniqueKey, &ev.VenueID, &postID, &ev.Title, &ev.EventDate,
		&startTime, &endTime, &ev.Source, &description, &ev.Category,
		&price, &isFree, &ticketURL, &eventURL, &imageURL, &sourceURL,
		&ev.Confidence, &needsReview, &reviewNotes, &createdAt, &updatedAt,
		&ev.Venue.ID, &ev.Venue.Name, &ev.Venue.NormalizedName,
		&address, &city, &handle, &website, &venueCreatedAt)
	if err != nil {
		return ev, fmt.Errorf("scan event row: %w", err)
	}

	if postID.Valid {
		id := postID.Int64
		ev.PostID = &id
	}
	ev.StartTime = strPtr(startTime)
	ev.EndTime = strPtr(endTime)
	ev.Description = strPtr(description)
	ev.Price = strPtr(price)
	ev.TicketURL = strPtr(ticketURL)
	ev.EventURL = strPtr(eventURL)
	ev.ImageURL = strPtr(imageURL)
	ev.SourceURL = strPtr(sourceURL)
	ev.ReviewNotes = strPtr(reviewNotes)
	ev.IsFree = isFree != 0
	ev.NeedsReview = needsReview != 0
	ev.CreatedAt = parseTimestamp(createdAt)
	ev.UpdatedAt = parseTimestamp(updatedAt)
	ev.Venue.Address = strPtr(address)
	ev.Venue.City = strPtr(city)
	ev.Venue.Handle = strPtr(handle)
	ev.Venue.Website = strPtr(website)
	ev.Venue.CreatedAt = parseTimestamp(venueCreatedAt)
	return ev, nil
}

// CollectStats takes an operational snapshot of the datastore.
func CollectStats(ctx context.Context, db Execer) (models.Stats, error) {
	stats := models.Stats{
		EventsBySource:        make(map[models.EventSource]int),
		PostsByClassification: make(map[models.Classification]int),
		PagesBySource:         make(map[string]models.PageStats),
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&stats.EventCount); err != nil {
		return stats, &StorageError{Op: "count events", Err: err}
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&stats.VenueCount); err != nil {
		return stats, &StorageError{Op: "count venues", Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT source, COUNT(*) FROM events GROUP BY source`)
	if err != nil {
		return stats, &StorageError{Op: "events by source", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var source models.EventSource
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return stats, err
		}
		stats.EventsBySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = db.QueryContext(ctx, `SELECT classification, COUNT(*) FROM posts GROUP BY classification`)
	if err != nil {
		return stats, &StorageError{Op: "posts by classification", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var cls models.Classification
		var n int
		if err := rows.Scan(&cls, &n); err != nil {
			return stats, err
		}
		stats.PostsByClassification[cls] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT source, COUNT(*), COALESCE(SUM(events_count), 0)
		FROM scraped_pages GROUP BY source`)
	if err != nil {
		return stats, &StorageError{Op: "pages by source", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var ps models.PageStats
		if err := rows.Scan(&source, &ps.Pages, &ps.Events); err != nil {
			return stats, err
		}
		stats.PagesBySource[source] = ps
	}
	return stats, rows.Err()
}
