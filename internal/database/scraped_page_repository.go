package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// ScrapedPageRepository records which normalized URLs have already been
// processed per source. It is the resumability cursor for ingest runs.
type ScrapedPageRepository struct {
	db Execer
}

func NewScrapedPageRepository(db Execer) *ScrapedPageRepository {
	return &ScrapedPageRepository{db: db}
}

// MarkScraped records a processed page. Re-marking the same (source,
// normalized URL) pair refreshes events_count, original_url, and the
// scraped_at timestamp instead of inserting a second row.
func (r *ScrapedPageRepository) MarkScraped(ctx context.Context, source, normalizedURL, originalURL string, eventsCount int) error {
	if source == "" {
		return &models.ValidationError{Field: "source", Reason: "must not be empty"}
	}
	if normalizedURL == "" {
		return &models.ValidationError{Field: "normalized_url", Reason: "must not be empty"}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scraped_pages (source, normalized_url, original_url, events_count, scraped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, normalized_url) DO UPDATE SET
			original_url = excluded.original_url,
			events_count = excluded.events_count,
			scraped_at = excluded.scraped_at`,
		source, normalizedURL, originalURL, eventsCount, nowText(),
	)
	if err != nil {
		return fmt.Errorf("mark page %q scraped: %w", normalizedURL, err)
	}
	return nil
}

// IsScraped reports whether the normalized URL has been processed under source.
func (r *ScrapedPageRepository) IsScraped(ctx context.Context, source, normalizedURL string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM scraped_pages WHERE source = ? AND normalized_url = ?`,
		source, normalizedURL,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check page %q: %w", normalizedURL, err)
	}
	return true, nil
}

// ListBySource returns all pages recorded under source, oldest first.
func (r *ScrapedPageRepository) ListBySource(ctx context.Context, source string) ([]models.ScrapedPage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, normalized_url, original_url, events_count, scraped_at
		FROM scraped_pages WHERE source = ? ORDER BY scraped_at, id`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("list pages for %q: %w", source, err)
	}
	defer rows.Close()

	var out []models.ScrapedPage
	for rows.Next() {
		var p models.ScrapedPage
		var scrapedAt string
		if err := rows.Scan(&p.ID, &p.Source, &p.NormalizedURL, &p.OriginalURL, &p.EventsCount, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.ScrapedAt = parseTimestamp(scrapedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ScrapedURLSet returns the normalized URLs already processed under source,
// for set-difference against a freshly discovered URL list.
func (r *ScrapedPageRepository) ScrapedURLSet(ctx context.Context, source string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT normalized_url FROM scraped_pages WHERE source = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("load scraped set for %q: %w", source, err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		set[u] = true
	}
	return set, rows.Err()
}
