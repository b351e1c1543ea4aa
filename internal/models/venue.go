package models

import "time"

// Venue is a physical or virtual event location. NormalizedName is the
// comparison form; uniqueness is soft, enforced by the fuzzy-match threshold
// at insert time rather than a hard constraint, so near-duplicate spellings
// resolve to one row.
type Venue struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	Address        *string   `json:"address"`
	City           *string   `json:"city"`
	Handle         *string   `json:"handle"` // originating profile handle, informational only
	Website        *string   `json:"website"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScrapedPage marks that a normalized URL under a source has been processed.
// It is a resumability cursor only; the publishing step never reads it.
type ScrapedPage struct {
	ID            int64     `json:"id"`
	Source        string    `json:"source"`
	NormalizedURL string    `json:"normalized_url"`
	OriginalURL   string    `json:"original_url"`
	EventsCount   int       `json:"events_count"`
	ScrapedAt     time.Time `json:"scraped_at"`
}
