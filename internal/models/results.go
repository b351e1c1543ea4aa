package models

// ItemError records a per-item failure inside a batch operation. Ref is the
// natural key of the failing item (platform post id, draft title, URL).
type ItemError struct {
	Ref string `json:"ref"`
	Err error  `json:"-"`
}

func (e ItemError) Error() string {
	return e.Ref + ": " + e.Err.Error()
}

// SaveResult reports the outcome of a batch save.
type SaveResult struct {
	PostsNew      int         `json:"posts_new"`
	PostsExisting int         `json:"posts_existing"`
	EventsSaved   int         `json:"events_saved"`
	EventsUpdated int         `json:"events_updated"`
	Errors        []ItemError `json:"errors,omitempty"`
}

// Merge folds counts from another result into this one.
func (r *SaveResult) Merge(other SaveResult) {
	r.PostsNew += other.PostsNew
	r.PostsExisting += other.PostsExisting
	r.EventsSaved += other.EventsSaved
	r.EventsUpdated += other.EventsUpdated
	r.Errors = append(r.Errors, other.Errors...)
}

// PageStats aggregates scraped-page activity for one source.
type PageStats struct {
	Pages  int `json:"pages"`
	Events int `json:"events"`
}

// Stats is the operational snapshot served to reporting. Reads only, never
// mutates state.
type Stats struct {
	EventCount            int                    `json:"event_count"`
	VenueCount            int                    `json:"venue_count"`
	EventsBySource        map[EventSource]int    `json:"events_by_source"`
	PostsByClassification map[Classification]int `json:"posts_by_classification"`
	PagesBySource         map[string]PageStats   `json:"pages_by_source"`
}
