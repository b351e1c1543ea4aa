package models

import (
	"fmt"
	"time"
)

// EventSource identifies which kind of collaborator produced an event draft.
type EventSource string

const (
	SourceSocialProfile EventSource = "social_profile"
	SourceWebAggregator EventSource = "web_aggregator"
	SourceAdHocLink     EventSource = "adhoc_link"
)

// Valid reports whether the source is one of the known enum values.
func (s EventSource) Valid() bool {
	switch s {
	case SourceSocialProfile, SourceWebAggregator, SourceAdHocLink:
		return true
	}
	return false
}

// EventCategory groups events for the downstream newsletter step.
type EventCategory string

const (
	CategoryMusic     EventCategory = "music"
	CategoryFoodDrink EventCategory = "food_drink"
	CategoryArt       EventCategory = "art"
	CategoryCommunity EventCategory = "community"
	CategoryOutdoor   EventCategory = "outdoor"
	CategoryMarket    EventCategory = "market"
	CategoryWorkshop  EventCategory = "workshop"
	CategoryOther     EventCategory = "other"
)

// Event is a single stored calendar occurrence. At most one row exists per
// UniqueKey; re-submissions of the same identity are merged, never duplicated.
// Optional fields are pointers so they serialize as explicit nulls for the
// publishing step.
type Event struct {
	ID        int64       `json:"id"`
	UniqueKey string      `json:"unique_key"`
	VenueID   int64       `json:"venue_id"`
	PostID    *int64      `json:"post_id"`
	Title     string      `json:"title"`
	EventDate string      `json:"event_date"` // ISO date, never empty for new writes
	StartTime *string     `json:"start_time"` // HH:MM
	EndTime   *string     `json:"end_time"`
	Source    EventSource `json:"source"`

	Description *string       `json:"description"`
	Category    EventCategory `json:"category"`
	Price       *string       `json:"price"`
	IsFree      bool          `json:"is_free"`
	TicketURL   *string       `json:"ticket_url"`
	EventURL    *string       `json:"event_url"`
	ImageURL    *string       `json:"image_url"`
	SourceURL   *string       `json:"source_url"`

	Confidence  float64   `json:"confidence"`
	NeedsReview bool      `json:"needs_review"`
	ReviewNotes *string   `json:"review_notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventWithVenue is the joined view served to the publishing collaborator.
type EventWithVenue struct {
	Event
	Venue Venue `json:"venue"`
}

// VenueHints carries identifying fields an extraction collaborator saw
// alongside a venue name. Used to backfill null columns on a matched venue,
// never to overwrite populated ones.
type VenueHints struct {
	Address string `json:"address,omitempty" yaml:"address"`
	City    string `json:"city,omitempty" yaml:"city"`
	Handle  string `json:"handle,omitempty" yaml:"handle"`
	Website string `json:"website,omitempty" yaml:"website"`
}

// EventDraft is the untrusted record an extraction collaborator hands to the
// store. Required-field presence and formats are checked by Validate before
// any write; a malformed draft is rejected individually and never aborts its
// siblings.
type EventDraft struct {
	Title      string      `json:"title"`
	VenueName  string      `json:"venue_name"`
	VenueHints VenueHints  `json:"venue_hints"`
	EventDate  string      `json:"event_date"` // ISO date, required
	StartTime  string      `json:"start_time,omitempty"`
	EndTime    string      `json:"end_time,omitempty"`
	Source     EventSource `json:"source"`

	Description string        `json:"description,omitempty"`
	Category    EventCategory `json:"category,omitempty"`
	Price       string        `json:"price,omitempty"`
	IsFree      bool          `json:"is_free,omitempty"`
	TicketURL   string        `json:"ticket_url,omitempty"`
	EventURL    string        `json:"event_url,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`

	Confidence  *float64 `json:"confidence,omitempty"`
	NeedsReview bool     `json:"needs_review,omitempty"`
	ReviewNotes string   `json:"review_notes,omitempty"`
}

const (
	// DateLayout is the on-disk and wire format for event dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the on-disk and wire format for start/end times.
	TimeLayout = "15:04"
)

// Validate checks the draft the way any untrusted API response would be
// checked: required fields present, formats parseable, ranges respected.
// It returns a ValidationError naming the first offending field.
func (d *EventDraft) Validate() error {
	if d.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if d.VenueName == "" {
		return &ValidationError{Field: "venue_name", Reason: "required"}
	}
	if d.EventDate == "" {
		return &ValidationError{Field: "event_date", Reason: "required"}
	}
	if _, err := time.Parse(DateLayout, d.EventDate); err != nil {
		return &ValidationError{Field: "event_date", Reason: fmt.Sprintf("not an ISO date: %q", d.EventDate)}
	}
	if d.StartTime != "" {
		if _, err := time.Parse(TimeLayout, d.StartTime); err != nil {
			return &ValidationError{Field: "start_time", Reason: fmt.Sprintf("not an HH:MM time: %q", d.StartTime)}
		}
	}
	if d.EndTime != "" {
		if _, err := time.Parse(TimeLayout, d.EndTime); err != nil {
			return &ValidationError{Field: "end_time", Reason: fmt.Sprintf("not an HH:MM time: %q", d.EndTime)}
		}
	}
	if !d.Source.Valid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", d.Source)}
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return &ValidationError{Field: "confidence", Reason: "must be within [0,1]"}
	}
	return nil
}

// ConfidenceOrDefault returns the draft confidence, defaulting to 1.0 when
// the collaborator did not score it.
func (d *EventDraft) ConfidenceOrDefault() float64 {
	if d.Confidence != nil {
		return *d.Confidence
	}
	return 1.0
}

// CategoryOrOther returns the draft category, defaulting to "other".
func (d *EventDraft) CategoryOrOther() EventCategory {
	if d.Category == "" {
		return CategoryOther
	}
	return d.Category
}
