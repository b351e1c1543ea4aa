package models

import (
	"strings"
	"time"
)

// Platform identifies the kind of source account a profile represents.
type Platform string

const (
	PlatformSocialProfile Platform = "social_profile"
	PlatformWebAggregator Platform = "web_aggregator"
)

// Valid reports whether the platform is a known enum value.
func (p Platform) Valid() bool {
	return p == PlatformSocialProfile || p == PlatformWebAggregator
}

// Profile is a source account we scrape. Created on first successful scrape,
// never deleted; display metadata is refreshed on later scrapes.
type Profile struct {
	ID            int64      `json:"id"`
	Platform      Platform   `json:"platform"`
	Handle        string     `json:"handle"`
	DisplayName   string     `json:"display_name"`
	Category      string     `json:"category"`
	Location      string     `json:"location"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NormalizeHandle strips a leading @ and surrounding whitespace so lookups
// accept both "@venue" and "venue".
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// Classification records what the extraction collaborator decided a post is.
// Once a post leaves "unclassified" it stays judged: re-scrapes refresh
// content fields but never reset the classification.
type Classification string

const (
	ClassificationUnclassified Classification = "unclassified"
	ClassificationEvent        Classification = "event"
	ClassificationNotEvent     Classification = "not_event"
	ClassificationAmbiguous    Classification = "ambiguous"
)

// Valid reports whether the classification is a known enum value.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationUnclassified, ClassificationEvent, ClassificationNotEvent, ClassificationAmbiguous:
		return true
	}
	return false
}

// Post is one raw scraped unit from a social profile.
type Post struct {
	ID             int64  `json:"id"`
	ProfileID      int64  `json:"profile_id"`
	PlatformPostID string `json:"platform_post_id"`
	PostURL        string `json:"post_url"`
	Caption        string `json:"caption"`
	// MediaURLs holds image references in display order.
	MediaURLs []string `json:"media_urls"`

	Classification       Classification `json:"classification"`
	ClassificationReason string         `json:"classification_reason"`

	PostedAt  *time.Time `json:"posted_at"`
	ScrapedAt time.Time  `json:"scraped_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
