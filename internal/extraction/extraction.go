// Package extraction turns raw scraped content into classification verdicts
// and event drafts. The store treats every draft it produces as untrusted
// input and validates before writing.
package extraction

import (
	"context"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// Classified is the verdict for one post.
type Classified struct {
	Classification models.Classification
	Reason         string
	Drafts         []models.EventDraft
}

// Extractor classifies posts and pulls event drafts out of page content.
type Extractor interface {
	// ClassifyPost decides whether a post announces an event and, when it
	// does, extracts the drafts.
	ClassifyPost(ctx context.Context, post models.Post) (Classified, error)

	// ExtractEvents pulls event drafts out of an aggregator page.
	ExtractEvents(ctx context.Context, pageURL, content string) ([]models.EventDraft, error)
}
