package extraction

import (
	"context"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// Mock is a deterministic Extractor for tests and offline dry runs. Results
// are keyed by platform post id and page URL; unknown posts come back
// not_event and unknown pages come back empty.
type Mock struct {
	Posts map[string]Classified
	Pages map[string][]models.EventDraft

	// Err, when set, is returned by every call. Used to exercise failure
	// paths in ingest orchestration.
	Err error
}

var _ Extractor = (*Mock)(nil)

func (m *Mock) ClassifyPost(_ context.Context, post models.Post) (Classified, error) {
	if m.Err != nil {
		return Classified{}, m.Err
	}
	if c, ok := m.Posts[post.PlatformPostID]; ok {
		return c, nil
	}
	return Classified{
		Classification: models.ClassificationNotEvent,
		Reason:         "no event announcement found",
	}, nil
}

func (m *Mock) ExtractEvents(_ context.Context, pageURL, _ string) ([]models.EventDraft, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Pages[pageURL], nil
}
