// Package ingest orchestrates scrape runs: deciding which pages still need
// processing, calling the extraction collaborator, and handing results to the
// store. Pages are marked scraped by the store in the same transaction that
// persists their events, so a failed page is revisited on the next run.
package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aniketpanjwani/local-media-tools/internal/database"
	"github.com/aniketpanjwani/local-media-tools/internal/extraction"
	"github.com/aniketpanjwani/local-media-tools/internal/models"
	"github.com/aniketpanjwani/local-media-tools/internal/urltrack"
)

// Store is the slice of the datastore the runner writes through.
type Store interface {
	SaveWebPage(ctx context.Context, source, pageURL string, drafts []models.EventDraft) (models.SaveResult, error)
	SaveBatch(ctx context.Context, profile models.Profile, batch []database.BatchPost) (models.SaveResult, error)
	ScrapedURLSet(ctx context.Context, source string) (map[string]bool, error)
}

// Fetcher retrieves raw page content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Report summarizes one ingest run.
type Report struct {
	RunID        string            `json:"run_id"`
	PagesVisited int               `json:"pages_visited"`
	PagesSkipped int               `json:"pages_skipped"`
	PagesFailed  int               `json:"pages_failed"`
	Result       models.SaveResult `json:"result"`
}

// Runner drives scrape runs end to end.
type Runner struct {
	store     Store
	fetcher   Fetcher
	extractor extraction.Extractor
	tracker   *urltrack.Tracker
	logger    *slog.Logger
}

func NewRunner(store Store, fetcher Fetcher, extractor extraction.Extractor, logger *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		tracker:   urltrack.NewTracker(store),
		logger:    logger,
	}
}

// RunPages processes the discovered aggregator URLs under source. Already
// scraped pages are skipped unless force is set. A page that fails to fetch,
// extract, or save is counted, logged, and left unmarked; the run continues
// with the remaining pages.
func (r *Runner) RunPages(ctx context.Context, source string, urls []string, force bool) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", report.RunID, "source", source)

	pages, err := r.tracker.FilterNew(ctx, source, urls, force)
	if err != nil {
		return report, err
	}
	report.PagesSkipped = len(urls) - len(pages)
	logger.Info("run started", "discovered", len(urls), "new", len(pages), "force", force)

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		content, err := r.fetcher.Fetch(ctx, page.Original)
		if err != nil {
			report.PagesFailed++
			logger.Warn("fetch failed, page left unmarked", "url", page.Original, "error", err)
			continue
		}

		drafts, err := r.extractor.ExtractEvents(ctx, page.Original, content)
		if err != nil {
			report.PagesFailed++
			logger.Warn("extraction failed, page left unmarked", "url", page.Original, "error", err)
			continue
		}

		result, err := r.store.SaveWebPage(ctx, source, page.Original, drafts)
		if err != nil {
			report.PagesFailed++
			logger.Error("save failed, page left unmarked", "url", page.Original, "error", err)
			continue
		}

		report.PagesVisited++
		report.Result.Merge(result)
	}

	logger.Info("run finished",
		"visited", report.PagesVisited,
		"skipped", report.PagesSkipped,
		"failed", report.PagesFailed,
		"events_saved", report.Result.EventsSaved,
		"events_updated", report.Result.EventsUpdated)
	return report, nil
}

// RunProfile classifies a profile's freshly scraped posts and saves the lot
// in one batch. Posts whose classification fails stay unclassified and are
// still persisted, so a later run can retry them.
func (r *Runner) RunProfile(ctx context.Context, profile models.Profile, posts []models.Post) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", report.RunID, "profile", profile.Handle)

	batch := make([]database.BatchPost, 0, len(posts))
	for _, post := range posts {
		if post.Classification == "" {
			post.Classification = models.ClassificationUnclassified
		}

		bp := database.BatchPost{Post: post}
		if post.Classification == models.ClassificationUnclassified {
			verdict, err := r.extractor.ClassifyPost(ctx, post)
			if err != nil {
				logger.Warn("classification failed, post kept unclassified",
					"post", post.PlatformPostID, "error", err)
			} else {
				bp.Post.Classification = verdict.Classification
				bp.Post.ClassificationReason = verdict.Reason
				bp.Drafts = verdict.Drafts
			}
		}
		batch = append(batch, bp)
	}

	result, err := r.store.SaveBatch(ctx, profile, batch)
	if err != nil {
		return report, err
	}
	report.Result = result

	logger.Info("profile run finished",
		"posts_new", result.PostsNew,
		"posts_existing", result.PostsExisting,
		"events_saved", result.EventsSaved,
		"events_updated", result.EventsUpdated,
		"errors", len(result.Errors))
	return report, nil
}
