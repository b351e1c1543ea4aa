package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
	"github.com/aniketpanjwani/local-media-tools/internal/urltrack"
)

// Default matching thresholds, tuned against hand-labeled scrape batches.
const (
	DefaultVenueMatchThreshold = 0.85
	DefaultTitleMatchThreshold = 0.75
)

// Options configures a Store.
type Options struct {
	Datastore Config

	// VenueMatchThreshold is the minimum token-sort similarity for an
	// incoming venue name to merge into an existing venue row.
	VenueMatchThreshold float64
	// TitleMatchThreshold is the minimum title similarity for the
	// cross-source event pass.
	TitleMatchThreshold float64
	// CrossSourceMatch enables fuzzy title matching across sources on the
	// same date.
	CrossSourceMatch bool
	// AutoBackup snapshots the datastore file before pending migrations run.
	AutoBackup bool

	Logger   *slog.Logger
	Observer Observer
}

// Store is the single entry point to the datastore. It owns the connection,
// runs pending migrations on open, and wraps every multi-entity operation in
// one transaction so a crash mid-batch leaves no partial state.
type Store struct {
	db   *sql.DB
	opts Options

	logger *slog.Logger
	obs    Observer
}

// NewStore opens the datastore at opts.Datastore.Path and brings the schema
// up to the current version.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.VenueMatchThreshold == 0 {
		opts.VenueMatchThreshold = DefaultVenueMatchThreshold
	}
	if opts.TitleMatchThreshold == 0 {
		opts.TitleMatchThreshold = DefaultTitleMatchThreshold
	}
	if opts.Datastore.BusyTimeout == 0 {
		opts.Datastore.BusyTimeout = DefaultConfig().BusyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	db, err := Open(ctx, opts.Datastore)
	if err != nil {
		return nil, err
	}

	migrate := MigrateOptions{
		DatastorePath: opts.Datastore.Path,
		Snapshot:      opts.AutoBackup,
	}
	if err := EnsureSchema(ctx, db, migrate, opts.Logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		opts:   opts,
		logger: opts.Logger,
		obs:    opts.Observer,
	}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// BatchPost pairs a scraped post with the event drafts extracted from it.
type BatchPost struct {
	Post   models.Post
	Drafts []models.EventDraft
}

// itemError reports whether err is a per-item failure that should skip the
// item and continue the batch, as opposed to a storage fault that must abort
// the whole transaction.
func itemError(err error) bool {
	var ve *models.ValidationError
	var ce *ConflictError
	return errors.As(err, &ve) || errors.As(err, &ce)
}

// SaveBatch persists a profile, its scraped posts, and their extracted event
// drafts in one transaction. Malformed drafts and identity conflicts are
// recorded per item and skipped; any storage failure rolls the whole batch
// back.
func (s *Store) SaveBatch(ctx context.Context, profile models.Profile, batch []BatchPost) (models.SaveResult, error) {
	var result models.SaveResult

	err := s.withTx(ctx, "save batch", func(tx *sql.Tx) error {
		profiles := NewProfileRepository(tx)
		posts := NewPostRepository(tx)
		venues := NewVenueResolver(tx, s.opts.VenueMatchThreshold, s.logger, s.obs)
		dedup := s.deduplicator(tx)

		profileID, err := profiles.Upsert(ctx, profile)
		if err != nil {
			return err
		}

		for _, bp := range batch {
			postID, outcome, err := posts.Upsert(ctx, profileID, bp.Post)
			if err != nil {
				if itemError(err) {
					result.Errors = append(result.Errors, models.ItemError{Ref: bp.Post.PlatformPostID, Err: err})
					continue
				}
				return err
			}
			switch outcome {
			case OutcomeSaved:
				result.PostsNew++
			case OutcomeUpdated:
				result.PostsExisting++
			}

			saved, err := s.saveDrafts(ctx, venues, dedup, bp.Drafts, &postID)
			result.Merge(saved)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.SaveResult{}, err
	}

	s.logger.Info("batch saved",
		"profile", profile.Handle,
		"posts_new", result.PostsNew,
		"posts_existing", result.PostsExisting,
		"events_saved", result.EventsSaved,
		"events_updated", result.EventsUpdated,
		"errors", len(result.Errors))
	return result, nil
}

// SaveEvents persists ad-hoc event drafts not tied to a profile or page, in
// one transaction.
func (s *Store) SaveEvents(ctx context.Context, drafts []models.EventDraft) (models.SaveResult, error) {
	var result models.SaveResult

	err := s.withTx(ctx, "save events", func(tx *sql.Tx) error {
		venues := NewVenueResolver(tx, s.opts.VenueMatchThreshold, s.logger, s.obs)
		dedup := s.deduplicator(tx)

		saved, err := s.saveDrafts(ctx, venues, dedup, drafts, nil)
		result.Merge(saved)
		return err
	})
	if err != nil {
		return models.SaveResult{}, err
	}
	return result, nil
}

// SaveWebPage persists the drafts extracted from one aggregator page and
// marks the page scraped, inside a single transaction. If any storage write
// fails the page stays unmarked, so an interrupted run revisits it.
func (s *Store) SaveWebPage(ctx context.Context, source, pageURL string, drafts []models.EventDraft) (models.SaveResult, error) {
	var result models.SaveResult

	normalized := urltrack.Normalize(pageURL)

	err := s.withTx(ctx, "save web page", func(tx *sql.Tx) error {
		venues := NewVenueResolver(tx, s.opts.VenueMatchThreshold, s.logger, s.obs)
		dedup := s.deduplicator(tx)

		saved, err := s.saveDrafts(ctx, venues, dedup, drafts, nil)
		result.Merge(saved)
		if err != nil {
			return err
		}

		pages := NewScrapedPageRepository(tx)
		if err := pages.MarkScraped(ctx, source, normalized, pageURL, result.EventsSaved+result.EventsUpdated); err != nil {
			return err
		}
		s.obs.PageMarked(source)
		return nil
	})
	if err != nil {
		return models.SaveResult{}, err
	}

	s.logger.Info("page saved",
		"source", source,
		"url", normalized,
		"events_saved", result.EventsSaved,
		"events_updated", result.EventsUpdated,
		"errors", len(result.Errors))
	return result, nil
}

// saveDrafts runs the validate / resolve venue / deduplicate pipeline for
// each draft. Per-item failures are collected; storage faults are returned
// and abort the caller's transaction.
func (s *Store) saveDrafts(ctx context.Context, venues *VenueResolver, dedup *Deduplicator, drafts []models.EventDraft, postID *int64) (models.SaveResult, error) {
	var result models.SaveResult

	for _, draft := range drafts {
		if err := draft.Validate(); err != nil {
			s.obs.DraftRejected(validationField(err))
			result.Errors = append(result.Errors, models.ItemError{Ref: draftRef(draft), Err: err})
			continue
		}

		venueID, err := venues.Resolve(ctx, draft.VenueName, draft.VenueHints)
		if err != nil {
			if itemError(err) {
				s.obs.DraftRejected(validationField(err))
				result.Errors = append(result.Errors, models.ItemError{Ref: draftRef(draft), Err: err})
				continue
			}
			return result, err
		}

		outcome, err := dedup.Upsert(ctx, draft, venueID, postID)
		if err != nil {
			if itemError(err) {
				result.Errors = append(result.Errors, models.ItemError{Ref: draftRef(draft), Err: err})
				continue
			}
			return result, err
		}
		switch outcome {
		case OutcomeSaved:
			result.EventsSaved++
		case OutcomeUpdated:
			result.EventsUpdated++
		}
	}
	return result, nil
}

func validationField(err error) string {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return "unknown"
}

func draftRef(d models.EventDraft) string {
	if d.Title != "" {
		return fmt.Sprintf("%s @ %s", d.Title, d.EventDate)
	}
	return "(untitled draft)"
}

func (s *Store) deduplicator(tx *sql.Tx) *Deduplicator {
	return NewDeduplicator(tx, s.opts.TitleMatchThreshold, s.opts.VenueMatchThreshold,
		s.opts.CrossSourceMatch, s.logger, s.obs)
}

// QueryEvents returns the joined event view for the inclusive date range.
func (s *Store) QueryEvents(ctx context.Context, from, to time.Time) ([]models.EventWithVenue, error) {
	return QueryEvents(ctx, s.db, from, to)
}

// Stats takes an operational snapshot across all tables.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	return CollectStats(ctx, s.db)
}

// GetProfileByHandle looks a profile up by platform and handle. A leading @
// is tolerated. Returns nil when no such profile exists.
func (s *Store) GetProfileByHandle(ctx context.Context, platform models.Platform, handle string) (*models.Profile, error) {
	return NewProfileRepository(s.db).GetByHandle(ctx, platform, handle)
}

// ListPostsByProfile returns a profile's posts, optionally restricted to
// those already classified.
func (s *Store) ListPostsByProfile(ctx context.Context, profileID int64, onlyClassified bool) ([]models.Post, error) {
	return NewPostRepository(s.db).ListByProfile(ctx, profileID, onlyClassified)
}

// SetPostClassification records the extraction collaborator's verdict for a
// post.
func (s *Store) SetPostClassification(ctx context.Context, postID int64, c models.Classification, reason string) error {
	return NewPostRepository(s.db).SetClassification(ctx, postID, c, reason)
}

// ScrapedURLSet returns the normalized URLs already processed under source.
func (s *Store) ScrapedURLSet(ctx context.Context, source string) (map[string]bool, error) {
	return NewScrapedPageRepository(s.db).ScrapedURLSet(ctx, source)
}

// ListScrapedPages returns the pages recorded under source, oldest first.
func (s *Store) ListScrapedPages(ctx context.Context, source string) ([]models.ScrapedPage, error) {
	return NewScrapedPageRepository(s.db).ListBySource(ctx, source)
}
