package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, crossSource bool) *Store {
	t.Helper()

	store, err := NewStore(context.Background(), Options{
		Datastore:        Config{Path: filepath.Join(t.TempDir(), "events.db")},
		CrossSourceMatch: crossSource,
		Logger:           testLogger(),
	})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func jazzDraft() models.EventDraft {
	return models.EventDraft{
		Title:     "Jazz Night",
		VenueName: "The Blue Note",
		EventDate: "2026-03-14",
		StartTime: "20:00",
		Source:    models.SourceSocialProfile,
	}
}

func TestSaveEventsIdempotent(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	first, err := store.SaveEvents(ctx, []models.EventDraft{jazzDraft()})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.EventsSaved != 1 || first.EventsUpdated != 0 {
		t.Fatalf("first save: saved=%d updated=%d", first.EventsSaved, first.EventsUpdated)
	}

	second, err := store.SaveEvents(ctx, []models.EventDraft{jazzDraft()})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.EventsSaved != 0 || second.EventsUpdated != 1 {
		t.Fatalf("second save: saved=%d updated=%d", second.EventsSaved, second.EventsUpdated)
	}

	if n := countRows(t, store, "events"); n != 1 {
		t.Fatalf("expected 1 event row, got %d", n)
	}
	if n := countRows(t, store, "venues"); n != 1 {
		t.Fatalf("expected 1 venue row, got %d", n)
	}
}

func TestTitleNormalizationMerges(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	a := jazzDraft()
	a.Title = "LIVE: Jazz Night!"
	b := jazzDraft()
	b.Title = "Jazz Night"

	if _, err := store.SaveEvents(ctx, []models.EventDraft{a}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	result, err := store.SaveEvents(ctx, []models.EventDraft{b})
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if result.EventsUpdated != 1 {
		t.Fatalf("expected merge, got saved=%d updated=%d", result.EventsSaved, result.EventsUpdated)
	}

	// The stored title stays as first seen; only the key is normalized.
	var title, key string
	if err := store.DB().QueryRow("SELECT title, unique_key FROM events").Scan(&title, &key); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if title != "LIVE: Jazz Night!" {
		t.Fatalf("expected original display title, got %q", title)
	}
	if key != "jazz night|2026-03-14|1" {
		t.Fatalf("unexpected unique key %q", key)
	}
}

func TestVenueFuzzyMerge(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	a := jazzDraft()
	a.VenueName = "The Blue Note"
	a.VenueHints = models.VenueHints{Address: "123 Main St"}
	b := jazzDraft()
	b.VenueName = "blue note"
	b.VenueHints = models.VenueHints{Address: "456 Other St", City: "Springfield"}

	if _, err := store.SaveEvents(ctx, []models.EventDraft{a}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if _, err := store.SaveEvents(ctx, []models.EventDraft{b}); err != nil {
		t.Fatalf("save b: %v", err)
	}

	if n := countRows(t, store, "venues"); n != 1 {
		t.Fatalf("expected fuzzy-matched names to share one venue, got %d", n)
	}

	venue, err := GetVenue(ctx, store.DB(), 1)
	if err != nil {
		t.Fatalf("get venue: %v", err)
	}
	// Populated fields are kept, null ones backfilled.
	if venue.Address == nil || *venue.Address != "123 Main St" {
		t.Fatalf("expected original address kept, got %v", venue.Address)
	}
	if venue.City == nil || *venue.City != "Springfield" {
		t.Fatalf("expected city backfilled, got %v", venue.City)
	}
}

func TestFillForwardMerge(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	conf := 0.9
	first := jazzDraft()
	first.Description = "An evening of jazz"
	first.Confidence = &conf
	first.NeedsReview = true

	lower := 0.3
	second := jazzDraft()
	second.Description = "Completely different text"
	second.Price = "$15"
	second.TicketURL = "https://tickets.example.com/jazz"
	second.Confidence = &lower

	if _, err := store.SaveEvents(ctx, []models.EventDraft{first}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := store.SaveEvents(ctx, []models.EventDraft{second}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var (
		description, price, ticketURL string
		confidence                    float64
		needsReview                   int
	)
	err := store.DB().QueryRow(
		"SELECT description, price, ticket_url, confidence, needs_review FROM events",
	).Scan(&description, &price, &ticketURL, &confidence, &needsReview)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}

	if description != "An evening of jazz" {
		t.Fatalf("populated description was overwritten: %q", description)
	}
	if price != "$15" || ticketURL != "https://tickets.example.com/jazz" {
		t.Fatalf("null fields not filled: price=%q ticket_url=%q", price, ticketURL)
	}
	if confidence != 0.9 {
		t.Fatalf("confidence was lowered to %v", confidence)
	}
	if needsReview != 1 {
		t.Fatal("needs_review was cleared by merge")
	}
}

func TestConflictingVenueRejectedWithoutWrite(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	other := jazzDraft()
	other.Title = "Poetry Reading"
	other.VenueName = "Warehouse Gallery"
	if _, err := store.SaveEvents(ctx, []models.EventDraft{jazzDraft(), other}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Simulate a resolver anomaly: the stored row's venue no longer agrees
	// with the venue its key points at.
	if _, err := store.DB().Exec(
		"UPDATE events SET venue_id = 2 WHERE unique_key = 'jazz night|2026-03-14|1'"); err != nil {
		t.Fatalf("craft anomaly: %v", err)
	}

	result, err := store.SaveEvents(ctx, []models.EventDraft{jazzDraft()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.EventsSaved != 0 || result.EventsUpdated != 0 {
		t.Fatalf("conflicting draft was written: saved=%d updated=%d", result.EventsSaved, result.EventsUpdated)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 item error, got %d", len(result.Errors))
	}

	var ce *ConflictError
	if !errors.As(result.Errors[0].Err, &ce) {
		t.Fatalf("expected ConflictError, got %v", result.Errors[0].Err)
	}
	if ce.Field != "venue_id" || ce.Existing != "2" || ce.Incoming != "1" {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}
}

func TestInvalidDraftSkippedIndividually(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	bad := jazzDraft()
	bad.EventDate = "next friday"

	result, err := store.SaveEvents(ctx, []models.EventDraft{bad, jazzDraft()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.EventsSaved != 1 {
		t.Fatalf("expected valid sibling saved, got %d", result.EventsSaved)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 item error, got %d", len(result.Errors))
	}
	var ve *models.ValidationError
	if !errors.As(result.Errors[0].Err, &ve) || ve.Field != "event_date" {
		t.Fatalf("expected event_date validation error, got %v", result.Errors[0].Err)
	}
}

func TestCrossSourceMerge(t *testing.T) {
	store := newTestStore(t, true)
	ctx := context.Background()

	a := jazzDraft()
	a.Title = "Friday Jazz Night"
	a.Source = models.SourceWebAggregator

	b := jazzDraft()
	b.Title = "Friday Jazz Nights"
	b.Source = models.SourceSocialProfile
	b.SourceURL = "https://social.example.com/p/99"

	if _, err := store.SaveEvents(ctx, []models.EventDraft{a}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	result, err := store.SaveEvents(ctx, []models.EventDraft{b})
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if result.EventsSaved != 0 || result.EventsUpdated != 1 {
		t.Fatalf("expected cross-source merge, got saved=%d updated=%d", result.EventsSaved, result.EventsUpdated)
	}
	if n := countRows(t, store, "events"); n != 1 {
		t.Fatalf("expected 1 event row, got %d", n)
	}

	var notes string
	var needsReview int
	if err := store.DB().QueryRow(
		"SELECT review_notes, needs_review FROM events").Scan(&notes, &needsReview); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if !strings.Contains(notes, "social_profile") {
		t.Fatalf("review notes should name the secondary source, got %q", notes)
	}
	if needsReview != 1 {
		t.Fatal("cross-source merge should flag for review")
	}
}

func TestCrossSourceDisabledKeepsBothRows(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	a := jazzDraft()
	a.Title = "Friday Jazz Night"
	a.Source = models.SourceWebAggregator
	b := jazzDraft()
	b.Title = "Friday Jazz Nights"
	b.Source = models.SourceSocialProfile

	if _, err := store.SaveEvents(ctx, []models.EventDraft{a, b}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if n := countRows(t, store, "events"); n != 2 {
		t.Fatalf("expected 2 rows with cross-source matching off, got %d", n)
	}
}

func TestQueryEventsRangeAndOrder(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	drafts := []models.EventDraft{
		{Title: "Zine Fair", VenueName: "Maple Street Books", EventDate: "2026-03-14", Source: models.SourceAdHocLink},
		{Title: "Jazz Night", VenueName: "The Blue Note", EventDate: "2026-03-14", StartTime: "20:00", Source: models.SourceSocialProfile},
		{Title: "Art Walk", VenueName: "Warehouse Gallery", EventDate: "2026-03-14", Source: models.SourceWebAggregator},
		{Title: "Dinner Set", VenueName: "Corner Kitchen", EventDate: "2026-03-14", StartTime: "18:00", Source: models.SourceWebAggregator},
		{Title: "Morning Market", VenueName: "Riverside Park", EventDate: "2026-03-15", StartTime: "09:00", Source: models.SourceWebAggregator},
		{Title: "Out of Range", VenueName: "Elsewhere Hall", EventDate: "2026-03-16", Source: models.SourceAdHocLink},
	}
	if result, err := store.SaveEvents(ctx, drafts); err != nil || len(result.Errors) != 0 {
		t.Fatalf("seed: err=%v itemErrors=%v", err, result.Errors)
	}

	events, err := store.QueryEvents(ctx, mustDate(t, "2026-03-14"), mustDate(t, "2026-03-15"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	var titles []string
	for _, e := range events {
		titles = append(titles, e.Title)
	}
	want := []string{"Dinner Set", "Jazz Night", "Art Walk", "Zine Fair", "Morning Market"}
	if len(titles) != len(want) {
		t.Fatalf("got %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, titles, want)
		}
	}

	// Venue join is populated.
	if events[0].Venue.Name != "Corner Kitchen" {
		t.Fatalf("expected joined venue, got %q", events[0].Venue.Name)
	}

	// Identical datastore contents yield identical order.
	again, err := store.QueryEvents(ctx, mustDate(t, "2026-03-14"), mustDate(t, "2026-03-15"))
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	for i := range events {
		if again[i].ID != events[i].ID {
			t.Fatal("query order not deterministic")
		}
	}
}

func TestQueryEventsExcludesLegacyEmptyDates(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	if _, err := store.SaveEvents(ctx, []models.EventDraft{jazzDraft()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Rows predating date validation can carry an empty date.
	if _, err := store.DB().Exec(
		`INSERT INTO events (unique_key, venue_id, title, event_date, source, confidence, created_at, updated_at)
		 VALUES ('legacy row||1', 1, 'Legacy Row', '', 'adhoc_link', 1.0, '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	events, err := store.QueryEvents(ctx, mustDate(t, "1970-01-01"), mustDate(t, "2099-12-31"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Jazz Night" {
		t.Fatalf("expected legacy empty-date row excluded, got %d events", len(events))
	}
}

func TestSaveWebPageMarksPageWithEvents(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	pageURL := "https://www.example.com/shows/?utm_source=feed"
	result, err := store.SaveWebPage(ctx, "aggregator", pageURL, []models.EventDraft{
		jazzDraft(),
	})
	if err != nil {
		t.Fatalf("save page: %v", err)
	}
	if result.EventsSaved != 1 {
		t.Fatalf("expected 1 event saved, got %d", result.EventsSaved)
	}

	scraped, err := store.ScrapedURLSet(ctx, "aggregator")
	if err != nil {
		t.Fatalf("scraped set: %v", err)
	}
	if !scraped["example.com/shows"] {
		t.Fatalf("expected normalized URL marked, got %v", scraped)
	}

	pages, err := store.ListScrapedPages(ctx, "aggregator")
	if err != nil {
		t.Fatalf("list pages: %v", err)
	}
	if len(pages) != 1 || pages[0].EventsCount != 1 || pages[0].OriginalURL != pageURL {
		t.Fatalf("unexpected page record: %+v", pages)
	}

	// Re-processing the same page refreshes the record instead of duplicating.
	if _, err := store.SaveWebPage(ctx, "aggregator", pageURL, nil); err != nil {
		t.Fatalf("re-save page: %v", err)
	}
	if n := countRows(t, store, "scraped_pages"); n != 1 {
		t.Fatalf("expected 1 scraped page row, got %d", n)
	}
}

func TestSaveBatchStickyClassification(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	profile := models.Profile{Platform: models.PlatformSocialProfile, Handle: "@bluenote"}
	post := models.Post{
		PlatformPostID:       "p1",
		Caption:              "Jazz Night this Saturday!",
		Classification:       models.ClassificationEvent,
		ClassificationReason: "announces a dated show",
	}

	first, err := store.SaveBatch(ctx, profile, []BatchPost{{Post: post, Drafts: []models.EventDraft{jazzDraft()}}})
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if first.PostsNew != 1 || first.EventsSaved != 1 {
		t.Fatalf("first batch: %+v", first)
	}

	// A later scrape sees the same post before classification ran.
	rescrape := models.Post{
		PlatformPostID: "p1",
		Caption:        "Jazz Night this Saturday! (edited)",
		Classification: models.ClassificationUnclassified,
	}
	second, err := store.SaveBatch(ctx, profile, []BatchPost{{Post: rescrape}})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.PostsExisting != 1 {
		t.Fatalf("second batch: %+v", second)
	}

	saved, err := store.GetProfileByHandle(ctx, models.PlatformSocialProfile, "bluenote")
	if err != nil || saved == nil {
		t.Fatalf("get profile: %v, %v", saved, err)
	}
	posts, err := store.ListPostsByProfile(ctx, saved.ID, false)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Classification != models.ClassificationEvent {
		t.Fatalf("classification was reset to %q", posts[0].Classification)
	}
	if posts[0].ClassificationReason != "announces a dated show" {
		t.Fatalf("classification reason lost: %q", posts[0].ClassificationReason)
	}
	if posts[0].Caption != "Jazz Night this Saturday! (edited)" {
		t.Fatalf("content refresh missing: %q", posts[0].Caption)
	}
}

func TestListPostsByProfileOnlyClassified(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	profile := models.Profile{Platform: models.PlatformSocialProfile, Handle: "bluenote"}
	batch := []BatchPost{
		{Post: models.Post{PlatformPostID: "p1", Classification: models.ClassificationEvent}},
		{Post: models.Post{PlatformPostID: "p2"}},
	}
	if _, err := store.SaveBatch(ctx, profile, batch); err != nil {
		t.Fatalf("batch: %v", err)
	}

	saved, err := store.GetProfileByHandle(ctx, models.PlatformSocialProfile, "@bluenote")
	if err != nil || saved == nil {
		t.Fatalf("get profile: %v, %v", saved, err)
	}

	all, err := store.ListPostsByProfile(ctx, saved.ID, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	classified, err := store.ListPostsByProfile(ctx, saved.ID, true)
	if err != nil {
		t.Fatalf("list classified: %v", err)
	}
	if len(all) != 2 || len(classified) != 1 {
		t.Fatalf("got %d all, %d classified", len(all), len(classified))
	}
	if classified[0].PlatformPostID != "p1" {
		t.Fatalf("wrong post: %q", classified[0].PlatformPostID)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	profile := models.Profile{Platform: models.PlatformSocialProfile, Handle: "bluenote"}
	batch := []BatchPost{
		{Post: models.Post{PlatformPostID: "p1", Classification: models.ClassificationEvent},
			Drafts: []models.EventDraft{jazzDraft()}},
		{Post: models.Post{PlatformPostID: "p2", Classification: models.ClassificationNotEvent}},
	}
	if _, err := store.SaveBatch(ctx, profile, batch); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if _, err := store.SaveWebPage(ctx, "aggregator", "https://example.com/shows", []models.EventDraft{
		{Title: "Art Walk", VenueName: "Warehouse Gallery", EventDate: "2026-03-20", Source: models.SourceWebAggregator},
	}); err != nil {
		t.Fatalf("page: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EventCount != 2 || stats.VenueCount != 2 {
		t.Fatalf("counts: %+v", stats)
	}
	if stats.EventsBySource[models.SourceSocialProfile] != 1 ||
		stats.EventsBySource[models.SourceWebAggregator] != 1 {
		t.Fatalf("events by source: %v", stats.EventsBySource)
	}
	if stats.PostsByClassification[models.ClassificationEvent] != 1 ||
		stats.PostsByClassification[models.ClassificationNotEvent] != 1 {
		t.Fatalf("posts by classification: %v", stats.PostsByClassification)
	}
	if ps := stats.PagesBySource["aggregator"]; ps.Pages != 1 || ps.Events != 1 {
		t.Fatalf("pages by source: %v", stats.PagesBySource)
	}
}
