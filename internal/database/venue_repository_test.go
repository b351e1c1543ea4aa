package database

import (
	"context"
	"errors"
	"testing"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

func newTestResolver(t *testing.T, threshold float64) (*VenueResolver, *Store) {
	t.Helper()
	store := newTestStore(t, false)
	return NewVenueResolver(store.DB(), threshold, testLogger(), NopObserver{}), store
}

func TestResolveCreatesThenMatches(t *testing.T) {
	resolver, store := newTestResolver(t, DefaultVenueMatchThreshold)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "The Blue Note", models.VenueHints{Handle: "@bluenote"})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	variants := []string{"blue note", "Blue Note!", "the BLUE note"}
	for _, v := range variants {
		id, err := resolver.Resolve(ctx, v, models.VenueHints{})
		if err != nil {
			t.Fatalf("resolve %q: %v", v, err)
		}
		if id != first {
			t.Fatalf("%q resolved to venue %d, want %d", v, id, first)
		}
	}
	if n := countRows(t, store, "venues"); n != 1 {
		t.Fatalf("expected 1 venue, got %d", n)
	}

	venue, err := GetVenue(ctx, store.DB(), first)
	if err != nil {
		t.Fatalf("get venue: %v", err)
	}
	if venue.Handle == nil || *venue.Handle != "bluenote" {
		t.Fatalf("expected handle stored without @, got %v", venue.Handle)
	}
}

func TestResolveDissimilarCreatesNew(t *testing.T) {
	resolver, store := newTestResolver(t, DefaultVenueMatchThreshold)
	ctx := context.Background()

	a, err := resolver.Resolve(ctx, "The Blue Note", models.VenueHints{})
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	b, err := resolver.Resolve(ctx, "Warehouse Gallery", models.VenueHints{})
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if a == b {
		t.Fatal("dissimilar names should not merge")
	}
	if n := countRows(t, store, "venues"); n != 2 {
		t.Fatalf("expected 2 venues, got %d", n)
	}
}

func TestResolveBackfillKeepsPopulatedFields(t *testing.T) {
	resolver, store := newTestResolver(t, DefaultVenueMatchThreshold)
	ctx := context.Background()

	id, err := resolver.Resolve(ctx, "The Blue Note", models.VenueHints{Address: "123 Main St"})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := resolver.Resolve(ctx, "Blue Note", models.VenueHints{
		Address: "456 Other St",
		Website: "https://bluenote.example.com",
	}); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	venue, err := GetVenue(ctx, store.DB(), id)
	if err != nil {
		t.Fatalf("get venue: %v", err)
	}
	if venue.Address == nil || *venue.Address != "123 Main St" {
		t.Fatalf("populated address was overwritten: %v", venue.Address)
	}
	if venue.Website == nil || *venue.Website != "https://bluenote.example.com" {
		t.Fatalf("null website not backfilled: %v", venue.Website)
	}
}

func TestResolveEmptyNameRejected(t *testing.T) {
	resolver, _ := newTestResolver(t, DefaultVenueMatchThreshold)

	for _, name := range []string{"", "   ", "!!!"} {
		_, err := resolver.Resolve(context.Background(), name, models.VenueHints{})
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Resolve(%q): expected ValidationError, got %v", name, err)
		}
	}
}

func TestResolveTieBreaksToEarliestCreated(t *testing.T) {
	resolver, store := newTestResolver(t, DefaultVenueMatchThreshold)
	ctx := context.Background()

	// Two rows with the same normalized name can exist after a threshold
	// change; new mentions must consistently pick the older one.
	seed := func(created string) {
		t.Helper()
		if _, err := store.DB().Exec(`
			INSERT INTO venues (name, normalized_name, created_at) VALUES ('Blue Note', 'blue note', ?)`,
			created); err != nil {
			t.Fatalf("seed venue: %v", err)
		}
	}
	seed("2020-01-01T00:00:00Z")
	seed("2021-01-01T00:00:00Z")

	id, err := resolver.Resolve(ctx, "Blue Note", models.VenueHints{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected earliest venue to win the tie, got %d", id)
	}
}
