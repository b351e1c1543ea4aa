package database

import "github.com/aniketpanjwani/local-media-tools/internal/models"

// Observer receives store-operation events for metrics. Implementations
// must be cheap; calls happen inside open transactions.
type Observer interface {
	VenueCreated()
	VenueMatched()
	NearThresholdMatch(kind string)
	EventSaved(source models.EventSource)
	EventUpdated(source models.EventSource)
	EventConflict()
	DraftRejected(field string)
	PageMarked(source string)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) VenueCreated()                   {}
func (NopObserver) VenueMatched()                   {}
func (NopObserver) NearThresholdMatch(string)       {}
func (NopObserver) EventSaved(models.EventSource)   {}
func (NopObserver) EventUpdated(models.EventSource) {}
func (NopObserver) EventConflict()                  {}
func (NopObserver) DraftRejected(string)            {}
func (NopObserver) PageMarked(string)               {}
