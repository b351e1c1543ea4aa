package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aniketpanjwani/local-media-tools/internal/database"
	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// StoreCollector exposes Prometheus metrics for datastore operations. It
// implements database.Observer.
type StoreCollector struct {
	registry *prometheus.Registry

	venuesCreated  prometheus.Counter
	venuesMatched  prometheus.Counter
	nearThreshold  *prometheus.CounterVec
	eventsSaved    *prometheus.CounterVec
	eventsUpdated  *prometheus.CounterVec
	eventConflicts prometheus.Counter
	draftsRejected *prometheus.CounterVec
	pagesMarked    *prometheus.CounterVec
}

var _ database.Observer = (*StoreCollector)(nil)

// NewStoreCollector constructs a collector with its own registry.
func NewStoreCollector() (*StoreCollector, error) {
	registry := prometheus.NewRegistry()

	c := &StoreCollector{
		registry: registry,
		venuesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "venues_created_total",
			Help:      "Total venues inserted because no existing row matched.",
		}),
		venuesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "venues_matched_total",
			Help:      "Total venue names merged into an existing row.",
		}),
		nearThreshold: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "near_threshold_matches_total",
			Help:      "Fuzzy matches that landed within the audit window of the threshold.",
		}, []string{"kind"}),
		eventsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "events_saved_total",
			Help:      "Total new event rows inserted.",
		}, []string{"source"}),
		eventsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "events_updated_total",
			Help:      "Total re-submissions merged into an existing event row.",
		}, []string{"source"}),
		eventConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "event_conflicts_total",
			Help:      "Total merges rejected because a populated field disagreed.",
		}),
		draftsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "drafts_rejected_total",
			Help:      "Total event drafts rejected by validation.",
		}, []string{"field"}),
		pagesMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localevents",
			Subsystem: "store",
			Name:      "pages_marked_total",
			Help:      "Total pages recorded as scraped.",
		}, []string{"source"}),
	}

	collectors := []prometheus.Collector{
		c.venuesCreated, c.venuesMatched, c.nearThreshold,
		c.eventsSaved, c.eventsUpdated, c.eventConflicts,
		c.draftsRejected, c.pagesMarked,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing the collected metrics.
func (c *StoreCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scraping.
func (c *StoreCollector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *StoreCollector) VenueCreated() { c.venuesCreated.Inc() }
func (c *StoreCollector) VenueMatched() { c.venuesMatched.Inc() }

func (c *StoreCollector) NearThresholdMatch(kind string) {
	c.nearThreshold.WithLabelValues(kind).Inc()
}

func (c *StoreCollector) EventSaved(source models.EventSource) {
	c.eventsSaved.WithLabelValues(string(source)).Inc()
}

func (c *StoreCollector) EventUpdated(source models.EventSource) {
	c.eventsUpdated.WithLabelValues(string(source)).Inc()
}

func (c *StoreCollector) EventConflict() { c.eventConflicts.Inc() }

func (c *StoreCollector) DraftRejected(field string) {
	c.draftsRejected.WithLabelValues(field).Inc()
}

func (c *StoreCollector) PageMarked(source string) {
	c.pagesMarked.WithLabelValues(source).Inc()
}
