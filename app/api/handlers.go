package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/database"
	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/ingest"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

func NewHandler(sourceCache *adapter.SourceCache, registry *adapter.Registry, orchestrator *ingest.Orchestrator,
	ingestor IngestRunner, eventStore database.EventStore, resolver *timezone.Resolver,
	windowDays int, adapterTimeout time.Duration) *Handler {
	return &Handler{
		sourceCache:    sourceCache,
		registry:       registry,
		orchestrator:   orchestrator,
		ingestor:       ingestor,
		eventStore:     eventStore,
		resolver:       resolver,
		windowDays:     windowDays,
		adapterTimeout: adapterTimeout,
		now:            time.Now,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": h.now().Format(time.RFC3339),
		"zone":      h.resolver.Zone(),
	}

	if count, err := h.eventStore.GetEventCount(c.Request.Context()); err == nil {
		health["events"] = count
	} else {
		slog.Error("Database error", "operation", "get_event_count", "error", err)
	}

	health["loaded_sources"] = h.sourceCache.GetConfigCount()
	health["active_sources"] = h.registry.Len()

	c.JSON(http.StatusOK, health)
}

// ListEvents returns stored events from the start of today in the
// deployment zone onwards.
func (h *Handler) ListEvents(c *gin.Context) {
	limit, ok := limitParam(c, DefaultEventsLimit)
	if !ok {
		return
	}
	limit = min(limit, MaxEventsLimit)

	from, err := h.resolver.StartOfDay(h.now(), "")
	if err != nil {
		slog.Error("Failed to compute start of day", "zone", h.resolver.Zone(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Time zone error"})
		return
	}

	events, err := h.eventStore.ListUpcoming(c.Request.Context(), from, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_upcoming", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
		"from":   from,
	})
}

// APIListSources reports every loaded source definition plus any registered
// adapter that did not come from the sources directory. Active sources are
// described by the config their adapter was built from.
func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.sourceCache.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs)+h.registry.Len())
	listed := make(map[string]bool, len(configs))
	for _, sourceConfig := range configs {
		a, active := h.registry.Get(sourceConfig.ID)
		if configured, ok := a.(adapter.Configured); active && ok {
			sourceConfig = configured.Config()
		}
		listed[sourceConfig.ID] = true
		sources = append(sources, sourceInfo(sourceConfig, active))
	}

	for _, a := range h.registry.Adapters() {
		if listed[a.ID()] {
			continue
		}
		if configured, ok := a.(adapter.Configured); ok {
			sources = append(sources, sourceInfo(configured.Config(), true))
			continue
		}
		sources = append(sources, map[string]interface{}{
			"id":     a.ID(),
			"name":   a.Name(),
			"active": true,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func sourceInfo(sourceConfig *adapter.SourceConfig, active bool) map[string]interface{} {
	return map[string]interface{}{
		"id":        sourceConfig.ID,
		"name":      sourceConfig.Name,
		"kind":      sourceConfig.Kind,
		"url":       sourceConfig.URL,
		"enabled":   sourceConfig.Settings.Enabled,
		"active":    active,
		"fetch":     sourceConfig.Settings.Fetch,
		"max_items": sourceConfig.Settings.MaxItems,
		"timeout":   (time.Duration(sourceConfig.Settings.Timeout) * time.Second).String(),
		"filters":   len(sourceConfig.Filters),
	}
}

// APIListSourceEvents returns the stored events of one source, soonest first.
// Past events are included until they are pruned.
func (h *Handler) APIListSourceEvents(c *gin.Context) {
	id := c.Param("id")

	limit, ok := limitParam(c, DefaultEventsLimit)
	if !ok {
		return
	}
	limit = min(limit, MaxEventsLimit)

	events, err := h.eventStore.ListBySource(c.Request.Context(), id, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_by_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if events == nil {
		events = []event.CanonicalEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"source_id": id,
		"events":    events,
		"count":     len(events),
	})
}

func (h *Handler) APIRunIngestion(c *gin.Context) {
	timeout, ok := h.timeoutParam(c)
	if !ok {
		return
	}

	opts := ingest.Options{
		DryRun:            c.Query("dryRun") == "true",
		WindowDays:        h.windowDays,
		PerAdapterTimeout: timeout,
	}

	report, err := h.ingestor.Run(c.Request.Context(), opts)
	switch {
	case errors.Is(err, ingest.ErrSinkUnavailable):
		slog.Error("Ingestion rejected", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	case errors.Is(err, ingest.ErrInvalidWindow), errors.Is(err, ingest.ErrInvalidTimeout):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	case err != nil:
		slog.Error("Ingestion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "report": report})
}

func (h *Handler) APIIngestSummary(c *gin.Context) {
	timeout, ok := h.timeoutParam(c)
	if !ok {
		return
	}
	if timeout < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ingest.ErrInvalidTimeout.Error()})
		return
	}
	if timeout == 0 {
		timeout = h.adapterTimeout
	}

	summary := h.orchestrator.Summarize(c.Request.Context(), h.registry.Adapters(), timeout, h.now(), h.windowDays, c.Query("includeErrors") == "true")

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) APIPreviewSource(c *gin.Context) {
	id := c.Param("id")

	a, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found or not enabled"})
		return
	}

	limit, ok := limitParam(c, ingest.DefaultPreviewLimit)
	if !ok {
		return
	}

	preview, err := h.orchestrator.Preview(c.Request.Context(), a, limit, h.adapterTimeout)
	if errors.Is(err, ingest.ErrAdapterTimeout) {
		slog.Warn("Source preview timed out", "source", id, "timeout", h.adapterTimeout)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Source preview failed", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, preview)
}

func (h *Handler) APIPrunePast(c *gin.Context) {
	before, err := h.resolver.StartOfDay(h.now(), "")
	if err != nil {
		slog.Error("Failed to compute start of day", "zone", h.resolver.Zone(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Time zone error"})
		return
	}

	deleted, err := h.eventStore.DeleteBefore(c.Request.Context(), before)
	if err != nil {
		slog.Error("Database error", "operation", "delete_before", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Past events pruned", "before", before, "deleted", deleted)

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "before": before})
}

func (h *Handler) APIPurgeSource(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.eventStore.DeleteBySource(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_by_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Source events purged", "source", id, "deleted", deleted)

	c.JSON(http.StatusOK, gin.H{"source_id": id, "deleted": deleted})
}

func (h *Handler) APIPurgeCallToActionTitles(c *gin.Context) {
	titles := adapter.CallToActionTitles()

	deleted, err := h.eventStore.DeleteByTitles(c.Request.Context(), titles)
	if err != nil {
		slog.Error("Database error", "operation", "delete_by_titles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Call-to-action events purged", "deleted", deleted)

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "titles": titles})
}

// timeoutParam reads timeoutMs. A missing value yields 0; a malformed one
// writes a 400 and returns false.
func (h *Handler) timeoutParam(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("timeoutMs")
	if raw == "" {
		return 0, true
	}

	ms, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "timeoutMs must be an integer"})
		return 0, false
	}

	return time.Duration(ms) * time.Millisecond, true
}

// limitParam reads a positive limit, falling back to def when absent. A
// malformed value writes a 400 and returns false.
func limitParam(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}

	return n, true
}
