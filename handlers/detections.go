package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"glacierguard-api/logger"
	"glacierguard-api/models"
	"glacierguard-api/services"
	"glacierguard-api/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DetectionStore is the subset of *store.Store the HTTP layer needs.
type DetectionStore interface {
	Create(ctx context.Context, in models.DetectionInput) (models.Detection, error)
	GetByID(ctx context.Context, id int64) (models.Detection, error)
	List(ctx context.Context) ([]models.Detection, error)
	ListPage(ctx context.Context, p store.Page) ([]models.Detection, bool, error)
	Update(ctx context.Context, id int64, in models.DetectionInput) (models.Detection, error)
	Delete(ctx context.Context, id int64) error
	ConfidencesByType(ctx context.Context) (map[string][]float64, error)
}

var detectionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glacierguard_api_detection_writes_total",
	Help: "Detection writes by operation and outcome.",
}, []string{"op", "outcome"})

type DetectionHandler struct {
	store DetectionStore
	cache *services.CacheService
}

func NewDetectionHandler(s DetectionStore, cache *services.CacheService) *DetectionHandler {
	return &DetectionHandler{store: s, cache: cache}
}

// List returns every detection as a JSON array, or one cursor page when
// ?limit= or ?after= is given.
func (h *DetectionHandler) List(c *gin.Context) {
	_, hasLimit := c.GetQuery("limit")
	_, hasAfter := c.GetQuery("after")
	if hasLimit || hasAfter {
		h.listPage(c)
		return
	}

	ctx := c.Request.Context()
	log := logger.C(ctx)

	key, err := h.cache.ListKey(ctx)
	if err != nil && !errors.Is(err, services.ErrCacheMiss) {
		log.Warn().Err(err).Msg("detection list generation read failed")
	}
	if key != "" {
		var cached []models.Detection
		err := h.cache.Get(ctx, key, &cached)
		if err == nil && cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
		if err != nil && !errors.Is(err, services.ErrCacheMiss) {
			log.Warn().Err(err).Msg("detection list cache read failed")
		}
	}

	detections, err := h.store.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if key != "" {
		if err := h.cache.Set(ctx, key, detections, services.DetectionListTTL); err != nil {
			log.Warn().Err(err).Msg("detection list cache fill failed")
		}
	}

	c.JSON(http.StatusOK, detections)
}

func (h *DetectionHandler) listPage(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, hasMore, err := h.store.ListPage(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCursorResponse(rows, hasMore))
}

func (h *DetectionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DetectionHandler) Create(c *gin.Context) {
	in, ok := bindDetection(c)
	if !ok {
		return
	}

	d, err := h.store.Create(c.Request.Context(), in)
	if err != nil {
		detectionWrites.WithLabelValues("create", "error").Inc()
		respondError(c, err)
		return
	}
	detectionWrites.WithLabelValues("create", "ok").Inc()

	h.invalidateList(c.Request.Context())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.cache.Publish(ctx, services.LiveChannel, d); err != nil {
			logger.Named("handlers").Warn().Err(err).Int64("id", d.ID).Msg("publish detection failed")
		}
	}()

	c.JSON(http.StatusCreated, d)
}

func (h *DetectionHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	in, ok := bindDetection(c)
	if !ok {
		return
	}

	d, err := h.store.Update(c.Request.Context(), id, in)
	if err != nil {
		detectionWrites.WithLabelValues("update", "error").Inc()
		respondError(c, err)
		return
	}
	detectionWrites.WithLabelValues("update", "ok").Inc()

	h.invalidateList(c.Request.Context())
	c.JSON(http.StatusOK, d)
}

func (h *DetectionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		detectionWrites.WithLabelValues("delete", "error").Inc()
		respondError(c, err)
		return
	}
	detectionWrites.WithLabelValues("delete", "ok").Inc()

	h.invalidateList(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// Summary reports confidence statistics per detection type.
func (h *DetectionHandler) Summary(c *gin.Context) {
	byType, err := h.store.ConfidencesByType(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": services.Summarize(byType)})
}

func (h *DetectionHandler) invalidateList(ctx context.Context) {
	if err := h.cache.InvalidateList(ctx); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("detection list cache invalidation failed")
	}
}

// bindDetection decodes the request body. Coordinates may be any JSON value.
func bindDetection(c *gin.Context) (models.DetectionInput, bool) {
	var p models.DetectionPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return models.DetectionInput{}, false
	}
	in, err := p.Input()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return models.DetectionInput{}, false
	}
	return in, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.C(c.Request.Context()).Error().Err(err).Msg("detection store failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
	}
}
