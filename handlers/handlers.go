package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"safety-poll-service/geo"
	"safety-poll-service/metrics"
	"safety-poll-service/middleware"
	"safety-poll-service/models"
	ws "safety-poll-service/websocket"
)

const (
	// DefaultListLimit is used when no limit query parameter is given.
	DefaultListLimit = 50
	// MaxListLimit caps a single listing page.
	MaxListLimit = 1000

	maxLocationLen = 200
	maxCommentLen  = 500
)

// ReportStore is the slice of the report store the HTTP layer uses.
type ReportStore interface {
	SaveReport(ctx context.Context, req models.SubmitPollRequest, submitterRef string) (models.SafetyReport, error)
	GetReportByID(ctx context.Context, id string) (models.SafetyReport, error)
	ListReports(ctx context.Context, f models.ListFilter, limit int, cursor int64) ([]models.SafetyReport, int64, error)
}

// OverlaySource computes heatmap overlays for a viewport.
type OverlaySource interface {
	HeatmapOverlay(ctx context.Context, vp models.ViewPort) ([]models.HeatmapPoint, error)
}

// Publisher forwards accepted reports to downstream consumers. May be nil.
type Publisher interface {
	Publish(message interface{}) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store     ReportStore
	overlay   OverlaySource
	index     *geo.Index
	hub       *ws.Hub
	publisher Publisher
}

// NewHandlers creates a new handlers instance. publisher may be nil when
// downstream publishing is disabled.
func NewHandlers(store ReportStore, overlay OverlaySource, index *geo.Index, hub *ws.Hub, publisher Publisher) *Handlers {
	return &Handlers{
		store:     store,
		overlay:   overlay,
		index:     index,
		hub:       hub,
		publisher: publisher,
	}
}

// SubmitSafetyPoll handles POST /api/safety-poll
func (h *Handlers) SubmitSafetyPoll(c *gin.Context) {
	var req models.SubmitPollRequest
	if err := c.BindJSON(&req); err != nil {
		metrics.ReportsSubmittedTotal.WithLabelValues("validation_error").Inc()
		c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "invalid json body"))
		return
	}

	if msg := validateSubmit(&req); msg != "" {
		metrics.ReportsSubmittedTotal.WithLabelValues("validation_error").Inc()
		c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, msg))
		return
	}

	report, err := h.store.SaveReport(c.Request.Context(), req, middleware.SubmitterKey(c))
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			log.Errorf("Storage unavailable saving report: %v", err)
			metrics.ReportsSubmittedTotal.WithLabelValues("storage_error").Inc()
			c.JSON(http.StatusServiceUnavailable,
				models.Fail(models.ErrKindStorageUnavailable, "could not persist report, retry the submission"))
			return
		}
		log.Errorf("Error saving report: %v", err)
		metrics.ReportsSubmittedTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, models.Fail(models.ErrKindInternal, "internal error"))
		return
	}

	h.index.Add(report.Latitude, report.Longitude, geo.Ref{Seq: report.Seq, ID: report.ID})
	metrics.ReportsSubmittedTotal.WithLabelValues("accepted").Inc()
	metrics.IndexedBuckets.Set(float64(h.index.Len()))

	if h.publisher != nil {
		if err := h.publisher.Publish(report); err != nil {
			log.Warnf("Failed to publish report %s downstream: %v", report.ID, err)
		}
	}

	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Message: "Safety poll submitted successfully",
		Data:    report,
	})
}

// GetSafetyPolls handles GET /api/safety-polls
func (h *Handlers) GetSafetyPolls(c *gin.Context) {
	limit := DefaultListLimit
	if limitStr, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "limit must be a positive integer"))
			return
		}
		if n > MaxListLimit {
			n = MaxListLimit
		}
		limit = n
	}

	var cursor int64
	if cursorStr, ok := c.GetQuery("cursor"); ok {
		n, err := strconv.ParseInt(cursorStr, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "cursor must be a non-negative integer"))
			return
		}
		cursor = n
	}

	var filter models.ListFilter
	if isSafeStr, ok := c.GetQuery("is_safe"); ok {
		b, err := strconv.ParseBool(isSafeStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "is_safe must be true or false"))
			return
		}
		filter.IsSafe = &b
	}
	if sinceStr, ok := c.GetQuery("since"); ok {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "since must be an RFC3339 timestamp"))
			return
		}
		filter.Since = &ts
	}
	if untilStr, ok := c.GetQuery("until"); ok {
		ts, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.Fail(models.ErrKindValidation, "until must be an RFC3339 timestamp"))
			return
		}
		filter.Until = &ts
	}

	reports, next, err := h.store.ListReports(c.Request.Context(), filter, limit, cursor)
	if err != nil {
		log.Errorf("Error listing reports: %v", err)
		c.JSON(http.StatusInternalServerError, models.Fail(models.ErrKindInternal, "internal error"))
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success:    true,
		Data:       reports,
		NextCursor: next,
	})
}

// GetSafetyPoll handles GET /api/safety-poll/:id
func (h *Handlers) GetSafetyPoll(c *gin.Context) {
	id := c.Param("id")
	report, err := h.store.GetReportByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound,
				models.Fail(models.ErrKindNotFound, fmt.Sprintf("no report with id %s", id)))
			return
		}
		log.Errorf("Error fetching report %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, models.Fail(models.ErrKindInternal, "internal error"))
		return
	}
	c.JSON(http.StatusOK, models.OK(report))
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	connectedClients, _ := h.hub.GetStats()
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          "safety-poll-service",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: connectedClients,
		IndexedBuckets:   h.index.Len(),
	})
}

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ListenReports handles GET /api/safety-polls/listen, upgrading to a
// websocket pushed every newly ingested report.
func (h *Handlers) ListenReports(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// validateSubmit returns an empty string when the request is valid, or a
// field-level message otherwise.
func validateSubmit(req *models.SubmitPollRequest) string {
	if req.Location == "" {
		return "location is required"
	}
	if len(req.Location) > maxLocationLen {
		return fmt.Sprintf("location must be at most %d characters", maxLocationLen)
	}
	if req.Latitude == nil {
		return "latitude is required"
	}
	if *req.Latitude < -90 || *req.Latitude > 90 {
		return "latitude must be between -90 and 90"
	}
	if req.Longitude == nil {
		return "longitude is required"
	}
	if *req.Longitude < -180 || *req.Longitude > 180 {
		return "longitude must be between -180 and 180"
	}
	if req.IsSafe == nil {
		return "is_safe is required"
	}
	if len(req.Comment) > maxCommentLen {
		return fmt.Sprintf("comment must be at most %d characters", maxCommentLen)
	}
	return ""
}
