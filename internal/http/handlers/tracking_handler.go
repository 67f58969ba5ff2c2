// README: Live tracking handlers: SSE viewer stream and courier location ingest.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifeline/internal/config"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/tracking"
	"lifeline/internal/types"
)

type TrackingHandler struct {
	requests *request.Service
	tracking *tracking.Service
	cfg      config.TrackingConfig
}

func NewTrackingHandler(requests *request.Service, trackingSvc *tracking.Service, cfg config.TrackingConfig) *TrackingHandler {
	return &TrackingHandler{requests: requests, tracking: trackingSvc, cfg: cfg}
}

type countdownEvent struct {
	State            string `json:"state"`
	Display          string `json:"display"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type locationEvent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type completedEvent struct {
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stream is the viewer's SSE connection. Anyone holding the link may connect;
// while the gate is locked they receive countdown ticks only, and position
// events start flowing once the gate unlocks. The gate is recomputed here,
// per viewer, from the order's estimated arrival.
func (h *TrackingHandler) Stream(c *gin.Context) {
	id := types.ID(c.Param("id"))
	ctx := c.Request.Context()

	view, err := h.requests.Public(ctx, id)
	if err != nil {
		writeRequestError(c, err)
		return
	}

	switch view.Status {
	case request.StatusApproved, request.StatusCompleted:
	default:
		writeError(c, http.StatusConflict, "tracking not available for this request")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	if view.Status == request.StatusCompleted {
		c.SSEvent(string(tracking.EventDeliveryCompleted), completedEvent{CompletedAt: view.CompletedAt})
		c.Writer.Flush()
		return
	}

	gate := tracking.NewGate(view.EstimatedArrival, h.cfg.UnlockLead)
	for snap := range gate.Watch(ctx, h.cfg.GateTick, nil) {
		c.SSEvent("countdown", countdownEvent{
			State:            string(snap.State),
			Display:          tracking.Countdown(snap.Remaining),
			RemainingSeconds: int64(snap.Remaining / time.Second),
		})
		c.Writer.Flush()
	}
	if ctx.Err() != nil {
		return
	}

	sub := h.tracking.Join(ctx, id)
	defer h.tracking.Leave(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			h.writeEvent(c, ev)
			if ev.Type == tracking.EventDeliveryCompleted {
				return
			}
		}
	}
}

func (h *TrackingHandler) writeEvent(c *gin.Context, ev tracking.Event) {
	switch ev.Type {
	case tracking.EventLocationUpdate:
		c.SSEvent(string(ev.Type), locationEvent{Latitude: ev.Latitude, Longitude: ev.Longitude})
	case tracking.EventDeliveryCompleted:
		c.SSEvent(string(ev.Type), completedEvent{CompletedAt: ev.CompletedAt})
	default:
		c.SSEvent(string(ev.Type), gin.H{})
	}
	c.Writer.Flush()
}

type locationReq struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PublishLocation ingests one courier position report. A 409 with the
// completed error tells the courier device to stop reporting.
func (h *TrackingHandler) PublishLocation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		writeError(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	err := h.tracking.PublishSample(c.Request.Context(), tracking.LocationSample{
		OrderID:   types.ID(id),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		writeTrackingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
