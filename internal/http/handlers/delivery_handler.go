// README: Delivery support handlers: ETA suggestion and courier briefing.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lifeline/internal/ai"
	"lifeline/internal/maps"
	"lifeline/internal/metrics"
	"lifeline/internal/modules/request"
	"lifeline/internal/types"
)

type DeliveryHandler struct {
	requests *request.Service
	eta      *maps.ETAService
	briefer  ai.Briefer
}

// NewDeliveryHandler wires the optional external services. Either dependency
// may be nil when its API key is not configured; the endpoint then reports
// 503 instead of the server refusing to start.
func NewDeliveryHandler(requests *request.Service, eta *maps.ETAService, briefer ai.Briefer) *DeliveryHandler {
	return &DeliveryHandler{requests: requests, eta: eta, briefer: briefer}
}

// ETA suggests remaining driving time from the courier's reported position to
// the receiving hospital. Advisory only; the committed arrival never changes.
func (h *DeliveryHandler) ETA(c *gin.Context) {
	if h.eta == nil {
		writeError(c, http.StatusServiceUnavailable, "eta service not configured")
		return
	}
	id := types.ID(c.Param("id"))
	lat, err1 := strconv.ParseFloat(c.Query("origin_lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("origin_lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "origin_lat and origin_lng query params required")
		return
	}

	view, err := h.requests.Public(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	if view.Organization.Address == "" {
		writeError(c, http.StatusConflict, "destination address unknown")
		return
	}

	est, err := h.eta.Remaining(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, view.Organization.Address)
	if err != nil {
		writeError(c, http.StatusBadGateway, "eta lookup failed")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"duration_seconds": int64(est.Duration / time.Second),
		"distance":         est.Distance,
	})
}

// Briefing generates the courier's pre-departure notes for an approved
// delivery.
func (h *DeliveryHandler) Briefing(c *gin.Context) {
	if h.briefer == nil {
		writeError(c, http.StatusServiceUnavailable, "briefing service not configured")
		return
	}
	id := types.ID(c.Param("id"))
	r, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	if r.Status != request.StatusApproved || r.Delivery == nil {
		writeError(c, http.StatusConflict, "briefing requires an approved delivery")
		return
	}

	view, err := h.requests.Public(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}

	input := ai.BriefingInput{
		BloodGroup:       r.BloodGroup,
		Component:        r.Component,
		Quantity:         r.Quantity,
		Priority:         r.Priority,
		Destination:      view.Organization.Name + ", " + view.Organization.Address,
		EstimatedArrival: r.Delivery.EstimatedArrival.Format(time.RFC3339),
	}
	briefing, err := h.briefer.GenerateBriefing(c.Request.Context(), input)
	if err != nil {
		metrics.BriefingCallsTotal.WithLabelValues("error").Inc()
		writeError(c, http.StatusBadGateway, "briefing generation failed")
		return
	}
	metrics.BriefingCallsTotal.WithLabelValues("success").Inc()
	writeJSON(c, http.StatusOK, briefing)
}
