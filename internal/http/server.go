// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lifeline/internal/ai"
	"lifeline/internal/config"
	"lifeline/internal/http/handlers"
	"lifeline/internal/http/middleware"
	"lifeline/internal/infra"
	"lifeline/internal/maps"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/tracking"
	"lifeline/internal/types"
)

type ServerDeps struct {
	Requests *request.Service
	Tracking *tracking.Service
	ETA      *maps.ETAService
	Briefer  ai.Briefer
	Verifier infra.TokenVerifier
	Cfg      config.Config
	Log      *zap.Logger
}

// NewRouter builds the gin engine. Staff endpoints sit behind firebase auth;
// the tracking-link surface (public view, SSE stream, location ingest, OTP
// verify) is open to anyone holding the link.
func NewRouter(deps ServerDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	requestHandler := handlers.NewRequestHandler(deps.Requests)
	trackingHandler := handlers.NewTrackingHandler(deps.Requests, deps.Tracking, deps.Cfg.Tracking)
	deliveryHandler := handlers.NewDeliveryHandler(deps.Requests, deps.ETA, deps.Briefer)

	api := r.Group("/api/v1")

	staff := api.Group("")
	staff.Use(middleware.Auth(deps.Verifier))
	staff.POST("/requests", requestHandler.Create)
	staff.GET("/requests", requestHandler.List)
	staff.GET("/requests/:id", requestHandler.Get)
	staff.PUT("/requests/:id/status", requestHandler.UpdateStatus)
	staff.PUT("/requests/:id/payment", requestHandler.Payment)
	staff.POST("/requests/:id/briefing", deliveryHandler.Briefing)
	staff.GET("/requests/:id/eta", deliveryHandler.ETA)

	api.GET("/requests/:id/public", requestHandler.Public)
	api.GET("/requests/:id/track", trackingHandler.Stream)
	api.POST("/requests/:id/location", trackingHandler.PublishLocation)
	api.POST("/requests/:id/verify-otp", requestHandler.VerifyOTP)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// TrackingOrders adapts the request service to the tracking module's Orders
// contract, translating the dispatch sentinels into tracking ones.
type TrackingOrders struct {
	Requests *request.Service
}

func (a TrackingOrders) BeginTracking(ctx context.Context, id types.ID) (bool, error) {
	flipped, err := a.Requests.BeginTracking(ctx, id)
	switch {
	case errors.Is(err, request.ErrAlreadyCompleted):
		return false, tracking.ErrCompleted
	case errors.Is(err, request.ErrInvalidState):
		return false, tracking.ErrNotLive
	}
	return flipped, err
}
