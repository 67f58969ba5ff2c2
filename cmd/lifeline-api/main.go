// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lifeline/internal/ai"
	"lifeline/internal/config"
	httptransport "lifeline/internal/http"
	"lifeline/internal/infra"
	"lifeline/internal/logger"
	"lifeline/internal/maps"
	"lifeline/internal/modules/pricing"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/tracking"
	"lifeline/internal/notify"
)

func main() {
	_ = godotenv.Load()

	zlog := logger.New()
	defer func() { _ = zlog.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		zlog.Fatal("LIFELINE_FIREBASE_PROJECT_ID is required")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		zlog.Fatal("firebase init", zap.Error(err))
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		zlog.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	pricingStore := pricing.NewStore(dbPool)
	pricingSvc := pricing.NewService(pricingStore)

	requestStore := request.NewStore(dbPool, redisClient)
	requestSvc := request.NewService(requestStore, pricingSvc, cfg.OTP, zlog)

	hub := tracking.NewHub(cfg.Tracking.SubscriberBuffer)
	trackingStore := tracking.NewStore(redisClient)
	trackingSvc := tracking.NewService(hub, trackingStore, httptransport.TrackingOrders{Requests: requestSvc}, zlog)
	requestSvc.SetBroadcaster(trackingSvc)

	if messagingClient, err := infra.NewMessaging(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile); err != nil {
		zlog.Warn("fcm init; status pushes disabled", zap.Error(err))
	} else {
		requestSvc.SetNotifier(notify.NewFCMNotifier(messagingClient, zlog))
	}

	var etaSvc *maps.ETAService
	if cfg.Maps.APIKey != "" {
		etaSvc, err = maps.NewETAService(cfg.Maps.APIKey)
		if err != nil {
			zlog.Fatal("maps init", zap.Error(err))
		}
	}

	var briefer ai.Briefer
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiBriefer(ctx, cfg.AI.GeminiKey)
		if err != nil {
			zlog.Fatal("gemini init", zap.Error(err))
		}
		defer gemini.Close()
		briefer = gemini
	}

	router := httptransport.NewRouter(httptransport.ServerDeps{
		Requests: requestSvc,
		Tracking: trackingSvc,
		ETA:      etaSvc,
		Briefer:  briefer,
		Verifier: verifier,
		Cfg:      cfg,
		Log:      zlog,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zlog.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("server", zap.Error(err))
	}
}
