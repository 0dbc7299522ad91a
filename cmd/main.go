package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcall/backend/internal/api/handler"
	"chatcall/backend/internal/auth"
	"chatcall/backend/internal/calllog"
	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/config"
	"chatcall/backend/internal/conversation"
	"chatcall/backend/internal/gateway"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger, closeLog := cfg.Logger("api")
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	signer := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)

	// 1. Persistence gateway client
	tokens := auth.NewSignedTokenSource(signer.WithAudience(auth.GatewayAudience), cfg.ServiceSubject)
	gw := gateway.NewClient(cfg.GatewayURL, tokens, &http.Client{Timeout: cfg.RequestTimeout})

	// 2. Services
	opts := chathub.DefaultOptions()
	opts.Interval = cfg.PollInterval
	opts.Deduplicate = cfg.PollDeduplicate
	opts.FailureThreshold = cfg.PollFailureThreshold
	listeners := chathub.NewManagerService(opts, logger)

	store := conversation.NewStore(gw, listeners, logger, cfg.MaxPageSize)
	calls := calllog.NewTracker(gw, logger)

	// 3. Routing
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(logger))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handler.NewHandler(store, calls, logger)
	h.RequestTimeout = cfg.RequestTimeout
	h.LongPollTimeout = cfg.LongPollTimeout
	h.ServiceSubject = cfg.ServiceSubject
	h.Register(r, auth.RequireBearer(signer))

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.LongPollTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server listening", "addr", cfg.HTTPAddr, "gateway", cfg.GatewayURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		listeners.CloseAll()
		return err
	})
	return g.Wait()
}
