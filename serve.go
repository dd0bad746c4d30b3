package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/handler"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/middleware"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.cleanup()
	cfg := a.cfg
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or DASHBOARD_JWT_SECRET) is required to serve")
	}

	if cfg.Source.Spreadsheet != "" {
		go func() {
			if _, err := a.snapshots.Get(ctx, ""); err != nil {
				logger.Warn(ctx, "initial load failed", "error", err)
			}
		}()
	}
	go a.snapshots.Run(ctx, time.Duration(cfg.Refresh.IntervalSeconds)*time.Second)

	if cfg.Source.Kind == config.SourceFile && cfg.Source.Watch && cfg.Source.Spreadsheet != "" {
		go func() {
			if err := a.snapshots.WatchFile(ctx, cfg.Source.Spreadsheet); err != nil {
				logger.Warn(ctx, "workbook watcher disabled", "error", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(cfg, a.snapshots, a.location),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	logger.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(context.Background(), "server exited gracefully")
	return nil
}

func newRouter(cfg *config.Config, snapshots *service.SnapshotService, loc *time.Location) *gin.Engine {
	authHandler := handler.NewAuthHandler(cfg)
	dashboardHandler := handler.NewDashboardHandler(snapshots, loc, cfg.Dashboard.RecentLimit)

	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	apiLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, window)
	refreshLimiter := middleware.NewRateLimiter(cfg.RateLimit.RefreshRequests, window)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(cacheMiddleware())

	if dir := cfg.Server.StaticDir; dir != "" {
		logger.Info(context.Background(), "serving static files", "directory", dir)
		router.Static("/static", dir)
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
			router.StaticFile("/", filepath.Join(dir, "index.html"))
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"snapshots": snapshots.Count(),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", middleware.RateLimit(apiLimiter), authHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	protected.Use(middleware.RateLimit(apiLimiter))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/views/:role", dashboardHandler.GetView)
		protected.GET("/agents", middleware.RequireRole(model.RoleAdmin), dashboardHandler.ListAgents)
		protected.POST("/refresh",
			middleware.RequireRole(model.RoleAdmin),
			middleware.RateLimit(refreshLimiter),
			dashboardHandler.Refresh,
		)
	}

	return router
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheMiddleware keeps dashboard data out of browser caches and lets
// static assets be cached for an hour
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if strings.HasPrefix(path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		} else if strings.HasPrefix(path, "/static/") || path == "/" {
			c.Header("Cache-Control", "public, max-age=3600, must-revalidate")
		}

		c.Next()
	}
}
