package curator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	apiPathHealth = "/api/health"
	apiPathDigest = "/api/digest"
)

// API is a small status and trigger server for the bot.
//
// It exposes a health endpoint reporting connection and digest state, and
// an endpoint to trigger the daily digest out of schedule. Create it with
// newAPI and start it with the Serve method.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger

	dc *Curator
}

// newAPI configures the Gin engine, routes and the underlying HTTP server.
func newAPI(d *Curator, config *APIConfig) *API {
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		dc:     d,
		logger: slog.New(newLogHandler(config.LogLevel)).With(
			loggerNameKey, "api",
		),
	}

	r.Use(gin.Recovery(), api.loggingMiddleware())

	r.GET(apiPathHealth, api.healthCheck)
	r.POST(apiPathDigest, api.triggerDigest)

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return api
}

// Serve listens on the configured address and serves until the server is
// shut down.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(
			ctx,
			a.config.ListenNetwork,
			a.config.Listen,
		)
		if err != nil {
			return err
		}
		a.listener = ln
	}
	a.logger.Info("listening", "addr", a.listener.Addr().String())
	err := a.httpServer.Serve(a.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// healthCheck reports the bot's connection state and digest run history.
func (a *API) healthCheck(c *gin.Context) {
	var lastRun string
	if t, ok := a.dc.lastDigestRun.Load().(time.Time); ok && !t.IsZero() {
		lastRun = t.Format(time.RFC3339)
	}
	c.JSON(
		http.StatusOK, gin.H{
			"status":            "ok",
			"uptime":            time.Since(a.dc.startedAt).String(),
			"discord_connected": a.dc.discord.connected.Load(),
			"digest_running":    a.dc.digestRunning.Load(),
			"last_digest_run":   lastRun,
		},
	)
}

// triggerDigest starts a digest run out of schedule. Responds 409 if a run
// is already in progress.
func (a *API) triggerDigest(c *gin.Context) {
	if a.dc.digestRunning.Load() {
		c.JSON(
			http.StatusConflict,
			gin.H{"error": "digest already running"},
		)
		return
	}
	go func() {
		if err := a.dc.RunDailyDigest(context.Background()); err != nil {
			a.logger.Error("manual digest run failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "digest started"})
}
