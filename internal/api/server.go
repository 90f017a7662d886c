package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/connector"
	"github.com/energizer-project/voxelgate/internal/entityid"
	"github.com/energizer-project/voxelgate/internal/events"
	intnet "github.com/energizer-project/voxelgate/internal/network"
	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/server"
)

// GameServer is the part of server.Manager the API exposes.
type GameServer interface {
	Sessions() []server.SessionInfo
	Session(id uuid.UUID) (server.SessionInfo, bool)
	Kick(ctx context.Context, id uuid.UUID, reason string) error
	Broadcast(ctx context.Context, text protocol.Text) int
	StatusDocument() (string, error)
	Stats() server.Stats
	Allocator() *entityid.Allocator
}

// ProfileCache is the identity verifier's profile cache.
type ProfileCache interface {
	ClearCache(ctx context.Context) error
	CacheStats(ctx context.Context) (connector.CacheStats, error)
}

// Server is the admin REST API.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	game     GameServer
	profiles ProfileCache
	gatherer prometheus.Gatherer

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server. profiles and gatherer may be nil.
func NewServer(cfg *config.Config, eventBus *events.EventBus, game GameServer, profiles ProfileCache, gatherer prometheus.Gatherer) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		game:     game,
		profiles: profiles,
		gatherer: gatherer,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	app := s.cfg.GetApplicationData()
	addr := net.JoinHostPort(app.API.Host, fmt.Sprint(app.API.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if app.Security.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(app.Security.TLSCertFile, app.Security.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load API TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	// SO_REUSEADDR so a restart can rebind immediately
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Bool("tls", app.Security.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	security := s.cfg.GetApplicationData().Security

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must be false with a "*" origin
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(security.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleStatus)
		public.GET("/version", s.handleVersion)
	}

	auth := NewAuthMiddleware(s.cfg)
	protected := router.Group("/api")
	protected.Use(auth.IPWhitelist(), auth.RequireToken())

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/players", s.handlePlayers)
		monitor.GET("/players/:uuid", s.handlePlayer)
		monitor.GET("/allocator", s.handleAllocator)
		monitor.GET("/system", s.handleSystem)
		monitor.GET("/events", s.handleEvents)
	}

	control := protected.Group("/control")
	{
		control.POST("/kick/:uuid", s.handleKick)
		control.POST("/broadcast", s.handleBroadcast)
		control.POST("/clear_profile_cache", s.handleClearProfileCache)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/config", s.handleGetConfig)
	}

	if s.gatherer != nil {
		metricsGroup := router.Group("/metrics")
		metricsGroup.Use(auth.IPWhitelist(), auth.RequireToken())
		metricsGroup.GET("", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Voxelgate API is running."})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
