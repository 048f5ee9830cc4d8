package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openboard/openboard/auth"
	authdb "github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
	"github.com/openboard/openboard/internal/slogging"
)

// Server bundles the HTTP handlers and the realtime hub behind one router
type Server struct {
	cfg *config.Config

	hub        *Hub
	dispatcher *FrameDispatcher
	wsHandlers *WebSocketHandlers

	authHandlers *auth.Handlers
	authMw       *auth.Middleware
	roomHandlers *RoomHandlers

	sweeper *SnapshotSweeper

	dbManager *authdb.Manager
}

// ServerDeps carries the collaborators main has already constructed
type ServerDeps struct {
	Config      *config.Config
	AuthService *auth.Service
	Stores      *Stores
	Sequencer   *OperationSequencer
	Presence    *PresenceRegistry
	Cache       *authdb.RedisDB
	DBManager   *authdb.Manager
}

// NewServer wires the handler set
func NewServer(deps ServerDeps) *Server {
	hub := NewHub(deps.Config.WebSocket)
	services := &RealtimeServices{
		Hub:       hub,
		Presence:  deps.Presence,
		Sequencer: deps.Sequencer,
		Rooms:     deps.Stores.Rooms,
		Messages:  deps.Stores.Messages,
		Users:     deps.AuthService,
	}
	authenticator := NewConnectionAuthenticator(deps.AuthService)
	dispatcher := NewFrameDispatcher(authenticator, services)

	return &Server{
		cfg:          deps.Config,
		hub:          hub,
		dispatcher:   dispatcher,
		wsHandlers:   NewWebSocketHandlers(hub, dispatcher, authenticator, deps.Config.WebSocket),
		authHandlers: auth.NewHandlers(deps.AuthService),
		authMw:       auth.NewMiddleware(deps.AuthService),
		roomHandlers: NewRoomHandlers(deps.Stores, deps.Sequencer, deps.AuthService, deps.Cache),
		sweeper:      NewSnapshotSweeper(deps.Stores.Rooms, deps.Stores.Snapshots),
		dbManager:    deps.DBManager,
	}
}

// Router builds the gin engine with all routes mounted
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Logging.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(slogging.RequestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.authHandlers.RegisterRoutes(r.Group("/api/auth"))
	s.roomHandlers.RegisterRoutes(r.Group("/api/rooms"), s.authMw.AuthRequired())

	r.GET("/ws", s.wsHandlers.HandleWS)

	return r
}

// Start launches the background workers
func (s *Server) Start() {
	s.sweeper.Start()
}

// Stop shuts the background workers down
func (s *Server) Stop() {
	s.sweeper.Stop()
}

// handleHealth reports process liveness plus backing store reachability
func (s *Server) handleHealth(c *gin.Context) {
	if s.dbManager != nil {
		if err := s.dbManager.CheckHealth(c.Request.Context()); err != nil {
			slogging.Get().WithContext(c).Warn("Health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
