// Package api exposes the orchestration core over HTTP and WebSocket. The
// transport is a thin wrapper: all state lives in the registry and all
// progress flows through the broadcaster.
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/portguard/pkg/config"
	"github.com/ExclusiveAccount/portguard/pkg/logbuf"
	"github.com/ExclusiveAccount/portguard/pkg/models"
	"github.com/ExclusiveAccount/portguard/pkg/orchestrator"
	"github.com/ExclusiveAccount/portguard/pkg/registry"
	"github.com/ExclusiveAccount/portguard/pkg/remedy"
)

// Version of the API surface
const Version = "1.0.0"

// ScanRequest starts a new scan
type ScanRequest struct {
	Target        string `json:"target"`
	AutomatedMode bool   `json:"automated_mode"`
}

// ActionRequest executes a remediation action on a vulnerable port
type ActionRequest struct {
	Port        int    `json:"port" binding:"required"`
	Service     string `json:"service"`
	Action      string `json:"action" binding:"required"`
	OperationID string `json:"operation_id"`
}

// RollbackRequest re-runs remediation for a failed operation
type RollbackRequest struct {
	OperationID string `json:"operation_id" binding:"required"`
	Port        int    `json:"port" binding:"required"`
}

// RestoreRequest best-effort re-opens a previously closed port
type RestoreRequest struct {
	Port    int    `json:"port" binding:"required"`
	Service string `json:"service"`
}

// Server is the HTTP/WebSocket front end of the orchestration core
type Server struct {
	cfg      config.Config
	router   *gin.Engine
	orch     *orchestrator.Orchestrator
	engine   *remedy.Engine
	logs     *logbuf.Hook
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the API server and registers its routes
func NewServer(cfg config.Config, orch *orchestrator.Orchestrator, engine *remedy.Engine, logs *logbuf.Hook, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		router: router,
		orch:   orch,
		engine: engine,
		logs:   logs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.cfg.EnableCORS {
		s.router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(204)
				return
			}

			c.Next()
		})
	}

	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/system/status", s.handleSystemStatus)

	s.router.POST("/scan/start", s.handleStartScan)
	s.router.GET("/scan/status/:id", s.handleOperationStatus)

	s.router.POST("/action/execute", s.handleExecuteAction)
	s.router.GET("/action/status/:id", s.handleOperationStatus)

	s.router.POST("/rollback", s.handleRollback)
	s.router.POST("/restore", s.handleRestore)

	s.router.GET("/operations", s.handleListOperations)
	s.router.DELETE("/operations/:id", s.handleDeleteOperation)

	s.router.GET("/logs", s.handleLogs)
	s.router.GET("/ws", s.handleWebSocket)
}

// Router returns the underlying gin engine, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server on the configured listen address
func (s *Server) Start() error {
	s.logger.Infof("API server listening on %s", s.cfg.ListenAddr)
	return s.router.Run(s.cfg.ListenAddr)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "PortGuard API", "version": Version})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func (s *Server) handleSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status(c.Request.Context()))
}

func (s *Server) handleStartScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Target == "" {
		req.Target = s.cfg.Target
	}

	id := s.orch.StartScan(req.Target, req.AutomatedMode)

	c.JSON(http.StatusOK, gin.H{
		"operation_id": id,
		"status":       "started",
		"message":      "Port scan started",
		"timestamp":    time.Now(),
	})
}

func (s *Server) handleOperationStatus(c *gin.Context) {
	op, err := s.orch.Registry().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
		return
	}
	c.JSON(http.StatusOK, op)
}

func (s *Server) handleExecuteAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.orch.ExecuteAction(req.Port, req.Service, models.Action(req.Action), req.OperationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operation_id": id,
		"status":       "started",
		"message":      "Security action '" + req.Action + "' started",
		"timestamp":    time.Now(),
	})
}

func (s *Server) handleRollback(c *gin.Context) {
	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.orch.Rollback(req.OperationID, req.Port)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
		case errors.Is(err, orchestrator.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Can only rollback failed operations"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rollback_id": id,
		"status":      "started",
		"message":     "Rollback started",
		"timestamp":   time.Now(),
	})
}

func (s *Server) handleRestore(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.orch.ExecuteAction(req.Port, req.Service, models.ActionRestore, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operation_id": id,
		"status":       "started",
		"message":      "Port restore started",
		"timestamp":    time.Now(),
	})
}

func (s *Server) handleListOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": s.orch.Registry().List()})
}

func (s *Server) handleDeleteOperation(c *gin.Context) {
	if !s.orch.Registry().Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Operation deleted"})
}

func (s *Server) handleLogs(c *gin.Context) {
	entries := s.logs.Entries()
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// handleWebSocket bridges one broadcaster subscription onto a WebSocket
// connection. Events are forwarded in publish order; ping messages from the
// client are answered with pongs.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.orch.Events().Subscribe()
	defer s.orch.Events().Unsubscribe(sub)

	s.logger.Infof("WebSocket connected. Total observers: %d", s.orch.Events().Count())

	// Event forwarding and pong replies share the connection, so writes are
	// serialized here.
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	go func() {
		for ev := range sub.Events() {
			if err := writeJSON(ev); err != nil {
				s.logger.Debugf("WebSocket delivery failed: %v", err)
				s.orch.Events().Unsubscribe(sub)
				conn.Close()
				return
			}
		}
	}()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "ping" {
			writeJSON(gin.H{"type": "pong", "timestamp": time.Now()})
		}
	}

	s.logger.Infof("WebSocket disconnected. Total observers: %d", s.orch.Events().Count()-1)
}
