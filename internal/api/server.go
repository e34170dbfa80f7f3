package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/order"
	"main/internal/position"
	"main/internal/store"
)

// Config wires the server's read-only dependencies.
type Config struct {
	Addr    string
	Tracker *position.Tracker
	Orders  *order.Manager
	Repo    *store.Repository
}

// Server exposes read-only views into core state over HTTP and pushes
// portfolio snapshots over a websocket. It never mutates core state.
type Server struct {
	addr    string
	tracker *position.Tracker
	orders  *order.Manager
	repo    *store.Repository
	router  *gin.Engine
	started time.Time
	httpSrv *http.Server
}

// NewServer builds the router and handlers.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("api server requires a position tracker")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		tracker: cfg.Tracker,
		orders:  cfg.Orders,
		repo:    cfg.Repo,
		router:  router,
		started: time.Now().UTC(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/portfolio", s.handlePortfolio)
	s.router.GET("/positions", s.handlePositions)
	s.router.GET("/positions/:symbol", s.handlePosition)
	s.router.GET("/orders", s.handleOrders)
	s.router.GET("/orders/:id/fills", s.handleOrderFills)
	s.router.GET("/ws/portfolio", s.handlePortfolioWS)
}

// Run serves until ctx is cancelled, then drains with a bounded deadline.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	logs.Infof("api listening: addr=%s", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot().Positions)
}

func (s *Server) handlePosition(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	pos, ok := s.tracker.Position(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleOrders(c *gin.Context) {
	if s.repo == nil {
		// Without persistence, fall back to the manager's in-memory view.
		if s.orders != nil {
			c.JSON(http.StatusOK, s.orders.Orders())
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence unavailable"})
		return
	}
	rows, err := s.repo.Orders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleOrderFills(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence unavailable"})
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	rows, err := s.repo.FillsForOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
