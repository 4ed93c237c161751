package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"kline-cache/src/analysis"
	"kline-cache/src/interfaces"
	"kline-cache/src/logger"
	"kline-cache/src/models"
	"kline-cache/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// Read-only HTTP surface over the local cache plus a WebSocket fan-out that
// re-publishes push notifications to local consumers. It never talks to the
// remote services itself; everything it serves comes from the series cache
// or the persistent store.
// -----------------------------------------------------------------------------

type APIServer struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Store     interfaces.IKlineStore
	Cache     *utils.SeriesCache
	Resampler *analysis.TimeSeriesResampler
	engine    *gin.Engine

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MNotification // Strongly typed and Buffered Queue
	register   chan *Client
	unregister chan *Client

	connMutex sync.RWMutex
	startedAt time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, log *logger.Logger, store interfaces.IKlineStore, cache *utils.SeriesCache) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:    cfg,
		Logger:    log,
		Store:     store,
		Cache:     cache,
		Resampler: &analysis.TimeSeriesResampler{},
		engine:    gin.Default(),
		clients:   make(map[*Client]struct{}),
		// Buffered channel to prevent lock/blocking
		// Queue size of 256 ensures we can handle bursts of updates
		broadcast:  make(chan *models.MNotification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		startedAt:  time.Now(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/points", s.getPoints)
	s.engine.GET("/api/transactions", s.getTransactions)
	s.engine.GET("/api/latest", s.getLatest)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	// Clean shutdown
	close(s.broadcast)
	close(s.register)
	close(s.unregister)
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.connMutex.RLock()
	connections := len(s.clients)
	s.connMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":         "ok",
		"connections":    connections,
		"series_cached":  s.Cache.SeriesCount(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"intervals":      s.Config.Kline.Intervals,
		"pairs":          s.Config.Kline.Pairs,
		"backfill_hours": s.Config.Kline.BackfillHours,
		"max_points":     s.Config.Cache.MaxPoints,
	})
}

// -----------------------------------------------------------------------------

// getPoints serves a candle range from the persistent store. An optional
// resample parameter derives a coarser interval on the fly.
func (s *APIServer) getPoints(c *gin.Context) {
	token0 := c.Query("token0")
	token1 := c.Query("token1")
	interval := models.Interval(c.Query("interval"))

	if token0 == "" || token1 == "" || !interval.Valid() {
		c.JSON(400, gin.H{"error": "token0, token1 and a valid interval are required"})
		return
	}

	query := models.MPointQuery{
		TimestampBegin: queryInt64(c, "start_at", 0),
		TimestampEnd:   queryInt64(c, "end_at", 0),
		Limit:          int(queryInt64(c, "limit", 0)),
		Reverse:        queryBool(c, "reverse"),
	}

	points, err := s.Store.QueryPoints(token0, token1, interval, query)
	if err != nil {
		s.Logger.Error("Point query %s/%s/%s failed: %v", token0, token1, interval, err)
		c.JSON(500, gin.H{"error": "point query failed"})
		return
	}

	responseInterval := interval
	if resample := models.Interval(c.Query("resample")); resample != "" {
		if !resample.Valid() || resample.Duration() <= interval.Duration() {
			c.JSON(400, gin.H{"error": "resample must be a valid interval coarser than interval"})
			return
		}
		points = s.Resampler.ResamplePoints(points, resample)
		responseInterval = resample
	}

	c.JSON(200, models.MPointsBatch{
		Token0:   token0,
		Token1:   token1,
		StartAt:  models.MTimestampMs(query.TimestampBegin),
		EndAt:    models.MTimestampMs(query.TimestampEnd),
		Interval: responseInterval,
		Points:   points,
	})
}

// -----------------------------------------------------------------------------

// getTransactions serves stored transactions newest first.
func (s *APIServer) getTransactions(c *gin.Context) {
	token0 := c.Query("token0")
	token1 := c.Query("token1")

	if token0 == "" || token1 == "" {
		c.JSON(400, gin.H{"error": "token0 and token1 are required"})
		return
	}

	query := models.MTransactionQuery{
		TimestampBegin: queryInt64(c, "start_at", 0),
		TimestampEnd:   queryInt64(c, "end_at", 0),
		Limit:          int(queryInt64(c, "limit", 100)),
	}

	transactions, err := s.Store.QueryTransactions(token0, token1, queryBool(c, "token_reversed"), query)
	if err != nil {
		s.Logger.Error("Transaction query %s/%s failed: %v", token0, token1, err)
		c.JSON(500, gin.H{"error": "transaction query failed"})
		return
	}

	c.JSON(200, transactions)
}

// -----------------------------------------------------------------------------

// getLatest serves the newest candles from the in-memory series cache,
// falling back to the store when the series has not been buffered yet.
func (s *APIServer) getLatest(c *gin.Context) {
	token0 := c.Query("token0")
	token1 := c.Query("token1")
	interval := models.Interval(c.Query("interval"))
	count := int(queryInt64(c, "count", 100))

	if token0 == "" || token1 == "" || !interval.Valid() {
		c.JSON(400, gin.H{"error": "token0, token1 and a valid interval are required"})
		return
	}

	points := s.Cache.Latest(token0, token1, interval, count)
	if points == nil {
		var err error
		points, err = s.Store.QueryPoints(token0, token1, interval, models.MPointQuery{
			Limit:   count,
			Reverse: true,
		})
		if err != nil {
			s.Logger.Error("Latest query %s/%s/%s failed: %v", token0, token1, interval, err)
			c.JSON(500, gin.H{"error": "latest query failed"})
			return
		}
	}

	c.JSON(200, models.MPointsBatch{
		Token0:   token0,
		Token1:   token1,
		Interval: interval,
		Points:   points,
	})
}

// -----------------------------------------------------------------------------
// Query helpers
// -----------------------------------------------------------------------------

func queryInt64(c *gin.Context, key string, fallback int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

// -----------------------------------------------------------------------------

func queryBool(c *gin.Context, key string) bool {
	raw := c.Query(key)
	return raw == "1" || strings.EqualFold(raw, "true")
}
