package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"odin/src/jobs"
	"odin/src/market"
	"odin/src/regime"
	"odin/src/strategy"
	"odin/src/universe"
)

// MarketData is everything the HTTP layer needs from a data source: an
// ordered candle window and a 24h ticker snapshot.
type MarketData interface {
	Candles(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error)
	Tickers(ctx context.Context) ([]market.Ticker, error)
}

// Config fixes the serving parameters.
type Config struct {
	Addr      string // listen address, e.g. ":8000"
	Symbol    string // reference symbol for regime analysis
	Timeframe string // candle timeframe for regime analysis

	// LiveInterval is the push interval for /ws/live clients.
	LiveInterval time.Duration
}

// TickerCache serves the most recent ticker for a symbol, typically fed by a
// live exchange stream.
type TickerCache interface {
	Ticker(symbol string) (market.Ticker, bool)
}

// Server exposes the engine over HTTP: backtest job management, regime
// analysis, universe ranking and a live websocket for periodic snapshots.
type Server struct {
	cfg      Config
	data     MarketData
	store    *jobs.Store
	live     TickerCache
	engine   *gin.Engine
	upgrader websocket.Upgrader

	sessMu  sync.Mutex
	session liveSession
}

// liveSession tracks the advisory live-monitoring state. Starting a session
// records intent only; no orders are ever placed.
type liveSession struct {
	Running   bool   `json:"running"`
	Strategy  string `json:"strategy,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
}

func New(cfg Config, data MarketData, store *jobs.Store) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDT"
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1h"
	}
	if cfg.LiveInterval <= 0 {
		cfg.LiveInterval = 10 * time.Second
	}
	s := &Server{
		cfg:   cfg,
		data:  data,
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.engine = s.routes()
	return s
}

// AttachLive wires a ticker cache into the live websocket payload. Must be
// called before Run.
func (s *Server) AttachLive(tc TickerCache) {
	s.live = tc
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/backtest", s.handleBacktestSubmit)
		api.GET("/backtest/result/:job_id", s.handleBacktestResult)
		api.GET("/backtest/history", s.handleBacktestHistory)
		api.GET("/backtest/strategies", s.handleStrategies)
		api.DELETE("/backtest/job/:job_id", s.handleBacktestDelete)

		api.GET("/regime", s.handleRegime)
		api.GET("/regime/history", s.handleRegimeHistory)
		api.GET("/regime/statistics", s.handleRegimeStatistics)

		api.GET("/universe", s.handleUniverse)
		api.GET("/universe/top-gainers", s.handleTopGainers)
		api.GET("/universe/top-losers", s.handleTopLosers)
		api.GET("/universe/top-volume", s.handleTopVolume)
		api.GET("/universe/analysis", s.handleUniverseAnalysis)

		api.GET("/live/status", s.handleLiveStatus)
		api.POST("/live/start", s.handleLiveStart)
		api.POST("/live/stop", s.handleLiveStop)
	}

	r.GET("/ws/live", s.handleLive)
	return r
}

// Run blocks serving HTTP until the listener fails or the context ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("http listening on %s", s.cfg.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ===================== basic =====================

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "odin",
		"status":  "running",
		"endpoints": []string{
			"/api/backtest", "/api/regime", "/api/universe", "/api/live/status", "/ws/live", "/health",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ===================== backtest =====================

func (s *Server) handleBacktestSubmit(c *gin.Context) {
	var req jobs.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.store.Submit(req)
	if err != nil {
		status := http.StatusBadRequest
		var verr *market.ValidationError
		if !errors.As(err, &verr) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "backtest started",
	})
}

func (s *Server) handleBacktestResult(c *gin.Context) {
	job, ok := s.store.Get(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleBacktestHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.store.List(50)})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategy.List()})
}

func (s *Server) handleBacktestDelete(c *gin.Context) {
	id := c.Param("job_id")
	if !s.store.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "message": "job deleted"})
}

// ===================== regime =====================

// referenceSeries pulls the candle window regime analysis runs over.
func (s *Server) referenceSeries(ctx context.Context, bars int) (market.Series, error) {
	step := market.TimeframeMillis(s.cfg.Timeframe)
	end := time.Now()
	start := end.Add(-time.Duration(int64(bars)*step) * time.Millisecond)
	return s.data.Candles(ctx, s.cfg.Symbol, s.cfg.Timeframe, start, end)
}

func (s *Server) handleRegime(c *gin.Context) {
	series, err := s.referenceSeries(c.Request.Context(), 200)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	snap, err := regime.Analyze(series)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": s.cfg.Symbol, "analysis": snap})
}

func (s *Server) handleRegimeHistory(c *gin.Context) {
	series, err := s.referenceSeries(c.Request.Context(), 500)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	history, err := regime.History(series)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": s.cfg.Symbol, "history": history})
}

func (s *Server) handleRegimeStatistics(c *gin.Context) {
	series, err := s.referenceSeries(c.Request.Context(), 500)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	history, err := regime.History(series)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, regime.Summarize(history))
}

// ===================== universe =====================

// currentRegime is best effort for ranking; data failures fall back to
// SIDEWAYS rather than failing the universe request.
func (s *Server) currentRegime(ctx context.Context) market.Regime {
	series, err := s.referenceSeries(ctx, 200)
	if err != nil {
		return market.Sideways
	}
	r, err := regime.Classify(series)
	if err != nil {
		return market.Sideways
	}
	return r
}

func (s *Server) handleUniverse(c *gin.Context) {
	tickers, err := s.data.Tickers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	r := s.currentRegime(c.Request.Context())
	picks := universe.Rank(tickers, r)
	c.JSON(http.StatusOK, gin.H{"regime": r, "selected": picks})
}

func (s *Server) handleTopGainers(c *gin.Context) {
	tickers, err := s.data.Tickers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"top_gainers": universe.TopGainers(tickers, universe.DefaultQuoteSuffix, 10)})
}

func (s *Server) handleTopLosers(c *gin.Context) {
	tickers, err := s.data.Tickers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"top_losers": universe.TopLosers(tickers, universe.DefaultQuoteSuffix, 10)})
}

func (s *Server) handleTopVolume(c *gin.Context) {
	tickers, err := s.data.Tickers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"top_volume": universe.TopVolume(tickers, universe.DefaultQuoteSuffix, 10)})
}

func (s *Server) handleUniverseAnalysis(c *gin.Context) {
	tickers, err := s.data.Tickers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, universe.Analyze(tickers, universe.DefaultQuoteSuffix))
}

// ===================== live session =====================

func (s *Server) handleLiveStatus(c *gin.Context) {
	s.sessMu.Lock()
	sess := s.session
	s.sessMu.Unlock()
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleLiveStart(c *gin.Context) {
	var req struct {
		Strategy string `json:"strategy"`
		Symbol   string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Strategy == "" {
		req.Strategy = "momentum_v1"
	}
	if req.Symbol == "" {
		req.Symbol = s.cfg.Symbol
	}
	if _, err := strategy.New(req.Strategy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.sessMu.Lock()
	s.session = liveSession{
		Running:   true,
		Strategy:  req.Strategy,
		Symbol:    req.Symbol,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	sess := s.session
	s.sessMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "started", "session": sess})
}

func (s *Server) handleLiveStop(c *gin.Context) {
	s.sessMu.Lock()
	was := s.session.Running
	s.session = liveSession{}
	s.sessMu.Unlock()
	if !was {
		c.JSON(http.StatusOK, gin.H{"status": "not_running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// ===================== live websocket =====================

type livePayload struct {
	Type     string           `json:"type"`
	Time     string           `json:"time"`
	Ticker   *market.Ticker   `json:"ticker,omitempty"`
	Regime   *regime.Snapshot `json:"regime,omitempty"`
	Selected []universe.Pick  `json:"selected,omitempty"`
}

// handleLive upgrades to a websocket and pushes a regime + universe
// snapshot every LiveInterval until the client goes away.
func (s *Server) handleLive(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(livePayload{
		Type: "connected",
		Time: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	// drain client frames so pings and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	t := time.NewTicker(s.cfg.LiveInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteJSON(s.liveSnapshot(c.Request.Context())); err != nil {
				return
			}
		}
	}
}

func (s *Server) liveSnapshot(ctx context.Context) livePayload {
	p := livePayload{
		Type: "snapshot",
		Time: time.Now().UTC().Format(time.RFC3339),
	}
	if s.live != nil {
		if tk, ok := s.live.Ticker(s.cfg.Symbol); ok {
			p.Ticker = &tk
		}
	}
	if series, err := s.referenceSeries(ctx, 200); err == nil {
		if snap, err := regime.Analyze(series); err == nil {
			p.Regime = &snap
			if tickers, err := s.data.Tickers(ctx); err == nil {
				p.Selected = universe.Rank(tickers, snap.Regime)
			}
		}
	}
	return p
}
