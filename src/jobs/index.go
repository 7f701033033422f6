package jobs

// Backtest job orchestration: request validation, the PENDING→RUNNING→
// COMPLETED|FAILED lifecycle, and an in-memory store keyed by job id. The
// simulation core stays a pure function of its inputs; everything stateful
// lives here.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"odin/src/market"
	"odin/src/sim"
	"odin/src/strategy"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Request is a backtest submission. Rejected with a ValidationError before
// any job state is created.
type Request struct {
	StrategyID     string    `json:"strategy_id" binding:"required"`
	StartDate      time.Time `json:"start_date" binding:"required"`
	EndDate        time.Time `json:"end_date" binding:"required"`
	InitialCapital float64   `json:"initial_capital" binding:"required"`
	Timeframe      string    `json:"timeframe"`
}

// Validate normalizes and checks the request.
func (r *Request) Validate() error {
	if _, err := strategy.New(r.StrategyID); err != nil {
		return err
	}
	if !r.StartDate.Before(r.EndDate) {
		return &market.ValidationError{Field: "start_date", Msg: "must be before end_date"}
	}
	if r.InitialCapital <= 0 {
		return &market.ValidationError{Field: "initial_capital", Msg: "must be positive"}
	}
	if r.Timeframe == "" {
		r.Timeframe = "1h"
	}
	if !market.ValidTimeframe(r.Timeframe) {
		return &market.ValidationError{Field: "timeframe", Msg: "unsupported timeframe: " + r.Timeframe}
	}
	return nil
}

// Job is one tracked backtest run.
type Job struct {
	ID        string      `json:"job_id"`
	CreatedAt time.Time   `json:"created_at"`
	Request   Request     `json:"request"`
	Status    Status      `json:"status"`
	Result    *sim.Result `json:"results,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SeriesSource materializes the ordered candle series a job replays. The
// store never reaches the network itself; the source owns all retrieval.
type SeriesSource interface {
	Candles(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error)
}

// Sink receives finished jobs, e.g. for file persistence. Optional.
type Sink interface {
	JobFinished(job Job)
}

// Store runs and tracks jobs. All methods are safe for concurrent use; each
// run executes on its own goroutine with fully isolated state.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string

	source SeriesSource
	sink   Sink
	symbol string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore builds a job store over the given candle source. symbol is the
// instrument every backtest replays; sink may be nil.
func NewStore(source SeriesSource, symbol string, sink Sink) *Store {
	if symbol == "" {
		symbol = "BTC/USDT"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		jobs:   make(map[string]*Job),
		source: source,
		sink:   sink,
		symbol: symbol,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels every running job and waits for them to settle.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

// Submit validates the request, registers a PENDING job and starts it in the
// background. Returns a snapshot of the new job.
func (s *Store) Submit(req Request) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, err
	}
	job := &Job{
		ID:        newJobID(),
		CreatedAt: time.Now().UTC(),
		Request:   req,
		Status:    StatusPending,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job.ID)
	return *job, nil
}

func (s *Store) run(id string) {
	defer s.wg.Done()

	s.setStatus(id, StatusRunning, nil, "")
	snap, ok := s.Get(id)
	if !ok {
		return
	}
	req := snap.Request

	series, err := s.source.Candles(s.ctx, s.symbol, req.Timeframe, req.StartDate, req.EndDate)
	if err == nil {
		err = market.ValidateSeries(series)
	}
	if err != nil {
		s.setStatus(id, StatusFailed, nil, err.Error())
		return
	}

	policy, err := strategy.New(req.StrategyID)
	if err != nil {
		s.setStatus(id, StatusFailed, nil, err.Error())
		return
	}
	engine := sim.New(sim.Config{
		Symbol:        s.symbol,
		Annualization: market.AnnualizationFactor(req.Timeframe),
	})
	result, err := engine.Run(s.ctx, policy, series, req.InitialCapital)
	if err != nil {
		s.setStatus(id, StatusFailed, nil, err.Error())
		return
	}
	s.setStatus(id, StatusCompleted, result, "")
}

func (s *Store) setStatus(id string, status Status, result *sim.Result, errMsg string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.Status = status
	job.Result = result
	job.Error = errMsg
	snap := *job
	s.mu.Unlock()

	if s.sink != nil && (status == StatusCompleted || status == StatusFailed) {
		s.sink.JobFinished(snap)
	}
}

// Get returns a snapshot of one job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns up to limit jobs, newest first.
func (s *Store) List(limit int) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]Job, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if job, ok := s.jobs[s.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

// Delete removes a job from the store. Running goroutines finish quietly.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func newJobID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
