package sim

// The simulation engine: a deterministic, single-threaded fold of a trading
// policy over an ordered candle series. The engine owns the one open position,
// the trade ledger and the equity curve; it performs no I/O and keeps no
// process-wide state, so independent runs are fully isolated.

import (
	"context"
	"fmt"
	"math"

	"odin/src/market"
	"odin/src/strategy"
)

// CloseReason labels why a position was closed.
type CloseReason string

const (
	CloseStopLoss     CloseReason = "stop_loss"
	CloseTakeProfit   CloseReason = "take_profit"
	CloseTrailingStop CloseReason = "trailing_stop"
	CloseEndOfData    CloseReason = "end_of_data"
)

// Position is the engine's single open position. Size is a capital amount,
// not a unit count. HighestPrice tracks the best close since entry and never
// decreases while the position is open.
type Position struct {
	EntryTimestamp int64
	EntryPrice     float64
	Size           float64
	Direction      market.Direction
	HighestPrice   float64
}

// TradeRecord is created open on entry and finalized exactly once on close.
type TradeRecord struct {
	Symbol         string           `json:"symbol"`
	EntryTimestamp int64            `json:"entry_ts"`
	EntryPrice     float64          `json:"entry_price"`
	Size           float64          `json:"size"`
	Direction      market.Direction `json:"direction"`
	StopLoss       float64          `json:"stop_loss"`
	ProfitTarget   float64          `json:"profit_target"`
	Closed         bool             `json:"closed"`
	CloseTimestamp int64            `json:"close_ts,omitempty"`
	ClosePrice     float64          `json:"close_price,omitempty"`
	CloseReason    CloseReason      `json:"close_reason,omitempty"`
	PnL            float64          `json:"pnl"`
	HighestPrice   float64          `json:"highest_price_reached,omitempty"`
	MaxProfitPct   float64          `json:"max_profit_pct,omitempty"`
}

// EquityPoint records the capital after processing one candle. While a
// position is open, equity does not reflect unrealized P&L; it moves only at
// realization.
type EquityPoint struct {
	Timestamp int64   `json:"ts"`
	Equity    float64 `json:"equity"`
}

// Result is the immutable output of one run.
type Result struct {
	Summary     Summary       `json:"summary"`
	Trades      []TradeRecord `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Statistics  Statistics    `json:"statistics"`
}

// Config fixes the per-run parameters that are not part of the policy.
type Config struct {
	Symbol        string  // label stamped onto trade records
	Annualization float64 // candles per day, e.g. 24 for hourly
}

// Engine replays a policy candle-by-candle. Safe to reuse across runs; each
// Run builds all of its state locally.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDT"
	}
	if cfg.Annualization <= 0 {
		cfg.Annualization = 24
	}
	return &Engine{cfg: cfg}
}

// Run folds the policy over the series starting once the policy's minimum
// lookback has accumulated. The context is checked once per candle; mid-candle
// work is never interrupted. Returns either a complete Result or an error,
// never partial state.
func (e *Engine) Run(ctx context.Context, policy strategy.Policy, series market.Series, initialCapital float64) (*Result, error) {
	if policy == nil {
		return nil, &market.ValidationError{Field: "strategy", Msg: "nil policy"}
	}
	if initialCapital <= 0 {
		return nil, &market.ValidationError{Field: "initial_capital", Msg: "must be positive"}
	}
	warmup := policy.MinBars()
	if len(series) < warmup {
		return nil, fmt.Errorf("%s needs at least %d candles, got %d: %w", policy.ID(), warmup, len(series), market.ErrInsufficientData)
	}

	capital := initialCapital
	var pos *Position
	trades := make([]TradeRecord, 0, 16)
	curve := make([]EquityPoint, 0, len(series)-warmup)

	for i := warmup; i < len(series); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled at candle %d: %w", i, err)
		}
		window := series[:i+1]
		candle := series[i]

		if pos == nil {
			if policy.EntrySignal(window) {
				entryPrice := policy.EntryPrice(window)
				plan := policy.Stops(entryPrice)
				pos = &Position{
					EntryTimestamp: candle.Timestamp,
					EntryPrice:     entryPrice,
					Size:           capital * policy.SizeRatio(),
					Direction:      market.Long,
					HighestPrice:   entryPrice,
				}
				trades = append(trades, TradeRecord{
					Symbol:         e.cfg.Symbol,
					EntryTimestamp: pos.EntryTimestamp,
					EntryPrice:     pos.EntryPrice,
					Size:           pos.Size,
					Direction:      pos.Direction,
					StopLoss:       plan.StopLoss,
					ProfitTarget:   plan.ProfitExit(),
				})
			}
		} else {
			price := candle.Close
			plan := policy.Stops(pos.EntryPrice)
			pos.HighestPrice = math.Max(pos.HighestPrice, price)

			// Trailing threshold follows the running high at the policy's
			// trailing ratio, but only arms once the high clears entry +2%.
			trailing := pos.HighestPrice * (plan.TrailingStop / pos.EntryPrice)
			armed := pos.HighestPrice > pos.EntryPrice*1.02

			var reason CloseReason
			switch {
			case price <= plan.StopLoss:
				reason = CloseStopLoss
			case price >= plan.ProfitExit():
				reason = CloseTakeProfit
			case price <= trailing && armed:
				reason = CloseTrailingStop
			}
			if reason != "" {
				capital += e.closePosition(&trades[len(trades)-1], pos, candle.Timestamp, price, reason)
				pos = nil
			}
		}

		curve = append(curve, EquityPoint{Timestamp: candle.Timestamp, Equity: capital})
	}

	// Data ran out while holding: force-close at the final price and let the
	// last equity point reflect the realization.
	if pos != nil {
		last := series.Last()
		capital += e.closePosition(&trades[len(trades)-1], pos, last.Timestamp, last.Close, CloseEndOfData)
		curve[len(curve)-1].Equity = capital
	}

	res := &Result{
		Trades:      trades,
		EquityCurve: curve,
	}
	res.Summary, res.Statistics = Analyze(initialCapital, trades, curve, e.cfg.Annualization)
	return res, nil
}

// closePosition finalizes the open trade record and returns the realized pnl.
func (e *Engine) closePosition(rec *TradeRecord, pos *Position, ts int64, price float64, reason CloseReason) float64 {
	pnl := PnL(pos.EntryPrice, price, pos.Size, pos.Direction)
	rec.Closed = true
	rec.CloseTimestamp = ts
	rec.ClosePrice = price
	rec.CloseReason = reason
	rec.PnL = pnl
	rec.HighestPrice = pos.HighestPrice
	rec.MaxProfitPct = (pos.HighestPrice - pos.EntryPrice) / pos.EntryPrice * 100
	return pnl
}

// PnL computes realized profit for a capital-notional position: the pnl
// scales with the price return, not with absolute price delta times units.
func PnL(entryPrice, closePrice, size float64, dir market.Direction) float64 {
	pnl := (closePrice - entryPrice) * size / entryPrice
	if dir == market.Short {
		return -pnl
	}
	return pnl
}
