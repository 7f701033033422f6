package strategy

// Trading policies: the capability set the simulation engine folds over a
// candle series, three concrete variants, and the id-keyed registry the API
// and job layer select them from.

import (
	"sort"

	"odin/src/indicator"
	"odin/src/market"
)

// StopPlan carries the exit thresholds a policy derives from its entry price.
// TrailingStop is a reference price (entry × trailing ratio); the engine
// rescales the same ratio by the running high while the position is open.
// A zero MaxProfitTarget means TakeProfit is the hard profit exit.
type StopPlan struct {
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	TrailingStop    float64 `json:"trailing_stop"`
	MaxProfitTarget float64 `json:"max_profit_target,omitempty"`
}

// ProfitExit returns the price at which the profit-target exit fires.
func (p StopPlan) ProfitExit() float64 {
	if p.MaxProfitTarget > 0 {
		return p.MaxProfitTarget
	}
	return p.TakeProfit
}

// Policy is the fixed capability set every strategy implements. Policies are
// stateless: all path-dependent quantities live in the engine.
type Policy interface {
	ID() string
	Name() string
	Description() string
	Params() map[string]any

	// MinBars is the minimum series length before EntrySignal may be asked.
	MinBars() int
	EntrySignal(series market.Series) bool
	Leverage(regime market.Regime) float64
	Stops(entryPrice float64) StopPlan
	EntryPrice(series market.Series) float64
	SizeRatio() float64
}

// ===================== Registry =====================

var registry = map[string]func() Policy{
	"momentum_v1":           func() Policy { return Momentum{} },
	"mean_reversion_v1":     func() Policy { return MeanReversion{} },
	"bollinger_breakout_v1": func() Policy { return BollingerBreakout{} },
}

// New looks a policy up by id. Unknown ids are a validation error.
func New(id string) (Policy, error) {
	ctor, ok := registry[id]
	if !ok {
		return nil, &market.ValidationError{Field: "strategy_id", Msg: "unknown strategy: " + id}
	}
	return ctor(), nil
}

// IDs lists the registered strategy ids in sorted order.
func IDs() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Info is the registry listing the strategies endpoint serves.
type Info struct {
	ID          string         `json:"strategy_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      map[string]any `json:"parameters"`
}

// List returns metadata for every registered policy.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, id := range IDs() {
		p, _ := New(id)
		out = append(out, Info{ID: p.ID(), Name: p.Name(), Description: p.Description(), Params: p.Params()})
	}
	return out
}

// ===================== Momentum =====================

// Momentum enters on oversold RSI while the short moving average still leads
// the long one.
type Momentum struct{}

func (Momentum) ID() string   { return "momentum_v1" }
func (Momentum) Name() string { return "Momentum v1" }
func (Momentum) Description() string {
	return "RSI oversold entry confirmed by SMA20 above SMA50"
}
func (Momentum) Params() map[string]any {
	return map[string]any{
		"rsi_period":     14,
		"rsi_overbought": 70,
		"rsi_oversold":   30,
		"sma_short":      20,
		"sma_long":       50,
	}
}
func (Momentum) MinBars() int { return 50 }

func (Momentum) EntrySignal(series market.Series) bool {
	if len(series) < 50 {
		return false
	}
	closes := series.Closes()
	rsi, ok := indicator.RSI(closes, 14).Last()
	if !ok {
		return false
	}
	smaShort, _ := indicator.SMA(closes, 20).Last()
	smaLong, _ := indicator.SMA(closes, 50).Last()
	return rsi < 30 && smaShort > smaLong
}

func (Momentum) Leverage(regime market.Regime) float64 {
	switch regime {
	case market.Uptrend:
		return 2.0
	case market.Downtrend:
		return 1.5
	default:
		return 1.0
	}
}

func (Momentum) Stops(entryPrice float64) StopPlan {
	return StopPlan{
		StopLoss:     entryPrice * 0.95,
		TakeProfit:   entryPrice * 1.15,
		TrailingStop: entryPrice * 0.98,
	}
}

func (Momentum) EntryPrice(series market.Series) float64 { return series.Last().Close }
func (Momentum) SizeRatio() float64                      { return 1.0 }

// ===================== Mean reversion =====================

// MeanReversion buys deep pullbacks to the lower Bollinger band.
type MeanReversion struct{}

func (MeanReversion) ID() string   { return "mean_reversion_v1" }
func (MeanReversion) Name() string { return "Mean Reversion v1" }
func (MeanReversion) Description() string {
	return "lower Bollinger band touch with deeply oversold RSI"
}
func (MeanReversion) Params() map[string]any {
	return map[string]any{
		"bb_period":      20,
		"bb_std":         2,
		"rsi_period":     14,
		"rsi_overbought": 80,
		"rsi_oversold":   20,
	}
}
func (MeanReversion) MinBars() int { return 20 }

func (MeanReversion) EntrySignal(series market.Series) bool {
	if len(series) < 20 {
		return false
	}
	closes := series.Closes()
	_, _, lower := indicator.Bollinger(closes, 20, 2)
	lo, ok := lower.Last()
	if !ok {
		return false
	}
	rsi, ok := indicator.RSI(closes, 14).Last()
	if !ok {
		return false
	}
	price := closes[len(closes)-1]
	return price <= lo*1.02 && rsi < 20
}

func (MeanReversion) Leverage(regime market.Regime) float64 {
	switch regime {
	case market.Uptrend:
		return 1.5
	case market.Downtrend:
		return 1.0
	default:
		return 2.0
	}
}

func (MeanReversion) Stops(entryPrice float64) StopPlan {
	return StopPlan{
		StopLoss:     entryPrice * 0.97,
		TakeProfit:   entryPrice * 1.10,
		TrailingStop: entryPrice * 0.99,
	}
}

func (MeanReversion) EntryPrice(series market.Series) float64 { return series.Last().Close }
func (MeanReversion) SizeRatio() float64                      { return 1.0 }

// ===================== Bollinger breakout =====================

// BollingerBreakout takes the hourly double-band breakout: the candle opens
// below the 20-band floor, its high clears the sum of the 20- and 80-band
// ceilings, and it still closes green. Entries are a partial position at a
// simulated limit fill slightly below the close.
type BollingerBreakout struct{}

func (BollingerBreakout) ID() string   { return "bollinger_breakout_v1" }
func (BollingerBreakout) Name() string { return "Bollinger Breakout v1" }
func (BollingerBreakout) Description() string {
	return "open below the 20-band floor, high through the combined 20+80 band ceiling, green close"
}
func (BollingerBreakout) Params() map[string]any {
	return map[string]any{
		"bb_20_period": 20,
		"bb_20_std":    2,
		"bb_80_period": 80,
		"bb_80_std":    2,
		"timeframe":    "1h",
	}
}
func (BollingerBreakout) MinBars() int { return 80 }

func (BollingerBreakout) EntrySignal(series market.Series) bool {
	if len(series) < 80 {
		return false
	}
	closes := series.Closes()
	upper20, _, lower20 := indicator.Bollinger(closes, 20, 2)
	upper80, _, _ := indicator.Bollinger(closes, 80, 2)

	lo20, ok := lower20.Last()
	if !ok {
		return false
	}
	up20, _ := upper20.Last()
	up80, ok := upper80.Last()
	if !ok {
		return false
	}

	c := series.Last()
	openedBelowFloor := c.Open < lo20
	brokeCombinedCeiling := c.High > up20+up80
	closedGreen := c.Close > c.Open
	return openedBelowFloor && brokeCombinedCeiling && closedGreen
}

func (BollingerBreakout) Leverage(regime market.Regime) float64 {
	switch regime {
	case market.Uptrend:
		return 1.5
	case market.Downtrend:
		return 1.0
	default:
		return 1.2
	}
}

func (BollingerBreakout) Stops(entryPrice float64) StopPlan {
	return StopPlan{
		StopLoss:        entryPrice * 0.97,
		TakeProfit:      entryPrice * 3.00,
		TrailingStop:    entryPrice * 0.985,
		MaxProfitTarget: entryPrice * 3.00,
	}
}

// EntryPrice simulates a limit fill on the next pullback: 0.5% below the
// breakout close.
func (BollingerBreakout) EntryPrice(series market.Series) float64 {
	return series.Last().Close * 0.995
}

func (BollingerBreakout) SizeRatio() float64 { return 0.30 }
