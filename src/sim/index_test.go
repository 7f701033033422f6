package sim

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"odin/src/market"
	"odin/src/strategy"
)

// scriptPolicy enters whenever the window reaches one of the listed lengths,
// with a fixed stop geometry relative to the entry price.
type scriptPolicy struct {
	minBars  int
	entryAt  map[int]bool
	stopLoss float64 // ratios applied to the entry price
	profit   float64
	trailing float64
	size     float64
}

func (p scriptPolicy) ID() string                     { return "script" }
func (p scriptPolicy) Name() string                   { return "Script" }
func (p scriptPolicy) Description() string            { return "scenario driver" }
func (p scriptPolicy) Params() map[string]any         { return map[string]any{} }
func (p scriptPolicy) MinBars() int                   { return p.minBars }
func (p scriptPolicy) SizeRatio() float64             { return p.size }
func (p scriptPolicy) Leverage(market.Regime) float64 { return 1 }

func (p scriptPolicy) EntrySignal(series market.Series) bool {
	return p.entryAt[len(series)]
}

func (p scriptPolicy) EntryPrice(series market.Series) float64 {
	return series.Last().Close
}

func (p scriptPolicy) Stops(entryPrice float64) strategy.StopPlan {
	return strategy.StopPlan{
		StopLoss:     entryPrice * p.stopLoss,
		TakeProfit:   entryPrice * p.profit,
		TrailingStop: entryPrice * p.trailing,
	}
}

func closesSeries(closes ...float64) market.Series {
	out := make(market.Series, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Timestamp: int64(i) * 3_600_000,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	return out
}

func basePolicy() scriptPolicy {
	return scriptPolicy{
		minBars:  2,
		entryAt:  map[int]bool{3: true},
		stopLoss: 0.95,
		profit:   1.15,
		trailing: 0.98,
		size:     1.0,
	}
}

func TestRunStopLoss(t *testing.T) {
	series := closesSeries(100, 100, 100, 94)
	res, err := New(Config{}).Run(context.Background(), basePolicy(), series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if !tr.Closed || tr.CloseReason != CloseStopLoss {
		t.Fatalf("expected a stop loss close, got %+v", tr)
	}
	if math.Abs(tr.PnL-(-60)) > 1e-9 {
		t.Fatalf("expected pnl -60, got %v", tr.PnL)
	}
	if math.Abs(res.Summary.FinalCapital-940) > 1e-9 {
		t.Fatalf("expected final capital 940, got %v", res.Summary.FinalCapital)
	}
}

func TestRunTakeProfit(t *testing.T) {
	series := closesSeries(100, 100, 100, 120)
	res, err := New(Config{}).Run(context.Background(), basePolicy(), series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if tr.CloseReason != CloseTakeProfit {
		t.Fatalf("expected take profit, got %s", tr.CloseReason)
	}
	if math.Abs(tr.PnL-200) > 1e-9 {
		t.Fatalf("expected pnl 200, got %v", tr.PnL)
	}
}

func TestRunTrailingStop(t *testing.T) {
	p := basePolicy()
	p.stopLoss = 0.50
	p.profit = 10.0
	series := closesSeries(100, 100, 100, 150, 147)
	res, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if tr.CloseReason != CloseTrailingStop {
		t.Fatalf("expected a trailing stop, got %s", tr.CloseReason)
	}
	// peak 150, trailing threshold 150×0.98 = 147, realized at 147
	if math.Abs(tr.PnL-470) > 1e-9 {
		t.Fatalf("expected pnl 470, got %v", tr.PnL)
	}
	if tr.HighestPrice != 150 {
		t.Fatalf("expected recorded peak 150, got %v", tr.HighestPrice)
	}
	if math.Abs(tr.MaxProfitPct-50) > 1e-9 {
		t.Fatalf("expected max profit 50%%, got %v", tr.MaxProfitPct)
	}
}

func TestTrailingNotArmedBelowThreshold(t *testing.T) {
	p := basePolicy()
	p.stopLoss = 0.50
	p.profit = 10.0
	// the peak never clears entry +2%, so the pullback must not trail out
	series := closesSeries(100, 100, 100, 101.5, 99)
	res, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if tr.CloseReason != CloseEndOfData {
		t.Fatalf("unarmed trailing must hold to the end, got %s", tr.CloseReason)
	}
}

func TestRunEndOfDataOverwritesFinalEquity(t *testing.T) {
	p := basePolicy()
	p.profit = 10.0
	series := closesSeries(100, 100, 100, 101)
	res, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if tr.CloseReason != CloseEndOfData || math.Abs(tr.PnL-10) > 1e-9 {
		t.Fatalf("expected forced close with pnl 10, got %+v", tr)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if math.Abs(last.Equity-1010) > 1e-9 {
		t.Fatalf("final equity point must include the forced close, got %v", last.Equity)
	}
}

func TestEntryCandleDoesNotExit(t *testing.T) {
	// exits are never evaluated on the entry candle; a flat tail then holds
	// the position to the end of the data
	series := closesSeries(100, 100, 100, 100)
	res, err := New(Config{}).Run(context.Background(), basePolicy(), series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if tr.CloseReason != CloseEndOfData {
		t.Fatalf("flat follow-up must not trigger a stop, got %s", tr.CloseReason)
	}
}

func TestEquityCurveShape(t *testing.T) {
	series := closesSeries(100, 100, 100, 94, 100, 100)
	res, err := New(Config{}).Run(context.Background(), basePolicy(), series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.EquityCurve) != len(series)-2 {
		t.Fatalf("expected one equity point per simulated candle, got %d", len(res.EquityCurve))
	}
	// equity is flat while holding, drops at the stop, then stays put
	wants := []float64{1000, 940, 940, 940}
	for i, w := range wants {
		if math.Abs(res.EquityCurve[i].Equity-w) > 1e-9 {
			t.Fatalf("equity point %d: expected %v, got %v", i, w, res.EquityCurve[i].Equity)
		}
	}
}

func TestPartialSizeRatio(t *testing.T) {
	p := basePolicy()
	p.size = 0.30
	series := closesSeries(100, 100, 100, 94)
	res, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tr := res.Trades[0]
	if math.Abs(tr.Size-300) > 1e-9 {
		t.Fatalf("expected a 300 position, got %v", tr.Size)
	}
	if math.Abs(tr.PnL-(-18)) > 1e-9 {
		t.Fatalf("expected pnl -18, got %v", tr.PnL)
	}
}

func TestRunRejectsShortSeries(t *testing.T) {
	p := basePolicy()
	p.minBars = 10
	_, err := New(Config{}).Run(context.Background(), p, closesSeries(100, 100, 100), 1000)
	if !errors.Is(err, market.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRunRejectsBadCapital(t *testing.T) {
	_, err := New(Config{}).Run(context.Background(), basePolicy(), closesSeries(100, 100, 100), 0)
	var verr *market.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Run(ctx, basePolicy(), closesSeries(100, 100, 100), 1000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	series := closesSeries(100, 100, 100, 150, 147, 100, 100, 120)
	p := basePolicy()
	p.entryAt = map[int]bool{3: true, 7: true}
	a, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	b, err := New(Config{}).Run(context.Background(), p, series, 1000)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical inputs must produce identical results")
	}
}

func TestPnLShortNegates(t *testing.T) {
	long := PnL(100, 110, 1000, market.Long)
	short := PnL(100, 110, 1000, market.Short)
	if long != 100 || short != -100 {
		t.Fatalf("expected mirrored pnl, got long=%v short=%v", long, short)
	}
}
