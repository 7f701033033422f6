package sim

// Performance statistics over a finished run's ledger and equity curve. The
// formulas are fixed conventions downstream consumers rely on: the drawdown is
// the whole-curve range, not a running peak-to-trough, and a run with no
// losing trades reports profit factor 0.

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary is the headline block of a simulation result.
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	WinRatePct     float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	MaxDrawdownPct float64 `json:"max_drawdown"`
}

// Statistics is the secondary block of a simulation result.
type Statistics struct {
	SharpeRatio  float64 `json:"sharpe_ratio"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

// Analyze derives the summary and statistics blocks. annualization is the
// candles-per-day factor for the given timeframe (24 for hourly).
func Analyze(initialCapital float64, trades []TradeRecord, curve []EquityPoint, annualization float64) (Summary, Statistics) {
	var (
		totalTrades int
		winning     int
		totalPnL    float64
		grossWin    float64
		grossLoss   float64
	)
	for _, t := range trades {
		if t.Closed {
			totalTrades++
		}
		totalPnL += t.PnL
		switch {
		case t.PnL > 0:
			winning++
			grossWin += t.PnL
		case t.PnL < 0:
			grossLoss += t.PnL
		}
	}

	s := Summary{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital + totalPnL,
		TotalTrades:    totalTrades,
		WinningTrades:  winning,
		TotalPnL:       totalPnL,
	}
	s.TotalReturnPct = (s.FinalCapital - initialCapital) / initialCapital * 100
	if totalTrades > 0 {
		s.WinRatePct = float64(winning) / float64(totalTrades) * 100
	}
	s.MaxDrawdownPct = rangeDrawdown(curve)

	st := Statistics{}
	st.SharpeRatio = sharpe(curve, annualization)
	if grossLoss != 0 {
		st.ProfitFactor = grossWin / math.Abs(grossLoss)
	}
	if winning > 0 {
		st.AvgWin = grossWin / float64(winning)
	}
	// The loss denominator counts every non-winning closed trade, zero-pnl
	// trades included.
	if losing := totalTrades - winning; losing > 0 {
		st.AvgLoss = grossLoss / float64(losing)
	}
	return s, st
}

// rangeDrawdown is (max(equity) − min(equity)) / max(equity) × 100 across the
// whole curve.
func rangeDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	maxEq := curve[0].Equity
	minEq := curve[0].Equity
	for _, p := range curve[1:] {
		if p.Equity > maxEq {
			maxEq = p.Equity
		}
		if p.Equity < minEq {
			minEq = p.Equity
		}
	}
	if maxEq <= 0 {
		return 0
	}
	return (maxEq - minEq) / maxEq * 100
}

// sharpe annualizes the mean over the population standard deviation of
// consecutive equity percent changes. Zero when there are no returns or no
// variance.
func sharpe(curve []EquityPoint, annualization float64) float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev > 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}
	sd := stat.PopStdDev(returns, nil)
	if sd == 0 {
		return 0
	}
	return stat.Mean(returns, nil) / sd * math.Sqrt(annualization)
}
