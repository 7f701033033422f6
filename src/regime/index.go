package regime

// Market regime classification from SMA20/60/120 alignment, exactly as the
// universe scanner and the strategies consume it.

import (
	"fmt"

	"odin/src/indicator"
	"odin/src/market"
)

// MinBars is the shortest series Classify accepts: the longest SMA window.
const MinBars = 120

// Snapshot carries a classification together with the inputs that produced it.
type Snapshot struct {
	Regime market.Regime `json:"regime"`
	Close  float64       `json:"price"`
	SMA20  float64       `json:"sma20"`
	SMA60  float64       `json:"sma60"`
	SMA120 float64       `json:"sma120"`
}

// Classify labels the series UPTREND, DOWNTREND or SIDEWAYS from the last
// close against the last SMA20/60/120. Strict inequalities only: any tie
// falls through to SIDEWAYS. Fails with ErrInsufficientData below 120 candles.
func Classify(series market.Series) (market.Regime, error) {
	snap, err := Analyze(series)
	if err != nil {
		return "", err
	}
	return snap.Regime, nil
}

// Analyze is Classify plus the SMA values behind the decision.
func Analyze(series market.Series) (Snapshot, error) {
	if len(series) < MinBars {
		return Snapshot{}, fmt.Errorf("regime needs at least %d candles, got %d: %w", MinBars, len(series), market.ErrInsufficientData)
	}
	closes := series.Closes()
	sma20, _ := indicator.SMA(closes, 20).Last()
	sma60, _ := indicator.SMA(closes, 60).Last()
	sma120, _ := indicator.SMA(closes, 120).Last()
	close := closes[len(closes)-1]
	return Snapshot{
		Regime: label(close, sma20, sma60, sma120),
		Close:  close,
		SMA20:  sma20,
		SMA60:  sma60,
		SMA120: sma120,
	}, nil
}

func label(close, sma20, sma60, sma120 float64) market.Regime {
	switch {
	case close > sma20 && sma20 > sma60 && sma60 > sma120:
		return market.Uptrend
	case close < sma20 && sma20 < sma60 && sma60 < sma120:
		return market.Downtrend
	default:
		return market.Sideways
	}
}

// HistoryPoint is one per-candle classification in a regime history.
type HistoryPoint struct {
	Timestamp int64         `json:"ts"`
	Regime    market.Regime `json:"regime"`
	Close     float64       `json:"price"`
	SMA20     float64       `json:"sma20"`
	SMA60     float64       `json:"sma60"`
	SMA120    float64       `json:"sma120"`
}

// History classifies every index from MinBars on, one point per candle.
func History(series market.Series) ([]HistoryPoint, error) {
	if len(series) < MinBars {
		return nil, fmt.Errorf("regime history needs at least %d candles, got %d: %w", MinBars, len(series), market.ErrInsufficientData)
	}
	closes := series.Closes()
	sma20 := indicator.SMA(closes, 20)
	sma60 := indicator.SMA(closes, 60)
	sma120 := indicator.SMA(closes, 120)

	out := make([]HistoryPoint, 0, len(series)-MinBars)
	for i := MinBars; i < len(series); i++ {
		out = append(out, HistoryPoint{
			Timestamp: series[i].Timestamp,
			Regime:    label(closes[i], sma20[i].Value, sma60[i].Value, sma120[i].Value),
			Close:     closes[i],
			SMA20:     sma20[i].Value,
			SMA60:     sma60[i].Value,
			SMA120:    sma120[i].Value,
		})
	}
	return out, nil
}

// Stats aggregates how much of a history each regime occupied.
type Stats struct {
	Total     int           `json:"total_periods"`
	Uptrend   int           `json:"uptrend_periods"`
	Downtrend int           `json:"downtrend_periods"`
	Sideways  int           `json:"sideways_periods"`
	Current   market.Regime `json:"current_regime"`
}

// Summarize counts regimes across a history.
func Summarize(history []HistoryPoint) Stats {
	st := Stats{Total: len(history)}
	for _, h := range history {
		switch h.Regime {
		case market.Uptrend:
			st.Uptrend++
		case market.Downtrend:
			st.Downtrend++
		default:
			st.Sideways++
		}
	}
	if len(history) > 0 {
		st.Current = history[len(history)-1].Regime
	}
	return st
}
