package market

// Shared market data types for the whole engine: candles, ticker snapshots,
// regime labels and the sentinel errors every layer reports through.

import (
	"errors"
	"fmt"
	"strings"
)

// ===================== Errors =====================

// ErrInsufficientData is returned whenever a series is shorter than a
// component's minimum lookback. Callers must not retry with the same input.
var ErrInsufficientData = errors.New("insufficient data")

// ValidationError rejects a malformed request before any simulation state
// is created.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// ===================== Candles =====================

// Candle is a single OHLCV bar. Prices are > 0 and volume >= 0 for any
// candle accepted through ValidateSeries.
type Candle struct {
	Timestamp int64   `json:"ts"` // Unix ms
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Series is an ordered candle sequence with strictly increasing timestamps.
type Series []Candle

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Last returns the final candle. The caller guarantees len(s) > 0.
func (s Series) Last() Candle { return s[len(s)-1] }

// ValidateSeries checks the series invariant: strictly increasing timestamps,
// positive OHLC, non-negative volume. A violation is a caller error.
func ValidateSeries(s Series) error {
	for i, c := range s {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return &ValidationError{Field: "series", Msg: fmt.Sprintf("non-positive price at index %d", i)}
		}
		if c.Volume < 0 {
			return &ValidationError{Field: "series", Msg: fmt.Sprintf("negative volume at index %d", i)}
		}
		if i > 0 && c.Timestamp <= s[i-1].Timestamp {
			return &ValidationError{Field: "series", Msg: fmt.Sprintf("timestamp not increasing at index %d", i)}
		}
	}
	return nil
}

// ===================== Tickers =====================

// Ticker is one instrument's 24h snapshot as fed to the universe ranker.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	ChangePct   float64 `json:"change_pct"`
	QuoteVolume float64 `json:"quote_volume"`
	Last        float64 `json:"last"`
}

// ===================== Regime =====================

// Regime is the classified market trend state.
type Regime string

const (
	Uptrend   Regime = "UPTREND"
	Downtrend Regime = "DOWNTREND"
	Sideways  Regime = "SIDEWAYS"
)

// Direction of a ranked instrument or open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ===================== Timeframes =====================

// periodsPerDay maps a timeframe to how many candles make up one day; the
// square root of this is the Sharpe annualization factor for that timeframe.
var periodsPerDay = map[string]float64{
	"1m":  1440,
	"5m":  288,
	"15m": 96,
	"30m": 48,
	"1h":  24,
	"4h":  6,
	"1d":  1,
}

// ValidTimeframe reports whether tf is a supported candle period.
func ValidTimeframe(tf string) bool {
	_, ok := periodsPerDay[strings.ToLower(tf)]
	return ok
}

// AnnualizationFactor returns the per-timeframe factor used by the Sharpe
// calculation (24 for hourly candles). Unknown timeframes fall back to hourly.
func AnnualizationFactor(tf string) float64 {
	if v, ok := periodsPerDay[strings.ToLower(tf)]; ok {
		return v
	}
	return 24
}

// TimeframeMillis returns the candle period in Unix milliseconds, or zero for
// an unsupported timeframe.
func TimeframeMillis(tf string) int64 {
	if v, ok := periodsPerDay[strings.ToLower(tf)]; ok {
		return int64(24 * 60 * 60 * 1000 / v)
	}
	return 0
}
