package feed

import (
	"context"
	"reflect"
	"testing"
	"time"

	"odin/src/market"
)

func TestSyntheticIsDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	a, err := NewSynthetic(42).Candles(context.Background(), "BTC/USDT", "1h", start, end)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, err := NewSynthetic(42).Candles(context.Background(), "BTC/USDT", "1h", start, end)
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed must reproduce the same series")
	}

	c, err := NewSynthetic(43).Candles(context.Background(), "BTC/USDT", "1h", start, end)
	if err != nil {
		t.Fatalf("third generate failed: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Fatalf("different seeds must diverge")
	}
}

func TestSyntheticSeriesIsValid(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)

	series, err := NewSynthetic(1).Candles(context.Background(), "BTC/USDT", "1h", start, end)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(series) != 240 {
		t.Fatalf("10 days of hourly candles should be 240, got %d", len(series))
	}
	if err := market.ValidateSeries(series); err != nil {
		t.Fatalf("generated series must validate: %v", err)
	}
	step := market.TimeframeMillis("1h")
	for i, c := range series {
		if c.Timestamp != start.UnixMilli()+int64(i)*step {
			t.Fatalf("candle %d has timestamp %d off the hourly grid", i, c.Timestamp)
		}
	}
}

func TestSyntheticRejectsBadWindow(t *testing.T) {
	g := NewSynthetic(1)
	now := time.Now()
	if _, err := g.Candles(context.Background(), "BTC/USDT", "1h", now, now); err == nil {
		t.Fatalf("an empty window must be rejected")
	}
	if _, err := g.Candles(context.Background(), "BTC/USDT", "7m", now, now.Add(time.Hour)); err == nil {
		t.Fatalf("an unsupported timeframe must be rejected")
	}
}

func TestSyntheticTickers(t *testing.T) {
	a, err := NewSynthetic(5).Tickers(context.Background())
	if err != nil {
		t.Fatalf("tickers failed: %v", err)
	}
	b, _ := NewSynthetic(5).Tickers(context.Background())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("ticker snapshot must be deterministic per seed")
	}
	if len(a) != len(syntheticBases) {
		t.Fatalf("expected %d pairs, got %d", len(syntheticBases), len(a))
	}
	for _, tk := range a {
		if tk.Symbol == "" || tk.Last <= 0 || tk.QuoteVolume <= 0 {
			t.Fatalf("implausible ticker: %+v", tk)
		}
	}
}

func TestParseRowsAscendingDeduped(t *testing.T) {
	rows := [][]string{
		{"3000", "3", "4", "2", "3.5", "30"},
		{"2000", "2", "3", "1", "2.5", "20"},
		{"1000", "1", "2", "0.5", "1.5", "10"},
		{"2000", "2.1", "3.1", "1.1", "2.6", "21"}, // duplicate ts, later row wins
	}
	series, err := parseRows(rows)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 unique candles, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Timestamp <= series[i-1].Timestamp {
			t.Fatalf("series must be ascending")
		}
	}
	if series[1].Open != 2.1 {
		t.Fatalf("duplicate timestamps must keep the later row, got %+v", series[1])
	}
}

func TestParseRowsRejectsGarbage(t *testing.T) {
	if _, err := parseRows([][]string{{"nope", "1", "1", "1", "1", "1"}}); err == nil {
		t.Fatalf("bad timestamp must fail")
	}
	if _, err := parseRows([][]string{{"1000", "x", "1", "1", "1", "1"}}); err == nil {
		t.Fatalf("bad price must fail")
	}
}

func TestSymbolMapping(t *testing.T) {
	if InstID("BTC/USDT") != "BTC-USDT" {
		t.Fatalf("unexpected instId: %s", InstID("BTC/USDT"))
	}
	if Symbol("ETH-USDT") != "ETH/USDT" {
		t.Fatalf("unexpected symbol: %s", Symbol("ETH-USDT"))
	}
}

func TestBarParam(t *testing.T) {
	cases := map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m",
		"1h": "1H", "4h": "4H", "1d": "1D",
	}
	for tf, want := range cases {
		if got := barParam(tf); got != want {
			t.Fatalf("barParam(%s): expected %s, got %s", tf, want, got)
		}
	}
}
