package universe

import (
	"fmt"
	"testing"

	"odin/src/market"
)

// snapshot builds n /USDT pairs where pair i has change (n-i)% and volume
// rising with i, so change leaders and volume leaders are opposite ends.
func snapshot(n int) []market.Ticker {
	out := make([]market.Ticker, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Ticker{
			Symbol:      fmt.Sprintf("C%02d/USDT", i),
			ChangePct:   float64(n - i),
			QuoteVolume: float64((i + 1) * 1000),
			Last:        100,
		})
	}
	return out
}

func TestRankUptrendSelectsLongs(t *testing.T) {
	picks := Rank(snapshot(30), market.Uptrend)
	if len(picks) != 5 {
		t.Fatalf("expected 5 picks, got %d", len(picks))
	}
	for _, p := range picks {
		if p.Direction != market.Long {
			t.Fatalf("uptrend must only go long, got %s for %s", p.Direction, p.Symbol)
		}
	}
	// top gainer carries the maximum change score and must rank first
	if picks[0].Symbol != "C00/USDT" {
		t.Fatalf("expected the top gainer first, got %s", picks[0].Symbol)
	}
}

func TestRankDowntrendSelectsShorts(t *testing.T) {
	picks := Rank(snapshot(30), market.Downtrend)
	if len(picks) != 5 {
		t.Fatalf("expected 5 picks, got %d", len(picks))
	}
	for _, p := range picks {
		if p.Direction != market.Short {
			t.Fatalf("downtrend must only go short, got %s for %s", p.Direction, p.Symbol)
		}
	}
	// the worst performer also has the top volume here, so it leads both lists
	if picks[0].Symbol != "C29/USDT" {
		t.Fatalf("expected the top loser first, got %s", picks[0].Symbol)
	}
}

func TestRankSidewaysSplitsBothWays(t *testing.T) {
	picks := Rank(snapshot(30), market.Sideways)
	if len(picks) != 10 {
		t.Fatalf("expected 5 longs + 5 shorts, got %d", len(picks))
	}
	for i, p := range picks {
		want := market.Long
		if i >= 5 {
			want = market.Short
		}
		if p.Direction != want {
			t.Fatalf("pick %d: expected %s, got %s", i, want, p.Direction)
		}
	}
}

func TestRankClipsSmallUniverse(t *testing.T) {
	picks := Rank(snapshot(3), market.Uptrend)
	if len(picks) != 3 {
		t.Fatalf("3 candidates cannot yield more than 3 picks, got %d", len(picks))
	}
}

func TestRankIgnoresOtherQuotes(t *testing.T) {
	tickers := append(snapshot(10), market.Ticker{
		Symbol: "BTC/EUR", ChangePct: 1000, QuoteVolume: 1e12,
	})
	for _, p := range Rank(tickers, market.Uptrend) {
		if p.Symbol == "BTC/EUR" {
			t.Fatalf("non-USDT pair must be filtered out")
		}
	}
}

func TestWeightedMergeScoring(t *testing.T) {
	a := market.Ticker{Symbol: "A/USDT"}
	b := market.Ticker{Symbol: "B/USDT"}
	c := market.Ticker{Symbol: "C/USDT"}

	// A: change rank 0 (6.0) + volume rank 1 (3.6) = 9.6
	// B: change rank 1 (5.4)                       = 5.4
	// C: volume rank 0 (4.0)                       = 4.0
	merged := weightedMerge([]market.Ticker{a, b}, []market.Ticker{c, a})
	want := []string{"A/USDT", "B/USDT", "C/USDT"}
	if len(merged) != len(want) {
		t.Fatalf("expected %d merged entries, got %d", len(want), len(merged))
	}
	for i, sym := range want {
		if merged[i].Symbol != sym {
			t.Fatalf("position %d: expected %s, got %s", i, sym, merged[i].Symbol)
		}
	}
}

func TestTopGainersLosersVolume(t *testing.T) {
	tickers := snapshot(20)
	gainers := TopGainers(tickers, DefaultQuoteSuffix, 3)
	if len(gainers) != 3 || gainers[0].Symbol != "C00/USDT" {
		t.Fatalf("unexpected gainers: %+v", gainers)
	}
	losers := TopLosers(tickers, DefaultQuoteSuffix, 3)
	if len(losers) != 3 || losers[0].Symbol != "C19/USDT" {
		t.Fatalf("unexpected losers: %+v", losers)
	}
	volume := TopVolume(tickers, DefaultQuoteSuffix, 3)
	if len(volume) != 3 || volume[0].Symbol != "C19/USDT" {
		t.Fatalf("unexpected volume leaders: %+v", volume)
	}
}

func TestAnalyzeBreadth(t *testing.T) {
	tickers := []market.Ticker{
		{Symbol: "A/USDT", ChangePct: 2, QuoteVolume: 100},
		{Symbol: "B/USDT", ChangePct: -1, QuoteVolume: 300},
		{Symbol: "C/USDT", ChangePct: 0, QuoteVolume: 200},
		{Symbol: "D/BTC", ChangePct: 50, QuoteVolume: 1e9},
	}
	b := Analyze(tickers, DefaultQuoteSuffix)
	if b.TotalPairs != 3 || b.Gainers != 1 || b.Losers != 1 || b.Unchanged != 1 {
		t.Fatalf("unexpected breadth: %+v", b)
	}
	if b.TotalVolume != 600 || b.AverageVolume != 200 {
		t.Fatalf("unexpected volume stats: %+v", b)
	}
}
