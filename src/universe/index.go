package universe

// Regime-aware instrument ranking over a ticker snapshot: two candidate lists
// (percent change and quote volume), a weighted rank score, and a long/short
// selection per regime.

import (
	"sort"
	"strings"

	"odin/src/market"
)

const (
	candidateWindow = 10
	selectTop       = 5
	changeWeight    = 0.6
	volumeWeight    = 0.4

	// DefaultQuoteSuffix keeps only the configured quote-currency pairs.
	DefaultQuoteSuffix = "/USDT"
)

// Pick is one selected instrument with its trade direction.
type Pick struct {
	Symbol    string           `json:"symbol"`
	Direction market.Direction `json:"direction"`
}

// Rank scores and ranks the snapshot for the given regime using the default
// quote filter.
func Rank(tickers []market.Ticker, regime market.Regime) []Pick {
	return RankQuote(tickers, regime, DefaultQuoteSuffix)
}

// RankQuote is Rank with an explicit quote-currency suffix filter.
//
// UPTREND selects up to 5 longs from the top gainers, DOWNTREND up to 5
// shorts from the top losers, SIDEWAYS up to 5 of each. When fewer than 10
// instruments exist on a side, the candidate window clips to what is
// available.
func RankQuote(tickers []market.Ticker, regime market.Regime, quoteSuffix string) []Pick {
	pairs := FilterQuote(tickers, quoteSuffix)

	byVolume := sortedByVolumeDesc(pairs)
	topVolume := head(byVolume, candidateWindow)

	switch regime {
	case market.Uptrend:
		topChange := head(sortedByChangeDesc(pairs), candidateWindow)
		return directed(head(weightedMerge(topChange, topVolume), selectTop), market.Long)

	case market.Downtrend:
		topChange := head(sortedByChangeAsc(pairs), candidateWindow)
		return directed(head(weightedMerge(topChange, topVolume), selectTop), market.Short)

	default: // SIDEWAYS
		byChange := sortedByChangeDesc(pairs)
		gainers := head(byChange, candidateWindow)
		losers := tail(byChange, candidateWindow)

		out := directed(head(weightedMerge(gainers, topVolume), selectTop), market.Long)
		return append(out, directed(head(weightedMerge(losers, topVolume), selectTop), market.Short)...)
	}
}

// weightedMerge assigns (10 − rank index) × weight per list an instrument
// appears in, merges by symbol and sorts descending by score. The sort is
// stable: ties keep first-encounter order.
func weightedMerge(changeList, volumeList []market.Ticker) []market.Ticker {
	type scored struct {
		ticker market.Ticker
		score  float64
	}
	index := make(map[string]int, len(changeList)+len(volumeList))
	var items []scored

	accrue := func(list []market.Ticker, weight float64) {
		for i, t := range list {
			pts := float64(candidateWindow-i) * weight
			if j, ok := index[t.Symbol]; ok {
				items[j].score += pts
				continue
			}
			index[t.Symbol] = len(items)
			items = append(items, scored{ticker: t, score: pts})
		}
	}
	accrue(changeList, changeWeight)
	accrue(volumeList, volumeWeight)

	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	out := make([]market.Ticker, len(items))
	for i, it := range items {
		out[i] = it.ticker
	}
	return out
}

// ===================== Snapshot views =====================

// FilterQuote keeps only pairs quoted in the given currency.
func FilterQuote(tickers []market.Ticker, quoteSuffix string) []market.Ticker {
	out := make([]market.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.Symbol, quoteSuffix) {
			out = append(out, t)
		}
	}
	return out
}

// TopGainers returns up to limit pairs by percent change descending.
func TopGainers(tickers []market.Ticker, quoteSuffix string, limit int) []market.Ticker {
	return head(sortedByChangeDesc(FilterQuote(tickers, quoteSuffix)), limit)
}

// TopLosers returns up to limit pairs by percent change ascending.
func TopLosers(tickers []market.Ticker, quoteSuffix string, limit int) []market.Ticker {
	return head(sortedByChangeAsc(FilterQuote(tickers, quoteSuffix)), limit)
}

// TopVolume returns up to limit pairs by quote volume descending.
func TopVolume(tickers []market.Ticker, quoteSuffix string, limit int) []market.Ticker {
	return head(sortedByVolumeDesc(FilterQuote(tickers, quoteSuffix)), limit)
}

// Breadth is the aggregate snapshot statistic the analysis endpoint reports.
type Breadth struct {
	TotalPairs    int     `json:"total_pairs"`
	Gainers       int     `json:"gainers"`
	Losers        int     `json:"losers"`
	Unchanged     int     `json:"unchanged"`
	AvgChangePct  float64 `json:"average_change_pct"`
	TotalVolume   float64 `json:"total_volume"`
	AverageVolume float64 `json:"average_volume"`
}

// Analyze computes breadth statistics over the filtered snapshot.
func Analyze(tickers []market.Ticker, quoteSuffix string) Breadth {
	pairs := FilterQuote(tickers, quoteSuffix)
	b := Breadth{TotalPairs: len(pairs)}
	for _, t := range pairs {
		switch {
		case t.ChangePct > 0:
			b.Gainers++
		case t.ChangePct < 0:
			b.Losers++
		default:
			b.Unchanged++
		}
		b.AvgChangePct += t.ChangePct
		b.TotalVolume += t.QuoteVolume
	}
	if len(pairs) > 0 {
		b.AvgChangePct /= float64(len(pairs))
		b.AverageVolume = b.TotalVolume / float64(len(pairs))
	}
	return b
}

// ===================== Helpers =====================

func sortedByChangeDesc(in []market.Ticker) []market.Ticker {
	out := append([]market.Ticker(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePct > out[j].ChangePct })
	return out
}

func sortedByChangeAsc(in []market.Ticker) []market.Ticker {
	out := append([]market.Ticker(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePct < out[j].ChangePct })
	return out
}

func sortedByVolumeDesc(in []market.Ticker) []market.Ticker {
	out := append([]market.Ticker(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].QuoteVolume > out[j].QuoteVolume })
	return out
}

func head(in []market.Ticker, n int) []market.Ticker {
	if len(in) <= n {
		return in
	}
	return in[:n]
}

// tail keeps the last n entries in their existing order.
func tail(in []market.Ticker, n int) []market.Ticker {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}

func directed(in []market.Ticker, dir market.Direction) []Pick {
	out := make([]Pick, len(in))
	for i, t := range in {
		out[i] = Pick{Symbol: t.Symbol, Direction: dir}
	}
	return out
}
