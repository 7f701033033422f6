package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"odin/src/market"
)

//////////////////////////////////////////////////////////////////////
// ========================= synthetic source ============================ //
//////////////////////////////////////////////////////////////////////

// Synthetic produces a deterministic OHLCV series from a fixed seed. The
// same seed, timeframe and window always yield byte-identical candles, so
// simulations replayed against it are reproducible.
type Synthetic struct {
	Seed      int64
	BasePrice float64 // defaults to 50000
	Drift     float64 // total relative drift across the window, defaults to 0.2
	Noise     float64 // per-candle noise stddev as a fraction of price, defaults to 0.02
}

func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{Seed: seed, BasePrice: 50000, Drift: 0.2, Noise: 0.02}
}

func (g *Synthetic) Candles(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := market.TimeframeMillis(timeframe)
	if step <= 0 {
		return nil, &market.ValidationError{Field: "timeframe", Msg: "unsupported timeframe: " + timeframe}
	}
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	if endMs <= startMs {
		return nil, &market.ValidationError{Field: "end", Msg: "end must be after start"}
	}
	n := int((endMs - startMs) / step)
	if n < 2 {
		n = 2
	}

	base := g.BasePrice
	if base <= 0 {
		base = 50000
	}
	drift := g.Drift
	noise := g.Noise
	if noise <= 0 {
		noise = 0.02
	}

	rng := rand.New(rand.NewSource(g.Seed))
	series := make(market.Series, 0, n)
	prevClose := base
	for i := 0; i < n; i++ {
		// linear trend plus gaussian noise around the base price
		trend := base * drift * float64(i) / float64(n-1)
		price := base + trend + rng.NormFloat64()*base*noise
		if price < base*0.1 {
			price = base * 0.1
		}

		open := prevClose
		if i == 0 {
			open = price * (1 + rng.NormFloat64()*0.002)
		}
		closeP := price
		span := math.Abs(rng.NormFloat64()) * base * noise * 0.5
		high := math.Max(open, closeP) + span
		low := math.Min(open, closeP) - span
		if low <= 0 {
			low = math.Min(open, closeP) * 0.99
		}

		series = append(series, market.Candle{
			Timestamp: startMs + int64(i)*step,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    100 + rng.Float64()*900,
		})
		prevClose = closeP
	}
	return series, nil
}

var syntheticBases = []string{
	"BTC", "ETH", "SOL", "XRP", "DOGE", "ADA", "AVAX", "LINK", "DOT", "TON",
	"SUI", "APT", "ARB", "OP", "NEAR", "ATOM", "FIL", "LTC", "BCH", "UNI",
}

// Tickers produces a deterministic 24h snapshot for a fixed basket of
// quote pairs, seeded the same way as the candle generator.
func (g *Synthetic) Tickers(ctx context.Context) ([]market.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(g.Seed + 1))
	out := make([]market.Ticker, 0, len(syntheticBases))
	for i, base := range syntheticBases {
		last := 10 + rng.Float64()*60000/float64(i+1)
		out = append(out, market.Ticker{
			Symbol:      base + "/USDT",
			ChangePct:   rng.NormFloat64() * 5,
			QuoteVolume: 1e6 + rng.Float64()*5e8,
			Last:        last,
		})
	}
	return out, nil
}

//////////////////////////////////////////////////////////////////////
// ========================= REST source =========================== //
//////////////////////////////////////////////////////////////////////

const (
	DefaultBaseURL = "https://www.okx.com"

	maxPerCandles = 300
	requestPause  = 120 * time.Millisecond
)

// Client fetches market data over the exchange's public REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type restEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	api := c.baseURL + path
	if len(query) > 0 {
		api += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status=%d body=%s", path, resp.StatusCode, string(b))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env restEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if env.Code != "0" {
		return fmt.Errorf("api error %s: code=%s msg=%s", path, env.Code, env.Msg)
	}
	return json.Unmarshal(env.Data, out)
}

// Candles pulls the [start,end) window in pages of maxPerCandles, newest
// first on the wire, and returns them ascending with duplicates dropped.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error) {
	instID := InstID(symbol)
	bar := barParam(timeframe)
	startMs := start.UnixMilli()

	var rows [][]string
	after := strconv.FormatInt(end.UnixMilli(), 10)
	for {
		q := url.Values{}
		q.Set("instId", instID)
		q.Set("bar", bar)
		q.Set("limit", strconv.Itoa(maxPerCandles))
		q.Set("after", after)

		var page [][]string
		if err := c.get(ctx, "/api/v5/market/candles", q, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		rows = append(rows, page...)
		oldest := page[len(page)-1][0]
		ts, err := strconv.ParseInt(oldest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle timestamp %q: %w", oldest, err)
		}
		if ts <= startMs || len(page) < maxPerCandles {
			break
		}
		after = oldest
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(requestPause):
		}
	}

	series, err := parseRows(rows)
	if err != nil {
		return nil, err
	}
	// trim to the requested window
	endMs := end.UnixMilli()
	out := series[:0]
	for _, cd := range series {
		if cd.Timestamp >= startMs && cd.Timestamp < endMs {
			out = append(out, cd)
		}
	}
	return out, nil
}

// parseRows converts raw exchange rows (newest first) into an ascending,
// de-duplicated series. Later rows win on timestamp collisions.
func parseRows(rows [][]string) (market.Series, error) {
	seen := make(map[int64]market.Candle, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle timestamp %q: %w", row[0], err)
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("candle field %q: %w", row[i+1], err)
			}
			vals[i] = v
		}
		seen[ts] = market.Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		}
	}
	series := make(market.Series, 0, len(seen))
	for _, cd := range seen {
		series = append(series, cd)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp < series[j].Timestamp })
	return series, nil
}

type restTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	VolCcy24h string `json:"volCcy24h"`
}

// Tickers returns the 24h spot snapshot as ranking inputs. Change is
// derived from last vs open24h; quote volume comes straight through.
func (c *Client) Tickers(ctx context.Context) ([]market.Ticker, error) {
	q := url.Values{}
	q.Set("instType", "SPOT")
	var raw []restTicker
	if err := c.get(ctx, "/api/v5/market/tickers", q, &raw); err != nil {
		return nil, err
	}
	out := make([]market.Ticker, 0, len(raw))
	for _, t := range raw {
		last, err1 := strconv.ParseFloat(t.Last, 64)
		open, err2 := strconv.ParseFloat(t.Open24h, 64)
		vol, err3 := strconv.ParseFloat(t.VolCcy24h, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		change := 0.0
		if open > 0 {
			change = (last - open) / open * 100
		}
		out = append(out, market.Ticker{
			Symbol:      Symbol(t.InstID),
			ChangePct:   change,
			QuoteVolume: vol,
			Last:        last,
		})
	}
	return out, nil
}

// InstID maps "BTC/USDT" to the exchange's "BTC-USDT" form.
func InstID(symbol string) string { return strings.ReplaceAll(symbol, "/", "-") }

// Symbol maps "BTC-USDT" back to "BTC/USDT".
func Symbol(instID string) string { return strings.ReplaceAll(instID, "-", "/") }

func barParam(timeframe string) string {
	switch timeframe {
	case "1h", "2h", "4h":
		return strings.ToUpper(timeframe[:len(timeframe)-1]) + "H"
	case "1d":
		return "1D"
	default:
		return timeframe
	}
}

//////////////////////////////////////////////////////////////////////
// ========================= websocket stream =========================== //
//////////////////////////////////////////////////////////////////////

const (
	DefaultWSURL = "wss://ws.okx.com:8443/ws/v5/public"

	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsMaxBackoff   = 30 * time.Second
)

// TickerHandler receives each ticker update pushed over the stream.
type TickerHandler func(market.Ticker)

// Stream keeps a public websocket subscription alive: it pings, refreshes
// read deadlines, and reconnects with growing backoff, resubscribing the
// tracked instruments after each reconnect.
type Stream struct {
	url     string
	handler TickerHandler

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	subs    map[string]struct{}

	cache sync.Map // instID -> market.Ticker

	done     chan struct{}
	stopOnce sync.Once
}

func NewStream(wsURL string, handler TickerHandler) *Stream {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Stream{
		url:     wsURL,
		handler: handler,
		subs:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe connects on first use and registers ticker subscriptions for
// the given symbols ("BTC/USDT" form).
func (s *Stream) Subscribe(symbols []string) error {
	s.mu.Lock()
	if s.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("dial %s: %w", s.url, err)
		}
		s.conn = conn
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})
		go s.readLoop(conn)
		go s.keepAlive(conn)
	}
	args := make([]map[string]string, 0, len(symbols))
	for _, sym := range symbols {
		id := InstID(sym)
		s.subs[id] = struct{}{}
		args = append(args, map[string]string{"channel": "tickers", "instId": id})
	}
	s.mu.Unlock()
	return s.writeJSON(map[string]any{"op": "subscribe", "args": args})
}

// Ticker returns the last cached update for a symbol.
func (s *Stream) Ticker(symbol string) (market.Ticker, bool) {
	v, ok := s.cache.Load(InstID(symbol))
	if !ok {
		return market.Ticker{}, false
	}
	return v.(market.Ticker), true
}

func (s *Stream) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
	})
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return conn.WriteJSON(v)
}

func (s *Stream) keepAlive(conn *websocket.Conn) {
	t := time.NewTicker(wsPingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

type wsPush struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []restTicker `json:"data"`
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.reconnect()
			return
		}
		var msg wsPush
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event != "" {
			continue
		}
		if msg.Arg.Channel != "tickers" {
			continue
		}
		for _, t := range msg.Data {
			last, err1 := strconv.ParseFloat(t.Last, 64)
			open, err2 := strconv.ParseFloat(t.Open24h, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			vol, _ := strconv.ParseFloat(t.VolCcy24h, 64)
			change := 0.0
			if open > 0 {
				change = (last - open) / open * 100
			}
			tk := market.Ticker{
				Symbol:      Symbol(t.InstID),
				ChangePct:   change,
				QuoteVolume: vol,
				Last:        last,
			}
			s.cache.Store(t.InstID, tk)
			if s.handler != nil {
				s.handler(tk)
			}
		}
	}
}

func (s *Stream) reconnect() {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}
		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			log.Printf("stream reconnect %d failed: %v", attempt, err)
			backoff += time.Second
			if backoff > wsMaxBackoff {
				backoff = wsMaxBackoff
			}
			continue
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		ids := make([]string, 0, len(s.subs))
		for id := range s.subs {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		go s.readLoop(conn)
		go s.keepAlive(conn)

		if len(ids) > 0 {
			args := make([]map[string]string, 0, len(ids))
			for _, id := range ids {
				args = append(args, map[string]string{"channel": "tickers", "instId": id})
			}
			if err := s.writeJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
				log.Printf("stream resubscribe failed: %v", err)
				continue
			}
		}
		log.Printf("stream reconnected after %d attempts", attempt)
		return
	}
}
