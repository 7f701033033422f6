package storage

// File-backed persistence: candle series as CSV snapshots and finished
// backtest results as rotating JSON Lines. The simulation core never touches
// this layer; the CLI and the job sink do.

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"odin/src/market"
)

// ===================== Candle CSV =====================

var csvHeader = []string{"ts", "open", "high", "low", "close", "volume"}

// LoadCandlesCSV reads an ordered candle series from a CSV file with a
// ts,open,high,low,close,volume header. Timestamps are Unix milliseconds.
func LoadCandlesCSV(path string) (market.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candle file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("candle file %s is empty", path)
	}

	start := 0
	if rows[0][0] == csvHeader[0] {
		start = 1
	}
	series := make(market.Series, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("candle file %s: row %d has %d columns, want 6", path, i+1, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle file %s: row %d: bad timestamp: %w", path, i+1, err)
		}
		vals := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("candle file %s: row %d: bad %s: %w", path, i+1, csvHeader[j+1], err)
			}
			vals[j] = v
		}
		series = append(series, market.Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if err := market.ValidateSeries(series); err != nil {
		return nil, fmt.Errorf("candle file %s: %w", path, err)
	}
	return series, nil
}

// SaveCandlesCSV writes the series as a CSV snapshot, header included.
func SaveCandlesCSV(path string, series market.Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range series {
		row := []string{
			strconv.FormatInt(c.Timestamp, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ===================== Result log (JSONL) =====================

// LogConfig tunes the result logger.
type LogConfig struct {
	DataDir        string // defaults to ./data
	Filename       string // base name, defaults to results.jsonl
	RotateDaily    bool
	RotateMaxBytes int64 // 0 disables size rotation
}

func (c *LogConfig) withDefaults() LogConfig {
	q := *c
	if q.DataDir == "" {
		q.DataDir = "./data"
	}
	if q.Filename == "" {
		q.Filename = "results.jsonl"
	}
	return q
}

// ResultLogger appends JSON records one per line, rotating on date change and
// on size. Safe for concurrent use.
type ResultLogger struct {
	cfg LogConfig

	mu      sync.Mutex
	file    *os.File
	size    int64
	curDate string
}

func NewResultLogger(cfg LogConfig) *ResultLogger {
	c := cfg.withDefaults()
	_ = os.MkdirAll(c.DataDir, 0o755)
	return &ResultLogger{cfg: c}
}

// Append writes one record as a JSON line.
func (l *ResultLogger) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if err := l.rotateIfNeeded(now, int64(len(b))+1); err != nil {
		return err
	}
	n, err := l.file.Write(append(b, '\n'))
	l.size += int64(n)
	return err
}

func (l *ResultLogger) rotateIfNeeded(now time.Time, incoming int64) error {
	date := now.Format("2006-01-02")
	needNew := l.file == nil
	if l.cfg.RotateDaily && date != l.curDate {
		needNew = true
	}
	if l.cfg.RotateMaxBytes > 0 && l.file != nil && l.size+incoming > l.cfg.RotateMaxBytes {
		needNew = true
	}
	if !needNew {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	name := l.cfg.Filename
	if l.cfg.RotateDaily {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s_%s%s", name[:len(name)-len(ext)], date, ext)
	}
	path := filepath.Join(l.cfg.DataDir, name)
	if l.cfg.RotateMaxBytes > 0 {
		if fi, err := os.Stat(path); err == nil && fi.Size()+incoming > l.cfg.RotateMaxBytes {
			rolled := fmt.Sprintf("%s.%d", path, now.UnixMilli())
			_ = os.Rename(path, rolled)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.file = f
	l.size = fi.Size()
	l.curDate = date
	return nil
}

// Close flushes and closes the current log file.
func (l *ResultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
