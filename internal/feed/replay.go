package feed

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arbx-trading/arbx/internal/domain"
)

// ReplayFeed reads a recorded session from a CSV file and replays it tick
// by tick, optionally pacing delivery. It implements domain.Feed; once the
// file is exhausted NextTick returns domain.ErrFeedClosed.
type ReplayFeed struct {
	file   *os.File
	reader *csv.Reader
	cols   map[string]int
	pace   time.Duration
	last   time.Time
}

var _ domain.Feed = (*ReplayFeed)(nil)

// NewReplayFeed opens a recording. pace inserts a fixed delay between
// consecutive ticks; zero replays as fast as the consumer pulls.
func NewReplayFeed(path string, pace time.Duration) (*ReplayFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open replay file: %w", err)
	}

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("feed: read replay header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"symbol", "exchange", "ltp", "best_bid", "best_ask", "bid_qty", "ask_qty"} {
		if _, ok := cols[required]; !ok {
			f.Close()
			return nil, fmt.Errorf("feed: replay file missing column %q", required)
		}
	}

	return &ReplayFeed{file: f, reader: r, cols: cols, pace: pace}, nil
}

// NextTick returns the next recorded tick.
func (r *ReplayFeed) NextTick(ctx context.Context) (domain.Tick, error) {
	if r.pace > 0 && !r.last.IsZero() {
		select {
		case <-ctx.Done():
			return domain.Tick{}, ctx.Err()
		case <-time.After(r.pace):
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, err
		}

		row, err := r.reader.Read()
		if err == io.EOF {
			return domain.Tick{}, domain.ErrFeedClosed
		}
		if err != nil {
			return domain.Tick{}, fmt.Errorf("feed: read replay row: %w", err)
		}

		tick, err := r.parseRow(row)
		if err != nil {
			// Skip malformed rows instead of ending the replay.
			continue
		}
		r.last = time.Now()
		return tick, nil
	}
}

// Close releases the underlying file.
func (r *ReplayFeed) Close() error {
	return r.file.Close()
}

func (r *ReplayFeed) parseRow(row []string) (domain.Tick, error) {
	get := func(name string) string {
		idx, ok := r.cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ltp, err := strconv.ParseFloat(get("ltp"), 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse ltp: %w", err)
	}
	bid, err := strconv.ParseFloat(get("best_bid"), 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse best_bid: %w", err)
	}
	ask, err := strconv.ParseFloat(get("best_ask"), 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse best_ask: %w", err)
	}
	bidQty, err := strconv.ParseInt(get("bid_qty"), 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse bid_qty: %w", err)
	}
	askQty, err := strconv.ParseInt(get("ask_qty"), 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse ask_qty: %w", err)
	}

	tick := domain.Tick{
		Symbol:    strings.ToUpper(get("symbol")),
		Venue:     strings.ToUpper(get("exchange")),
		LastPrice: ltp,
		BestBid:   bid,
		BestAsk:   ask,
		BidQty:    bidQty,
		AskQty:    askQty,
		Timestamp: time.Now().UTC(),
	}

	if ts := get("ts"); ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			tick.Timestamp = time.UnixMilli(ms).UTC()
		}
	}
	if depthJSON := get("depth_json"); depthJSON != "" {
		var depth struct {
			Buy  []domain.DepthLevel `json:"buy"`
			Sell []domain.DepthLevel `json:"sell"`
		}
		if err := json.Unmarshal([]byte(depthJSON), &depth); err == nil {
			tick.Depth = domain.Depth{Buy: depth.Buy, Sell: depth.Sell}
		}
	}
	return tick, nil
}
