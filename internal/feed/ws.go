// Package feed produces normalized market-data ticks. The live feed speaks
// the venue's WebSocket protocol; the replay feed reads recorded sessions
// from disk. Both hand the engine the same domain.Tick stream.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbx-trading/arbx/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// tickBuffer is the capacity of the internal tick channel. The consumer
	// pulls one tick at a time; a burst beyond this drops the oldest data by
	// blocking the read loop briefly.
	tickBuffer = 256
)

// WSConfig configures the live WebSocket feed.
type WSConfig struct {
	URL         string
	Venues      []string
	Symbols     []string
	DepthLevels int
	// TokenFunc supplies the feed auth token for the connection handshake.
	TokenFunc func() string
}

// WSFeed is a reconnecting WebSocket market-data feed. It implements
// domain.Feed: ticks are delivered through NextTick in arrival order.
type WSFeed struct {
	cfg    WSConfig
	logger *slog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	pingStop chan struct{}
	closed   bool

	reconnectBase time.Duration

	ticks chan domain.Tick
	done  chan struct{}
}

var _ domain.Feed = (*WSFeed)(nil)

// NewWSFeed creates a disconnected feed. Call Connect before NextTick.
func NewWSFeed(cfg WSConfig, logger *slog.Logger) *WSFeed {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 5
	}
	return &WSFeed{
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "ws_feed")),
		reconnectBase: reconnectDelay,
		ticks:         make(chan domain.Tick, tickBuffer),
		done:          make(chan struct{}),
	}
}

// subscribeCommand is the venue's depth-stream subscription message.
type subscribeCommand struct {
	Action  string   `json:"action"`
	Mode    string   `json:"mode"`
	Venues  []string `json:"exchanges"`
	Symbols []string `json:"symbols"`
}

// Connect dials the endpoint, subscribes to the configured symbols on both
// venues and starts the read and ping loops.
func (f *WSFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("feed: %w", domain.ErrFeedClosed)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	header := http.Header{}
	if f.cfg.TokenFunc != nil {
		if tok := f.cfg.TokenFunc(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	f.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	cmd := subscribeCommand{
		Action:  "subscribe",
		Mode:    "depth",
		Venues:  f.cfg.Venues,
		Symbols: f.cfg.Symbols,
	}
	if err := f.sendCommand(cmd); err != nil {
		conn.Close()
		return fmt.Errorf("feed: subscribe: %w", err)
	}

	// Exactly one ping writer per connection: retire the previous one
	// before the new connection gets its own.
	if f.pingStop != nil {
		close(f.pingStop)
	}
	stop := make(chan struct{})
	f.pingStop = stop

	go f.readLoop(conn)
	go f.pingLoop(conn, stop)

	f.logger.Info("feed connected",
		slog.String("url", f.cfg.URL),
		slog.Int("symbols", len(f.cfg.Symbols)),
	)
	return nil
}

// NextTick blocks until a tick arrives, the context is cancelled, or the
// feed is closed.
func (f *WSFeed) NextTick(ctx context.Context) (domain.Tick, error) {
	select {
	case <-ctx.Done():
		return domain.Tick{}, ctx.Err()
	case t, ok := <-f.ticks:
		if !ok {
			return domain.Tick{}, domain.ErrFeedClosed
		}
		return t, nil
	case <-f.done:
		return domain.Tick{}, domain.ErrFeedClosed
	}
}

// Close shuts down the connection and unblocks any NextTick caller.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// sendCommand writes a JSON command. Caller must hold f.mu.
func (f *WSFeed) sendCommand(cmd subscribeCommand) error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads raw messages from its connection, normalizes them into
// ticks, and pushes them onto the tick channel. On connection errors it
// closes the broken socket and reconnects with backoff.
func (f *WSFeed) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warn("feed read failed, reconnecting", slog.Any("error", err))
			f.reconnect()
			return
		}

		tick, ok := f.parseTick(message)
		if !ok {
			continue
		}
		select {
		case f.ticks <- tick:
		case <-f.done:
			return
		}
	}
}

// pingLoop keeps one connection alive. It exits when the feed closes or when
// stop is closed because a reconnect replaced the connection.
func (f *WSFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the feed is closed.
func (f *WSFeed) reconnect() {
	delay := f.reconnectBase
	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		f.logger.Warn("feed reconnect failed", slog.Any("error", err))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// wireLevel is a single depth level as sent by the venue.
type wireLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// wireTick is the venue's depth-stream message shape.
type wireTick struct {
	Symbol   string      `json:"symbol"`
	Exchange string      `json:"exchange"`
	LTP      float64     `json:"last_traded_price"`
	BestBid  float64     `json:"bp1"`
	BidQty   int64       `json:"bq1"`
	BestAsk  float64     `json:"sp1"`
	AskQty   int64       `json:"sq1"`
	Buy      []wireLevel `json:"buy_depth"`
	Sell     []wireLevel `json:"sell_depth"`
	TS       int64       `json:"exchange_timestamp"`
}

// parseTick normalizes one raw message into a domain tick. Non-tick
// messages (acks, heartbeats) are silently dropped.
func (f *WSFeed) parseTick(raw []byte) (domain.Tick, bool) {
	var w wireTick
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Tick{}, false
	}
	if w.Symbol == "" || w.Exchange == "" {
		return domain.Tick{}, false
	}

	tick := domain.Tick{
		Symbol:    strings.ToUpper(w.Symbol),
		Venue:     strings.ToUpper(w.Exchange),
		LastPrice: normalizePrice(w.LTP),
		Timestamp: time.Now().UTC(),
	}
	if w.TS > 0 {
		tick.Timestamp = time.UnixMilli(w.TS).UTC()
	}

	for _, lvl := range clampLevels(w.Buy, f.cfg.DepthLevels) {
		tick.Depth.Buy = append(tick.Depth.Buy, domain.DepthLevel{
			Price:    normalizePrice(lvl.Price),
			Quantity: lvl.Quantity,
		})
	}
	for _, lvl := range clampLevels(w.Sell, f.cfg.DepthLevels) {
		tick.Depth.Sell = append(tick.Depth.Sell, domain.DepthLevel{
			Price:    normalizePrice(lvl.Price),
			Quantity: lvl.Quantity,
		})
	}

	// Top of book comes from depth when present, otherwise from the
	// level-1 fields, falling back to last price.
	if len(tick.Depth.Buy) > 0 {
		tick.BestBid = tick.Depth.Buy[0].Price
		tick.BidQty = tick.Depth.Buy[0].Quantity
	} else {
		tick.BestBid = normalizePrice(w.BestBid)
		tick.BidQty = w.BidQty
		if tick.BestBid == 0 {
			tick.BestBid = tick.LastPrice
		}
	}
	if len(tick.Depth.Sell) > 0 {
		tick.BestAsk = tick.Depth.Sell[0].Price
		tick.AskQty = tick.Depth.Sell[0].Quantity
	} else {
		tick.BestAsk = normalizePrice(w.BestAsk)
		tick.AskQty = w.AskQty
		if tick.BestAsk == 0 {
			tick.BestAsk = tick.LastPrice
		}
	}
	return tick, true
}

// clampLevels limits depth to the configured number of levels.
func clampLevels(levels []wireLevel, max int) []wireLevel {
	if len(levels) > max {
		return levels[:max]
	}
	return levels
}

// normalizePrice undoes the venue's x100 equity price scaling. Raw equity
// prices arrive multiplied by 100; anything above the threshold is assumed
// scaled.
func normalizePrice(p float64) float64 {
	if p > 2000 {
		return p / 100.0
	}
	return p
}
