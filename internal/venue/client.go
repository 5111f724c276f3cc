package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arbx-trading/arbx/internal/domain"
)

// ClientConfig configures the broker REST gateway.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements domain.VenueGateway over the broker's REST API.
type Client struct {
	cfg        ClientConfig
	session    *Session
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.VenueGateway = (*Client)(nil)

// NewClient creates a gateway bound to an authenticated session.
func NewClient(cfg ClientConfig, session *Session, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		session:    session,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "venue_client")),
	}
}

// placeRequest is the broker's order-entry wire shape.
type placeRequest struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Quantity        string `json:"quantity"`
	Price           string `json:"price,omitempty"`
	TriggerPrice    string `json:"triggerprice,omitempty"`
}

// PlaceOrder submits a leg and returns a normalized acknowledgement.
func (c *Client) PlaceOrder(ctx context.Context, inst domain.Instrument, leg domain.OrderLeg) (domain.OrderAck, error) {
	body := placeRequest{
		Variety:         "NORMAL",
		TradingSymbol:   inst.TradingSymbol,
		SymbolToken:     inst.Token,
		TransactionType: string(leg.Side),
		Exchange:        leg.Venue,
		OrderType:       string(leg.Kind),
		ProductType:     string(leg.Product),
		Duration:        string(leg.TIF),
		Quantity:        strconv.FormatInt(leg.Quantity, 10),
	}
	if leg.Kind == domain.OrderKindLimit {
		body.Price = strconv.FormatFloat(leg.LimitPrice, 'f', 2, 64)
	}
	if leg.TriggerPrice > 0 {
		body.TriggerPrice = strconv.FormatFloat(leg.TriggerPrice, 'f', 2, 64)
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("venue: place order: %w", err)
	}

	id, err := orderIDFromData(raw)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("venue: place order: %w", err)
	}
	c.logger.Debug("order placed",
		slog.String("order_id", id),
		slog.String("symbol", leg.Symbol),
		slog.String("side", string(leg.Side)),
	)
	return domain.OrderAck{OrderID: id, Status: domain.StatusPending}, nil
}

// orderWire is the broker's order-status wire shape. Numeric fields arrive
// as strings on this venue.
type orderWire struct {
	OrderID      string `json:"orderid"`
	Status       string `json:"status"`
	FilledShares string `json:"filledshares"`
	AveragePrice string `json:"averageprice"`
}

// OrderStatus fetches the current state of a single order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (domain.OrderAck, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("venue: order status %s: %w", orderID, err)
	}

	var w orderWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.OrderAck{}, fmt.Errorf("venue: order status %s: decode: %w", orderID, err)
	}
	return normalizeOrder(orderID, w), nil
}

// CancelOrder requests cancellation of a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return fmt.Errorf("venue: cancel order %s: %w", orderID, err)
	}
	return nil
}

// doRequest executes an authenticated request and returns the envelope data.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.session.AccessToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// envelope is the broker's common response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	ErrCode string          `json:"errorcode"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope reads a response body and maps HTTP and envelope-level
// failures to errors.
func decodeEnvelope(resp *http.Response) (envelope, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return envelope{}, fmt.Errorf("%w: status %d", domain.ErrSessionUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Status {
		return envelope{}, fmt.Errorf("%w: %s (%s)", domain.ErrVenueRejected, env.Message, env.ErrCode)
	}
	return env, nil
}

// orderIDFromData extracts an order id from the placement response. The
// venue returns either a bare string or an object with an orderid field.
func orderIDFromData(raw json.RawMessage) (string, error) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil && bare != "" {
		return bare, nil
	}
	var obj struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.OrderID != "" {
		return obj.OrderID, nil
	}
	return "", fmt.Errorf("no order id in response: %s", string(raw))
}

// normalizeOrder maps the venue's status vocabulary and string-encoded
// numerics into the domain acknowledgement.
func normalizeOrder(orderID string, w orderWire) domain.OrderAck {
	ack := domain.OrderAck{OrderID: orderID}
	if w.OrderID != "" {
		ack.OrderID = w.OrderID
	}

	switch strings.ToLower(strings.TrimSpace(w.Status)) {
	case "complete":
		ack.Status = domain.StatusComplete
	case "rejected":
		ack.Status = domain.StatusRejected
	case "cancelled", "canceled":
		ack.Status = domain.StatusCancelled
	case "open", "trigger pending":
		ack.Status = domain.StatusOpen
	default:
		ack.Status = domain.StatusPending
	}

	if qty, err := strconv.ParseInt(strings.TrimSpace(w.FilledShares), 10, 64); err == nil {
		ack.FilledQty = qty
	}
	if px, err := strconv.ParseFloat(strings.TrimSpace(w.AveragePrice), 64); err == nil {
		ack.FillPrice = px
	}
	return ack
}
