package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"DigitFlow/internal/domain/models"
	"DigitFlow/pkg/logger"
	"DigitFlow/pkg/util"
)

// Config for the Deriv WebSocket API client.
type Config struct {
	AppID          string
	APIToken       string
	WebSocketURL   string
	Symbol         string
	PricePrecision int
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	CallTimeout    time.Duration
}

// Client speaks the Deriv WebSocket API over a single multiplexed
// connection: the tick subscription stream and request/response calls
// (authorize, buy, balance, contract settlement) share one socket. A read
// pump dispatches frames by req_id; the tick stream goes to its own channel.
//
// Client implements both domain/repository.MarketStream and Broker.
type Client struct {
	cfg Config
	log *logger.Logger

	wmu  sync.Mutex // serializes writes
	mu   sync.Mutex // guards conn, calls, connected
	conn *websocket.Conn

	connected bool
	reqSeq    int64
	calls     map[int64]chan json.RawMessage

	ticks chan *models.Tick
	errs  chan error

	pingOnce sync.Once
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.PricePrecision == 0 {
		cfg.PricePrecision = 2
	}
	return &Client{
		cfg:   cfg,
		log:   log,
		calls: make(map[int64]chan json.RawMessage),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type frame struct {
	MsgType string          `json:"msg_type"`
	ReqID   int64           `json:"req_id"`
	Error   *apiError       `json:"error"`
	Tick    json.RawMessage `json:"tick"`
}

// Connect dials the endpoint, authorizes the session and starts the read
// pump.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?app_id=%s", c.cfg.WebSocketURL, c.cfg.AppID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("deriv connect: %w", err)
	}

	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.ticks = ticks
	c.errs = errs
	c.mu.Unlock()

	go c.readPump(conn, ticks, errs)

	if c.cfg.APIToken != "" {
		if _, err := c.call(ctx, map[string]interface{}{"authorize": c.cfg.APIToken}); err != nil {
			_ = c.Close()
			return fmt.Errorf("deriv authorize: %w", err)
		}
	}
	c.log.Info("deriv: connected", logger.String("symbol", c.cfg.Symbol))
	return nil
}

// Subscribe starts the tick stream for the configured symbol. Tick frames
// are routed by the read pump, so only the write needs to succeed here.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("deriv not connected")
	}
	req := map[string]interface{}{
		"ticks":     c.cfg.Symbol,
		"subscribe": 1,
		"req_id":    atomic.AddInt64(&c.reqSeq, 1),
	}
	if err := c.writeJSON(req); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Symbol, err)
	}
	c.log.Info("deriv: subscribed", logger.String("symbol", c.cfg.Symbol))
	return nil
}

// Read exposes the tick and error channels. Both close when the connection
// drops; the caller reconnects and calls Read again for fresh channels.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	if c.cfg.PingInterval > 0 {
		c.pingOnce.Do(func() { go c.pingLoop(ctx) })
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks, c.errs
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				_ = c.writeJSON(map[string]interface{}{"ping": 1})
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn, ticks chan *models.Tick, errs chan error) {
	var pumpErr error
	defer func() {
		c.mu.Lock()
		c.connected = false
		// fail callers waiting on in-flight requests
		for id, ch := range c.calls {
			close(ch)
			delete(c.calls, id)
		}
		c.mu.Unlock()
		if pumpErr != nil {
			select {
			case errs <- pumpErr:
			default:
			}
		}
		close(ticks)
		close(errs)
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			pumpErr = fmt.Errorf("deriv read: %w", err)
			return
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			continue
		}

		if f.MsgType == "tick" && f.Tick != nil {
			if t := c.parseTick(f.Tick); t != nil {
				select {
				case ticks <- t:
				default:
					// drop on backpressure
				}
			}
			continue
		}
		if f.ReqID == 0 {
			continue // pongs and unsolicited frames
		}

		c.mu.Lock()
		ch := c.calls[f.ReqID]
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- json.RawMessage(b):
			default:
			}
		}
	}
}

type tickPayload struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

func (c *Client) parseTick(raw json.RawMessage) *models.Tick {
	var p tickPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Quote == 0 {
		return nil
	}
	return &models.Tick{
		Symbol:    p.Symbol,
		Price:     p.Quote,
		Digit:     util.LastDigit(p.Quote, c.cfg.PricePrecision),
		Timestamp: time.Unix(p.Epoch, 0).UTC(),
	}
}

// call sends one request and waits for the frame echoing its req_id.
// Subscription-style calls keep the channel registered until released.
func (c *Client) call(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	raw, _, release, err := c.openCall(ctx, payload)
	if release != nil {
		release()
	}
	return raw, err
}

// openCall sends a request and returns its first response plus the live
// channel for follow-up frames (used by streaming subscriptions).
func (c *Client) openCall(ctx context.Context, payload map[string]interface{}) (json.RawMessage, chan json.RawMessage, func(), error) {
	reqID := atomic.AddInt64(&c.reqSeq, 1)
	payload["req_id"] = reqID
	ch := make(chan json.RawMessage, 16)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("deriv not connected")
	}
	c.calls[reqID] = ch
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.calls, reqID)
		c.mu.Unlock()
	}

	if err := c.writeJSON(payload); err != nil {
		release()
		return nil, nil, nil, err
	}

	timeout := time.NewTimer(c.cfg.CallTimeout)
	defer timeout.Stop()
	select {
	case raw, ok := <-ch:
		if !ok {
			release()
			return nil, nil, nil, fmt.Errorf("deriv connection lost")
		}
		if err := frameError(raw); err != nil {
			release()
			return nil, nil, nil, err
		}
		return raw, ch, release, nil
	case <-timeout.C:
		release()
		return nil, nil, nil, fmt.Errorf("deriv call timed out")
	case <-ctx.Done():
		release()
		return nil, nil, nil, ctx.Err()
	}
}

func frameError(raw json.RawMessage) error {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	if f.Error != nil {
		return fmt.Errorf("deriv api %s: %s", f.Error.Code, f.Error.Message)
	}
	return nil
}

func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("deriv conn nil")
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(v)
}

// --- Broker ---

type buyResponse struct {
	Buy struct {
		ContractID int64   `json:"contract_id"`
		BuyPrice   float64 `json:"buy_price"`
	} `json:"buy"`
}

// Buy places a digit contract with the stake as both price cap and amount.
func (c *Client) Buy(ctx context.Context, req models.TradeRequest) (string, error) {
	stake := req.Stake.InexactFloat64()
	payload := map[string]interface{}{
		"buy":   1,
		"price": stake,
		"parameters": map[string]interface{}{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": req.ContractType,
			"currency":      "USD",
			"duration":      req.DurationTicks,
			"duration_unit": "t",
			"symbol":        req.Symbol,
			"barrier":       strconv.Itoa(req.Digit),
		},
	}
	raw, err := c.call(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("deriv buy: %w", err)
	}
	var resp buyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("deriv buy decode: %w", err)
	}
	if resp.Buy.ContractID == 0 {
		return "", fmt.Errorf("deriv buy: no contract id")
	}
	return strconv.FormatInt(resp.Buy.ContractID, 10), nil
}

type pocResponse struct {
	ProposalOpenContract struct {
		ContractID int64   `json:"contract_id"`
		IsSold     int     `json:"is_sold"`
		Status     string  `json:"status"` // "won" | "lost" | "open"
		Profit     float64 `json:"profit"`
		ExitTick   string  `json:"exit_tick_display_value"`
		SellTime   int64   `json:"sell_time"`
	} `json:"proposal_open_contract"`
}

// AwaitResult subscribes to the open-contract stream and blocks until the
// contract is sold or ctx expires.
func (c *Client) AwaitResult(ctx context.Context, tradeID string) (models.TradeResult, error) {
	contractID, err := strconv.ParseInt(tradeID, 10, 64)
	if err != nil {
		return models.TradeResult{}, fmt.Errorf("deriv contract id %q: %w", tradeID, err)
	}
	payload := map[string]interface{}{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
		"subscribe":              1,
	}
	raw, ch, release, err := c.openCall(ctx, payload)
	if err != nil {
		return models.TradeResult{}, fmt.Errorf("deriv contract stream: %w", err)
	}
	defer release()

	for {
		if res, done, err := c.settleFrame(tradeID, raw); err != nil {
			return models.TradeResult{}, err
		} else if done {
			return res, nil
		}
		select {
		case next, ok := <-ch:
			if !ok {
				return models.TradeResult{}, fmt.Errorf("deriv connection lost awaiting settlement")
			}
			if err := frameError(next); err != nil {
				return models.TradeResult{}, err
			}
			raw = next
		case <-ctx.Done():
			return models.TradeResult{}, ctx.Err()
		}
	}
}

func (c *Client) settleFrame(tradeID string, raw json.RawMessage) (models.TradeResult, bool, error) {
	var resp pocResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.TradeResult{}, false, fmt.Errorf("deriv contract decode: %w", err)
	}
	poc := resp.ProposalOpenContract
	if poc.IsSold == 0 {
		return models.TradeResult{}, false, nil
	}

	outcome := models.OutcomeLoss
	if poc.Status == "won" || poc.Profit > 0 {
		outcome = models.OutcomeWin
	}
	res := models.TradeResult{
		TradeID:  tradeID,
		Outcome:  outcome,
		PnLDelta: decimal.NewFromFloat(poc.Profit),
	}
	if poc.SellTime > 0 {
		res.SettledAt = time.Unix(poc.SellTime, 0).UTC()
	}
	if n := len(poc.ExitTick); n > 0 {
		if d := poc.ExitTick[n-1]; d >= '0' && d <= '9' {
			res.DigitActual = int(d - '0')
		}
	}
	return res, true, nil
}

type balanceResponse struct {
	Balance struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"balance"`
}

// Balance fetches the authoritative account balance.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := c.call(ctx, map[string]interface{}{"balance": 1})
	if err != nil {
		return decimal.Zero, fmt.Errorf("deriv balance: %w", err)
	}
	var resp balanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("deriv balance decode: %w", err)
	}
	return decimal.NewFromFloat(resp.Balance.Balance), nil
}

// Reconnect closes and re-establishes the connection plus subscription.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.cfg.ReconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close tears down the connection; the read pump fails in-flight calls.
func (c *Client) Close() error {
	c.mu.Lock()
	c.connected = false
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
