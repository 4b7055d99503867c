// Package alpaca executes market orders through the Alpaca trading API.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apca "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/broker"
	"github.com/rustyeddy/swingtrader/internal/async"
)

const (
	PaperURL = "https://paper-api.alpaca.markets"
	LiveURL  = "https://api.alpaca.markets"
)

// BaseURL maps an environment name to the trading endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "paper":
		return PaperURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown alpaca env %q (want paper|live)", env)
	}
}

// tradingClient is the subset of *apca.Client used here.
type tradingClient interface {
	PlaceOrder(req apca.PlaceOrderRequest) (*apca.Order, error)
	GetOrder(orderID string) (*apca.Order, error)
	GetOrderByClientOrderID(clientOrderID string) (*apca.Order, error)
	CancelOrder(orderID string) error
	GetAccount() (*apca.Account, error)
}

type Broker struct {
	client       tradingClient
	pollInterval time.Duration
	placeGrace   time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Broker)

func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithPlaceGrace bounds how long an abandoned placement is awaited before
// the order is looked up by its client order id.
func WithPlaceGrace(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.placeGrace = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// New builds a Broker against the Alpaca REST API.
func New(apiKey, apiSecret, baseURL string, opts ...Option) *Broker {
	c := apca.NewClient(apca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return newBroker(c, opts...)
}

func newBroker(c tradingClient, opts ...Option) *Broker {
	b := &Broker{
		client:       c,
		pollInterval: 500 * time.Millisecond,
		placeGrace:   5 * time.Second,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) SubmitBuy(ctx context.Context, symbol string, qty int) (broker.Fill, error) {
	return b.submit(ctx, symbol, qty, apca.Buy)
}

func (b *Broker) SubmitSell(ctx context.Context, symbol string, qty int) (broker.Fill, error) {
	return b.submit(ctx, symbol, qty, apca.Sell)
}

func (b *Broker) Equity(ctx context.Context) (float64, error) {
	acct, err := async.Do(ctx, b.client.GetAccount)
	if err != nil {
		return 0, classify("get account", err)
	}
	return acct.Equity.InexactFloat64(), nil
}

// submit places a market order and polls it until it reaches a terminal
// state or ctx ends. On ctx end the order is cancelled, including one
// created by a placement still in flight; shares filled before the cancel
// are still reported.
func (b *Broker) submit(ctx context.Context, symbol string, qty int, side apca.Side) (broker.Fill, error) {
	if qty <= 0 {
		return broker.Fill{}, fmt.Errorf("alpaca: %s %s qty %d: %w", side, symbol, qty, broker.ErrRejected)
	}

	q := decimal.NewFromInt(int64(qty))
	req := apca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &q,
		Side:          side,
		Type:          apca.Market,
		TimeInForce:   apca.Day,
		ClientOrderID: uuid.NewString(),
	}

	done := make(chan placeResult, 1)
	go func() {
		o, err := b.client.PlaceOrder(req)
		done <- placeResult{order: o, err: err}
	}()

	var order *apca.Order
	select {
	case r := <-done:
		if r.err != nil {
			return broker.Fill{}, classify("place order "+symbol, r.err)
		}
		order = r.order
	case <-ctx.Done():
		return b.recoverPlacement(req, done, ctx.Err())
	}
	b.logger.Info("alpaca: order placed",
		zap.String("order_id", order.ID),
		zap.String("client_order_id", req.ClientOrderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int("qty", qty),
	)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		switch order.Status {
		case "filled":
			return b.fill(order, side), nil
		case "canceled", "expired", "rejected", "done_for_day", "stopped", "suspended":
			if order.FilledQty.IsPositive() {
				return b.fill(order, side), nil
			}
			return broker.Fill{}, fmt.Errorf("alpaca: order %s %s: %w", order.ID, order.Status, broker.ErrRejected)
		}

		select {
		case <-ctx.Done():
			return b.abandon(order, side, ctx.Err())
		case <-ticker.C:
		}

		next, err := async.Do(ctx, func() (*apca.Order, error) { return b.client.GetOrder(order.ID) })
		if err != nil {
			if ctx.Err() != nil {
				return b.abandon(order, side, ctx.Err())
			}
			b.logger.Warn("alpaca: poll order failed", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		order = next
	}
}

type placeResult struct {
	order *apca.Order
	err   error
}

// recoverPlacement handles a placement that outlived ctx. The request may
// still create the order, so it is awaited for placeGrace and then looked
// up by client order id. A found order is cancelled like any other
// abandoned order.
func (b *Broker) recoverPlacement(req apca.PlaceOrderRequest, done <-chan placeResult, cause error) (broker.Fill, error) {
	timer := time.NewTimer(b.placeGrace)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return broker.Fill{}, classify("place order "+req.Symbol, r.err)
		}
		return b.abandon(r.order, req.Side, cause)
	case <-timer.C:
	}

	order, err := b.client.GetOrderByClientOrderID(req.ClientOrderID)
	if err != nil {
		b.logger.Warn("alpaca: abandoned placement not found",
			zap.String("client_order_id", req.ClientOrderID),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		return broker.Fill{}, fmt.Errorf("alpaca: place order %s: %v: %w", req.Symbol, cause, broker.ErrTransient)
	}
	b.logger.Warn("alpaca: abandoned placement created an order",
		zap.String("order_id", order.ID),
		zap.String("client_order_id", req.ClientOrderID),
	)
	return b.abandon(order, req.Side, cause)
}

// abandon cancels an order that did not resolve in time. Any quantity the
// exchange filled before the cancel is returned as a short fill.
func (b *Broker) abandon(order *apca.Order, side apca.Side, cause error) (broker.Fill, error) {
	if err := b.client.CancelOrder(order.ID); err != nil {
		b.logger.Warn("alpaca: cancel order failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	if final, err := b.client.GetOrder(order.ID); err == nil {
		order = final
	}
	if order.FilledQty.IsPositive() {
		b.logger.Warn("alpaca: order partially filled before cancel",
			zap.String("order_id", order.ID),
			zap.String("filled_qty", order.FilledQty.String()),
		)
		return b.fill(order, side), nil
	}
	return broker.Fill{}, fmt.Errorf("alpaca: order %s unfilled: %v: %w", order.ID, cause, broker.ErrTransient)
}

func (b *Broker) fill(order *apca.Order, side apca.Side) broker.Fill {
	f := broker.Fill{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Side:    broker.Sell,
		Qty:     int(order.FilledQty.IntPart()),
		Time:    b.now(),
	}
	if side == apca.Buy {
		f.Side = broker.Buy
	}
	if order.FilledAvgPrice != nil {
		f.Price = order.FilledAvgPrice.InexactFloat64()
	}
	if order.FilledAt != nil {
		f.Time = *order.FilledAt
	}
	b.logger.Info("alpaca: order filled",
		zap.String("order_id", f.OrderID),
		zap.String("symbol", f.Symbol),
		zap.String("side", string(f.Side)),
		zap.Int("qty", f.Qty),
		zap.Float64("price", f.Price),
	)
	return f
}

// classify maps API failures onto broker sentinels: client errors are
// rejections, everything else is retried next tick.
func classify(op string, err error) error {
	var apiErr *apca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("alpaca: %s: %v: %w", op, err, broker.ErrRejected)
	}
	return fmt.Errorf("alpaca: %s: %v: %w", op, err, broker.ErrTransient)
}

var _ broker.Broker = (*Broker)(nil)
