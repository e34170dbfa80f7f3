package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/bus"
	"main/internal/schema"
)

const _binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

// BinanceSubscribeRequest is the stream subscription payload.
type BinanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// BinanceSubscribeResponse acknowledges a subscription request.
type BinanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

// BinanceTrade is a single message of the 'Trade Streams' topic.
type BinanceTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func subscriberResponseParser(m ws.Message) (BinanceSubscribeResponse, bool) {
	var resp BinanceSubscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// BinancePub wraps the Binance public market websocket.
type BinancePub struct {
	wss *ws.WebSocket
}

// NewBinancePub creates a client for the public stream endpoint.
func NewBinancePub(ctx context.Context) *BinancePub {
	return &BinancePub{
		wss: ws.New(ctx, _binanceBaseWsUrl),
	}
}

// StartWebsocket opens the underlying connection.
func (repo *BinancePub) StartWebsocket(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

// Close shuts the underlying connection down.
func (repo *BinancePub) Close() {
	repo.wss.Close()
}

// SubscribeTrade subscribes the 'Trade Streams' topic for one symbol.
func (repo *BinancePub) SubscribeTrade(ctx context.Context, symbol string) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := BinanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@trade", strings.ToLower(symbol)),
				},
				ID: 1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscriberResponseParser(m)
			if !ok || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// ObserveTrade invokes handler for every trade message until ctx is done.
func (repo *BinancePub) ObserveTrade(ctx context.Context, handler func(trade BinanceTrade)) (unsubscribe func()) {
	ch, cancel := repo.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				trade, ok := ws.ReadMessage[BinanceTrade](m)
				if !ok || trade.EventType != "trade" {
					continue
				}

				handler(trade)
			}
		}
	}()

	return cancel
}

// Exchange streams live trades from Binance onto the bus. When the upstream
// is unreachable it degrades to the synthetic feed so the pipeline keeps
// running.
type Exchange struct {
	symbols  []string
	bus      *bus.Bus
	pub      *BinancePub
	fallback *Synthetic
	degraded bool
}

// NewExchange creates an exchange feed with a synthetic fallback.
func NewExchange(ctx context.Context, symbols []string, b *bus.Bus, fallback *Synthetic) *Exchange {
	return &Exchange{
		symbols:  symbols,
		bus:      b,
		pub:      NewBinancePub(ctx),
		fallback: fallback,
	}
}

// Connect opens the stream and subscribes all symbols. A failure switches
// the feed into degraded (synthetic) mode rather than erroring out.
func (f *Exchange) Connect(ctx context.Context) error {
	if err := f.connectUpstream(ctx); err != nil {
		logs.Warnf("exchange feed unavailable, falling back to synthetic: %+v", err)
		f.degraded = true
		return f.fallback.Connect(ctx)
	}
	logs.Infof("exchange feed connected: symbols=%v", f.symbols)
	return nil
}

func (f *Exchange) connectUpstream(ctx context.Context) error {
	if err := f.pub.StartWebsocket(ctx); err != nil {
		return err
	}
	for _, symbol := range f.symbols {
		if err := f.pub.SubscribeTrade(ctx, symbol); err != nil {
			return errors.Wrap(err, "subscribe trade").With("symbol", symbol)
		}
	}
	return nil
}

// Run publishes upstream trades as ticks, or drives the fallback when
// degraded.
func (f *Exchange) Run(ctx context.Context) error {
	if f.degraded {
		return f.fallback.Run(ctx)
	}

	unsubscribe := f.pub.ObserveTrade(ctx, func(trade BinanceTrade) {
		tick, err := tradeToTick(trade)
		if err != nil {
			logs.Errorf("drop malformed trade: symbol=%s err=%+v", trade.Symbol, err)
			return
		}
		if err := f.bus.Publish(ctx, schema.NewEvent(schema.EventTick, tick)); err != nil {
			logs.Errorf("publish tick: symbol=%s err=%+v", tick.Symbol, err)
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}

// Close shuts the upstream connection down.
func (f *Exchange) Close() {
	if !f.degraded {
		f.pub.Close()
	}
	f.fallback.Close()
}

func tradeToTick(trade BinanceTrade) (schema.Tick, error) {
	price, err := decimal.NewFromString(trade.Price)
	if err != nil {
		return schema.Tick{}, errors.Wrap(err, "parse price")
	}
	if !price.IsPositive() {
		return schema.Tick{}, errors.Errorf("non-positive price: %s", trade.Price)
	}
	quantity, err := decimal.NewFromString(trade.Quantity)
	if err != nil {
		return schema.Tick{}, errors.Wrap(err, "parse quantity")
	}
	return schema.Tick{
		Symbol:    trade.Symbol,
		Last:      price,
		Bid:       price,
		Ask:       price,
		Volume:    quantity.IntPart(),
		Timestamp: unixMilliUTC(trade.TradeTime),
	}, nil
}

func unixMilliUTC(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
