package binance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/pkg/logger"
)

var errStreamClosed = errors.New("stream closed")

// hub fans one upstream websocket out to any number of blocked Watch calls.
// It dies on the first upstream error; the next Watch call starts a fresh
// one.
type hub struct {
	mu    sync.Mutex
	subs  map[chan any]struct{}
	stopC chan struct{}
	err   error
	dead  bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan any]struct{})}
}

func (h *hub) publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- v:
		default: // slow subscriber drops a snapshot, never blocks the reader
		}
	}
}

func (h *hub) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return
	}
	h.dead = true
	h.err = err
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan any]struct{})
	if h.stopC != nil {
		close(h.stopC)
	}
}

func (h *hub) alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead
}

// setStop hands the hub its upstream stop channel. The error handler can
// fire before the serve call returns the channel, so a hub that is already
// dead closes it on the spot instead of leaking the upstream connection.
func (h *hub) setStop(stopC chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		if stopC != nil {
			close(stopC)
		}
		return
	}
	h.stopC = stopC
}

func (h *hub) subscribe() (chan any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return nil, h.err
	}
	ch := make(chan any, 1)
	h.subs[ch] = struct{}{}
	return ch, nil
}

func (h *hub) unsubscribe(ch chan any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
	}
}

func (h *hub) error() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	return errStreamClosed
}

type hubStarter func(h *hub) (stopC chan struct{}, err error)

func (a *Adapter) ensureHub(key string, start hubStarter) (*hub, error) {
	a.hubsMu.Lock()
	defer a.hubsMu.Unlock()
	if h, ok := a.hubs[key]; ok && h.alive() {
		return h, nil
	}
	h := newHub()
	stopC, err := start(h)
	if err != nil {
		return nil, err
	}
	h.setStop(stopC)
	a.hubs[key] = h
	return h, nil
}

// next blocks until the hub delivers a value, the hub dies, or ctx ends.
func (a *Adapter) next(ctx context.Context, key string, start hubStarter) (any, error) {
	h, err := a.ensureHub(key, start)
	if err != nil {
		return nil, err
	}
	ch, err := h.subscribe()
	if err != nil {
		return nil, err
	}
	defer h.unsubscribe(ch)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case v, ok := <-ch:
		if !ok {
			return nil, h.error()
		}
		return v, nil
	}
}

func (a *Adapter) WatchOrderBook(ctx context.Context, symbol string) (*exchange.OrderBook, error) {
	native := nativeSymbol(symbol)
	v, err := a.next(ctx, "depth:"+native, func(h *hub) (chan struct{}, error) {
		handler := func(event *binance.WsPartialDepthEvent) {
			book := &exchange.OrderBook{
				Symbol:    symbol,
				Bids:      make([]exchange.Level, 0, len(event.Bids)),
				Asks:      make([]exchange.Level, 0, len(event.Asks)),
				Timestamp: time.Now().UTC(),
			}
			for _, b := range event.Bids {
				if level, err := toLevel(b.Price, b.Quantity); err == nil {
					book.Bids = append(book.Bids, level)
				}
			}
			for _, s := range event.Asks {
				if level, err := toLevel(s.Price, s.Quantity); err == nil {
					book.Asks = append(book.Asks, level)
				}
			}
			h.publish(book)
		}
		_, stopC, err := binance.WsPartialDepthServe(native, "20", handler, h.fail)
		return stopC, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*exchange.OrderBook), nil
}

func (a *Adapter) WatchTrades(ctx context.Context, symbol string) ([]exchange.Trade, error) {
	native := nativeSymbol(symbol)
	v, err := a.next(ctx, "trades:"+native, func(h *hub) (chan struct{}, error) {
		handler := func(event *binance.WsTradeEvent) {
			side := "buy"
			if event.IsBuyerMaker {
				side = "sell"
			}
			h.publish([]exchange.Trade{{
				ID:     strings.TrimSpace(symbol) + "-" + strconv.FormatInt(event.TradeID, 10),
				Symbol: symbol,
				Price:  parseFloat(event.Price),
				Size:   parseFloat(event.Quantity),
				Side:   side,
				Time:   time.UnixMilli(event.TradeTime),
			}})
		}
		_, stopC, err := binance.WsTradeServe(native, handler, h.fail)
		return stopC, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]exchange.Trade), nil
}

func (a *Adapter) WatchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	native := nativeSymbol(symbol)
	v, err := a.next(ctx, "ticker:"+native, func(h *hub) (chan struct{}, error) {
		handler := func(event *binance.WsMarketStatEvent) {
			h.publish(&exchange.Ticker{
				Symbol: symbol,
				Last:   parseFloat(event.LastPrice),
				Bid:    parseFloat(event.BidPrice),
				Ask:    parseFloat(event.AskPrice),
				High:   parseFloat(event.HighPrice),
				Low:    parseFloat(event.LowPrice),
				Volume: parseFloat(event.BaseVolume),
				Time:   time.UnixMilli(event.Time),
			})
		}
		_, stopC, err := binance.WsMarketStatServe(native, handler, h.fail)
		return stopC, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*exchange.Ticker), nil
}

func (a *Adapter) WatchBalance(ctx context.Context) (map[string]float64, error) {
	for {
		v, err := a.next(ctx, "user", a.startUserStream)
		if err != nil {
			return nil, err
		}
		event := v.(*binance.WsUserDataEvent)
		if event.Event != binance.UserDataEventTypeOutboundAccountPosition {
			continue
		}
		balances := make(map[string]float64, len(event.AccountUpdate.WsAccountUpdates))
		for _, u := range event.AccountUpdate.WsAccountUpdates {
			balances[u.Asset] = parseFloat(u.Free)
		}
		return balances, nil
	}
}

func (a *Adapter) WatchOrders(ctx context.Context, symbol string) ([]exchange.OrderRecord, error) {
	native := nativeSymbol(symbol)
	for {
		v, err := a.next(ctx, "user", a.startUserStream)
		if err != nil {
			return nil, err
		}
		event := v.(*binance.WsUserDataEvent)
		if event.Event != binance.UserDataEventTypeExecutionReport {
			continue
		}
		order := event.OrderUpdate
		if native != "" && order.Symbol != native {
			continue
		}
		return []exchange.OrderRecord{{
			ID:     strconv.FormatInt(order.Id, 10),
			Symbol: symbol,
			Side:   strings.ToLower(order.Side),
			Type:   strings.ToLower(order.Type),
			Status: order.Status,
			Price:  parseFloat(order.Price),
			Amount: parseFloat(order.Volume),
			Filled: parseFloat(order.FilledVolume),
		}}, nil
	}
}

// startUserStream opens the shared user-data websocket and keeps the listen
// key alive until the hub dies.
func (a *Adapter) startUserStream(h *hub) (chan struct{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	listenKey, err := a.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, err
	}

	handler := func(event *binance.WsUserDataEvent) {
		h.publish(event)
	}
	_, stopC, err := binance.WsUserDataServe(listenKey, handler, h.fail)
	if err != nil {
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(25 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if !h.alive() {
				return
			}
			keepCtx, keepCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(keepCtx); err != nil {
				logger.Warn("user stream keepalive failed", "error", err)
			}
			keepCancel()
		}
	}()
	return stopC, nil
}
