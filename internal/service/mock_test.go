package service

import (
	"context"
	"errors"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/policy"
)

// mockAdapter is a scriptable in-memory Adapter. Every call is recorded so
// tests can assert on short-circuit behavior.
type mockAdapter struct {
	calls []string

	markets  map[string]exchange.Market
	book     *exchange.OrderBook
	balances map[string]float64
	currency *exchange.CurrencyInfo
	deposits []exchange.DepositRecord
	address  *exchange.AddressRecord
	order    *exchange.OrderRecord
	tx       *exchange.TransactionRecord
	candles  []exchange.Candle
	mode     exchange.AddressMode

	// failWith, when set, makes every adapter call fail.
	failWith error

	// lastOrder captures CreateOrder arguments.
	lastOrder struct {
		symbol, orderType, side string
		amount, price           float64
	}

	// watch scripting: each Watch call pops the next entry; an exhausted
	// script blocks until ctx is cancelled.
	watchBooks []*exchange.OrderBook
	watchErr   error
}

func (m *mockAdapter) record(name string) { m.calls = append(m.calls, name) }

func (m *mockAdapter) Name() string { return "mock" }

func (m *mockAdapter) Markets(ctx context.Context) (map[string]exchange.Market, error) {
	m.record("Markets")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.markets, nil
}

func (m *mockAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	m.record("FetchOrderBook")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.book, nil
}

func (m *mockAdapter) FetchFreeBalance(ctx context.Context) (map[string]float64, error) {
	m.record("FetchFreeBalance")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.balances, nil
}

func (m *mockAdapter) FetchCurrency(ctx context.Context, ticker string) (*exchange.CurrencyInfo, error) {
	m.record("FetchCurrency")
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.currency == nil {
		return nil, errors.New("unknown currency")
	}
	return m.currency, nil
}

func (m *mockAdapter) CreateOrder(ctx context.Context, symbol, orderType, side string, amount, price float64) (*exchange.OrderRecord, error) {
	m.record("CreateOrder")
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.lastOrder.symbol = symbol
	m.lastOrder.orderType = orderType
	m.lastOrder.side = side
	m.lastOrder.amount = amount
	m.lastOrder.price = price
	return m.order, nil
}

func (m *mockAdapter) CancelOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderRecord, error) {
	m.record("CancelOrder")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.order, nil
}

func (m *mockAdapter) FetchOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderRecord, error) {
	m.record("FetchOrder")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.order, nil
}

func (m *mockAdapter) Withdraw(ctx context.Context, ticker string, amount float64, address, tag, network string) (*exchange.TransactionRecord, error) {
	m.record("Withdraw")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.tx, nil
}

func (m *mockAdapter) FetchDeposits(ctx context.Context, ticker string, limit int) ([]exchange.DepositRecord, error) {
	m.record("FetchDeposits")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.deposits, nil
}

func (m *mockAdapter) DepositAddressMode() exchange.AddressMode { return m.mode }

func (m *mockAdapter) FetchDepositAddress(ctx context.Context, ticker, network string) (*exchange.AddressRecord, error) {
	m.record("FetchDepositAddress")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.address, nil
}

func (m *mockAdapter) FetchDepositAddressByNetwork(ctx context.Context, network, ticker string) (*exchange.AddressRecord, error) {
	m.record("FetchDepositAddressByNetwork")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.address, nil
}

func (m *mockAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string) ([]exchange.Candle, error) {
	m.record("FetchOHLCV")
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.candles, nil
}

func (m *mockAdapter) WatchOrderBook(ctx context.Context, symbol string) (*exchange.OrderBook, error) {
	m.record("WatchOrderBook")
	if len(m.watchBooks) > 0 {
		book := m.watchBooks[0]
		m.watchBooks = m.watchBooks[1:]
		return book, nil
	}
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockAdapter) WatchTrades(ctx context.Context, symbol string) ([]exchange.Trade, error) {
	m.record("WatchTrades")
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockAdapter) WatchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	m.record("WatchTicker")
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockAdapter) WatchBalance(ctx context.Context) (map[string]float64, error) {
	m.record("WatchBalance")
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockAdapter) WatchOrders(ctx context.Context, symbol string) ([]exchange.OrderRecord, error) {
	m.record("WatchOrders")
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// newTestBrokers wires the mock adapter behind a configured primary handle
// for "binance".
func newTestBrokers(mock *mockAdapter) *broker.Registry {
	factory := exchange.NewRegistry()
	factory.Register(exchange.Binance, func(apiKey, apiSecret string) (exchange.Adapter, error) {
		return mock, nil
	})
	brokers := broker.NewRegistry(factory)
	if err := brokers.Configure("binance", broker.Credentials{APIKey: "k", APISecret: "s"}, nil); err != nil {
		panic(err)
	}
	return brokers
}

func openPolicy() policy.Provider {
	return policy.NewStaticProvider(&policy.Config{
		Withdraw: policy.WithdrawPolicy{Rules: []policy.WithdrawRule{
			{Exchange: "*", Network: "*", Whitelist: []string{"0xallowed"}},
		}},
		Order: policy.OrderPolicy{Rule: policy.OrderRule{Markets: []string{"*"}}},
	})
}
