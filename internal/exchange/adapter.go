package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Level represents a single price level in an order book
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook holds bids sorted high to low and asks sorted low to high.
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// Market is one tradable symbol on an exchange.
type Market struct {
	Symbol string `json:"symbol"` // BASE/QUOTE
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

type OrderRecord struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Type   string  `json:"type"`
	Status string  `json:"status"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Filled float64 `json:"filled"`
}

type TransactionRecord struct {
	ID      string  `json:"id"`
	TxID    string  `json:"tx_id,omitempty"`
	Ticker  string  `json:"ticker"`
	Amount  float64 `json:"amount"`
	Address string  `json:"address"`
	Network string  `json:"network"`
}

type DepositRecord struct {
	ID      string  `json:"id"`
	TxID    string  `json:"tx_id"`
	Ticker  string  `json:"ticker"`
	Amount  float64 `json:"amount"`
	Network string  `json:"network"`
	Address string  `json:"address"`
	Status  string  `json:"status"`
}

type AddressRecord struct {
	Ticker  string `json:"ticker"`
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
	Network string `json:"network"`
}

type NetworkInfo struct {
	Name            string `json:"name"`
	DepositEnabled  bool   `json:"deposit_enabled"`
	WithdrawEnabled bool   `json:"withdraw_enabled"`
}

type CurrencyInfo struct {
	Ticker   string                 `json:"ticker"`
	Networks map[string]NetworkInfo `json:"networks"`
}

type Trade struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Side   string    `json:"side"`
	Time   time.Time `json:"time"`
}

type Ticker struct {
	Symbol string    `json:"symbol"`
	Last   float64   `json:"last"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
}

type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// AddressMode tells the dispatcher which deposit-address capability the
// adapter supports.
type AddressMode int

const (
	AddressBySymbol AddressMode = iota
	AddressByNetwork
)

// Adapter is the exchange connectivity capability consumed by the gateway.
// All blocking calls honor ctx cancellation. A given adapter instance is
// bound to one credential set.
type Adapter interface {
	Name() string

	Markets(ctx context.Context) (map[string]Market, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	FetchFreeBalance(ctx context.Context) (map[string]float64, error)
	FetchCurrency(ctx context.Context, ticker string) (*CurrencyInfo, error)
	CreateOrder(ctx context.Context, symbol, orderType, side string, amount, price float64) (*OrderRecord, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (*OrderRecord, error)
	FetchOrder(ctx context.Context, symbol, orderID string) (*OrderRecord, error)
	Withdraw(ctx context.Context, ticker string, amount float64, address, tag, network string) (*TransactionRecord, error)
	FetchDeposits(ctx context.Context, ticker string, limit int) ([]DepositRecord, error)
	DepositAddressMode() AddressMode
	FetchDepositAddress(ctx context.Context, ticker, network string) (*AddressRecord, error)
	FetchDepositAddressByNetwork(ctx context.Context, network, ticker string) (*AddressRecord, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string) ([]Candle, error)

	Streamer
}

// Streamer exposes push-based market and account data. Each Watch call
// blocks until the next snapshot for the requested subject is available, or
// until ctx is cancelled.
type Streamer interface {
	WatchOrderBook(ctx context.Context, symbol string) (*OrderBook, error)
	WatchTrades(ctx context.Context, symbol string) ([]Trade, error)
	WatchTicker(ctx context.Context, symbol string) (*Ticker, error)
	WatchBalance(ctx context.Context) (map[string]float64, error)
	WatchOrders(ctx context.Context, symbol string) ([]OrderRecord, error)
}
