package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/shopspring/decimal"
)

// Adapter bridges the gateway's exchange capability onto the go-binance
// connectivity library. One instance is bound to one credential set.
type Adapter struct {
	client *binance.Client

	marketsMu sync.RWMutex
	markets   map[string]exchange.Market // keyed by BASE/QUOTE

	hubsMu sync.Mutex
	hubs   map[string]*hub
}

func New(apiKey, apiSecret string) (exchange.Adapter, error) {
	return &Adapter{
		client: binance.NewClient(apiKey, apiSecret),
		hubs:   make(map[string]*hub),
	}, nil
}

func (a *Adapter) Name() string { return "binance" }

// nativeSymbol converts BASE/QUOTE into binance's concatenated form.
func nativeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func (a *Adapter) Markets(ctx context.Context) (map[string]exchange.Market, error) {
	a.marketsMu.RLock()
	cached := a.markets
	a.marketsMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	markets := make(map[string]exchange.Market, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		key := s.BaseAsset + "/" + s.QuoteAsset
		markets[key] = exchange.Market{
			Symbol: key,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		}
	}

	a.marketsMu.Lock()
	a.markets = markets
	a.marketsMu.Unlock()
	return markets, nil
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	if depth <= 0 {
		depth = 100
	}
	resp, err := a.client.NewDepthService().Symbol(nativeSymbol(symbol)).Limit(depth).Do(ctx)
	if err != nil {
		return nil, err
	}
	book := &exchange.OrderBook{
		Symbol:    symbol,
		Bids:      make([]exchange.Level, 0, len(resp.Bids)),
		Asks:      make([]exchange.Level, 0, len(resp.Asks)),
		Timestamp: time.Now().UTC(),
	}
	for _, b := range resp.Bids {
		level, err := toLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, level)
	}
	for _, s := range resp.Asks {
		level, err := toLevel(s.Price, s.Quantity)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, level)
	}
	return book, nil
}

func toLevel(price, size string) (exchange.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return exchange.Level{}, fmt.Errorf("bad price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return exchange.Level{}, fmt.Errorf("bad size %q: %w", size, err)
	}
	return exchange.Level{Price: p, Size: s}, nil
}

func (a *Adapter) FetchFreeBalance(ctx context.Context) (map[string]float64, error) {
	account, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		if free > 0 {
			balances[b.Asset] = free
		}
	}
	return balances, nil
}

func (a *Adapter) FetchCurrency(ctx context.Context, ticker string) (*exchange.CurrencyInfo, error) {
	coins, err := a.client.NewGetAllCoinsInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	ticker = strings.ToUpper(ticker)
	for _, coin := range coins {
		if coin.Coin != ticker {
			continue
		}
		info := &exchange.CurrencyInfo{
			Ticker:   ticker,
			Networks: make(map[string]exchange.NetworkInfo, len(coin.NetworkList)),
		}
		for _, n := range coin.NetworkList {
			info.Networks[n.Network] = exchange.NetworkInfo{
				Name:            n.Network,
				DepositEnabled:  n.DepositEnable,
				WithdrawEnabled: n.WithdrawEnable,
			}
		}
		return info, nil
	}
	return nil, fmt.Errorf("currency %s not listed", ticker)
}

func (a *Adapter) CreateOrder(ctx context.Context, symbol, orderType, side string, amount, price float64) (*exchange.OrderRecord, error) {
	svc := a.client.NewCreateOrderService().
		Symbol(nativeSymbol(symbol)).
		Side(binance.SideType(strings.ToUpper(side))).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64))

	switch strings.ToLower(orderType) {
	case "market":
		svc = svc.Type(binance.OrderTypeMarket)
	default:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(price, 'f', -1, 64))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.OrderRecord{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   strings.ToLower(string(resp.Side)),
		Type:   strings.ToLower(string(resp.Type)),
		Status: string(resp.Status),
		Price:  parseFloat(resp.Price),
		Amount: parseFloat(resp.OrigQuantity),
		Filled: parseFloat(resp.ExecutedQuantity),
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderRecord, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	resp, err := a.client.NewCancelOrderService().
		Symbol(nativeSymbol(symbol)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.OrderRecord{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   strings.ToLower(string(resp.Side)),
		Type:   strings.ToLower(string(resp.Type)),
		Status: string(resp.Status),
		Price:  parseFloat(resp.Price),
		Amount: parseFloat(resp.OrigQuantity),
		Filled: parseFloat(resp.ExecutedQuantity),
	}, nil
}

func (a *Adapter) FetchOrder(ctx context.Context, symbol, orderID string) (*exchange.OrderRecord, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	order, err := a.client.NewGetOrderService().
		Symbol(nativeSymbol(symbol)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.OrderRecord{
		ID:     strconv.FormatInt(order.OrderID, 10),
		Symbol: symbol,
		Side:   strings.ToLower(string(order.Side)),
		Type:   strings.ToLower(string(order.Type)),
		Status: string(order.Status),
		Price:  parseFloat(order.Price),
		Amount: parseFloat(order.OrigQuantity),
		Filled: parseFloat(order.ExecutedQuantity),
	}, nil
}

func (a *Adapter) Withdraw(ctx context.Context, ticker string, amount float64, address, tag, network string) (*exchange.TransactionRecord, error) {
	svc := a.client.NewCreateWithdrawService().
		Coin(strings.ToUpper(ticker)).
		Address(address).
		Amount(strconv.FormatFloat(amount, 'f', -1, 64))
	if network != "" {
		svc = svc.Network(network)
	}
	if tag != "" {
		svc = svc.AddressTag(tag)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.TransactionRecord{
		ID:      resp.ID,
		Ticker:  strings.ToUpper(ticker),
		Amount:  amount,
		Address: address,
		Network: network,
	}, nil
}

func (a *Adapter) FetchDeposits(ctx context.Context, ticker string, limit int) ([]exchange.DepositRecord, error) {
	svc := a.client.NewListDepositsService()
	if ticker != "" {
		svc = svc.Coin(strings.ToUpper(ticker))
	}
	deposits, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(deposits) > limit {
		deposits = deposits[:limit]
	}
	records := make([]exchange.DepositRecord, 0, len(deposits))
	for _, d := range deposits {
		records = append(records, exchange.DepositRecord{
			ID:      d.TxID,
			TxID:    d.TxID,
			Ticker:  d.Coin,
			Amount:  parseFloat(d.Amount),
			Network: d.Network,
			Address: d.Address,
			Status:  strconv.Itoa(d.Status),
		})
	}
	return records, nil
}

// Binance resolves deposit addresses by coin symbol plus optional network.
func (a *Adapter) DepositAddressMode() exchange.AddressMode {
	return exchange.AddressBySymbol
}

func (a *Adapter) FetchDepositAddress(ctx context.Context, ticker, network string) (*exchange.AddressRecord, error) {
	svc := a.client.NewGetDepositAddressService().Coin(strings.ToUpper(ticker))
	if network != "" {
		svc = svc.Network(network)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.AddressRecord{
		Ticker:  strings.ToUpper(ticker),
		Address: resp.Address,
		Tag:     resp.Tag,
		Network: network,
	}, nil
}

func (a *Adapter) FetchDepositAddressByNetwork(ctx context.Context, network, ticker string) (*exchange.AddressRecord, error) {
	return a.FetchDepositAddress(ctx, ticker, network)
}

func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, timeframe string) ([]exchange.Candle, error) {
	if timeframe == "" {
		timeframe = "1m"
	}
	klines, err := a.client.NewKlinesService().
		Symbol(nativeSymbol(symbol)).
		Interval(timeframe).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	candles := make([]exchange.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, exchange.Candle{
			OpenTime: k.OpenTime,
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return candles, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
