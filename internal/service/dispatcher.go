package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/market"
	"github.com/cexgate/cexgate/internal/model"
	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/cexgate/cexgate/internal/pkg/metrics"
	"github.com/cexgate/cexgate/internal/policy"
)

const (
	depositLookbackLimit = 100
	orderBookDepth       = 50
)

// Dispatcher routes validated action requests through policy evaluation,
// credential resolution and the exchange adapter, and shapes adapter output
// into response records.
type Dispatcher struct {
	brokers  *broker.Registry
	policies policy.Provider
	readOnly bool
	sink     *metrics.Sink
}

// NewDispatcher builds a dispatcher. sink may be nil; per-action timings are
// then not recorded.
func NewDispatcher(brokers *broker.Registry, policies policy.Provider, readOnly bool, sink *metrics.Sink) *Dispatcher {
	return &Dispatcher{brokers: brokers, policies: policies, readOnly: readOnly, sink: sink}
}

// mutating actions move funds or change exchange state; read-only mode
// blocks exactly these while lookups keep working.
func mutatingAction(action model.Action) bool {
	switch action {
	case model.ActionTransfer, model.ActionCreateOrder, model.ActionCancelOrder:
		return true
	default:
		return false
	}
}

// Dispatch executes one action. sel and adhoc come from the request headers;
// adhoc is nil when the caller supplied no inline credentials.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, req, sel, adhoc)
	status := "ok"
	if err != nil {
		status = "error"
	}

	// Clients can put anything in the action field; unknown values collapse
	// into one label so they cannot mint unbounded metric series.
	label := "unknown"
	if action, ok := model.ValidAction(req.Action); ok {
		label = string(action)
	}
	exchangeLabel := strings.ToLower(req.Exchange)
	metrics.ActionsTotal.WithLabelValues(label, exchangeLabel, status).Inc()
	d.sink.RecordHistogram("action_seconds", time.Since(start).Seconds(),
		map[string]string{"action": label, "exchange": exchangeLabel})
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	if d.readOnly && mutatingAction(model.Action(req.Action)) {
		return nil, apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil)
	}
	switch model.Action(req.Action) {
	case model.ActionDeposit:
		return d.deposit(ctx, req, sel, adhoc)
	case model.ActionFetchDepositAddresses:
		return d.fetchDepositAddresses(ctx, req, sel, adhoc)
	case model.ActionTransfer:
		return d.transfer(ctx, req, sel, adhoc)
	case model.ActionCreateOrder:
		return d.createOrder(ctx, req, sel, adhoc)
	case model.ActionGetOrderDetails:
		return d.orderDetails(ctx, req, sel, adhoc)
	case model.ActionCancelOrder:
		return d.cancelOrder(ctx, req, sel, adhoc)
	case model.ActionFetchBalance:
		return d.fetchBalance(ctx, req, sel, adhoc)
	default:
		return nil, apperrors.NewInvalidArgument(fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (d *Dispatcher) resolve(req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (*broker.Handle, error) {
	handle, err := d.brokers.Resolve(req.Exchange, sel, adhoc)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, err.Error(), err)
	}
	if handle == nil {
		return nil, apperrors.Newf(apperrors.ErrUnauthenticated,
			"no resolvable credentials for exchange %s with selector %s", req.Exchange, sel)
	}
	return handle, nil
}

// deposit confirms an inbound transfer by matching the reported transaction
// hash against the exchange's recent deposit history for the token.
func (d *Dispatcher) deposit(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseDepositPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	deposits, err := handle.Adapter().FetchDeposits(ctx, req.Symbol, depositLookbackLimit)
	if err != nil {
		logger.LogError(ctx, err, "deposit history fetch failed", "exchange", handle.Exchange(), "ticker", req.Symbol)
		return nil, apperrors.NewUpstream("deposit", handle.Exchange(), err)
	}
	for _, record := range deposits {
		if record.TxID == payload.TransactionHash || record.ID == payload.TransactionHash {
			return record, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrInternal,
		"deposit with transaction hash %s not found in the last %d %s deposits",
		payload.TransactionHash, depositLookbackLimit, req.Symbol)
}

func (d *Dispatcher) fetchDepositAddresses(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseDepositAddressesPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	adapter := handle.Adapter()
	var record *exchange.AddressRecord
	switch adapter.DepositAddressMode() {
	case exchange.AddressByNetwork:
		record, err = adapter.FetchDepositAddressByNetwork(ctx, payload.Chain, req.Symbol)
	default:
		record, err = adapter.FetchDepositAddress(ctx, req.Symbol, payload.Chain)
	}
	if err != nil {
		logger.LogError(ctx, err, "deposit address fetch failed",
			"exchange", handle.Exchange(), "ticker", req.Symbol, "chain", payload.Chain)
		return nil, apperrors.NewUpstream("fetchDepositAddresses", handle.Exchange(), err)
	}
	return record, nil
}

// transfer is an outbound withdrawal. It is gated twice: the withdraw policy
// must whitelist the (exchange, chain, address) triple, and the adapter must
// report the chain as a supported network for the token.
func (d *Dispatcher) transfer(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseTransferPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}

	snapshot := d.policies.Current()
	if err := policy.EvaluateWithdraw(snapshot, req.Exchange, payload.Chain, payload.RecipientAddress, payload.Amount, req.Symbol); err != nil {
		metrics.PolicyRejects.WithLabelValues("withdraw").Inc()
		return nil, apperrors.NewPolicyReject(err.Error())
	}

	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}
	adapter := handle.Adapter()

	currency, err := adapter.FetchCurrency(ctx, req.Symbol)
	if err != nil {
		logger.LogError(ctx, err, "currency lookup failed", "exchange", handle.Exchange(), "ticker", req.Symbol)
		return nil, apperrors.NewUpstream("transfer", handle.Exchange(), err)
	}
	if !chainSupported(currency, payload.Chain) {
		return nil, apperrors.NewInvalidArgument(fmt.Sprintf(
			"chain %s is not a supported network for %s on %s", payload.Chain, req.Symbol, handle.Exchange()))
	}

	record, err := adapter.Withdraw(ctx, req.Symbol, payload.Amount, payload.RecipientAddress, "", payload.Chain)
	if err != nil {
		logger.LogError(ctx, err, "withdrawal failed",
			"exchange", handle.Exchange(), "ticker", req.Symbol, "chain", payload.Chain)
		return nil, apperrors.NewUpstream("transfer", handle.Exchange(), err)
	}
	return record, nil
}

func chainSupported(currency *exchange.CurrencyInfo, chain string) bool {
	for name, network := range currency.Networks {
		if strings.EqualFold(name, chain) && network.WithdrawEnabled {
			return true
		}
	}
	return false
}

func (d *Dispatcher) createOrder(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseCreateOrderPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	price := payload.Price
	if payload.OrderType == "market" && price == 0 {
		price, err = d.marketPrice(ctx, handle, payload)
		if err != nil {
			return nil, err
		}
	}

	execution, err := ResolveOrderExecution(ctx, d.policies.Current(), handle, payload.FromToken, payload.ToToken, payload.Amount, price)
	if err != nil {
		return nil, err
	}

	record, err := handle.Adapter().CreateOrder(ctx, execution.Symbol, payload.OrderType, execution.Side, execution.AmountBase, execution.Price)
	if err != nil {
		logger.LogError(ctx, err, "order placement failed",
			"exchange", handle.Exchange(), "symbol", execution.Symbol, "side", execution.Side)
		return nil, apperrors.NewUpstream("createOrder", handle.Exchange(), err)
	}
	return record, nil
}

// marketPrice derives an executable price for a market order from a VWAP
// walk of the live book. The fill price of the walk is the level a taker of
// this size would sweep up to.
func (d *Dispatcher) marketPrice(ctx context.Context, handle *broker.Handle, payload *model.CreateOrderPayload) (float64, error) {
	adapter := handle.Adapter()
	markets, err := adapter.Markets(ctx)
	if err != nil {
		return 0, apperrors.NewUpstream("market lookup", handle.Exchange(), err)
	}

	forward := payload.FromToken + "/" + payload.ToToken
	reverse := payload.ToToken + "/" + payload.FromToken

	var symbol, side string
	if _, ok := markets[forward]; ok {
		symbol, side = forward, "sell"
	} else if _, ok := markets[reverse]; ok {
		symbol, side = reverse, "buy"
	} else {
		return 0, apperrors.Newf(apperrors.ErrUnknownMarket,
			"neither %s nor %s is tradable on %s", forward, reverse, handle.Exchange())
	}

	book, err := adapter.FetchOrderBook(ctx, symbol, orderBookDepth)
	if err != nil {
		return 0, apperrors.NewUpstream("order book fetch", handle.Exchange(), err)
	}

	size := decimal.NewFromFloat(payload.Amount)
	if side == "buy" {
		// Amount is denominated in the quote currency; estimate the base
		// size with the best ask before walking the book.
		if len(book.Asks) == 0 {
			return 0, apperrors.NewInvalidArgument(fmt.Sprintf("no asks available for %s", symbol))
		}
		size = size.Div(book.Asks[0].Price)
	}

	result, err := market.VWAP(market.SideLevels(book, side), size)
	if err != nil {
		return 0, apperrors.NewInvalidArgument(err.Error())
	}
	price, _ := result.FillPrice.Float64()
	return price, nil
}

func (d *Dispatcher) orderDetails(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseOrderRefPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	record, err := handle.Adapter().FetchOrder(ctx, req.Symbol, payload.OrderID)
	if err != nil {
		logger.LogError(ctx, err, "order lookup failed",
			"exchange", handle.Exchange(), "symbol", req.Symbol, "order_id", payload.OrderID)
		return nil, apperrors.NewUpstream("getOrderDetails", handle.Exchange(), err)
	}
	return record, nil
}

func (d *Dispatcher) cancelOrder(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	payload, err := model.ParseOrderRefPayload(req.Payload)
	if err != nil {
		return nil, apperrors.NewInvalidArgument(err.Error())
	}
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	record, err := handle.Adapter().CancelOrder(ctx, req.Symbol, payload.OrderID)
	if err != nil {
		logger.LogError(ctx, err, "order cancel failed",
			"exchange", handle.Exchange(), "symbol", req.Symbol, "order_id", payload.OrderID)
		return nil, apperrors.NewUpstream("cancelOrder", handle.Exchange(), err)
	}
	return record, nil
}

// fetchBalance reports the free balance for a single ticker. A ticker the
// exchange has never seen reads as zero rather than an error.
func (d *Dispatcher) fetchBalance(ctx context.Context, req *model.ActionRequest, sel broker.Selector, adhoc *broker.Credentials) (any, error) {
	handle, err := d.resolve(req, sel, adhoc)
	if err != nil {
		return nil, err
	}

	balances, err := handle.Adapter().FetchFreeBalance(ctx)
	if err != nil {
		logger.LogError(ctx, err, "balance fetch failed", "exchange", handle.Exchange())
		return nil, apperrors.NewUpstream("fetchBalance", handle.Exchange(), err)
	}
	return model.BalanceResult{Ticker: req.Symbol, Free: balances[strings.ToUpper(req.Symbol)]}, nil
}
