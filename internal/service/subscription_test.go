package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/model"
	"github.com/cexgate/cexgate/internal/pkg/metrics"
)

func collectEvents(events *[]model.StreamEvent) EventSink {
	return func(event model.StreamEvent) error {
		*events = append(*events, event)
		return nil
	}
}

func subReq(typ, symbol string) *model.SubscribeRequest {
	return &model.SubscribeRequest{Exchange: "binance", Symbol: symbol, Type: typ}
}

func TestSubscriptionStreamsUntilCancelled(t *testing.T) {
	book := &exchange.OrderBook{Symbol: "BTC/USDT", Bids: []exchange.Level{
		{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)},
	}}
	mock := &mockAdapter{watchBooks: []*exchange.OrderBook{book, book}}
	m := NewSubscriptionManager(newTestBrokers(mock), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var events []model.StreamEvent
	sink := func(event model.StreamEvent) error {
		events = append(events, event)
		if len(events) == 2 {
			// scripted snapshots exhausted; the next Watch blocks on ctx
			cancel()
		}
		return nil
	}

	sub := m.Run(ctx, subReq("orderbook", "BTC/USDT"), broker.Primary(), nil, sink)

	if sub.State() != StateTerminated {
		t.Fatalf("expected terminated state, got %s", sub.State())
	}
	if sub.Reason() != ReasonCancelled {
		t.Fatalf("expected cancelled, got %s", sub.Reason())
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 data events, got %d", len(events))
	}
	for _, event := range events {
		if event.Error != nil || event.Type != model.SubOrderBook {
			t.Fatalf("unexpected event: %+v", event)
		}
	}
}

func TestSubscriptionAdapterErrorTerminatesWithOneErrorEvent(t *testing.T) {
	mock := &mockAdapter{watchErr: errors.New("stream closed by exchange")}
	m := NewSubscriptionManager(newTestBrokers(mock), nil)

	var events []model.StreamEvent
	sub := m.Run(context.Background(), subReq("trades", "BTC/USDT"), broker.Primary(), nil, collectEvents(&events))

	if sub.Reason() != ReasonAdapterError {
		t.Fatalf("expected adapter_error, got %s", sub.Reason())
	}
	if len(events) != 1 || events[0].Error == nil {
		t.Fatalf("expected exactly one terminal error event, got %+v", events)
	}
	// No retry: one upstream failure means one Watch call.
	if len(mock.calls) != 1 {
		t.Fatalf("failed subscription must not be retried: %v", mock.calls)
	}
}

func TestSubscriptionClientGone(t *testing.T) {
	book := &exchange.OrderBook{Symbol: "BTC/USDT"}
	mock := &mockAdapter{watchBooks: []*exchange.OrderBook{book, book, book}}
	m := NewSubscriptionManager(newTestBrokers(mock), nil)

	sent := 0
	sink := func(event model.StreamEvent) error {
		sent++
		if sent >= 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	sub := m.Run(context.Background(), subReq("orderbook", "BTC/USDT"), broker.Primary(), nil, sink)
	if sub.Reason() != ReasonClientClosed {
		t.Fatalf("expected client_closed, got %s", sub.Reason())
	}
}

func TestSubscriptionUnknownType(t *testing.T) {
	m := NewSubscriptionManager(newTestBrokers(&mockAdapter{}), nil)

	var events []model.StreamEvent
	sub := m.Run(context.Background(), subReq("candlesticks", "BTC/USDT"), broker.Primary(), nil, collectEvents(&events))

	if sub.Reason() != ReasonSetupFailed {
		t.Fatalf("expected setup_failed, got %s", sub.Reason())
	}
	if len(events) != 1 || events[0].Error == nil {
		t.Fatalf("setup failure must emit a single error event, got %+v", events)
	}
}

func TestSubscriptionSymbolRequired(t *testing.T) {
	m := NewSubscriptionManager(newTestBrokers(&mockAdapter{}), nil)

	var events []model.StreamEvent
	sub := m.Run(context.Background(), subReq("ticker", ""), broker.Primary(), nil, collectEvents(&events))
	if sub.Reason() != ReasonSetupFailed {
		t.Fatalf("ticker without a symbol must fail setup, got %s", sub.Reason())
	}
}

func TestSubscriptionBalanceNeedsNoSymbol(t *testing.T) {
	mock := &mockAdapter{}
	m := NewSubscriptionManager(newTestBrokers(mock), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var events []model.StreamEvent
	sub := m.Run(ctx, subReq("balance", ""), broker.Primary(), nil, collectEvents(&events))

	// The watch blocked until the deadline; that is a cancellation, not a
	// setup failure.
	if sub.Reason() != ReasonCancelled {
		t.Fatalf("expected cancelled, got %s", sub.Reason())
	}
	if len(events) != 0 {
		t.Fatalf("no events expected, got %+v", events)
	}
}

func TestSubscriptionExchangeRequired(t *testing.T) {
	m := NewSubscriptionManager(newTestBrokers(&mockAdapter{}), nil)

	var events []model.StreamEvent
	req := &model.SubscribeRequest{Symbol: "BTC/USDT", Type: "orderbook"}
	sub := m.Run(context.Background(), req, broker.Primary(), nil, collectEvents(&events))

	if sub.Reason() != ReasonSetupFailed {
		t.Fatalf("empty exchange must fail setup, got %s", sub.Reason())
	}
	if len(events) != 1 || events[0].Error == nil {
		t.Fatalf("expected one terminal error event, got %+v", events)
	}
	// A missing field is the caller's mistake, not a credential problem.
	if events[0].Error.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", events[0].Error.Code)
	}
}

func TestSubscriptionTerminationRecorded(t *testing.T) {
	book := &exchange.OrderBook{Symbol: "BTC/USDT"}
	mock := &mockAdapter{watchBooks: []*exchange.OrderBook{book}}
	reg := prometheus.NewRegistry()
	m := NewSubscriptionManager(newTestBrokers(mock), metrics.NewSink("testgw", reg))

	ctx, cancel := context.WithCancel(context.Background())
	sink := func(event model.StreamEvent) error {
		cancel()
		return nil
	}
	m.Run(ctx, subReq("orderbook", "BTC/USDT"), broker.Primary(), nil, sink)

	count, err := testutil.GatherAndCount(reg, "testgw_stream_terminations_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one termination series, got %d", count)
	}
}

func TestSubscriptionNoCredentials(t *testing.T) {
	factory := exchange.NewRegistry()
	factory.Register(exchange.Binance, func(apiKey, apiSecret string) (exchange.Adapter, error) {
		return &mockAdapter{}, nil
	})
	m := NewSubscriptionManager(broker.NewRegistry(factory), nil)

	var events []model.StreamEvent
	sub := m.Run(context.Background(), subReq("orderbook", "BTC/USDT"), broker.Primary(), nil, collectEvents(&events))

	if sub.Reason() != ReasonSetupFailed {
		t.Fatalf("expected setup_failed, got %s", sub.Reason())
	}
	if len(events) != 1 || events[0].Error == nil {
		t.Fatalf("expected one terminal error event, got %+v", events)
	}
}
