package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/cexgate/cexgate/internal/model"
	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/cexgate/cexgate/internal/pkg/metrics"
)

// SubState is the lifecycle position of one subscription.
type SubState int

const (
	StateStarting SubState = iota
	StateStreaming
	StateTerminated
)

func (s SubState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TerminationReason records why a subscription stopped.
type TerminationReason string

const (
	ReasonNone         TerminationReason = ""
	ReasonClientClosed TerminationReason = "client_closed"
	ReasonCancelled    TerminationReason = "cancelled"
	ReasonSetupFailed  TerminationReason = "setup_failed"
	ReasonAdapterError TerminationReason = "adapter_error"
)

// EventSink delivers one event to the subscriber. Returning an error means
// the subscriber is gone and the subscription must stop.
type EventSink func(event model.StreamEvent) error

const ohlcvPollInterval = 5 * time.Second

// SubscriptionManager runs streaming subscriptions: one per connection,
// pulling snapshots from the adapter's Watch calls and pushing them to the
// sink until the context is cancelled or the upstream fails. A failed
// subscription emits exactly one error event and terminates; it is never
// retried server-side.
type SubscriptionManager struct {
	brokers *broker.Registry
	sink    *metrics.Sink
}

// NewSubscriptionManager builds a manager. sink may be nil; termination
// counts are then not recorded.
func NewSubscriptionManager(brokers *broker.Registry, sink *metrics.Sink) *SubscriptionManager {
	return &SubscriptionManager{brokers: brokers, sink: sink}
}

// Subscription is one live stream. State transitions are
// starting -> streaming -> terminated; a setup failure goes straight from
// starting to terminated.
type Subscription struct {
	typ      model.SubscriptionType
	symbol   string
	lastPoll time.Time

	mu     sync.Mutex
	state  SubState
	reason TerminationReason
}

func (s *Subscription) State() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscription) Reason() TerminationReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Subscription) setStreaming() {
	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()
}

func (s *Subscription) terminate(reason TerminationReason) {
	s.mu.Lock()
	s.state = StateTerminated
	s.reason = reason
	s.mu.Unlock()
}

// Run drives one subscription to termination and returns it for inspection.
// It blocks until ctx is cancelled, the sink reports the client gone, or the
// upstream fails.
func (m *SubscriptionManager) Run(ctx context.Context, req *model.SubscribeRequest, sel broker.Selector, adhoc *broker.Credentials, sink EventSink) *Subscription {
	sub := &Subscription{state: StateStarting}

	typ, ok := model.ValidSubscriptionType(req.Type)
	if !ok {
		m.fail(sub, sink, model.SubscriptionType(req.Type), ReasonSetupFailed,
			apperrors.NewInvalidArgument(fmt.Sprintf("unknown subscription type %q", req.Type)))
		return sub
	}
	sub.typ = typ
	sub.symbol = req.Symbol

	if req.Exchange == "" {
		m.fail(sub, sink, typ, ReasonSetupFailed,
			apperrors.NewInvalidArgument("exchange is required"))
		return sub
	}

	if typ != model.SubBalance && req.Symbol == "" {
		m.fail(sub, sink, typ, ReasonSetupFailed,
			apperrors.NewInvalidArgument(fmt.Sprintf("symbol is required for %s subscriptions", typ)))
		return sub
	}

	handle, err := m.brokers.Resolve(req.Exchange, sel, adhoc)
	if err != nil {
		m.fail(sub, sink, typ, ReasonSetupFailed, apperrors.NewInvalidArgument(err.Error()))
		return sub
	}
	if handle == nil {
		m.fail(sub, sink, typ, ReasonSetupFailed, apperrors.Newf(apperrors.ErrUnauthenticated,
			"no resolvable credentials for exchange %s with selector %s", req.Exchange, sel))
		return sub
	}

	metrics.StreamsActive.WithLabelValues(string(typ)).Inc()
	defer metrics.StreamsActive.WithLabelValues(string(typ)).Dec()

	sub.setStreaming()
	m.stream(ctx, sub, handle, req, sink)
	return sub
}

func (m *SubscriptionManager) stream(ctx context.Context, sub *Subscription, handle *broker.Handle, req *model.SubscribeRequest, sink EventSink) {
	adapter := handle.Adapter()
	for {
		data, err := m.next(ctx, adapter, sub, req)
		if ctx.Err() != nil {
			m.terminate(sub, ReasonCancelled)
			return
		}
		if err != nil {
			logger.LogError(ctx, err, "subscription upstream failed",
				"exchange", handle.Exchange(), "type", string(sub.typ), "symbol", sub.symbol)
			m.emitError(sink, sub.typ, apperrors.NewUpstream("subscribe", handle.Exchange(), err))
			m.terminate(sub, ReasonAdapterError)
			return
		}

		metrics.StreamEvents.WithLabelValues(string(sub.typ)).Inc()
		if err := sink(model.StreamEvent{Type: sub.typ, Data: data}); err != nil {
			m.terminate(sub, ReasonClientClosed)
			return
		}
	}
}

func (m *SubscriptionManager) terminate(sub *Subscription, reason TerminationReason) {
	sub.terminate(reason)
	typeLabel := "unknown"
	if _, ok := model.ValidSubscriptionType(string(sub.typ)); ok {
		typeLabel = string(sub.typ)
	}
	m.sink.RecordCounter("stream_terminations_total", 1,
		map[string]string{"type": typeLabel, "reason": string(reason)})
}

// next blocks until the adapter produces the subscription's next snapshot.
func (m *SubscriptionManager) next(ctx context.Context, adapter exchange.Adapter, sub *Subscription, req *model.SubscribeRequest) (any, error) {
	switch sub.typ {
	case model.SubOrderBook:
		return adapter.WatchOrderBook(ctx, req.Symbol)
	case model.SubTrades:
		return adapter.WatchTrades(ctx, req.Symbol)
	case model.SubTicker:
		return adapter.WatchTicker(ctx, req.Symbol)
	case model.SubBalance:
		return adapter.WatchBalance(ctx)
	case model.SubOrders:
		return adapter.WatchOrders(ctx, req.Symbol)
	case model.SubOHLCV:
		return m.pollOHLCV(ctx, adapter, sub, req)
	default:
		return nil, fmt.Errorf("unsupported subscription type %s", sub.typ)
	}
}

// pollOHLCV paces candle fetches on a fixed cadence. The exchange has no
// push channel for klines at this granularity, so the stream is poll-driven.
func (m *SubscriptionManager) pollOHLCV(ctx context.Context, adapter exchange.Adapter, sub *Subscription, req *model.SubscribeRequest) (any, error) {
	if !sub.lastPoll.IsZero() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ohlcvPollInterval):
		}
	}
	sub.lastPoll = time.Now()

	timeframe := req.Options["timeframe"]
	if timeframe == "" {
		timeframe = "1m"
	}
	return adapter.FetchOHLCV(ctx, req.Symbol, timeframe)
}

func (m *SubscriptionManager) fail(sub *Subscription, sink EventSink, typ model.SubscriptionType, reason TerminationReason, appErr *apperrors.AppError) {
	m.emitError(sink, typ, appErr)
	sub.typ = typ
	m.terminate(sub, reason)
}

// emitError pushes the single terminal error event. Sink failures are
// ignored here since the subscription is ending either way.
func (m *SubscriptionManager) emitError(sink EventSink, typ model.SubscriptionType, appErr *apperrors.AppError) {
	_ = sink(model.StreamEvent{
		Type:  typ,
		Error: &model.StreamError{Code: string(appErr.Type), Message: appErr.Message},
	})
}
