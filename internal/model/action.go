package model

// Action names the unary operations the dispatcher understands. Anything
// else is rejected as an invalid argument before touching an adapter.
type Action string

const (
	ActionDeposit               Action = "deposit"
	ActionFetchDepositAddresses Action = "fetchDepositAddresses"
	ActionTransfer              Action = "transfer"
	ActionCreateOrder           Action = "createOrder"
	ActionGetOrderDetails       Action = "getOrderDetails"
	ActionCancelOrder           Action = "cancelOrder"
	ActionFetchBalance          Action = "fetchBalance"
)

func ValidAction(raw string) (Action, bool) {
	switch Action(raw) {
	case ActionDeposit, ActionFetchDepositAddresses, ActionTransfer, ActionCreateOrder,
		ActionGetOrderDetails, ActionCancelOrder, ActionFetchBalance:
		return Action(raw), true
	default:
		return "", false
	}
}

// ActionRequest is the incoming JSON body for POST /v1/actions.
type ActionRequest struct {
	Action   string            `json:"action" binding:"required"`
	Exchange string            `json:"exchange" binding:"required"`
	Symbol   string            `json:"symbol" binding:"required"`
	Payload  map[string]string `json:"payload"`
}

// ActionResponse wraps the shaped result of a successful action.
type ActionResponse struct {
	Result any `json:"result"`
}

// SubscriptionType names the streaming subscription kinds.
type SubscriptionType string

const (
	SubOrderBook SubscriptionType = "orderbook"
	SubTrades    SubscriptionType = "trades"
	SubTicker    SubscriptionType = "ticker"
	SubOHLCV     SubscriptionType = "ohlcv"
	SubBalance   SubscriptionType = "balance"
	SubOrders    SubscriptionType = "orders"
)

func ValidSubscriptionType(raw string) (SubscriptionType, bool) {
	switch SubscriptionType(raw) {
	case SubOrderBook, SubTrades, SubTicker, SubOHLCV, SubBalance, SubOrders:
		return SubscriptionType(raw), true
	default:
		return "", false
	}
}

// SubscribeRequest describes one streaming subscription.
type SubscribeRequest struct {
	Exchange string            `json:"exchange"`
	Symbol   string            `json:"symbol"`
	Type     string            `json:"type"`
	Options  map[string]string `json:"options,omitempty"`
}

// StreamEvent is one frame pushed to a streaming subscriber. Either Data or
// Error is set, never both.
type StreamEvent struct {
	Type  SubscriptionType `json:"type"`
	Data  any              `json:"data,omitempty"`
	Error *StreamError     `json:"error,omitempty"`
}

type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BalanceResult is the fetchBalance response shape.
type BalanceResult struct {
	Ticker string  `json:"ticker"`
	Free   float64 `json:"free"`
}
