package service

import (
	"context"
	"fmt"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/pkg/metrics"
	"github.com/cexgate/cexgate/internal/policy"
)

// OrderExecution is the resolved plan for a conversion: the tradable symbol,
// the side to take on it, and the amount denominated in its base currency.
type OrderExecution struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	AmountBase float64 `json:"amount_base"`
	Price      float64 `json:"price"`
}

// ResolveOrderExecution authorizes a conversion against the policy snapshot
// and maps the desired (from, to, amount) onto a symbol the exchange
// actually trades. When only the reverse pair is tradable the amount arrives
// denominated in the quote currency and is converted to base units at the
// given price.
func ResolveOrderExecution(ctx context.Context, cfg *policy.Config, handle *broker.Handle, fromToken, toToken string, amount, price float64) (*OrderExecution, error) {
	exchangeName := handle.Exchange()
	if err := policy.EvaluateOrder(cfg, fromToken, toToken, amount, exchangeName); err != nil {
		metrics.PolicyRejects.WithLabelValues("order").Inc()
		return nil, apperrors.NewPolicyReject(err.Error())
	}

	markets, err := handle.Adapter().Markets(ctx)
	if err != nil {
		return nil, apperrors.NewUpstream("market lookup", exchangeName, err)
	}

	forward := fromToken + "/" + toToken
	reverse := toToken + "/" + fromToken

	if _, ok := markets[forward]; ok {
		// amount is already denominated in the base currency
		return &OrderExecution{
			Symbol:     forward,
			Side:       "sell",
			AmountBase: amount,
			Price:      price,
		}, nil
	}
	if _, ok := markets[reverse]; ok {
		if price <= 0 {
			return nil, apperrors.NewInvalidArgument(
				fmt.Sprintf("price is required to convert %s into base units of %s", fromToken, reverse))
		}
		return &OrderExecution{
			Symbol:     reverse,
			Side:       "buy",
			AmountBase: amount / price,
			Price:      price,
		}, nil
	}

	return nil, apperrors.Newf(apperrors.ErrUnknownMarket,
		"neither %s nor %s is tradable on %s", forward, reverse, exchangeName)
}
