package market

import (
	"fmt"

	"github.com/cexgate/cexgate/internal/exchange"
	"github.com/shopspring/decimal"
)

// VWAPResult is the outcome of walking one side of an order book for a
// requested size.
type VWAPResult struct {
	// AvgPrice is the volume-weighted average across all levels touched.
	AvgPrice decimal.Decimal
	// FillPrice is the price of the last (worst) level touched; a limit
	// order at this price would fill the whole size against the snapshot.
	FillPrice decimal.Decimal
	Filled    decimal.Decimal
}

// VWAP walks levels best-first, accumulating volume until size is filled.
// Levels must already be sorted best-first (bids high to low, asks low to
// high), which is how adapters deliver them.
func VWAP(levels []exchange.Level, size decimal.Decimal) (VWAPResult, error) {
	if size.Sign() <= 0 {
		return VWAPResult{}, fmt.Errorf("requested size must be positive, got %s", size)
	}

	cost := decimal.Zero
	filled := decimal.Zero
	fillPrice := decimal.Zero

	for _, level := range levels {
		remaining := size.Sub(filled)
		if remaining.Sign() <= 0 {
			break
		}
		take := level.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		cost = cost.Add(level.Price.Mul(take))
		filled = filled.Add(take)
		fillPrice = level.Price
	}

	if filled.LessThan(size) {
		return VWAPResult{}, fmt.Errorf("insufficient depth: only %s of %s filled", filled, size)
	}

	return VWAPResult{
		AvgPrice:  cost.Div(filled),
		FillPrice: fillPrice,
		Filled:    filled,
	}, nil
}

// SideLevels picks the book side a taker order consumes: buys lift asks,
// sells hit bids.
func SideLevels(book *exchange.OrderBook, side string) []exchange.Level {
	if side == "buy" {
		return book.Asks
	}
	return book.Bids
}
