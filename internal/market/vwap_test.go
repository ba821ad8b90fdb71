package market

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cexgate/cexgate/internal/exchange"
)

func levels(pairs ...float64) []exchange.Level {
	out := make([]exchange.Level, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, exchange.Level{
			Price: decimal.NewFromFloat(pairs[i]),
			Size:  decimal.NewFromFloat(pairs[i+1]),
		})
	}
	return out
}

func TestVWAPWalksLevels(t *testing.T) {
	// 4 @ 100 then 6 @ 99: cost 994 over 10 units.
	result, err := VWAP(levels(100, 4, 99, 6), decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AvgPrice.Equal(decimal.NewFromFloat(99.4)) {
		t.Fatalf("avg price: want 99.4, got %s", result.AvgPrice)
	}
	if !result.FillPrice.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("fill price: want 99, got %s", result.FillPrice)
	}
	if !result.Filled.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("filled: want 10, got %s", result.Filled)
	}
}

func TestVWAPPartialLastLevel(t *testing.T) {
	// Only 2 of the 6 units at 99 are needed.
	result, err := VWAP(levels(100, 4, 99, 6), decimal.NewFromInt(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 4*100 + 2*99 = 598
	if !result.AvgPrice.Mul(result.Filled).Equal(decimal.NewFromInt(598)) {
		t.Fatalf("cost: want 598, got %s", result.AvgPrice.Mul(result.Filled))
	}
	if !result.FillPrice.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("fill price: want 99, got %s", result.FillPrice)
	}
}

func TestVWAPInsufficientDepth(t *testing.T) {
	_, err := VWAP(levels(100, 5), decimal.NewFromInt(10))
	if err == nil {
		t.Fatalf("expected insufficient depth error")
	}
	if !strings.Contains(err.Error(), "only 5 of 10 filled") {
		t.Fatalf("error must name filled-of-requested, got: %v", err)
	}
}

func TestVWAPRejectsNonPositiveSize(t *testing.T) {
	if _, err := VWAP(levels(100, 5), decimal.Zero); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestSideLevels(t *testing.T) {
	book := &exchange.OrderBook{
		Bids: levels(99, 1),
		Asks: levels(101, 1),
	}
	if got := SideLevels(book, "buy"); !got[0].Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("buys must consume asks")
	}
	if got := SideLevels(book, "sell"); !got[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("sells must consume bids")
	}
}
