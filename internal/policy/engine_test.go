package policy

import (
	"strings"
	"testing"
)

func withdrawConfig(rules ...WithdrawRule) *Config {
	return &Config{Withdraw: WithdrawPolicy{Rules: rules}}
}

func TestEvaluateWithdrawSpecificRuleWins(t *testing.T) {
	// The wildcard rule would allow the address, the exact rule would not;
	// the exact rule is the one that must apply.
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "*", Network: "*", Whitelist: []string{"0xaaa"}},
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{"0xbbb"}},
	)
	cfg.normalize()

	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xaaa", 1, "ETH"); err == nil {
		t.Fatalf("expected rejection from the exact rule, got nil")
	}
	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xbbb", 1, "ETH"); err != nil {
		t.Fatalf("expected exact rule to allow 0xbbb: %v", err)
	}
	// A different exchange falls through to the wildcard rule.
	if err := EvaluateWithdraw(cfg, "okx", "erc20", "0xaaa", 1, "ETH"); err != nil {
		t.Fatalf("expected wildcard rule to allow 0xaaa on okx: %v", err)
	}
}

func TestEvaluateWithdrawRankOrder(t *testing.T) {
	// exact/* must beat */exact regardless of declaration order.
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "*", Network: "erc20", Whitelist: []string{"0xnet"}},
		WithdrawRule{Exchange: "binance", Network: "*", Whitelist: []string{"0xexch"}},
	)
	cfg.normalize()

	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xexch", 1, "ETH"); err != nil {
		t.Fatalf("expected exchange-specific rule to apply: %v", err)
	}
	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xnet", 1, "ETH"); err == nil {
		t.Fatalf("network-specific rule must not apply when an exchange-specific rule matches")
	}
}

func TestEvaluateWithdrawFirstSeenBreaksTies(t *testing.T) {
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{"0xfirst"}},
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{"0xsecond"}},
	)
	cfg.normalize()

	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xfirst", 1, "ETH"); err != nil {
		t.Fatalf("first matching rule must win: %v", err)
	}
	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xsecond", 1, "ETH"); err == nil {
		t.Fatalf("second rule at equal rank must not be consulted")
	}
}

func TestEvaluateWithdrawCaseInsensitiveAddress(t *testing.T) {
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{"0xAbCdEf0123"}},
	)
	cfg.normalize()

	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xABCDEF0123", 1, "ETH"); err != nil {
		t.Fatalf("address check must be case-insensitive: %v", err)
	}
}

func TestEvaluateWithdrawNoMatchingRule(t *testing.T) {
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{"0xaaa"}},
	)
	err := EvaluateWithdraw(cfg, "binance", "trc20", "0xaaa", 1, "USDT")
	if err == nil {
		t.Fatalf("expected rejection for an uncovered network")
	}
	if !strings.Contains(err.Error(), "not authorized") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestEvaluateWithdrawEmptyWhitelistRejectsAll(t *testing.T) {
	cfg := withdrawConfig(
		WithdrawRule{Exchange: "binance", Network: "erc20", Whitelist: []string{}},
	)
	if err := EvaluateWithdraw(cfg, "binance", "erc20", "0xanything", 1, "ETH"); err == nil {
		t.Fatalf("empty whitelist must reject every address")
	}
}

func orderConfig(markets []string, limits ...OrderLimit) *Config {
	return &Config{Order: OrderPolicy{Rule: OrderRule{Markets: markets, Limits: limits}}}
}

func TestEvaluateOrderMarketPatterns(t *testing.T) {
	tests := []struct {
		name     string
		markets  []string
		from, to string
		exchange string
		ok       bool
	}{
		{"exact market", []string{"BINANCE:BTC/USDT"}, "BTC", "USDT", "binance", true},
		{"reverse direction authorized", []string{"BINANCE:BTC/USDT"}, "USDT", "BTC", "binance", true},
		{"wildcard exchange", []string{"*:ETH/USDT"}, "ETH", "USDT", "kraken", true},
		{"wildcard pair", []string{"BINANCE:*"}, "DOGE", "USDT", "binance", true},
		{"wildcard base", []string{"BINANCE:*/USDT"}, "SOL", "USDT", "binance", true},
		{"wildcard quote", []string{"BINANCE:BTC/*"}, "BTC", "EUR", "binance", true},
		{"full wildcard", []string{"*"}, "ANY", "THING", "anywhere", true},
		{"wrong exchange", []string{"BINANCE:BTC/USDT"}, "BTC", "USDT", "okx", false},
		{"wrong pair", []string{"BINANCE:BTC/USDT"}, "ETH", "USDT", "binance", false},
		{"no markets", nil, "BTC", "USDT", "binance", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := orderConfig(tt.markets)
			err := EvaluateOrder(cfg, tt.from, tt.to, 1, tt.exchange)
			if tt.ok && err != nil {
				t.Fatalf("expected authorization: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestEvaluateOrderDirectionalLimits(t *testing.T) {
	cfg := orderConfig(
		[]string{"BINANCE:BTC/USDT"},
		OrderLimit{From: "USDT", To: "BTC", Min: 10, Max: 1000},
	)

	if err := EvaluateOrder(cfg, "USDT", "BTC", 500, "binance"); err != nil {
		t.Fatalf("amount inside limits must pass: %v", err)
	}
	if err := EvaluateOrder(cfg, "USDT", "BTC", 5, "binance"); err == nil {
		t.Fatalf("amount below min must be rejected")
	}
	if err := EvaluateOrder(cfg, "USDT", "BTC", 5000, "binance"); err == nil {
		t.Fatalf("amount above max must be rejected")
	}

	// The market is authorized in both directions, but the limit entry only
	// covers USDT->BTC; the opposite direction has no entry and is rejected.
	err := EvaluateOrder(cfg, "BTC", "USDT", 500, "binance")
	if err == nil {
		t.Fatalf("direction without a limit entry must be rejected")
	}
	if !strings.Contains(err.Error(), "not allowed") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestEvaluateOrderNoLimitsMeansAnyAmount(t *testing.T) {
	cfg := orderConfig([]string{"BINANCE:BTC/USDT"})
	if err := EvaluateOrder(cfg, "BTC", "USDT", 1e9, "binance"); err != nil {
		t.Fatalf("membership alone must authorize any amount: %v", err)
	}
}

func TestEvaluateOrderZeroMaxIsUnbounded(t *testing.T) {
	cfg := orderConfig(
		[]string{"BINANCE:BTC/USDT"},
		OrderLimit{From: "USDT", To: "BTC", Min: 10},
	)
	if err := EvaluateOrder(cfg, "USDT", "BTC", 1e12, "binance"); err != nil {
		t.Fatalf("zero max must not cap the amount: %v", err)
	}
}

func TestEvaluateDepositAlwaysAllows(t *testing.T) {
	if err := EvaluateDeposit(&Config{}, "binance", "BTC"); err != nil {
		t.Fatalf("deposits must be unconditionally authorized: %v", err)
	}
}
