package policy

import (
	"fmt"
	"strings"
)

// matchAxis reports whether a rule pattern accepts a literal on one axis.
func matchAxis(pattern, literal string) bool {
	return pattern == Wildcard || pattern == literal
}

// rank orders candidate withdraw rules by specificity:
// exact/exact < exact/* < */exact < */*. Lower ranks win.
func rank(rule WithdrawRule) int {
	switch {
	case rule.Exchange != Wildcard && rule.Network != Wildcard:
		return 0
	case rule.Exchange != Wildcard:
		return 1
	case rule.Network != Wildcard:
		return 2
	default:
		return 3
	}
}

// EvaluateWithdraw decides whether a withdrawal is permitted by the
// snapshot. Amount and ticker are accepted for payload compatibility but
// are not gated by the rule shape.
func EvaluateWithdraw(cfg *Config, exchange, network, address string, amount float64, ticker string) error {
	best := -1
	bestRank := 4
	for i, rule := range cfg.Withdraw.Rules {
		if !matchAxis(rule.Exchange, exchange) || !matchAxis(rule.Network, network) {
			continue
		}
		// first-seen order breaks ties
		if r := rank(rule); r < bestRank {
			best, bestRank = i, r
		}
	}
	if best == -1 {
		return fmt.Errorf("exchange %s is not authorized for withdrawals on network %s", exchange, network)
	}

	needle := strings.ToLower(address)
	for _, allowed := range cfg.Withdraw.Rules[best].Whitelist {
		if allowed == needle {
			return nil
		}
	}
	return fmt.Errorf("address %s is not whitelisted for withdrawals", address)
}

// EvaluateOrder decides whether a conversion is permitted. The market may be
// authorized in either direction, but limits are directional: only an exact
// (from, to) limit entry authorizes that direction.
func EvaluateOrder(cfg *Config, fromToken, toToken string, amount float64, exchange string) error {
	rule := cfg.Order.Rule
	forward := strings.ToUpper(exchange) + ":" + fromToken + "/" + toToken
	reverse := strings.ToUpper(exchange) + ":" + toToken + "/" + fromToken

	authorized := false
	for _, pattern := range rule.Markets {
		if matchMarket(pattern, forward) || matchMarket(pattern, reverse) {
			authorized = true
			break
		}
	}
	if !authorized {
		return fmt.Errorf("market %s is not authorized; allowed markets: %s",
			forward, strings.Join(rule.Markets, ", "))
	}

	if len(rule.Limits) == 0 {
		return nil
	}

	for _, limit := range rule.Limits {
		if limit.From != fromToken || limit.To != toToken {
			continue
		}
		if amount < limit.Min {
			return fmt.Errorf("amount %v is below the minimum %v for %s/%s", amount, limit.Min, fromToken, toToken)
		}
		if limit.Max > 0 && amount > limit.Max {
			return fmt.Errorf("amount %v exceeds the maximum %v for %s/%s", amount, limit.Max, fromToken, toToken)
		}
		return nil
	}
	return fmt.Errorf("conversion from %s to %s is not allowed", fromToken, toToken)
}

// EvaluateDeposit is a deliberate no-op gate: deposits are unconditionally
// authorized.
func EvaluateDeposit(cfg *Config, exchange, ticker string) error {
	return nil
}

// matchMarket checks one EXCHANGE:BASE/QUOTE pattern against a concrete
// market key of the same shape. The whole pattern, the exchange axis, the
// whole pair, or each side of the pair may be the wildcard.
func matchMarket(pattern, key string) bool {
	if pattern == Wildcard {
		return true
	}
	pExch, pPair, ok := strings.Cut(pattern, ":")
	if !ok {
		return false
	}
	kExch, kPair, ok := strings.Cut(key, ":")
	if !ok {
		return false
	}
	if !matchAxis(pExch, kExch) {
		return false
	}
	if pPair == Wildcard {
		return true
	}
	pBase, pQuote, ok := strings.Cut(pPair, "/")
	if !ok {
		return false
	}
	kBase, kQuote, ok := strings.Cut(kPair, "/")
	if !ok {
		return false
	}
	return matchAxis(pBase, kBase) && matchAxis(pQuote, kQuote)
}
