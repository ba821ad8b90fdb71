package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any literal on its axis.
const Wildcard = "*"

// WithdrawRule gates withdrawals on an (exchange, network) axis pair.
// Either axis may be the wildcard. The whitelist is normalized to lowercase
// when the snapshot is built; address checks are case-insensitive.
type WithdrawRule struct {
	Exchange  string   `yaml:"exchange" json:"exchange"`
	Network   string   `yaml:"network" json:"network"`
	Whitelist []string `yaml:"whitelist" json:"whitelist"`
}

// OrderLimit bounds a single conversion direction. A limit for (from, to)
// does not authorize (to, from).
type OrderLimit struct {
	From string  `yaml:"from" json:"from"`
	To   string  `yaml:"to" json:"to"`
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
}

// OrderRule authorizes markets of the shape EXCHANGE:BASE/QUOTE. The
// exchange axis, and independently each side of the pair, may be wildcards.
// Empty limits means market membership alone authorizes any amount.
type OrderRule struct {
	Markets []string     `yaml:"markets" json:"markets"`
	Limits  []OrderLimit `yaml:"limits" json:"limits"`
}

type WithdrawPolicy struct {
	Rules []WithdrawRule `yaml:"rule" json:"rule"`
}

type OrderPolicy struct {
	Rule OrderRule `yaml:"rule" json:"rule"`
}

// Config is one immutable policy snapshot. It is only ever replaced
// wholesale; nothing mutates an installed snapshot.
type Config struct {
	Withdraw WithdrawPolicy `yaml:"withdraw" json:"withdraw"`
	Order    OrderPolicy    `yaml:"order" json:"order"`
	// Deposits are unconditionally authorized; the section is carried as-is
	// for forward compatibility with the config file shape.
	Deposit map[string]any `yaml:"deposit" json:"deposit,omitempty"`
}

type LoadErrorKind string

const (
	LoadErrorMalformed LoadErrorKind = "malformed"
	LoadErrorSchema    LoadErrorKind = "schema"
)

// LoadError reports a failed parse or validation. It never affects the
// previously installed snapshot.
type LoadError struct {
	Kind   LoadErrorKind
	Detail string
	Cause  error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy load failed (%s): %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("policy load failed (%s): %s", e.Kind, e.Detail)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes raw YAML (or JSON, which YAML accepts) into a validated,
// normalized snapshot.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		kind := LoadErrorMalformed
		if _, ok := err.(*yaml.TypeError); ok {
			kind = LoadErrorSchema
		}
		return nil, &LoadError{Kind: kind, Detail: "unable to decode policy", Cause: err}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) validate() error {
	for i, rule := range c.Withdraw.Rules {
		if strings.TrimSpace(rule.Exchange) == "" {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("withdraw.rule[%d]: exchange is required", i)}
		}
		if strings.TrimSpace(rule.Network) == "" {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("withdraw.rule[%d]: network is required", i)}
		}
		if rule.Whitelist == nil {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("withdraw.rule[%d]: whitelist is required", i)}
		}
	}
	for i, market := range c.Order.Rule.Markets {
		if strings.TrimSpace(market) == "" {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("order.rule.markets[%d]: empty market pattern", i)}
		}
	}
	for i, limit := range c.Order.Rule.Limits {
		if limit.From == "" || limit.To == "" {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("order.rule.limits[%d]: from and to are required", i)}
		}
		if limit.Max > 0 && limit.Min > limit.Max {
			return &LoadError{Kind: LoadErrorSchema, Detail: fmt.Sprintf("order.rule.limits[%d]: min exceeds max", i)}
		}
	}
	return nil
}

// normalize lowercases withdraw whitelists so membership checks are
// case-insensitive without re-normalizing per call.
func (c *Config) normalize() {
	for i := range c.Withdraw.Rules {
		rule := &c.Withdraw.Rules[i]
		normalized := make([]string, len(rule.Whitelist))
		for j, addr := range rule.Whitelist {
			normalized[j] = strings.ToLower(strings.TrimSpace(addr))
		}
		rule.Whitelist = normalized
	}
}
