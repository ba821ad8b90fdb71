package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cexgate/cexgate/internal/policy"
)

// policycheck validates a policy file without starting the gateway, so a
// broken file is caught before deploy rather than at the first reload.
func main() {
	path := flag.String("f", "./conf/policy.yml", "policy file to validate")
	flag.Parse()

	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", *path, err)
		os.Exit(1)
	}

	cfg, err := policy.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid policy: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid\n", *path)
	for _, rule := range cfg.Withdraw.Rules {
		fmt.Printf("  withdraw exchange=%s network=%s whitelist=%d\n",
			rule.Exchange, rule.Network, len(rule.Whitelist))
	}
	fmt.Printf("  order    markets=%v limits=%d\n", cfg.Order.Rule.Markets, len(cfg.Order.Rule.Limits))
}
