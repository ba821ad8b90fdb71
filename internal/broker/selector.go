package broker

import (
	"fmt"
	"strconv"
	"strings"
)

// Selector is the typed credential selector carried with a request. It is
// parsed once at the transport boundary so the registry never sees raw
// header strings.
type Selector struct {
	secondary bool
	index     int
}

func Primary() Selector {
	return Selector{}
}

func SecondaryIndex(n int) Selector {
	return Selector{secondary: true, index: n}
}

func (s Selector) IsSecondary() bool { return s.secondary }

// Index is only meaningful when IsSecondary reports true.
func (s Selector) Index() int { return s.index }

func (s Selector) String() string {
	if s.secondary {
		return fmt.Sprintf("secondary[%d]", s.index)
	}
	return "primary"
}

// ParseSelector interprets the use-secondary-key header value. Empty means
// primary; anything else must be a non-negative integer index.
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Primary(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return Selector{}, fmt.Errorf("use-secondary-key must be a non-negative integer, got %q", raw)
	}
	return SecondaryIndex(n), nil
}
