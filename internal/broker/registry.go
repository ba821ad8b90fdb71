package broker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cexgate/cexgate/internal/exchange"
)

// Credentials is one API key pair for an exchange account.
type Credentials struct {
	APIKey    string
	APISecret string
}

func (c Credentials) empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// fingerprint identifies a credential set without retaining the secret.
func (c Credentials) fingerprint() string {
	sum := sha256.Sum256([]byte(c.APIKey + "\x00" + c.APISecret))
	return hex.EncodeToString(sum[:8])
}

// Handle is an immutable capability binding one adapter instance to one
// exchange and credential set. Credential rotation means building a new
// handle, never mutating one.
type Handle struct {
	exchange    string
	fingerprint string
	adapter     exchange.Adapter
}

func (h *Handle) Exchange() string          { return h.exchange }
func (h *Handle) Adapter() exchange.Adapter { return h.adapter }

// Registry resolves an exchange key plus a credential selector to a broker
// handle. Operator-configured handles are built once at startup and are
// read-only afterwards; ad hoc handles built from request headers are cached
// by (exchange, fingerprint) with a bounded lifetime.
type Registry struct {
	factory *exchange.Registry

	primaries   map[string]*Handle
	secondaries map[string][]*Handle

	cacheMu  sync.Mutex
	cache    map[string]cachedHandle
	cacheTTL time.Duration
}

type cachedHandle struct {
	handle  *Handle
	expires time.Time
}

const defaultAdHocTTL = 10 * time.Minute

func NewRegistry(factory *exchange.Registry) *Registry {
	return &Registry{
		factory:     factory,
		primaries:   make(map[string]*Handle),
		secondaries: make(map[string][]*Handle),
		cache:       make(map[string]cachedHandle),
		cacheTTL:    defaultAdHocTTL,
	}
}

// Configure installs the operator-configured primary and secondary handles
// for one exchange. Called during startup only.
func (r *Registry) Configure(exchangeKey string, primary Credentials, secondaries []Credentials) error {
	key := strings.ToLower(exchangeKey)
	if !primary.empty() {
		handle, err := r.build(key, primary)
		if err != nil {
			return fmt.Errorf("primary credentials for %s: %w", exchangeKey, err)
		}
		r.primaries[key] = handle
	}
	for i, creds := range secondaries {
		if creds.empty() {
			return fmt.Errorf("secondary credentials %d for %s: key and secret are required", i, exchangeKey)
		}
		handle, err := r.build(key, creds)
		if err != nil {
			return fmt.Errorf("secondary credentials %d for %s: %w", i, exchangeKey, err)
		}
		r.secondaries[key] = append(r.secondaries[key], handle)
	}
	return nil
}

// Resolve picks a handle for the request. Resolution order: a secondary
// index unconditionally overrides any configured primary; then the
// configured primary; then ad hoc header credentials. A nil handle with nil
// error means no credentials resolve, which callers map to an
// authentication-denied error.
func (r *Registry) Resolve(exchangeKey string, sel Selector, adhoc *Credentials) (*Handle, error) {
	key := strings.ToLower(exchangeKey)

	if sel.IsSecondary() {
		handles := r.secondaries[key]
		if sel.Index() < 0 || sel.Index() >= len(handles) {
			return nil, nil
		}
		return handles[sel.Index()], nil
	}

	if handle, ok := r.primaries[key]; ok {
		return handle, nil
	}

	if adhoc != nil && !adhoc.empty() {
		return r.adHoc(key, *adhoc)
	}
	return nil, nil
}

// SecondaryCount reports how many secondary handles exist for an exchange.
func (r *Registry) SecondaryCount(exchangeKey string) int {
	return len(r.secondaries[strings.ToLower(exchangeKey)])
}

func (r *Registry) adHoc(key string, creds Credentials) (*Handle, error) {
	cacheKey := key + ":" + creds.fingerprint()
	now := time.Now()

	r.cacheMu.Lock()
	if entry, ok := r.cache[cacheKey]; ok && now.Before(entry.expires) {
		r.cacheMu.Unlock()
		return entry.handle, nil
	}
	r.cacheMu.Unlock()

	handle, err := r.build(key, creds)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[cacheKey] = cachedHandle{handle: handle, expires: now.Add(r.cacheTTL)}
	// opportunistic sweep keeps the cache bounded
	for k, entry := range r.cache {
		if now.After(entry.expires) {
			delete(r.cache, k)
		}
	}
	r.cacheMu.Unlock()
	return handle, nil
}

func (r *Registry) build(key string, creds Credentials) (*Handle, error) {
	adapter, err := r.factory.New(key, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, err
	}
	return &Handle{
		exchange:    key,
		fingerprint: creds.fingerprint(),
		adapter:     adapter,
	}, nil
}
