package jwt

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
)

// maxJWKSResponseSize bounds the size of a JWKS response body.
const maxJWKSResponseSize = 1 << 20 // 1 MiB

// KeySource provides signing key sets for configured providers.
type KeySource interface {
	// Get returns the key set for the named provider, fetching it on first
	// use. Subsequent calls return the cached set until Invalidate is called.
	Get(ctx context.Context, provider string) (*KeySet, error)

	// Invalidate drops the cached key set for the named provider so the next
	// Get fetches a fresh copy.
	Invalidate(provider string)
}

// KeySet is an immutable snapshot of a provider's JSON Web Key Set.
type KeySet struct {
	Provider  string
	FetchedAt time.Time
	keys      jwk.Set
}

// Key returns the public key with the given key id. When the token carries
// no kid and the set holds exactly one key, that key is returned.
func (s *KeySet) Key(kid string) (crypto.PublicKey, bool) {
	var key jwk.Key
	if kid == "" {
		if s.keys.Len() != 1 {
			return nil, false
		}
		key, _ = s.keys.Key(0)
	} else {
		var ok bool
		key, ok = s.keys.LookupKeyID(kid)
		if !ok {
			return nil, false
		}
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, false
	}
	return raw, true
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	return s.keys.Len()
}

// cachingKeySource caches key sets per provider. Fetches for the same
// provider are coalesced so a burst of cold-cache requests results in a
// single upstream call, and repeated upstream failures trip a circuit
// breaker per provider.
type cachingKeySource struct {
	providers map[string]config.ProviderConfig
	client    *http.Client
	timeout   time.Duration
	logger    observability.Logger
	metrics   *Metrics

	mu      sync.RWMutex
	entries map[string]*KeySet

	group    singleflight.Group
	breakers map[string]*gobreaker.CircuitBreaker
}

// KeySourceOption is a functional option for configuring the key source.
type KeySourceOption func(*cachingKeySource)

// WithKeySourceLogger sets the logger for the key source.
func WithKeySourceLogger(logger observability.Logger) KeySourceOption {
	return func(s *cachingKeySource) {
		s.logger = logger
	}
}

// WithKeySourceMetrics sets the metrics for the key source.
func WithKeySourceMetrics(metrics *Metrics) KeySourceOption {
	return func(s *cachingKeySource) {
		s.metrics = metrics
	}
}

// WithHTTPClient sets the HTTP client used for JWKS fetches.
func WithHTTPClient(client *http.Client) KeySourceOption {
	return func(s *cachingKeySource) {
		s.client = client
	}
}

// WithFetchTimeout bounds a single JWKS fetch.
func WithFetchTimeout(timeout time.Duration) KeySourceOption {
	return func(s *cachingKeySource) {
		s.timeout = timeout
	}
}

// NewKeySource creates a caching key source for the given providers.
func NewKeySource(providers []config.ProviderConfig, opts ...KeySourceOption) KeySource {
	s := &cachingKeySource{
		providers: make(map[string]config.ProviderConfig, len(providers)),
		client:    &http.Client{},
		timeout:   10 * time.Second,
		logger:    observability.NopLogger(),
		entries:   make(map[string]*KeySet, len(providers)),
		breakers:  make(map[string]*gobreaker.CircuitBreaker, len(providers)),
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, p := range providers {
		s.providers[p.Name] = p
		s.breakers[p.Name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "jwks-" + p.Name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Warn("key set fetch circuit state changed",
					observability.String("breaker", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()),
				)
			},
		})
	}

	return s
}

var _ KeySource = (*cachingKeySource)(nil)

// Get implements KeySource.
func (s *cachingKeySource) Get(ctx context.Context, provider string) (*KeySet, error) {
	s.mu.RLock()
	entry, ok := s.entries[provider]
	s.mu.RUnlock()
	if ok {
		return entry, nil
	}

	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	// Coalesce concurrent cold-cache fetches for the same provider.
	v, err, _ := s.group.Do(provider, func() (any, error) {
		s.mu.RLock()
		entry, ok := s.entries[provider]
		s.mu.RUnlock()
		if ok {
			return entry, nil
		}

		result, err := s.breakers[provider].Execute(func() (any, error) {
			return s.fetch(ctx, p)
		})
		if err != nil {
			s.metrics.RecordKeySetFetch(provider, "error")
			return nil, err
		}
		s.metrics.RecordKeySetFetch(provider, "success")

		entry = result.(*KeySet)
		s.mu.Lock()
		s.entries[provider] = entry
		s.mu.Unlock()

		return entry, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeySourceUnavailable, provider, err)
	}

	return v.(*KeySet), nil
}

// Invalidate implements KeySource.
func (s *cachingKeySource) Invalidate(provider string) {
	s.mu.Lock()
	delete(s.entries, provider)
	s.mu.Unlock()

	s.logger.Debug("key set cache invalidated",
		observability.String("provider", provider),
	)
}

// fetch retrieves and parses the provider's JWKS document.
func (s *cachingKeySource) fetch(ctx context.Context, p config.ProviderConfig) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	if keys.Len() == 0 {
		return nil, fmt.Errorf("JWKS for provider %s contains no keys", p.Name)
	}

	s.logger.Debug("fetched key set",
		observability.String("provider", p.Name),
		observability.Int("keys", keys.Len()),
		observability.Duration("elapsed", time.Since(start)),
	)
	s.metrics.ObserveKeySetFetchDuration(p.Name, time.Since(start))

	return &KeySet{
		Provider:  p.Name,
		FetchedAt: time.Now(),
		keys:      keys,
	}, nil
}
