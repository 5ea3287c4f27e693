package jwt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authgate/internal/config"
)

func testProviders(jwksURL string) []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "test", JWKSURL: jwksURL, Issuer: "https://issuer.example.com", Audience: "my-api"},
	}
}

func TestKeySource_CachesAcrossCalls(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	srv, calls := newJWKSServer(t, marshalJWKS(t, map[string]any{"kid-1": key.Public()}))

	source := NewKeySource(testProviders(srv.URL))

	first, err := source.Get(context.Background(), "test")
	require.NoError(t, err)
	second, err := source.Get(context.Background(), "test")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestKeySource_InvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	srv, calls := newJWKSServer(t, marshalJWKS(t, map[string]any{"kid-1": key.Public()}))

	source := NewKeySource(testProviders(srv.URL))

	_, err := source.Get(context.Background(), "test")
	require.NoError(t, err)

	source.Invalidate("test")

	_, err = source.Get(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestKeySource_CoalescesConcurrentFetches(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	body := marshalJWKS(t, map[string]any{"kid-1": key.Public()})

	srv, calls := newSlowJWKSServer(t, body, 50*time.Millisecond)

	source := NewKeySource(testProviders(srv.URL))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = source.Get(context.Background(), "test")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestKeySource_UnknownProvider(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	srv, _ := newJWKSServer(t, marshalJWKS(t, map[string]any{"kid-1": key.Public()}))

	source := NewKeySource(testProviders(srv.URL))

	_, err := source.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestKeySource_CircuitBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	srv, calls := newFailingJWKSServer(t)

	source := NewKeySource(testProviders(srv.URL))

	for i := 0; i < 5; i++ {
		_, err := source.Get(context.Background(), "test")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKeySourceUnavailable)
	}

	// The breaker trips after three consecutive failures, so later calls
	// never reach the server.
	assert.Equal(t, int64(3), calls.Load())
}

func TestKeySet_Key(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	other := generateRSAKey(t)
	srv, _ := newJWKSServer(t, marshalJWKS(t, map[string]any{
		"kid-1": key.Public(),
		"kid-2": other.Public(),
	}))

	source := NewKeySource(testProviders(srv.URL))
	set, err := source.Get(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	_, ok := set.Key("kid-1")
	assert.True(t, ok)
	_, ok = set.Key("missing")
	assert.False(t, ok)

	// No kid is ambiguous when the set holds more than one key.
	_, ok = set.Key("")
	assert.False(t, ok)
}

func TestKeySet_KeyWithoutKidSingleKey(t *testing.T) {
	t.Parallel()

	key := generateRSAKey(t)
	srv, _ := newJWKSServer(t, marshalJWKS(t, map[string]any{"kid-1": key.Public()}))

	source := NewKeySource(testProviders(srv.URL))
	set, err := source.Get(context.Background(), "test")
	require.NoError(t, err)

	_, ok := set.Key("")
	assert.True(t, ok)
}

func TestKeySource_EmptyKeySetRejected(t *testing.T) {
	t.Parallel()

	srv, _ := newJWKSServer(t, []byte(`{"keys":[]}`))

	source := NewKeySource(testProviders(srv.URL))

	_, err := source.Get(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
}
