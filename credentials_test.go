package gogateway

import (
	"testing"

	"github.com/evdnx/gogateway/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStoreLifecycle(t *testing.T) {
	store := NewCredentialStore()

	// Every platform starts empty and unvalidated.
	for _, p := range exchange.AllPlatforms() {
		assert.False(t, store.HasCredentials(p))
		validated, isValid := store.ValidationState(p)
		assert.False(t, validated)
		assert.False(t, isValid)
	}

	store.Set(exchange.PlatformBinance, "key", "secret")
	assert.True(t, store.HasCredentials(exchange.PlatformBinance))
	assert.False(t, store.HasCredentials(exchange.PlatformKraken), "platforms are independent")

	apiKey, apiSecret, ok := store.Get(exchange.PlatformBinance)
	require.True(t, ok)
	assert.Equal(t, "key", apiKey)
	assert.Equal(t, "secret", apiSecret)
}

func TestCredentialStoreValidationMemo(t *testing.T) {
	store := NewCredentialStore()

	store.Set(exchange.PlatformKraken, "key", "secret")
	store.MarkValidated(exchange.PlatformKraken, true)

	validated, isValid := store.ValidationState(exchange.PlatformKraken)
	assert.True(t, validated)
	assert.True(t, isValid)

	// New credentials discard the result.
	store.Set(exchange.PlatformKraken, "key2", "secret2")
	validated, isValid = store.ValidationState(exchange.PlatformKraken)
	assert.False(t, validated)
	assert.False(t, isValid)
}

func TestCredentialStorePartialCredentialsDoNotCount(t *testing.T) {
	store := NewCredentialStore()

	store.Set(exchange.PlatformBinance, "key", "")
	assert.False(t, store.HasCredentials(exchange.PlatformBinance))

	store.Set(exchange.PlatformBinance, "", "secret")
	assert.False(t, store.HasCredentials(exchange.PlatformBinance))
}

func TestCredentialStoreUnknownPlatform(t *testing.T) {
	store := NewCredentialStore()

	store.Set(exchange.Platform("FTX"), "key", "secret")
	assert.False(t, store.HasCredentials(exchange.Platform("FTX")))

	_, _, ok := store.Get(exchange.Platform("FTX"))
	assert.False(t, ok)
}
