package cnwactivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

func TestDataStore_ScopesAndHashesKeys(t *testing.T) {
	ctx := context.Background()
	provider := persistence.NewMemoryProvider()
	store := newDataStore(provider)

	require.NoError(t, store.Save(ctx, "product-a", keyLicenseKey, "KEY-A"))
	require.NoError(t, store.Save(ctx, "product-b", keyLicenseKey, "KEY-B"))

	v, ok, err := store.Get(ctx, "product-a", keyLicenseKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "KEY-A", v)

	raw, ok, err := provider.Read(ctx, HashString("product-b"+keyLicenseKey))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "KEY-B", raw)

	_, ok, err = provider.Read(ctx, keyLicenseKey)
	require.NoError(t, err)
	assert.False(t, ok, "plaintext key names must not reach the provider")
}

func TestDataStore_ResetIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := newDataStore(persistence.NewMemoryProvider())

	_, ok, err := store.Get(ctx, testProductID, keyActivationToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, testProductID, keyActivationToken, "a.b.c"))
	require.NoError(t, store.Save(ctx, testProductID, keyLicenseKey, testLicenseKey))
	require.NoError(t, store.Save(ctx, testProductID, keyLastRecordedTime, "1700000000"))
	require.NoError(t, store.ResetAll(ctx, testProductID))

	for _, key := range []string{keyActivationToken, keyLicenseKey} {
		_, ok, err := store.Get(ctx, testProductID, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	_, ok, err = store.Get(ctx, testProductID, keyLastRecordedTime)
	require.NoError(t, err)
	assert.True(t, ok, "ResetAll keeps the clock watermark")
}

func TestDataStore_ProviderErrors(t *testing.T) {
	ctx := context.Background()
	provider := persistence.NewMemoryProvider()
	require.NoError(t, provider.Close(ctx))
	store := newDataStore(provider)

	assert.ErrorIs(t, store.Save(ctx, testProductID, keyLicenseKey, "x"), persistence.ErrClosed)
	_, _, err := store.Get(ctx, testProductID, keyLicenseKey)
	assert.ErrorIs(t, err, persistence.ErrClosed)
}
