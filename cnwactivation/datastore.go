package cnwactivation

import (
	"context"
	"errors"
	"fmt"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

// Logical keys of the per-product state. Physical keys are hashes of
// productID+logical key, so no plaintext name reaches the provider.
const (
	keyLicenseKey       = "license_key"
	keyActivationToken  = "activation_token"
	keyLastRecordedTime = "last_recorded_time"
)

// dataStore scopes provider keys to a product.
type dataStore struct {
	provider persistence.Provider
}

func newDataStore(p persistence.Provider) *dataStore {
	return &dataStore{provider: p}
}

func dataKey(productID, key string) string {
	return HashString(productID + key)
}

// Save stores value under the product-scoped key.
func (d *dataStore) Save(ctx context.Context, productID, key, value string) error {
	if d.provider == nil {
		return errors.New("no persistence provider configured")
	}
	if err := d.provider.Store(ctx, dataKey(productID, key), value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Get returns the stored value. ok is false when nothing was stored or the
// key was reset; provider failures are reported through err.
func (d *dataStore) Get(ctx context.Context, productID, key string) (value string, ok bool, err error) {
	if d.provider == nil {
		return "", false, errors.New("no persistence provider configured")
	}
	value, ok, err = d.provider.Read(ctx, dataKey(productID, key))
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Reset overwrites the key with the empty tombstone.
func (d *dataStore) Reset(ctx context.Context, productID, key string) error {
	return d.Save(ctx, productID, key, "")
}

// ResetAll clears the license key and activation token of a product.
func (d *dataStore) ResetAll(ctx context.Context, productID string) error {
	return errors.Join(
		d.Reset(ctx, productID, keyLicenseKey),
		d.Reset(ctx, productID, keyActivationToken),
	)
}
