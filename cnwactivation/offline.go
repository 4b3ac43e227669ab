package cnwactivation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	maxOfflineResponseBytes = 1 << 20  // 1 MB
	maxPublicKeyBytes       = 64 << 10 // 64 KB
)

var errFileTooLarge = errors.New("file exceeds size limit")

// ActivateLicenseOffline activates from an offline response file obtained
// out of band: {"activationToken": "..."}. The token is verified exactly
// like an online activation, and on success the background sync starts.
func (m *Manager) ActivateLicenseOffline(ctx context.Context, path string) (Status, error) {
	if strings.TrimSpace(path) == "" {
		return StatusEFilePath, statusError(StatusEFilePath)
	}
	raw, err := readBoundedFile(path, maxOfflineResponseBytes)
	if errors.Is(err, os.ErrNotExist) {
		return StatusEFilePath, fmt.Errorf("%w: %w", statusError(StatusEFilePath), err)
	}
	if err != nil {
		return StatusEOfflineResponseFile, fmt.Errorf("%w: %w", statusError(StatusEOfflineResponseFile), err)
	}

	var resp activationResponse
	if err := json.Unmarshal(raw, &resp); err != nil || strings.TrimSpace(resp.ActivationToken) == "" {
		return StatusEOfflineResponseFile, fmt.Errorf("%w: %w", statusError(StatusEOfflineResponseFile), ErrOfflineResponseInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publicKey == "" {
		return StatusEPublicKey, misuse(ErrPublicKeyNotSet)
	}
	key, err := m.loadLicenseKey(ctx)
	if err != nil {
		s, _ := StatusOf(err)
		return s, err
	}

	m.payload = &ActivationPayload{}
	status := m.validator.ValidateActivation(ctx, strings.TrimSpace(resp.ActivationToken), m.publicKey, key, m.productID, m.payload)
	if !status.IsSuccess() {
		return status, statusError(status)
	}
	m.logger.Info().Str("product_id", m.productID).Str("activation_id", m.payload.ID).Msg("License activated offline")

	interval := m.syncInterval()
	m.startTimer(interval, interval)
	return status, nil
}

// readBoundedFile reads a regular file of at most limit bytes.
func readBoundedFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q is not a regular file", path)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %q (%d bytes)", errFileTooLarge, path, info.Size())
	}
	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: %q", errFileTooLarge, path)
	}
	return raw, nil
}
