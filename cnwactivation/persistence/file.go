package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

const (
	// StateFileName is the file holding all persisted values.
	StateFileName = "activation.state"

	privateFilePerm      = 0o600
	maxStateFileSize     = 1 << 20 // 1 MiB
	defaultScryptLogCost = 15
)

var errUnsafeStatePath = errors.New("unsafe state file path")

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithPassphrase encrypts the state file with age using a scrypt-derived key.
func WithPassphrase(passphrase string) FileOption {
	return func(p *FileProvider) {
		p.passphrase = passphrase
	}
}

// WithScryptWorkFactor sets the scrypt log2 cost used when encrypting. Default: 15.
func WithScryptWorkFactor(logN int) FileOption {
	return func(p *FileProvider) {
		p.workFactor = logN
	}
}

// FileProvider keeps every value in one JSON document on disk. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileProvider struct {
	mu         sync.Mutex
	path       string
	passphrase string
	workFactor int
	values     map[string]string
	closed     bool
}

// NewFileProvider opens the state file in dir, creating dir if needed.
func NewFileProvider(dir string, opts ...FileOption) (*FileProvider, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("dir is required")
	}
	dir = filepath.Clean(dir)
	if err := ensureOwnerOnlyDir(dir); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	p := &FileProvider{
		path:       filepath.Join(dir, StateFileName),
		workFactor: defaultScryptLogCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	values, err := p.load()
	if err != nil {
		return nil, err
	}
	p.values = values
	return p, nil
}

// Path returns the location of the state file.
func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Store(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	prev, had := p.values[key]
	p.values[key] = value
	if err := p.flush(); err != nil {
		if had {
			p.values[key] = prev
		} else {
			delete(p.values, key)
		}
		return err
	}
	return nil
}

func (p *FileProvider) Read(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", false, ErrClosed
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *FileProvider) Close(_ context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) load() (map[string]string, error) {
	info, err := os.Lstat(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %q", errUnsafeStatePath, p.path)
	}
	if info.Size() > maxStateFileSize {
		return nil, fmt.Errorf("%w: %q exceeds size limit (%d bytes)", errUnsafeStatePath, p.path, info.Size())
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if p.passphrase != "" {
		raw, err = p.decrypt(raw)
		if err != nil {
			return nil, err
		}
	}

	values := make(map[string]string)
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	return values, nil
}

// flush must be called with p.mu held.
func (p *FileProvider) flush() error {
	raw, err := json.Marshal(p.values)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if p.passphrase != "" {
		raw, err = p.encrypt(raw)
		if err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), StateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(privateFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (p *FileProvider) encrypt(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(p.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(p.workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing age encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting state: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *FileProvider) decrypt(ciphertext []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(p.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting state file: %w", err)
	}
	plaintext, err := io.ReadAll(io.LimitReader(r, maxStateFileSize))
	if err != nil {
		return nil, fmt.Errorf("reading decrypted state: %w", err)
	}
	return plaintext, nil
}
