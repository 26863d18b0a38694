package credential

import (
	"errors"
	"fmt"
	"go.uber.org/zap"
	"sync"
)

var ErrCorrupted = errors.New("stored credential is corrupted")

type Authority struct {
	logger *zap.Logger
	store  Store

	mu     sync.RWMutex
	secret string
	digest string
}

func NewAuthority(store Store, logger *zap.Logger) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Authority{
		logger: logger,
		store:  store,
	}
}

// Load reads the stored credential, generating and storing a fresh one when
// none exists yet. A digest that does not match the stored secret is
// reported as ErrCorrupted.
func (authority *Authority) Load() error {
	secret, digest, err := authority.store.Load()
	if errors.Is(err, ErrNotFound) {
		secret, err := authority.Rotate()
		if err != nil {
			return err
		}

		authority.logger.Info("generated a new API key", zap.String("fingerprint", Fingerprint(secret)))

		return nil
	}
	if err != nil {
		return err
	}

	if secret == "" || !Validate(secret, digest) {
		return ErrCorrupted
	}

	authority.mu.Lock()
	authority.secret, authority.digest = secret, digest
	authority.mu.Unlock()

	authority.logger.Info("loaded API key", zap.String("fingerprint", Fingerprint(secret)))

	return nil
}

// Store persists the secret and its digest and makes it the one admitted
// by Check. When persisting fails the previous secret stays in effect.
func (authority *Authority) Store(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: refusing to store an empty secret", ErrCorrupted)
	}

	digest := Hash(secret)

	if err := authority.store.Save(secret, digest); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	authority.mu.Lock()
	authority.secret, authority.digest = secret, digest
	authority.mu.Unlock()

	return nil
}

// Rotate replaces the secret with a freshly generated one. Connections admitted
// with the old secret are left alone.
func (authority *Authority) Rotate() (string, error) {
	secret, err := Generate()
	if err != nil {
		return "", err
	}

	if err := authority.Store(secret); err != nil {
		return "", err
	}

	authority.logger.Info("rotated API key", zap.String("fingerprint", Fingerprint(secret)))

	return secret, nil
}

func (authority *Authority) Check(secret string) bool {
	authority.mu.RLock()
	digest := authority.digest
	authority.mu.RUnlock()

	return Validate(secret, digest)
}

func (authority *Authority) Secret() string {
	authority.mu.RLock()
	defer authority.mu.RUnlock()

	return authority.secret
}

func (authority *Authority) Digest() string {
	authority.mu.RLock()
	defer authority.mu.RUnlock()

	return authority.digest
}
