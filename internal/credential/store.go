package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	secretFileName = "api-key"
	digestFileName = "api-key.sha256"
	previousSuffix = ".previous"
)

var ErrNotFound = errors.New("no credential stored")

type Store interface {
	// Save persists the raw secret and its digest. Either both are persisted or
	// an error is returned.
	Save(secret, digest string) error
	// Load returns ErrNotFound when nothing has been stored yet.
	Load() (secret string, digest string, err error)
}

// FileStore keeps the secret and its digest in two files in a directory only
// readable by the current user. The secret file is made read-only.
type FileStore struct {
	dir    string
	rename func(oldpath, newpath string) error
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		rename: os.Rename,
	}
}

// Save replaces the digest first and the secret last. When the secret can't
// be replaced the previous digest is put back, so the files on disk always
// form a matching pair.
func (store *FileStore) Save(secret, digest string) error {
	if err := os.MkdirAll(store.dir, 0o700); err != nil {
		return err
	}

	secretTmp, err := store.writeTemp(secretFileName, secret, 0o400)
	if err != nil {
		return err
	}

	digestTmp, err := store.writeTemp(digestFileName, digest, 0o600)
	if err != nil {
		_ = os.Remove(secretTmp)

		return err
	}

	secretPath := filepath.Join(store.dir, secretFileName)
	digestPath := filepath.Join(store.dir, digestFileName)
	previousDigestPath := digestPath + previousSuffix

	_ = os.Remove(previousDigestPath)

	hadDigest := true
	if err := os.Link(digestPath, previousDigestPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(secretTmp)
			_ = os.Remove(digestTmp)

			return fmt.Errorf("failed to keep the previous secret digest: %w", err)
		}

		hadDigest = false
	}
	defer func() {
		_ = os.Remove(previousDigestPath)
	}()

	if err := store.rename(digestTmp, digestPath); err != nil {
		_ = os.Remove(secretTmp)
		_ = os.Remove(digestTmp)

		return fmt.Errorf("failed to persist secret digest: %w", err)
	}

	if err := store.rename(secretTmp, secretPath); err != nil {
		_ = os.Remove(secretTmp)

		if hadDigest {
			_ = os.Rename(previousDigestPath, digestPath)
		} else {
			_ = os.Remove(digestPath)
		}

		return fmt.Errorf("failed to persist secret: %w", err)
	}

	return nil
}

func (store *FileStore) Load() (string, string, error) {
	secret, err := os.ReadFile(filepath.Join(store.dir, secretFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}

	digest, err := os.ReadFile(filepath.Join(store.dir, digestFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", "", fmt.Errorf("%w: secret digest is missing", ErrCorrupted)
	}
	if err != nil {
		return "", "", err
	}

	return strings.TrimSpace(string(secret)), strings.TrimSpace(string(digest)), nil
}

func (store *FileStore) writeTemp(name, contents string, perm os.FileMode) (string, error) {
	file, err := os.CreateTemp(store.dir, "."+name+".*")
	if err != nil {
		return "", err
	}

	if _, err := file.WriteString(contents); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())

		return "", err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())

		return "", err
	}

	if err := os.Chmod(file.Name(), perm); err != nil {
		_ = os.Remove(file.Name())

		return "", err
	}

	return file.Name(), nil
}

// MemoryStore is a Store that keeps nothing on disk.
type MemoryStore struct {
	mu      sync.Mutex
	secret  string
	digest  string
	saveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailSaves makes subsequent Save calls fail with err, nil restores normal operation.
func (store *MemoryStore) FailSaves(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.saveErr = err
}

func (store *MemoryStore) Save(secret, digest string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.saveErr != nil {
		return store.saveErr
	}

	store.secret, store.digest = secret, digest

	return nil
}

func (store *MemoryStore) Load() (string, string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.secret == "" {
		return "", "", ErrNotFound
	}

	return store.secret, store.digest, nil
}
