package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgellow/auth-relay/internal/crypto"
)

// Keys under which the native transport keeps credentials
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// ErrTokenNotFound is returned by GetToken for an absent key
var ErrTokenNotFound = errors.New("token not found")

// TokenStore is the secure key-value store native clients persist
// session tokens in
type TokenStore interface {
	GetToken(ctx context.Context, key string) (string, error)
	SaveToken(ctx context.Context, key, value string) error
	// DeleteToken succeeds when the key is already absent
	DeleteToken(ctx context.Context, key string) error
}

// MemoryStore keeps tokens for the life of the process
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) GetToken(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}
	return v, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = value
	return nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

// FileStore keeps tokens in a single file sealed under a passphrase
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
}

func NewFileStore(path string, passphrase []byte) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("token file passphrase is required")
	}
	return &FileStore{path: path, passphrase: passphrase}, nil
}

func (s *FileStore) load() (map[string]string, error) {
	sealed, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	plain, err := crypto.Open(s.passphrase, sealed)
	if err != nil {
		return nil, fmt.Errorf("opening token file: %w", err)
	}

	tokens := make(map[string]string)
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return tokens, nil
}

// store replaces the file atomically
func (s *FileStore) store(tokens map[string]string) error {
	if len(tokens) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing token file: %w", err)
		}
		return nil
	}

	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encoding token file: %w", err)
	}
	sealed, err := crypto.Seal(s.passphrase, plain)
	if err != nil {
		return fmt.Errorf("sealing token file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

func (s *FileStore) GetToken(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := tokens[key]
	if !ok {
		return "", ErrTokenNotFound
	}
	return v, nil
}

func (s *FileStore) SaveToken(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	tokens[key] = value
	return s.store(tokens)
}

func (s *FileStore) DeleteToken(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return s.store(tokens)
}
