package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	keyringService = "songbridge"
	keyringUser    = "youtube-music-headers"
)

// ArtifactStore persists the normalized YouTube Music header set between runs.
type ArtifactStore interface {
	Save(headers shared.Headers) error
	Load() (shared.Headers, error)
	Exists() bool
	Remove() error
	// Location describes where the artifact lives, for status output.
	Location() string
}

// NewArtifactStore selects a backend from configuration.
func NewArtifactStore(cfg shared.YouTubeConfig) (ArtifactStore, error) {
	switch cfg.ArtifactBackend {
	case "", "file":
		if cfg.ArtifactPath == "" {
			return nil, fmt.Errorf("%w: artifact path is empty", shared.ErrInvalidConfig)
		}
		return NewFileArtifactStore(cfg.ArtifactPath), nil
	case "keyring":
		return NewKeyringArtifactStore(keyringService, keyringUser), nil
	default:
		return nil, fmt.Errorf("%w: unknown artifact backend %q", shared.ErrInvalidConfig, cfg.ArtifactBackend)
	}
}

// FileArtifactStore keeps the header set as a JSON file readable only by the owner.
type FileArtifactStore struct {
	path string
}

func NewFileArtifactStore(path string) *FileArtifactStore {
	return &FileArtifactStore{path: filepath.Clean(path)}
}

func (f *FileArtifactStore) Path() string { return f.path }

func (f *FileArtifactStore) Location() string { return f.path }

// Save writes the artifact through a temporary file so readers never see a partial write.
func (f *FileArtifactStore) Save(headers shared.Headers) error {
	data, err := json.MarshalIndent(headers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".browser-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

func (f *FileArtifactStore) Load() (shared.Headers, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no artifact at %s", shared.ErrMissingCredentials, f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var headers shared.Headers
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("%w: corrupt artifact: %v", shared.ErrMissingCredentials, err)
	}
	return headers, nil
}

func (f *FileArtifactStore) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && info.Mode().IsRegular()
}

func (f *FileArtifactStore) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

// KeyringArtifactStore keeps the header set in the operating system keyring.
type KeyringArtifactStore struct {
	service string
	user    string
}

func NewKeyringArtifactStore(service, user string) *KeyringArtifactStore {
	return &KeyringArtifactStore{service: service, user: user}
}

func (k *KeyringArtifactStore) Location() string {
	return "keyring:" + k.service + "/" + k.user
}

func (k *KeyringArtifactStore) Save(headers shared.Headers) error {
	data, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("failed to store headers in keyring: %w", err)
	}
	return nil
}

func (k *KeyringArtifactStore) Load() (shared.Headers, error) {
	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: no keyring entry %s", shared.ErrMissingCredentials, k.Location())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var headers shared.Headers
	if err := json.Unmarshal([]byte(secret), &headers); err != nil {
		return nil, fmt.Errorf("%w: corrupt keyring entry: %v", shared.ErrMissingCredentials, err)
	}
	return headers, nil
}

func (k *KeyringArtifactStore) Exists() bool {
	_, err := keyring.Get(k.service, k.user)
	return err == nil
}

func (k *KeyringArtifactStore) Remove() error {
	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}
