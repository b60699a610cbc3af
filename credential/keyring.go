package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "communique"

// FilePasswordEnv names the variable holding the passphrase of the
// encrypted file used where the platform has no keyring service. Without
// it, the passphrase is asked for on the terminal.
const FilePasswordEnv = "COMMUNIQUE_KEYRING_PASSWORD"

// ErrNotFound means no password is stored for the address.
var ErrNotFound = errors.New("no stored password")

// Store saves passwords by email address.
type Store interface {
	Get(email string) (string, error)
	Set(email, password string) error
	Delete(email string) error
}

// Keyring is a Store backed by a keyring.Keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open opens the system keyring. Where the platform has no keyring
// service, an encrypted file under dir is used instead.
func Open(dir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         filePassword(os.Getenv, keyring.TerminalPrompt),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyring(ring), nil
}

func filePassword(getenv func(string) string, prompt keyring.PromptFunc) keyring.PromptFunc {
	return func(p string) (string, error) {
		if s := getenv(FilePasswordEnv); s != "" {
			return s, nil
		}
		return prompt(p)
	}
}

// NewKeyring wraps an opened keyring, e.g., keyring.NewArrayKeyring in
// tests.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Get returns the password stored for email.
func (k *Keyring) Get(email string) (string, error) {
	item, err := k.ring.Get(key(email))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting the password for %q: %w", email, err)
	}
	return string(item.Data), nil
}

// Set stores the password for email, replacing any previous one.
func (k *Keyring) Set(email, password string) error {
	if key(email) == "" {
		return errors.New("can't store a password without an email address")
	}
	err := k.ring.Set(keyring.Item{
		Key:         key(email),
		Data:        []byte(password),
		Label:       "Communique: " + email,
		Description: "mail account password",
	})
	if err != nil {
		return fmt.Errorf("storing the password for %q: %w", email, err)
	}
	return nil
}

// Delete removes the password for email. Deleting a password that isn't
// stored is not an error.
func (k *Keyring) Delete(email string) error {
	err := k.ring.Remove(key(email))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting the password for %q: %w", email, err)
	}
	return nil
}
