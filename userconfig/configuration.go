package userconfig

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/glasspath/communique/account"
	"github.com/rs/zerolog/log"
)

// DefaultTimeoutMS is used for SMTP and IMAP connections unless the
// configuration says otherwise.
const DefaultTimeoutMS = 30000

// Configuration is the account list stored in configuration.xml. The
// element names follow the file written by earlier releases, so existing
// files keep loading.
type Configuration struct {
	XMLName xml.Name `xml:"Configuration"`
	// Connection timeout in milliseconds
	Timeout         int                `xml:"timeout"`
	Accounts        []*account.Account `xml:"accounts>accounts"`
	SelectedAccount int                `xml:"selectedAccount"`
}

// NewConfiguration returns an empty configuration with defaults applied.
func NewConfiguration() *Configuration {
	return &Configuration{Timeout: DefaultTimeoutMS}
}

// DefaultDir returns the directory holding configuration, logs and
// temporary files, i.e., ~/.communique.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".communique"
	}
	return filepath.Join(home, ".communique")
}

// DefaultConfigPath returns the path of configuration.xml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "configuration.xml")
}

// TempDir returns (and creates) the directory for generated files such as
// draft.eml. Failure to create it is logged; the path is returned anyway so
// the subsequent write reports the real error.
func TempDir() string {
	d := filepath.Join(DefaultDir(), "temp")
	if err := os.MkdirAll(d, 0o700); err != nil {
		log.Error().Err(err).Str("dir", d).Msg("can't create the temp dir")
	}
	return d
}

// Parse reads a configuration from XML and applies defaults.
func Parse(r io.Reader) (*Configuration, error) {
	c := NewConfiguration()
	if err := xml.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("can't read the configuration as XML: %w", err)
	}
	c.CheckAndSetDefaults()
	return c, nil
}

// Load reads the configuration at path. A missing file is not an error: it
// just means no account was added yet. Any other problem is logged and the
// default configuration is returned, so a corrupt file never keeps the user
// from composing mail.
func Load(path string) *Configuration {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("path", path).Msg("can't open the configuration")
		}
		return NewConfiguration()
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("can't parse the configuration")
		return NewConfiguration()
	}
	return c
}

// Save writes c to path, creating parent directories. The file is replaced
// atomically so a crash never leaves half an account list behind.
func (c *Configuration) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("can't create the configuration directory %v: %w", dir, err)
	}

	b, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("can't serialize the configuration: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".configuration-*.xml")
	if err != nil {
		return fmt.Errorf("can't create a temporary configuration file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append([]byte(xml.Header), b...)); err != nil {
		tmp.Close()
		return fmt.Errorf("can't write the configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("can't write the configuration: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("can't replace %v: %w", path, err)
	}
	return nil
}

// CheckAndSetDefaults repairs values a hand-edited file may have broken.
func (c *Configuration) CheckAndSetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeoutMS
	}
	accounts := c.Accounts[:0]
	for _, a := range c.Accounts {
		if a != nil {
			accounts = append(accounts, a)
		}
	}
	c.Accounts = accounts
	if c.SelectedAccount < 0 || c.SelectedAccount >= len(c.Accounts) {
		c.SelectedAccount = 0
	}
}

// TimeoutDuration returns the connection timeout.
func (c *Configuration) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// Account returns the selected account. An out-of-range selection falls
// back to the first account. It returns nil when there are no accounts.
func (c *Configuration) Account() *account.Account {
	if len(c.Accounts) == 0 {
		return nil
	}
	if c.SelectedAccount >= 0 && c.SelectedAccount < len(c.Accounts) {
		return c.Accounts[c.SelectedAccount]
	}
	return c.Accounts[0]
}

// AddAccount appends a and selects it.
func (c *Configuration) AddAccount(a *account.Account) {
	c.Accounts = append(c.Accounts, a)
	c.SelectedAccount = len(c.Accounts) - 1
}

// SelectAccount selects the account at index i.
func (c *Configuration) SelectAccount(i int) error {
	if i < 0 || i >= len(c.Accounts) {
		return fmt.Errorf("there is no account %v (have %v)", i, len(c.Accounts))
	}
	c.SelectedAccount = i
	return nil
}

// RemoveAccount deletes the account at index i. The selection keeps
// pointing at the same account when possible.
func (c *Configuration) RemoveAccount(i int) error {
	if i < 0 || i >= len(c.Accounts) {
		return fmt.Errorf("there is no account %v (have %v)", i, len(c.Accounts))
	}
	c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)

	switch {
	case c.SelectedAccount > i:
		c.SelectedAccount--
	case c.SelectedAccount >= len(c.Accounts):
		c.SelectedAccount = len(c.Accounts) - 1
	}
	if c.SelectedAccount < 0 {
		c.SelectedAccount = 0
	}
	return nil
}

// FindAccount returns the index of the account with the given email
// address, or -1.
func (c *Configuration) FindAccount(email string) int {
	for i, a := range c.Accounts {
		if a.Email == email {
			return i
		}
	}
	return -1
}
