package userconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/spf13/viper"
)

const (
	keyLastOpenedFile        = "last_opened_file"
	keyOpenLastFileAtStartup = "open_last_file_at_startup"
	keyDefaultSendMode       = "default_send_mode"
	keyMaxAttachmentSize     = "max_attachment_size"
	keyLogLevel              = "log_level"
	keyHistoryDir            = "history_dir"
	keyHistoryTTL            = "history_ttl"
	keyThunderbirdPath       = "thunderbird_path"
	keyOutlookPath           = "outlook_path"
)

// EnvPrefix prefixes environment variables overriding preferences, e.g.,
// COMMUNIQUE_LOG_LEVEL=debug.
const EnvPrefix = "COMMUNIQUE"

// Preferences are application settings that are not tied to an account.
type Preferences struct {
	LastOpenedFile        string
	OpenLastFileAtStartup bool
	DefaultSendMode       string
	// Zero means unlimited
	MaxAttachmentSize units.Base2Bytes
	LogLevel          string
	HistoryDir        string
	HistoryTTL        time.Duration
	ThunderbirdPath   string
	OutlookPath       string

	path string
	// As loaded, to tell which fields the caller changed
	loaded map[string]interface{}
}

// DefaultPreferencesPath returns the path of preferences.yaml.
func DefaultPreferencesPath() string {
	return filepath.Join(DefaultDir(), "preferences.yaml")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyLastOpenedFile, "")
	v.SetDefault(keyOpenLastFileAtStartup, true)
	v.SetDefault(keyDefaultSendMode, "smtp")
	v.SetDefault(keyMaxAttachmentSize, "25MiB")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyHistoryDir, filepath.Join(DefaultDir(), "history"))
	v.SetDefault(keyHistoryTTL, "720h")
	v.SetDefault(keyThunderbirdPath, "")
	v.SetDefault(keyOutlookPath, "")
	return v
}

// LoadPreferences reads the preferences at path. A missing file yields the
// defaults.
func LoadPreferences(path string) (*Preferences, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading preferences %v: %w", path, err)
		}
	}

	p := &Preferences{
		LastOpenedFile:        v.GetString(keyLastOpenedFile),
		OpenLastFileAtStartup: v.GetBool(keyOpenLastFileAtStartup),
		DefaultSendMode:       v.GetString(keyDefaultSendMode),
		LogLevel:              v.GetString(keyLogLevel),
		HistoryDir:            v.GetString(keyHistoryDir),
		ThunderbirdPath:       v.GetString(keyThunderbirdPath),
		OutlookPath:           v.GetString(keyOutlookPath),
		path:                  path,
	}

	size := strings.TrimSpace(v.GetString(keyMaxAttachmentSize))
	if size != "" && size != "0" {
		b, err := units.ParseBase2Bytes(size)
		if err != nil {
			return nil, fmt.Errorf("%v is not a valid size, e.g., 25MiB: %w", keyMaxAttachmentSize, err)
		}
		p.MaxAttachmentSize = b
	}

	ttl, err := time.ParseDuration(v.GetString(keyHistoryTTL))
	if err != nil {
		return nil, fmt.Errorf("%v is not a valid duration, e.g., 720h: %w", keyHistoryTTL, err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%v must be positive", keyHistoryTTL)
	}
	p.HistoryTTL = ttl
	p.loaded = p.values()

	return p, nil
}

// values maps preference keys to their values as written to the file.
func (p *Preferences) values() map[string]interface{} {
	return map[string]interface{}{
		keyLastOpenedFile:        p.LastOpenedFile,
		keyOpenLastFileAtStartup: p.OpenLastFileAtStartup,
		keyDefaultSendMode:       p.DefaultSendMode,
		keyMaxAttachmentSize:     p.MaxAttachmentSize.String(),
		keyLogLevel:              p.LogLevel,
		keyHistoryDir:            p.HistoryDir,
		keyHistoryTTL:            p.HistoryTTL.String(),
		keyThunderbirdPath:       p.ThunderbirdPath,
		keyOutlookPath:           p.OutlookPath,
	}
}

// Path returns the file the preferences were loaded from.
func (p *Preferences) Path() string {
	return p.path
}

// Save writes the preferences back to the file they were loaded from.
func (p *Preferences) Save() error {
	if p.path == "" {
		return errors.New("the preferences have no file to save to")
	}
	return p.SaveAs(p.path)
}

// SaveAs writes the preferences to path, creating parent directories.
// Keys already in the file are kept as they are, and only fields changed
// since loading are added. Defaults and environment overrides are never
// written. Preferences that weren't loaded from a file are written whole.
func (p *Preferences) SaveAs(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating preferences directory %v: %w", dir, err)
	}

	// No defaults and no AutomaticEnv, so this holds the file's keys only
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return fmt.Errorf("reading preferences %v: %w", path, err)
		}
	}

	cur := p.values()
	for k, val := range cur {
		if p.loaded == nil || p.loaded[k] != val {
			v.Set(k, val)
		}
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing preferences to %v: %w", path, err)
	}
	p.path = path
	p.loaded = cur
	return nil
}
