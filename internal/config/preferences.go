package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	prefAutoLocation = "auto_location"
	prefLocation     = "location"
)

// UserPreferences are the user-editable refresh settings.
type UserPreferences struct {
	AutoLocation bool   `json:"autoLocation"`
	Location     string `json:"location" validate:"max=200"`
}

// Preferences is a viper-backed preference store. Values are read on every
// Snapshot so changes apply to the next refresh.
type Preferences struct {
	mu   sync.RWMutex
	v    *viper.Viper
	file string
}

// LoadPreferences reads preferences from file (optional, yaml) and the
// WEATHER_* environment. A missing file is not an error.
func LoadPreferences(file string) (*Preferences, error) {
	v := viper.New()
	v.SetDefault(prefAutoLocation, true)
	v.SetDefault(prefLocation, "")

	v.SetEnvPrefix("WEATHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if filepath.Ext(file) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read preferences %s: %w", file, err)
			}
		}
	}

	return &Preferences{v: v, file: file}, nil
}

// Snapshot returns the current preferences.
func (p *Preferences) Snapshot() UserPreferences {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return UserPreferences{
		AutoLocation: p.v.GetBool(prefAutoLocation),
		Location:     p.v.GetString(prefLocation),
	}
}

// Update replaces the preferences and persists them when a file is configured.
func (p *Preferences) Update(up UserPreferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.v.Set(prefAutoLocation, up.AutoLocation)
	p.v.Set(prefLocation, strings.TrimSpace(up.Location))

	if p.file == "" {
		return nil
	}
	if err := p.v.WriteConfigAs(p.file); err != nil {
		return fmt.Errorf("write preferences %s: %w", p.file, err)
	}
	return nil
}
