// Package config holds the client settings shared by the native and browser
// builds.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Environments.
const (
	Development = "development"
	Testing     = "testing"
	Production  = "production"
)

const (
	DefaultAPIURL    = "http://localhost:8080/api"
	DefaultSaveDelay = time.Second
)

// Config is the client configuration.
type Config struct {
	Env        string
	APIURL     string
	APITimeout time.Duration
	SaveDelay  time.Duration
}

// Lookup returns the value for key and whether it was set. os.LookupEnv
// satisfies it.
type Lookup func(key string) (string, bool)

// Default returns the development configuration.
func Default() Config {
	return Config{
		Env:       Development,
		APIURL:    DefaultAPIURL,
		SaveDelay: DefaultSaveDelay,
	}
}

// Load reads NOTELY_* keys through lookup, falling back to Default.
func Load(lookup Lookup) (Config, error) {
	cfg := Default()

	if v, ok := lookup("NOTELY_ENV"); ok && v != "" {
		switch v {
		case Development, Testing, Production:
			cfg.Env = v
		default:
			return Config{}, fmt.Errorf("NOTELY_ENV: unknown environment %q", v)
		}
	}
	if v, ok := lookup("NOTELY_API_URL"); ok && v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	if v, ok := lookup("NOTELY_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("NOTELY_API_TIMEOUT: invalid duration %q", v)
		}
		cfg.APITimeout = d
	}
	if v, ok := lookup("NOTELY_SAVE_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("NOTELY_SAVE_DELAY: invalid duration %q", v)
		}
		cfg.SaveDelay = d
	}

	return cfg, nil
}

// IsTesting reports whether test doubles should be used.
func (c Config) IsTesting() bool { return c.Env == Testing }

// MapLookup adapts a map to Lookup.
func MapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
