// Package config builds the explicit configuration value the rest of the
// program receives by parameter. Nothing outside this package and the CLI
// wiring reads ambient process state.
package config

import (
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/mpetitjean/newsrack/internal/instapaper"
	"github.com/mpetitjean/newsrack/internal/retain"
	"github.com/mpetitjean/newsrack/pkg/errors"
)

// Defaults.
const (
	DefaultStateFile   = "article_data.json"
	DefaultFeedsFile   = "feeds.yaml"
	DefaultAddDelay    = 1 * time.Second
	DefaultHTTPTimeout = 15 * time.Second
)

// envBindings maps viper keys to the environment variables that feed them.
// The INSTAPAPER_* names match what the service's other client tooling uses.
var envBindings = map[string]string{
	"consumer_key":    "INSTAPAPER_CONSUMER_KEY",
	"consumer_secret": "INSTAPAPER_CONSUMER_SECRET",
	"username":        "INSTAPAPER_USER",
	"password":        "INSTAPAPER_PASS",
	"state_file":      "NEWSRACK_STATE_FILE",
	"feeds_file":      "NEWSRACK_FEEDS_FILE",
	"policy":          "NEWSRACK_POLICY",
	"ttl":             "NEWSRACK_TTL",
	"cap":             "NEWSRACK_CAP",
	"add_delay":       "NEWSRACK_ADD_DELAY",
	"http_timeout":    "NEWSRACK_HTTP_TIMEOUT",
}

// Config is everything a sync run needs, resolved once at process start.
type Config struct {
	Credentials instapaper.Credentials

	// StateFile is the tracking snapshot path.
	StateFile string

	// FeedsFile is consulted when no feeds are set in the main config.
	FeedsFile string

	// Feeds are the feed URLs, in submission order.
	Feeds []string

	// Policy is the retention rule.
	Policy retain.Policy

	// AddDelay is the pause between consecutive bookmark submissions.
	AddDelay time.Duration

	// HTTPTimeout bounds each remote request.
	HTTPTimeout time.Duration
}

// SetDefaults registers defaults and environment bindings on the global
// viper instance. Called once from the CLI before Load.
func SetDefaults() {
	viper.SetDefault("state_file", DefaultStateFile)
	viper.SetDefault("feeds_file", DefaultFeedsFile)
	viper.SetDefault("policy", string(retain.ModeTTL))
	viper.SetDefault("ttl", retain.DefaultPolicy().TTL)
	viper.SetDefault("cap", retain.DefaultPolicy().Cap)
	viper.SetDefault("add_delay", DefaultAddDelay)
	viper.SetDefault("http_timeout", DefaultHTTPTimeout)

	for key, env := range envBindings {
		// BindEnv only errors on an empty key.
		_ = viper.BindEnv(key, env)
	}
}

// Load resolves the configuration from viper (flags, environment, config
// file, defaults — in that precedence) and the feeds file.
func Load() (*Config, error) {
	cfg := &Config{
		Credentials: instapaper.Credentials{
			ConsumerKey:    viper.GetString("consumer_key"),
			ConsumerSecret: viper.GetString("consumer_secret"),
			Username:       viper.GetString("username"),
			Password:       viper.GetString("password"),
		},
		StateFile: viper.GetString("state_file"),
		FeedsFile: viper.GetString("feeds_file"),
		Feeds:     viper.GetStringSlice("feeds"),
		Policy: retain.Policy{
			Mode: retain.Mode(viper.GetString("policy")),
			TTL:  viper.GetDuration("ttl"),
			Cap:  viper.GetInt("cap"),
		},
		AddDelay:    viper.GetDuration("add_delay"),
		HTTPTimeout: viper.GetDuration("http_timeout"),
	}

	if len(cfg.Feeds) == 0 && cfg.FeedsFile != "" {
		feeds, err := LoadFeeds(cfg.FeedsFile)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}
		cfg.Feeds = feeds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the run can proceed at all.
func (c *Config) Validate() error {
	switch {
	case c.Credentials.ConsumerKey == "":
		return errors.NewValidationError("consumer_key", nil, "INSTAPAPER_CONSUMER_KEY is not set")
	case c.Credentials.ConsumerSecret == "":
		return errors.NewValidationError("consumer_secret", nil, "INSTAPAPER_CONSUMER_SECRET is not set")
	case c.Credentials.Username == "":
		return errors.NewValidationError("username", nil, "INSTAPAPER_USER is not set")
	case c.Credentials.Password == "":
		return errors.NewValidationError("password", nil, "INSTAPAPER_PASS is not set")
	case len(c.Feeds) == 0:
		return errors.NewValidationError("feeds", nil, "no feeds configured: set feeds in the config or provide a feeds file")
	}

	switch c.Policy.Mode {
	case retain.ModeTTL, retain.ModeSourceCap:
	default:
		return errors.NewValidationError("policy", c.Policy.Mode, `must be "ttl" or "source-cap"`)
	}
	return nil
}

// feedsFile is the on-disk shape of the feeds list.
type feedsFile struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the YAML feeds file, preserving order.
func LoadFeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.WrapIO("read", path, err)
	}

	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return f.Feeds, nil
}
