// Package config loads and validates status page configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Gatekeeper GatekeeperConfig `mapstructure:"gatekeeper"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the status page HTTP server.
type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	IndexTemplate string `mapstructure:"index_template"`
	StaticDir     string `mapstructure:"static_dir"`
	BaseHref      string `mapstructure:"base_href"`
	Title         string `mapstructure:"title"`
}

// GatekeeperConfig locates the cyphernode gatekeeper and its signing key.
type GatekeeperConfig struct {
	KeyFile   string `mapstructure:"key_file"`
	KeyLabel  string `mapstructure:"key_label"`
	StatusURL string `mapstructure:"status_url"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PollerConfig configures the in-process progress tracker. Origin is the
// absolute URL root-relative status paths resolve against; when empty the
// tracker targets this server's own listen address.
type PollerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Origin   string `mapstructure:"origin"`
	BaseHref string `mapstructure:"base_href"`
}

// ProgressConfig tunes delivery of presenter events. Backlog caps events
// queued behind a slow sink; SinkTimeoutMs bounds each sink call.
type ProgressConfig struct {
	Backlog       int `mapstructure:"backlog"`
	SinkTimeoutMs int `mapstructure:"sink_timeout_ms"`
}

// PubSubConfig holds metadata for progress notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features. An empty Level keeps the
// mode's default (debug in development, info otherwise).
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. With an empty path a file named
// "config" is looked up in ./data and the working directory; a missing file
// is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CNSTATUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("data")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.index_template", "")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.base_href", "/")
	v.SetDefault("server.title", "Cyphernode status")
	v.SetDefault("gatekeeper.key_file", "")
	v.SetDefault("gatekeeper.key_label", "")
	v.SetDefault("gatekeeper.status_url", "")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.origin", "")
	v.SetDefault("poller.base_href", "")
	v.SetDefault("progress.backlog", 16)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Progress.Backlog < 0 || c.Progress.SinkTimeoutMs < 0 {
		return fmt.Errorf("progress settings must be >= 0")
	}
	if c.Gatekeeper.StatusURL != "" {
		if err := requireAbsoluteURL(c.Gatekeeper.StatusURL); err != nil {
			return fmt.Errorf("gatekeeper.status_url: %w", err)
		}
	}
	if c.Gatekeeper.KeyLabel != "" && c.Gatekeeper.KeyFile == "" {
		return fmt.Errorf("gatekeeper.key_file must be set when gatekeeper.key_label is set")
	}
	if c.Poller.Origin != "" {
		if err := requireAbsoluteURL(c.Poller.Origin); err != nil {
			return fmt.Errorf("poller.origin: %w", err)
		}
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SinkTimeout converts the per-sink delivery bound into a duration.
func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.Progress.SinkTimeoutMs) * time.Millisecond
}

// PollerOrigin returns the configured origin, or the loopback URL of the
// listen address when none is configured.
func (c Config) PollerOrigin() string {
	if c.Poller.Origin != "" {
		return c.Poller.Origin
	}
	host, port, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return "http://" + c.Server.Listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// PollerBaseHref returns the base reference the tracker resolves the status
// path against, defaulting to the page's own base.
func (c Config) PollerBaseHref() string {
	if c.Poller.BaseHref != "" {
		return c.Poller.BaseHref
	}
	return c.Server.BaseHref
}

func requireAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute URL", raw)
	}
	return nil
}
