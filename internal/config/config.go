package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LESSON_HTTP_ADDR.
const EnvPrefix = "LESSON"

// devSecret signs tokens when dev login is on and no secret is configured.
const devSecret = "supersecret-dev-key"

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret string
	AuthTTL    time.Duration
	DevLogin   bool

	CORSOrigins []string

	LogLevel  string
	LogFormat string // text|json

	RateLimitRPS   float64
	RateLimitBurst int

	SiteID    string
	Gradebook Gradebook
}

// Gradebook configures grade passback to an AGS line-items container.
type Gradebook struct {
	Enabled      bool
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	LineItemsURL string
	Concurrency  int
}

// SetDefaults registers every key so env overrides resolve through
// AutomaticEnv even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:lessons.db?_pragma=busy_timeout(5000)")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.ttl", 8*time.Hour)
	v.SetDefault("dev.login", true)
	v.SetDefault("cors.origins", "http://localhost:3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("site.id", "local")
	v.SetDefault("gradebook.enabled", false)
	v.SetDefault("gradebook.token_url", "")
	v.SetDefault("gradebook.client_id", "")
	v.SetDefault("gradebook.client_secret", "")
	v.SetDefault("gradebook.scopes", "")
	v.SetDefault("gradebook.lineitems_url", "")
	v.SetDefault("gradebook.concurrency", 4)
}

// Load reads v (config file, flags and LESSON_* env) into a Config.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		HTTPAddr:       v.GetString("http.addr"),
		DBDriver:       v.GetString("db.driver"),
		DBDSN:          v.GetString("db.dsn"),
		AuthSecret:     v.GetString("auth.secret"),
		AuthTTL:        v.GetDuration("auth.ttl"),
		DevLogin:       v.GetBool("dev.login"),
		CORSOrigins:    stringList(v, "cors.origins"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
		RateLimitRPS:   v.GetFloat64("ratelimit.rps"),
		RateLimitBurst: v.GetInt("ratelimit.burst"),
		SiteID:         v.GetString("site.id"),
		Gradebook: Gradebook{
			Enabled:      v.GetBool("gradebook.enabled"),
			TokenURL:     v.GetString("gradebook.token_url"),
			ClientID:     v.GetString("gradebook.client_id"),
			ClientSecret: v.GetString("gradebook.client_secret"),
			Scopes:       stringList(v, "gradebook.scopes"),
			LineItemsURL: v.GetString("gradebook.lineitems_url"),
			Concurrency:  v.GetInt("gradebook.concurrency"),
		},
	}
	if cfg.AuthSecret == "" && cfg.DevLogin {
		cfg.AuthSecret = devSecret
	}
	return cfg, cfg.Validate()
}

// FromEnv loads the configuration from LESSON_* environment variables only.
func FromEnv() (Config, error) {
	return Load(viper.New())
}

func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("config: http.addr is required")
	case c.AuthSecret == "":
		return errors.New("config: auth.secret is required when dev.login is off")
	case c.AuthTTL <= 0:
		return errors.New("config: auth.ttl must be positive")
	case c.RateLimitRPS < 0 || c.RateLimitBurst < 0:
		return errors.New("config: ratelimit values must not be negative")
	}
	if !c.Gradebook.Enabled {
		return nil
	}
	switch {
	case c.Gradebook.TokenURL == "", c.Gradebook.ClientID == "":
		return errors.New("config: gradebook.token_url and gradebook.client_id are required")
	case c.Gradebook.LineItemsURL == "":
		return errors.New("config: gradebook.lineitems_url is required")
	case c.Gradebook.Concurrency < 1:
		return errors.New("config: gradebook.concurrency must be at least 1")
	}
	return nil
}

// stringList accepts either a list (config file) or a comma-separated
// string (env, flags).
func stringList(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		return csv(s)
	}
	return v.GetStringSlice(key)
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
