// Package config loads pocketsync settings.
//
// Sources, lowest precedence first: built-in defaults, a YAML file, a .env
// file, POCKETSYNC_* environment variables. Command-line flags are applied on
// top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pocketbizz/pocketsync/internal/intercept"
	"github.com/pocketbizz/pocketsync/internal/netstate"
	"github.com/pocketbizz/pocketsync/internal/syncer"
	"github.com/pocketbizz/pocketsync/internal/worker"
)

// Connectivity modes.
const (
	ConnectivityProbe     = "probe"
	ConnectivityWebSocket = "websocket"
	ConnectivityManual    = "manual"
)

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full agent configuration.
type Config struct {
	// Listen is the address the agent serves pages and the admin API on.
	Listen string `yaml:"listen"`

	// PublicOrigin is the origin browsers use to reach the agent.
	PublicOrigin string `yaml:"public_origin"`

	// Upstream is the PocketBizz server origin.
	Upstream string `yaml:"upstream"`

	// DataDir holds queue.db and cache.db.
	DataDir string `yaml:"data_dir"`

	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Cache        CacheConfig        `yaml:"cache"`
	UI           UIConfig           `yaml:"ui"`
}

// SyncConfig controls replays.
type SyncConfig struct {
	// SubmitURL receives replayed forms. Defaults to Upstream + /add_transaction.
	SubmitURL     string        `yaml:"submit_url"`
	SessionCookie string        `yaml:"session_cookie"`
	BearerToken   string        `yaml:"bearer_token"`
	ReplayTimeout time.Duration `yaml:"replay_timeout"`
	Tag           string        `yaml:"tag"`
}

// ConnectivityConfig selects where online/offline signals come from.
type ConnectivityConfig struct {
	Mode          string        `yaml:"mode"`
	HealthURL     string        `yaml:"health_url"`
	WebSocketURL  string        `yaml:"websocket_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`

	// InitialOnline seeds the manual source.
	InitialOnline bool `yaml:"initial_online"`
}

// CacheConfig configures the worker cache.
type CacheConfig struct {
	Backend    string      `yaml:"backend"`
	Name       string      `yaml:"name"`
	Manifest   []string    `yaml:"manifest"`
	Exclusions []string    `yaml:"exclusions"`
	APIPrefix  string      `yaml:"api_prefix"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// UIConfig holds presentation timings.
type UIConfig struct {
	OnlineBannerTTL time.Duration `yaml:"online_banner_ttl"`
	ConfirmDelay    time.Duration `yaml:"confirm_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Upstream: "http://localhost:5000",
		DataDir:  ".pocketsync",
		Sync: SyncConfig{
			ReplayTimeout: syncer.DefaultReplayTimeout,
			Tag:           worker.DefaultSyncTag,
		},
		Connectivity: ConnectivityConfig{
			Mode:          ConnectivityProbe,
			ProbeInterval: netstate.DefaultProbeInterval,
			Heartbeat:     25 * time.Second,
			InitialOnline: true,
		},
		Cache: CacheConfig{
			Backend:    BackendSQLite,
			Name:       worker.DefaultCacheName,
			Manifest:   append([]string(nil), worker.DefaultManifest...),
			Exclusions: append([]string(nil), worker.DefaultExclusions...),
			APIPrefix:  worker.DefaultAPIPrefix,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: worker.DefaultRedisPrefix,
			},
		},
		UI: UIConfig{
			OnlineBannerTTL: netstate.DefaultOnlineBannerTTL,
			ConfirmDelay:    intercept.DefaultConfirmDelay,
		},
	}
}

// LoadOptions locates the configuration sources.
type LoadOptions struct {
	// Path is the YAML file; empty skips it.
	Path string

	// EnvFile is loaded into the process environment if it exists; variables
	// already set are not overridden. Empty means ".env".
	EnvFile string

	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds a Config from every source and validates it.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := cfg.mergeFile(opts.Path); err != nil {
			return Config{}, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Resolve fills settings derived from others.
func (c *Config) Resolve() {
	upstream := strings.TrimRight(c.Upstream, "/")
	if c.Sync.SubmitURL == "" {
		c.Sync.SubmitURL = upstream + syncer.DefaultSubmitPath
	}
	if c.Connectivity.HealthURL == "" {
		c.Connectivity.HealthURL = upstream + "/"
	}
	if c.PublicOrigin == "" {
		host := c.Listen
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		c.PublicOrigin = "http://" + host
	}
}

// QueuePath is the queue database file.
func (c Config) QueuePath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// CachePath is the SQLite cache database file.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if err := checkURL("upstream", c.Upstream, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("sync.submit_url", c.Sync.SubmitURL, "http", "https"); err != nil {
		return err
	}
	if c.Sync.Tag == "" {
		return errors.New("sync.tag is required")
	}

	switch c.Connectivity.Mode {
	case ConnectivityProbe:
		if err := checkURL("connectivity.health_url", c.Connectivity.HealthURL, "http", "https"); err != nil {
			return err
		}
	case ConnectivityWebSocket:
		if err := checkURL("connectivity.websocket_url", c.Connectivity.WebSocketURL, "ws", "wss"); err != nil {
			return err
		}
	case ConnectivityManual:
	default:
		return fmt.Errorf("connectivity.mode %q must be one of probe, websocket, manual", c.Connectivity.Mode)
	}

	switch c.Cache.Backend {
	case BackendSQLite:
		if c.DataDir == "" {
			return errors.New("data_dir is required for the sqlite cache backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("cache.backend %q must be sqlite or redis", c.Cache.Backend)
	}
	if c.Cache.Name == "" {
		return errors.New("cache.name is required")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"sync.replay_timeout", c.Sync.ReplayTimeout},
		{"connectivity.probe_interval", c.Connectivity.ProbeInterval},
		{"connectivity.heartbeat", c.Connectivity.Heartbeat},
		{"ui.online_banner_ttl", c.UI.OnlineBannerTTL},
		{"ui.confirm_delay", c.UI.ConfirmDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be an absolute %s URL", name, raw, strings.Join(schemes, "/"))
}

// envPrefix namespaces the environment overrides.
const envPrefix = "POCKETSYNC_"

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("LISTEN", &c.Listen)
	str("PUBLIC_ORIGIN", &c.PublicOrigin)
	str("UPSTREAM", &c.Upstream)
	str("DATA_DIR", &c.DataDir)
	str("SUBMIT_URL", &c.Sync.SubmitURL)
	str("SESSION_COOKIE", &c.Sync.SessionCookie)
	str("BEARER_TOKEN", &c.Sync.BearerToken)
	str("SYNC_TAG", &c.Sync.Tag)
	str("CONNECTIVITY", &c.Connectivity.Mode)
	str("HEALTH_URL", &c.Connectivity.HealthURL)
	str("WEBSOCKET_URL", &c.Connectivity.WebSocketURL)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("CACHE_NAME", &c.Cache.Name)
	list("CACHE_MANIFEST", &c.Cache.Manifest)
	list("CACHE_EXCLUSIONS", &c.Cache.Exclusions)
	str("REDIS_ADDR", &c.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("REDIS_PREFIX", &c.Cache.Redis.Prefix)

	if v, ok := lookup(envPrefix + "REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", envPrefix, err)
		}
		c.Cache.Redis.DB = n
	}
	if v, ok := lookup(envPrefix + "INITIAL_ONLINE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sINITIAL_ONLINE: %w", envPrefix, err)
		}
		c.Connectivity.InitialOnline = b
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"REPLAY_TIMEOUT", &c.Sync.ReplayTimeout},
		{"PROBE_INTERVAL", &c.Connectivity.ProbeInterval},
		{"HEARTBEAT", &c.Connectivity.Heartbeat},
		{"ONLINE_BANNER_TTL", &c.UI.OnlineBannerTTL},
		{"CONFIRM_DELAY", &c.UI.ConfirmDelay},
	}
	for _, d := range durations {
		v, ok := lookup(envPrefix + d.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
