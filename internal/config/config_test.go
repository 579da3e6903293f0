package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{EnvFile: missingEnvFile(t), Lookup: noEnv})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "http://localhost:8080", cfg.PublicOrigin)
	assert.Equal(t, "http://localhost:5000/add_transaction", cfg.Sync.SubmitURL)
	assert.Equal(t, "http://localhost:5000/", cfg.Connectivity.HealthURL)
	assert.Equal(t, "offline-transactions-sync", cfg.Sync.Tag)
	assert.Equal(t, "pocketbizz-v1.0.0", cfg.Cache.Name)
	assert.Contains(t, cfg.Cache.Exclusions, "/add_transaction")
	assert.Equal(t, 3*time.Second, cfg.UI.OnlineBannerTTL)
	assert.Equal(t, 1500*time.Millisecond, cfg.UI.ConfirmDelay)
	assert.Equal(t, 15*time.Second, cfg.Sync.ReplayTimeout)
	assert.Equal(t, filepath.Join(".pocketsync", "queue.db"), cfg.QueuePath())
	assert.Equal(t, filepath.Join(".pocketsync", "cache.db"), cfg.CachePath())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "pocketsync.yaml", `
listen: 127.0.0.1:9090
upstream: https://app.pocketbizz.my
data_dir: /var/lib/pocketsync
sync:
  replay_timeout: 5s
connectivity:
  mode: websocket
  websocket_url: wss://app.pocketbizz.my/realtime
cache:
  backend: redis
  manifest: ["/", "/static/js/app.js"]
  redis:
    addr: redis:6379
    db: 2
`)
	cfg, err := Load(LoadOptions{Path: path, EnvFile: missingEnvFile(t), Lookup: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, "http://127.0.0.1:9090", cfg.PublicOrigin)
	assert.Equal(t, "https://app.pocketbizz.my/add_transaction", cfg.Sync.SubmitURL)
	assert.Equal(t, 5*time.Second, cfg.Sync.ReplayTimeout)
	assert.Equal(t, ConnectivityWebSocket, cfg.Connectivity.Mode)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, []string{"/", "/static/js/app.js"}, cfg.Cache.Manifest)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "pocketsync", cfg.Cache.Redis.Prefix, "unset nested fields keep defaults")
}

func TestLoad_UnknownYAMLField(t *testing.T) {
	path := writeFile(t, "pocketsync.yaml", "upstrem: http://typo\n")
	_, err := Load(LoadOptions{Path: path, EnvFile: missingEnvFile(t), Lookup: noEnv})
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pocketsync.yaml", "upstream: http://file.example\n")
	cfg, err := Load(LoadOptions{
		Path:    path,
		EnvFile: missingEnvFile(t),
		Lookup: envMap(map[string]string{
			"POCKETSYNC_UPSTREAM":         "http://env.example:5000",
			"POCKETSYNC_CONNECTIVITY":     "manual",
			"POCKETSYNC_INITIAL_ONLINE":   "false",
			"POCKETSYNC_REDIS_DB":         "4",
			"POCKETSYNC_REPLAY_TIMEOUT":   "30s",
			"POCKETSYNC_CACHE_EXCLUSIONS": "/api/, /secret ,",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "http://env.example:5000", cfg.Upstream)
	assert.Equal(t, "http://env.example:5000/add_transaction", cfg.Sync.SubmitURL)
	assert.Equal(t, ConnectivityManual, cfg.Connectivity.Mode)
	assert.False(t, cfg.Connectivity.InitialOnline)
	assert.Equal(t, 4, cfg.Cache.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Sync.ReplayTimeout)
	assert.Equal(t, []string{"/api/", "/secret"}, cfg.Cache.Exclusions)
}

func TestLoad_BadEnvValues(t *testing.T) {
	for name, value := range map[string]string{
		"POCKETSYNC_REDIS_DB":       "two",
		"POCKETSYNC_INITIAL_ONLINE": "maybe",
		"POCKETSYNC_HEARTBEAT":      "soon",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(LoadOptions{EnvFile: missingEnvFile(t), Lookup: envMap(map[string]string{name: value})})
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	const key = "POCKETSYNC_BEARER_TOKEN"
	_, preset := os.LookupEnv(key)
	if preset {
		t.Skipf("%s is set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	envFile := writeFile(t, ".env", key+"=from-dotenv\n")
	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Sync.BearerToken)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"empty listen":          func(c *Config) { c.Listen = "" },
		"relative upstream":     func(c *Config) { c.Upstream = "/pocketbizz" },
		"unknown connectivity":  func(c *Config) { c.Connectivity.Mode = "pigeon" },
		"websocket without url": func(c *Config) { c.Connectivity.Mode = ConnectivityWebSocket },
		"http websocket url": func(c *Config) {
			c.Connectivity.Mode = ConnectivityWebSocket
			c.Connectivity.WebSocketURL = "http://x/realtime"
		},
		"unknown backend":  func(c *Config) { c.Cache.Backend = "memcached" },
		"redis no addr":    func(c *Config) { c.Cache.Backend = BackendRedis; c.Cache.Redis.Addr = "" },
		"empty cache name": func(c *Config) { c.Cache.Name = "" },
		"empty sync tag":   func(c *Config) { c.Sync.Tag = "" },
		"zero timeout":     func(c *Config) { c.Sync.ReplayTimeout = 0 },
		"negative ttl":     func(c *Config) { c.UI.OnlineBannerTTL = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			cfg.Resolve()
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Resolve()
	assert.NoError(t, cfg.Validate())
}
