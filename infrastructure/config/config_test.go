package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Second, cfg.Cache.LockLease)
	assert.Equal(t, 3, cfg.Cache.LockRetryAttempts)

	limits := cfg.RateLimits()
	assert.True(t, limits.Enabled)
	assert.Equal(t, 100, limits.Get.Requests)
	assert.Equal(t, time.Minute, limits.Get.Window)
	assert.Equal(t, 30, limits.Other.Requests)
}

func TestLoadConfig_EnvironmentAndFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  backend: redis
  lockLease: 5s
rateLimit:
  getRequests: 7
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOCK_RETRY_BACKOFF", "25ms")
	t.Setenv("RATE_LIMIT_OTHER_REQUESTS", "3")
	t.Setenv("CACHE_TTL", "120")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Second, cfg.Cache.LockLease)
	assert.Equal(t, 25*time.Millisecond, cfg.Cache.LockRetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 7, cfg.RateLimit.GetRequests)
	assert.Equal(t, 3, cfg.RateLimit.OtherRequests)
	assert.Equal(t, path, cfg.ConfigFile)

	domain := cfg.Domain()
	assert.Equal(t, 5*time.Second, domain.LockLease)
	assert.Equal(t, 2*time.Minute, domain.CacheTTL)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"unknown transport", map[string]string{"EVENT_TRANSPORT": "kafka"}},
		{"zero retry attempts", map[string]string{"LOCK_RETRY_ATTEMPTS": "0"}},
		{"zero limit", map[string]string{"RATE_LIMIT_GET_REQUESTS": "0"}},
		{"production without secret", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestWatcher_ReloadsRateLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rateLimit:\n  getRequests: 10\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	w, err := NewWatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var (
		mu  sync.Mutex
		got []int
	)
	w.OnChange(func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c.RateLimit.GetRequests)
	})
	w.Start()

	// an invalid file is ignored
	require.NoError(t, os.WriteFile(path, []byte("rateLimit:\n  getRequests: 0\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 10, w.Current().RateLimit.GetRequests)

	require.NoError(t, os.WriteFile(path, []byte("rateLimit:\n  getRequests: 42\n"), 0o644))
	assert.Eventually(t, func() bool {
		return w.Current().RateLimit.GetRequests == 42
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, 42)
}
