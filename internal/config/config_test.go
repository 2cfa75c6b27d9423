package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Prefix string
	}

	Session struct {
		MaxRetries int
		TTL        time.Duration
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Redis.Addrs = []string{"default:6379"}
	c.Redis.Prefix = "default"
	c.Session.MaxRetries = 3
	c.Session.TTL = time.Hour
	return c
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T) (file string, opts []config.Option)
		assert  func(t *testing.T, c testConfig)
	}{
		"should keep defaults without file": {
			arrange: func(t *testing.T) (string, []config.Option) {
				return "", nil
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, defaults(), c)
			},
		},

		"should override defaults from file": {
			arrange: func(t *testing.T) (string, []config.Option) {
				return writeFile(t, `
http:
  port: 9090
redis:
  addrs: ["localhost:6379"]
session:
  ttl: 30m
`), nil
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(9090), c.HTTP.Port)
				assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
				assert.Equal(t, "default", c.Redis.Prefix, "should keep defaults missing in file")
				assert.Equal(t, 30*time.Minute, c.Session.TTL)
			},
		},

		"should override file from prefixed environment": {
			arrange: func(t *testing.T) (string, []config.Option) {
				t.Setenv("LIVEQUIZ_HTTP_PORT", "7070")
				t.Setenv("LIVEQUIZ_REDIS_PREFIX", "env")
				t.Setenv("HTTP_PORT", "1")
				return writeFile(t, "http:\n  port: 9090\n"), []config.Option{config.WithEnvPrefix("LIVEQUIZ")}
			},
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, int32(7070), c.HTTP.Port)
				assert.Equal(t, "env", c.Redis.Prefix)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			file, opts := tt.arrange(t)

			c := defaults()
			require.NoError(t, config.Load(file, &c, opts...))

			tt.assert(t, c)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	c := defaults()
	err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	require.Error(t, err)
}

func writeFile(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
