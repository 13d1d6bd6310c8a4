package config_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/config"
)

type parsedConfig struct {
	Name  string   `env:"KG_TEST_NAME" envDefault:"keygate"`
	Port  int      `env:"KG_TEST_PORT" envDefault:"8080"`
	Debug bool     `env:"KG_TEST_DEBUG"`
	IDs   []string `env:"KG_TEST_IDS" envSeparator:","`
}

type defaultsConfig struct {
	Name string `env:"KG_TEST_DEFAULTS_NAME" envDefault:"fallback"`
}

type cachedConfig struct {
	Value string `env:"KG_TEST_CACHED"`
}

type requiredConfig struct {
	Value string `env:"KG_TEST_REQUIRED,required"`
}

type retriedConfig struct {
	Value string `env:"KG_TEST_RETRIED,required"`
}

type badIntConfig struct {
	Port int `env:"KG_TEST_BAD_INT"`
}

type validatedConfig struct {
	Env    string `env:"KG_TEST_ENV" envDefault:"production"`
	Secret string `env:"KG_TEST_SECRET"`
}

func (c *validatedConfig) Validate() error {
	if c.Env == "production" && c.Secret == "" {
		return errors.New("secret is required in production")
	}
	return nil
}

type concurrentConfig struct {
	Value string `env:"KG_TEST_CONCURRENT" envDefault:"same"`
}

func TestLoad_Parses(t *testing.T) {
	t.Setenv("KG_TEST_NAME", "licensing")
	t.Setenv("KG_TEST_PORT", "9090")
	t.Setenv("KG_TEST_DEBUG", "true")
	t.Setenv("KG_TEST_IDS", "a,b")

	var cfg parsedConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, parsedConfig{Name: "licensing", Port: 9090, Debug: true, IDs: []string{"a", "b"}}, cfg)
}

func TestLoad_Defaults(t *testing.T) {
	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "fallback", cfg.Name)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("KG_TEST_CACHED", "first")

	var a cachedConfig
	require.NoError(t, config.Load(&a))

	t.Setenv("KG_TEST_CACHED", "second")
	var b cachedConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value)
}

func TestLoad_Errors(t *testing.T) {
	var req requiredConfig
	assert.ErrorIs(t, config.Load(&req), config.ErrParsingConfig)

	t.Setenv("KG_TEST_BAD_INT", "eighty")
	var bad badIntConfig
	assert.ErrorIs(t, config.Load(&bad), config.ErrParsingConfig)

	assert.ErrorIs(t, config.Load[parsedConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() {
		var again requiredConfig
		config.MustLoad(&again)
	})
}

func TestLoad_FailuresAreNotCached(t *testing.T) {
	var cfg retriedConfig
	require.Error(t, config.Load(&cfg))

	t.Setenv("KG_TEST_RETRIED", "now set")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "now set", cfg.Value)
}

func TestLoad_Validates(t *testing.T) {
	var cfg validatedConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorContains(t, err, "secret is required")

	t.Setenv("KG_TEST_SECRET", "s3cret")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "s3cret", cfg.Secret)
}

func TestLoad_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var cfg concurrentConfig
			assert.NoError(t, config.Load(&cfg))
			assert.Equal(t, "same", cfg.Value)
		}()
	}
	wg.Wait()
}
