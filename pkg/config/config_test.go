package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port         int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	Backend      string        `env:"TEST_CFG_BACKEND" envDefault:"http://localhost:3000"`
	PollInterval time.Duration `env:"TEST_CFG_POLL_INTERVAL" envDefault:"1s"`
	MockPayments bool          `env:"TEST_CFG_MOCK_PAYMENTS" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.Backend)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.False(t, cfg.MockPayments)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_BACKEND", "https://api.example.com")
	t.Setenv("TEST_CFG_POLL_INTERVAL", "250ms")
	t.Setenv("TEST_CFG_MOCK_PAYMENTS", "true")

	var cfg testConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://api.example.com", cfg.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.MockPayments)
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("APP_TEST_CFG_PORT", "7070")
	t.Setenv("TEST_CFG_PORT", "9999")

	var cfg testConfig
	err := LoadWithPrefix(&cfg, "APP_")

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

type requiredConfig struct {
	APIKey string `env:"TEST_CFG_API_KEY,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RequiredFieldPresent(t *testing.T) {
	t.Setenv("TEST_CFG_API_KEY", "secret-123")

	var cfg requiredConfig
	err := Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, "secret-123", cfg.APIKey)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type checkedConfig struct {
	Attempts int `env:"TEST_CFG_ATTEMPTS" envDefault:"30"`
}

func (c *checkedConfig) Validate() error {
	if c.Attempts <= 0 {
		return errors.New("attempts must be positive")
	}
	return nil
}

func TestLoad_RunsValidate(t *testing.T) {
	t.Setenv("TEST_CFG_ATTEMPTS", "0")

	var cfg checkedConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
	assert.Contains(t, err.Error(), "attempts must be positive")
}
