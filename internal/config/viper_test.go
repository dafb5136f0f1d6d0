package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir in Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Weather.CacheTTL)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	require.Len(t, cfg.Weather.Sources, len(DefaultSources()))
	assert.Equal(t, "tomorrow.io", cfg.Weather.Sources[0].ID)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
weather:
  cache_ttl: 60
  sources:
    - id: open-meteo
      type: open-meteo
      name: Open-Meteo
      weight: 1.1
      active: true
    - id: owm
      type: openweathermap
      weight: 0.5
      active: false
      api_key_env: TEST_OWM_KEY
`)
	t.Setenv("TEST_OWM_KEY", "secret-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Weather.CacheTTL)
	require.Len(t, cfg.Weather.Sources, 2)
	assert.Equal(t, "open-meteo", cfg.Weather.Sources[0].ID)
	assert.Equal(t, "owm", cfg.Weather.Sources[1].ID)
	assert.Equal(t, 0.5, cfg.Weather.Sources[1].Weight)
	assert.Equal(t, "secret-key", cfg.Weather.Sources[1].APIKey)

	assert.Equal(t, "open-meteo", cfg.Weather.Sources[0].Type)
	assert.Equal(t, "Open-Meteo", cfg.Weather.Sources[0].Name)
	assert.Equal(t, "https://api.open-meteo.com/v1", cfg.Weather.Sources[0].BaseURL)
	assert.Equal(t, "openweathermap", cfg.Weather.Sources[1].Type)
	assert.Equal(t, "OpenWeatherMap", cfg.Weather.Sources[1].Name)
	assert.Equal(t, "https://api.openweathermap.org/data/2.5", cfg.Weather.Sources[1].BaseURL)
}

func TestLoad_SourcesDefaultByTypeNotPosition(t *testing.T) {
	path := writeConfig(t, `
weather:
  sources:
    - id: open-meteo
      type: open-meteo
      active: true
    - id: openweathermap
      api_key_env: TEST_OWM_KEY
    - id: custom-station
      type: meteostat
      name: Roof station
      base_url: http://localhost:9000
      weight: 0.4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Weather.Sources, 3)

	tests := []struct {
		id, typ, name, baseURL, apiKeyEnv string
		weight                            float64
	}{
		{"open-meteo", "open-meteo", "Open-Meteo", "https://api.open-meteo.com/v1", "", 1.1},
		{"openweathermap", "openweathermap", "OpenWeatherMap", "https://api.openweathermap.org/data/2.5", "TEST_OWM_KEY", 1.0},
		{"custom-station", "meteostat", "Roof station", "http://localhost:9000", "METEOSTAT_KEY", 0.4},
	}

	for i, tt := range tests {
		src := cfg.Weather.Sources[i]
		assert.Equal(t, tt.id, src.ID)
		assert.Equal(t, tt.typ, src.Type, tt.id)
		assert.Equal(t, tt.name, src.Name, tt.id)
		assert.Equal(t, tt.baseURL, src.BaseURL, tt.id)
		assert.Equal(t, tt.apiKeyEnv, src.APIKeyEnv, tt.id)
		assert.Equal(t, tt.weight, src.Weight, tt.id)
	}
	assert.False(t, cfg.Weather.Sources[1].Active)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	byID := make(map[string]SourceConfig)
	for _, src := range cfg.Weather.Sources {
		byID[src.ID] = src
	}
	require.Len(t, byID, 4)

	for id, src := range byID {
		assert.Equal(t, id, src.Type)
	}
	assert.Equal(t, "Open-Meteo", byID["open-meteo"].Name)
	assert.Equal(t, "https://api.open-meteo.com/v1", byID["open-meteo"].BaseURL)
	assert.Equal(t, "https://api.tomorrow.io/v4", byID["tomorrow.io"].BaseURL)
}

func TestLoad_EnvOverridesScalar(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SMART_METEO_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_LiteralKeyWinsOverEnv(t *testing.T) {
	path := writeConfig(t, `
weather:
  sources:
    - id: weatherapi
      type: weatherapi
      weight: 1
      active: true
      api_key: literal
      api_key_env: TEST_WEATHERAPI_KEY
`)
	t.Setenv("TEST_WEATHERAPI_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "literal", cfg.Weather.Sources[0].APIKey)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "no sources", mutate: func(c *Config) { c.Weather.Sources = nil }, wantErr: true},
		{name: "empty id", mutate: func(c *Config) { c.Weather.Sources[0].ID = "" }, wantErr: true},
		{name: "duplicate id", mutate: func(c *Config) { c.Weather.Sources[1].ID = c.Weather.Sources[0].ID }, wantErr: true},
		{name: "zero weight", mutate: func(c *Config) { c.Weather.Sources[0].Weight = 0 }, wantErr: true},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: true},
		{name: "scheduler without interval", mutate: func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Interval = 0
		}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetSetConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	SetConfig(cfg)
	assert.Same(t, cfg, GetConfig())
}
