package config

import (
	"sync/atomic"
)

var configValue atomic.Value

func GetConfig() *Config {
	cfg, _ := configValue.Load().(*Config)
	return cfg
}

func SetConfig(cfg *Config) {
	configValue.Store(cfg)
}

type Config struct {
	Version     string          `mapstructure:"version"`
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Weather     WeatherConfig   `mapstructure:"weather"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Geocoder    GeocoderConfig  `mapstructure:"geocoder"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	IdleTimeout  int      `mapstructure:"idle_timeout"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// WeatherConfig drives the aggregation engine. Sources are kept as a list so
// that their order is the registry order used for tie-breaks.
type WeatherConfig struct {
	Sources []SourceConfig `mapstructure:"sources"`
	// Seconds. 0 leaves a source call unbounded.
	SourceTimeout int `mapstructure:"source_timeout"`
	// Seconds. 0 disables the forecast cache.
	CacheTTL        int `mapstructure:"cache_ttl"`
	Workers         int `mapstructure:"workers"`
	QueueSize       int `mapstructure:"queue_size"`
	ObserverTimeout int `mapstructure:"observer_timeout"`
}

type SourceConfig struct {
	ID          string  `mapstructure:"id"`
	Type        string  `mapstructure:"type"`
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Weight      float64 `mapstructure:"weight"`
	Active      bool    `mapstructure:"active"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	Username    string  `mapstructure:"username"`
	UsernameEnv string  `mapstructure:"username_env"`
	Password    string  `mapstructure:"password"`
	PasswordEnv string  `mapstructure:"password_env"`
	// Seconds, applied to the connector's HTTP client.
	Timeout int               `mapstructure:"timeout"`
	Retries int               `mapstructure:"retries"`
	Params  map[string]string `mapstructure:"params"`
}

type StorageConfig struct {
	// memory, mongo, postgres or none.
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	URIEnv   string `mapstructure:"uri_env"`
	Database string `mapstructure:"database"`
	// Per-location snapshot limit, 0 keeps everything.
	MaxHistory int `mapstructure:"max_history"`
	// Seconds, 0 keeps everything.
	MaxAge        int     `mapstructure:"max_age"`
	MatchRadiusKm float64 `mapstructure:"match_radius_km"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Seconds between refresh runs.
	Interval  int              `mapstructure:"interval"`
	Locations []LocationConfig `mapstructure:"locations"`
}

type LocationConfig struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

type GeocoderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTSecretEnv string `mapstructure:"jwt_secret_env"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	// Fraction of new traces sampled, 0 and anything above 1 sample all.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Version:     "1.0.0",
		Environment: "development",
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  60,
			CORSOrigins:  []string{"*"},
		},
		Weather: WeatherConfig{
			Sources:         DefaultSources(),
			SourceTimeout:   10,
			CacheTTL:        300,
			Workers:         2,
			QueueSize:       32,
			ObserverTimeout: 5,
		},
		Storage: StorageConfig{
			Driver:        "memory",
			Database:      "smart_meteo",
			MaxHistory:    96,
			MaxAge:        86400,
			MatchRadiusKm: 1.0,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: 900,
		},
		Geocoder: GeocoderConfig{
			APIKeyEnv: "GOOGLE_GEOCODING_API_KEY",
		},
		Auth: AuthConfig{
			JWTSecretEnv: "JWT_SECRET",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "tempo:4317",
			ServiceName: "smart-meteo",
			SampleRatio: 1.0,
		},
	}
}

// DefaultSources is the built-in provider list. Keyless providers ship active,
// the rest are activated once credentials are configured.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			ID:          "tomorrow.io",
			Type:        "tomorrow.io",
			Name:        "Tomorrow.io",
			Description: "Hyper-local nowcasting with minute-by-minute precision",
			Weight:      1.2,
			Active:      true,
			BaseURL:     "https://api.tomorrow.io/v4",
			APIKeyEnv:   "TOMORROW_API_KEY",
			Timeout:     10,
		},
		{
			ID:          "open-meteo",
			Type:        "open-meteo",
			Name:        "Open-Meteo",
			Description: "High-resolution scientific data from national weather services",
			Weight:      1.1,
			Active:      true,
			BaseURL:     "https://api.open-meteo.com/v1",
			Timeout:     10,
		},
		{
			ID:          "meteomatics",
			Type:        "meteomatics",
			Name:        "Meteomatics",
			Description: "Model blend with probabilistic precipitation",
			Weight:      1.2,
			Active:      false,
			BaseURL:     "https://api.meteomatics.com",
			UsernameEnv: "METEOMATICS_USER",
			PasswordEnv: "METEOMATICS_PASSWORD",
			Timeout:     10,
		},
		{
			ID:          "openweathermap",
			Type:        "openweathermap",
			Name:        "OpenWeatherMap",
			Description: "Global coverage baseline and fast fallback",
			Weight:      1.0,
			Active:      true,
			BaseURL:     "https://api.openweathermap.org/data/2.5",
			APIKeyEnv:   "OPENWEATHER_API_KEY",
			Timeout:     10,
		},
		{
			ID:          "weatherapi",
			Type:        "weatherapi",
			Name:        "WeatherAPI",
			Description: "Cross-validation for temperature and conditions",
			Weight:      1.0,
			Active:      true,
			BaseURL:     "https://api.weatherapi.com/v1",
			APIKeyEnv:   "WEATHERAPI_KEY",
			Timeout:     10,
		},
		{
			ID:          "accuweather",
			Type:        "accuweather",
			Name:        "AccuWeather",
			Description: "Quality-focused with RealFeel temperature",
			Weight:      1.1,
			Active:      true,
			BaseURL:     "https://dataservice.accuweather.com",
			APIKeyEnv:   "ACCUWEATHER_API_KEY",
			Timeout:     10,
		},
		{
			ID:          "weatherstack",
			Type:        "weatherstack",
			Name:        "Weatherstack",
			Description: "Current conditions from a global station network",
			Weight:      0.9,
			Active:      false,
			BaseURL:     "http://api.weatherstack.com",
			APIKeyEnv:   "WEATHERSTACK_KEY",
			Timeout:     10,
		},
		{
			ID:          "worldweatheronline",
			Type:        "worldweatheronline",
			Name:        "World Weather Online",
			Description: "Daily and hourly outlook with astronomy",
			Weight:      0.9,
			Active:      false,
			BaseURL:     "https://api.worldweatheronline.com/premium/v1",
			APIKeyEnv:   "WORLDWEATHER_KEY",
			Timeout:     10,
		},
		{
			ID:          "meteostat",
			Type:        "meteostat",
			Name:        "Meteostat",
			Description: "Observed station data, latest hourly record",
			Weight:      0.8,
			Active:      false,
			BaseURL:     "https://meteostat.p.rapidapi.com",
			APIKeyEnv:   "METEOSTAT_KEY",
			Timeout:     10,
		},
	}
}

// applySourceDefaults fills the fields a configured source leaves empty from
// the built-in source of the same type, or of the same id when type is unset.
func applySourceDefaults(sources []SourceConfig) {
	builtin := make(map[string]SourceConfig)
	for _, def := range DefaultSources() {
		builtin[def.Type] = def
	}
	builtin["tomorrow"] = builtin["tomorrow.io"]

	for i := range sources {
		src := &sources[i]
		if src.Type == "" {
			src.Type = src.ID
		}
		def, ok := builtin[src.Type]
		if !ok {
			continue
		}

		fill(&src.Name, def.Name)
		fill(&src.Description, def.Description)
		fill(&src.BaseURL, def.BaseURL)
		fill(&src.APIKeyEnv, def.APIKeyEnv)
		fill(&src.UsernameEnv, def.UsernameEnv)
		fill(&src.PasswordEnv, def.PasswordEnv)
		if src.Weight == 0 {
			src.Weight = def.Weight
		}
		if src.Timeout == 0 {
			src.Timeout = def.Timeout
		}
	}
}

func fill(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
