package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SMART_METEO"

// Load builds the configuration from defaults, an optional YAML file, a .env
// file and the environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := NewDefaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaultsFromStructRecursive(reflect.ValueOf(cfg), "", v)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// A configured source list replaces the built-in one. Decoding into the
	// prefilled slice would merge entries by index.
	fileSources := v.InConfig("weather.sources")
	if fileSources {
		cfg.Weather.Sources = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if fileSources {
		applySourceDefaults(cfg.Weather.Sources)
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SetDefaultsFromStructRecursive(v reflect.Value, prefix string, viper *viper.Viper) {
	// Handle pointer to struct
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		// Skip unexported fields
		if !fieldValue.CanInterface() {
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(field.Name)
		}

		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if fieldValue.Kind() == reflect.Struct {
			SetDefaultsFromStructRecursive(fieldValue, fullKey, viper)
		} else {
			viper.SetDefault(fullKey, fieldValue.Interface())
		}
	}
}

// resolveSecrets fills credentials left empty in the file from the environment
// variables named next to them.
func resolveSecrets(cfg *Config) {
	for i := range cfg.Weather.Sources {
		src := &cfg.Weather.Sources[i]
		src.APIKey = fromEnv(src.APIKey, src.APIKeyEnv)
		src.Username = fromEnv(src.Username, src.UsernameEnv)
		src.Password = fromEnv(src.Password, src.PasswordEnv)
	}

	cfg.Geocoder.APIKey = fromEnv(cfg.Geocoder.APIKey, cfg.Geocoder.APIKeyEnv)
	cfg.Auth.JWTSecret = fromEnv(cfg.Auth.JWTSecret, cfg.Auth.JWTSecretEnv)
	cfg.Storage.URI = fromEnv(cfg.Storage.URI, cfg.Storage.URIEnv)
}

func fromEnv(value, envKey string) string {
	if value != "" || envKey == "" {
		return value
	}
	return os.Getenv(envKey)
}

// Validate checks the structural constraints the rest of the service relies on.
func (c *Config) Validate() error {
	if len(c.Weather.Sources) == 0 {
		return errors.New("weather.sources: at least one source must be configured")
	}

	seen := make(map[string]struct{}, len(c.Weather.Sources))
	for i, src := range c.Weather.Sources {
		if src.ID == "" {
			return fmt.Errorf("weather.sources[%d]: id is required", i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("weather.sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = struct{}{}

		if src.Weight <= 0 {
			return fmt.Errorf("weather.sources[%d]: weight must be positive, got %v", i, src.Weight)
		}
	}

	switch c.Storage.Driver {
	case "", "none", "memory", "mongo", "postgres":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval: must be positive when the scheduler is enabled")
	}

	return nil
}
