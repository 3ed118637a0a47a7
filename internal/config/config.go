package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set on the struct act as defaults, environment variables override the file
// (nested keys joined by "_", e.g. REDIS_STORE_PREFIX).
func Load(file string, config any) error {
	v := viper.New()

	// Viper only consults the environment for keys it knows about, so every leaf of the
	// struct is registered as a default before the file is read.
	defaults, err := flatten("", config)
	if err != nil {
		return err
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// flatten decodes a struct into its leaf keys joined by ".".
func flatten(prefix string, in any) (map[string]any, error) {
	m := make(map[string]any)
	if err := mapstructure.Decode(in, &m); err != nil {
		return nil, fmt.Errorf("mapstructure: %v", err)
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}

		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				continue
			}
			rv = rv.Elem()
		}

		// Depending on the field, nested structs come back either as structs or as maps.
		switch {
		case rv.Kind() == reflect.Struct,
			rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
			nested, err := flatten(key, rv.Interface())
			if err != nil {
				return nil, err
			}
			for nk, nv := range nested {
				out[nk] = nv
			}
		default:
			out[key] = val
		}
	}

	return out, nil
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return godotenv.Load(path)
}
