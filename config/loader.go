package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "INTERSECTION_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// searchPaths are tried in order when no config file is given.
var searchPaths = []string{
	"intersection.yaml",
	"intersection.yml",
	"intersection.json",
	"config.yaml",
	"configs/intersection.yaml",
	"/etc/intersection/config.yaml",
}

// Loader merges defaults, a config file, environment variables and command
// line overrides, in increasing priority.
type Loader struct {
	k      *koanf.Koanf
	source string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load builds and validates a Config. Every call starts from the defaults,
// so a Loader can be reused to reload a changed file.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.k = koanf.New(Delimiter)
	l.source = ""

	if err := l.k.Load(confmap.Provider(flatten(DefaultConfig()), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := configPath
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := l.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		l.source = path
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Source returns the config file used by the last Load, or "" when only
// defaults, env vars and overrides applied.
func (l *Loader) Source() string {
	return l.source
}

// Keys lists every key of the last Load with its merged value.
func (l *Loader) Keys() map[string]interface{} {
	return l.k.All()
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

func findConfigFile() string {
	for _, path := range searchPaths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadEnv maps INTERSECTION_<SECTION>_<KEY> onto the known keys, so
// INTERSECTION_INTERSECTION_GREEN_SECONDS sets intersection.green_seconds.
// Key names contain underscores, so the mapping cannot be derived by
// splitting; unknown variables are ignored.
func (l *Loader) loadEnv() error {
	known := make(map[string]string)
	for key := range flatten(DefaultConfig()) {
		known[strings.ToUpper(strings.ReplaceAll(key, Delimiter, "_"))] = key
	}

	return l.k.Load(env.ProviderWithValue(EnvPrefix, Delimiter, func(name, value string) (string, interface{}) {
		key, ok := known[strings.TrimPrefix(name, EnvPrefix)]
		if !ok {
			return "", nil
		}
		if strings.HasSuffix(key, "roads") || strings.HasSuffix(key, "origins") {
			return key, splitList(value)
		}
		return key, value
	}), nil)
}

// splitList turns "North, East" into ["North", "East"].
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

// flatten converts a config struct into dot-separated keys, so that files and
// env vars override single values instead of whole sections.
func flatten(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenValue(reflect.ValueOf(v), "", out)
	return out
}

func flattenValue(val reflect.Value, prefix string, out map[string]interface{}) {
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + Delimiter + key
		}

		fv := val.Field(i)
		switch {
		case fv.Type() == durationType:
			out[key] = fv.Interface().(time.Duration).String()
		case fv.Kind() == reflect.Struct, fv.Kind() == reflect.Ptr:
			flattenValue(fv, key, out)
		case fv.Kind() == reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		case fv.Kind() == reflect.Map:
			if fv.Len() > 0 {
				out[key] = fv.Interface()
			}
		default:
			out[key] = fv.Interface()
		}
	}
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
