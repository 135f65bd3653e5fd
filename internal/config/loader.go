package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads configuration with the precedence env > file > defaults.
// configPath may be empty, in which case only environment variables apply.
// Unknown keys in the config file fail the load.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}

			if err := rejectUnknownKeys(k.Keys()); err != nil {
				return nil, err
			}
		}
	}

	// Environment variables: CORPUSD_SECTION_FIELD_NAME -> section.field_name.
	if err := k.Load(env.Provider("CORPUSD_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefault()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// configSections are the nested top-level keys; everything else stays flat.
var configSections = map[string]struct{}{
	"decomposition": {}, "augmentation": {}, "enrichment": {}, "search": {},
	"navigation": {}, "concurrency": {}, "llm": {}, "archive": {},
	"logging": {}, "telemetry": {},
}

// envTransform maps CORPUSD_SEARCH_VECTOR_K to search.vector_k. The first
// underscore separates a known section; flat keys such as corpus_namespace
// pass through unchanged.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, "CORPUSD_"))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	if _, ok := configSections[parts[0]]; !ok {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// rejectUnknownKeys compares loaded file keys against the keys derivable from
// the Config struct's koanf tags.
func rejectUnknownKeys(loaded []string) error {
	allowed := allowedKeys()
	permitted := func(key string) bool {
		if _, ok := allowed[key]; ok {
			return true
		}
		// Map-valued fields (e.g. logging.fields) allow arbitrary subkeys.
		for prefix := range allowed {
			if strings.HasPrefix(key, prefix+".") {
				return true
			}
		}
		return false
	}

	var unknown []string
	for _, key := range loaded {
		if !permitted(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// allowedKeys walks the Config struct's koanf tags into the flat key set.
func allowedKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	collectKeys(reflect.TypeOf(Config{}), "", keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectKeys(ft, path, keys)
			continue
		}
		keys[path] = struct{}{}
	}
}
