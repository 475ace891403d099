package loader

import (
	"os"
	"strings"
)

// DefaultEnvPrefix is the prefix of every cpptasks environment variable.
const DefaultEnvPrefix = "CPPTASKS_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "CPPTASKS_")
	mapping map[string]string // Env var suffix -> config path
	lookup  func(string) (string, bool)
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "CPPTASKS_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
		lookup:  os.LookupEnv,
	}
}

// defaultEnvMapping maps variable names without the prefix to settings.
func defaultEnvMapping() map[string]string {
	return map[string]string{
		"LOG_LEVEL":   "log_level",
		"LOG_FILE":    "log_file",
		"AUTO_DETECT": "auto_detect",
	}
}

// Load reads the mapped environment variables. Empty values are kept as
// empty strings, not treated as unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for suffix, path := range l.mapping {
		if val, ok := l.lookup(l.prefix + suffix); ok {
			setByPath(config, path, strings.TrimSpace(val))
		}
	}
	return config, nil
}

// AddMapping maps the variable prefix+suffix to a dot-separated setting path.
func (l *EnvLoader) AddMapping(suffix, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[suffix] = configPath
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
