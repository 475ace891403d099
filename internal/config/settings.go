package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/cpptasks/internal/logging"
)

// Setting paths.
const (
	KeyLogLevel   = "log_level"
	KeyLogFile    = "log_file"
	KeyAutoDetect = "auto_detect"
	KeyFolders    = "folders"
)

// Settings is the decoded cpptasks configuration.
type Settings struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string

	// LogFile is where the build detection output log is appended.
	// Empty disables the file.
	LogFile string

	// AutoDetect enables task detection for folders without an override.
	AutoDetect bool

	// Folders holds per-folder overrides keyed by folder path, URI or name.
	Folders map[string]FolderSettings
}

// FolderSettings overrides global settings for one folder.
type FolderSettings struct {
	// AutoDetect is nil when the folder inherits the global value.
	AutoDetect *bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:   "info",
		AutoDetect: true,
		Folders:    map[string]FolderSettings{},
	}
}

// AutoDetectFor resolves the auto_detect setting for a folder known by keys,
// most specific first. The first key with an override wins.
func (s Settings) AutoDetectFor(keys ...string) bool {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if fs, ok := s.Folders[key]; ok && fs.AutoDetect != nil {
			return *fs.AutoDetect
		}
	}
	return s.AutoDetect
}

// flatten returns the settings keyed by dot-separated path.
func (s Settings) flatten() map[string]any {
	out := map[string]any{
		KeyLogLevel:   s.LogLevel,
		KeyLogFile:    s.LogFile,
		KeyAutoDetect: s.AutoDetect,
	}
	for name, fs := range s.Folders {
		if fs.AutoDetect != nil {
			out[KeyFolders+"."+name+"."+KeyAutoDetect] = *fs.AutoDetect
		}
	}
	return out
}

// decodeSettings converts a merged settings map into Settings. Unknown keys
// are ignored.
func decodeSettings(m map[string]any) (Settings, error) {
	s := DefaultSettings()

	if v, ok := m[KeyLogLevel]; ok {
		level, err := asString(KeyLogLevel, v)
		if err != nil {
			return Settings{}, err
		}
		level = strings.ToLower(strings.TrimSpace(level))
		if !logging.ValidLevel(level) {
			return Settings{}, &ValidationError{Path: KeyLogLevel, Value: v, Err: ErrInvalidValue}
		}
		s.LogLevel = level
	}

	if v, ok := m[KeyLogFile]; ok {
		file, err := asString(KeyLogFile, v)
		if err != nil {
			return Settings{}, err
		}
		s.LogFile = strings.TrimSpace(file)
	}

	if v, ok := m[KeyAutoDetect]; ok {
		on, err := asSwitch(KeyAutoDetect, v)
		if err != nil {
			return Settings{}, err
		}
		s.AutoDetect = on
	}

	if v, ok := m[KeyFolders]; ok {
		folders, ok := v.(map[string]any)
		if !ok {
			return Settings{}, &ValidationError{Path: KeyFolders, Value: v, Err: ErrTypeMismatch}
		}
		names := make([]string, 0, len(folders))
		for name := range folders {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			path := KeyFolders + "." + name
			fm, ok := folders[name].(map[string]any)
			if !ok {
				return Settings{}, &ValidationError{Path: path, Value: folders[name], Err: ErrTypeMismatch}
			}
			var fs FolderSettings
			if av, ok := fm[KeyAutoDetect]; ok {
				on, err := asSwitch(path+"."+KeyAutoDetect, av)
				if err != nil {
					return Settings{}, err
				}
				fs.AutoDetect = &on
			}
			s.Folders[name] = fs
		}
	}

	return s, nil
}

func asString(path string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Path: path, Value: v, Err: ErrTypeMismatch}
	}
	return s, nil
}

// asSwitch accepts "on"/"off" and boolean spellings.
func asSwitch(path string, v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "true", "yes", "1":
			return true, nil
		case "off", "false", "no", "0":
			return false, nil
		}
		return false, &ValidationError{Path: path, Value: v, Err: ErrInvalidValue}
	default:
		return false, &ValidationError{Path: path, Value: v, Err: fmt.Errorf("%w: want \"on\" or \"off\"", ErrTypeMismatch)}
	}
}
