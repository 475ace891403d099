// Package sources reads the cppbuild configuration files of a folder and
// turns them into build tasks.
//
// The build-steps file (.vscode/c_cpp_build.json) lists build configurations,
// each with optional build types and problem matchers. Every configuration
// becomes one task, or one task per build type when it has any. The
// properties file (.vscode/c_cpp_properties.json) is used to scaffold an
// initial build-steps file when a folder has none.
package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// Common errors.
var (
	ErrInvalidJSON        = errors.New("invalid JSON")
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidField       = errors.New("invalid field")
	ErrUnsupportedVersion = errors.New("unsupported build file version")
)

// MaxBuildFileVersion is the newest build-steps file version understood.
const MaxBuildFileVersion = "v1"

// BuildFileError reports a problem with one of the configuration files.
type BuildFileError struct {
	Path  string
	Field string
	Err   error
}

func (e *BuildFileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildFileError) Unwrap() error {
	return e.Err
}

// BuildInfo is one build configuration.
type BuildInfo struct {
	Name            string
	BuildTypes      []string
	ProblemMatchers []string
}

// BuildInfoProvider reads the build configurations of a folder.
type BuildInfoProvider interface {
	BuildInfos(ctx context.Context, propertiesPath, buildStepsPath string) ([]BuildInfo, error)
}

// JSONBuildInfoProvider reads the configuration files from disk.
type JSONBuildInfoProvider struct{}

// NewJSONBuildInfoProvider creates a provider reading JSON files from disk.
func NewJSONBuildInfoProvider() *JSONBuildInfoProvider {
	return &JSONBuildInfoProvider{}
}

// BuildInfos parses the build-steps file. The properties file is optional
// but must hold valid JSON when present.
func (p *JSONBuildInfoProvider) BuildInfos(ctx context.Context, propertiesPath, buildStepsPath string) ([]BuildInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if propertiesPath != "" {
		data, err := os.ReadFile(propertiesPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, &BuildFileError{Path: propertiesPath, Err: err}
		case !gjson.ValidBytes(data):
			return nil, &BuildFileError{Path: propertiesPath, Err: ErrInvalidJSON}
		}
	}

	data, err := os.ReadFile(buildStepsPath)
	if err != nil {
		return nil, &BuildFileError{Path: buildStepsPath, Err: err}
	}
	return ParseBuildSteps(buildStepsPath, data)
}

// ParseBuildSteps parses the content of a build-steps file. path is only
// used in errors.
func ParseBuildSteps(path string, data []byte) ([]BuildInfo, error) {
	if !gjson.ValidBytes(data) {
		return nil, &BuildFileError{Path: path, Err: ErrInvalidJSON}
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, &BuildFileError{Path: path, Err: fmt.Errorf("%w: top level must be an object", ErrInvalidField)}
	}

	if err := checkVersion(doc.Get("version")); err != nil {
		return nil, &BuildFileError{Path: path, Field: "version", Err: err}
	}

	configs := doc.Get("configurations")
	if !configs.Exists() {
		return nil, &BuildFileError{Path: path, Field: "configurations", Err: ErrMissingField}
	}
	if !configs.IsArray() {
		return nil, &BuildFileError{Path: path, Field: "configurations", Err: fmt.Errorf("%w: expected an array", ErrInvalidField)}
	}

	infos := make([]BuildInfo, 0)
	for i, c := range configs.Array() {
		field := fmt.Sprintf("configurations[%d]", i)

		name := c.Get("name")
		if name.Type != gjson.String || name.String() == "" {
			return nil, &BuildFileError{Path: path, Field: field + ".name", Err: ErrMissingField}
		}

		info := BuildInfo{Name: name.String()}

		if bt := c.Get("buildTypes"); bt.Exists() {
			if !bt.IsArray() {
				return nil, &BuildFileError{Path: path, Field: field + ".buildTypes", Err: fmt.Errorf("%w: expected an array", ErrInvalidField)}
			}
			for j, t := range bt.Array() {
				tn := t.Get("name")
				if tn.Type != gjson.String || tn.String() == "" {
					return nil, &BuildFileError{Path: path, Field: fmt.Sprintf("%s.buildTypes[%d].name", field, j), Err: ErrMissingField}
				}
				info.BuildTypes = append(info.BuildTypes, tn.String())
			}
		}

		matchers, err := problemMatchers(c.Get("problemMatchers"))
		if err != nil {
			return nil, &BuildFileError{Path: path, Field: field + ".problemMatchers", Err: err}
		}
		info.ProblemMatchers = matchers

		infos = append(infos, info)
	}
	return infos, nil
}

// problemMatchers accepts a single matcher name or an array of names.
func problemMatchers(r gjson.Result) ([]string, error) {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return []string{}, nil
	case r.Type == gjson.String:
		return []string{r.String()}, nil
	case r.IsArray():
		out := make([]string, 0, len(r.Array()))
		for _, m := range r.Array() {
			if m.Type != gjson.String {
				return nil, fmt.Errorf("%w: matcher names must be strings", ErrInvalidField)
			}
			out = append(out, m.String())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a string or an array", ErrInvalidField)
	}
}

// checkVersion accepts a missing version or one not newer than
// MaxBuildFileVersion. Numbers and strings such as 1, "1" or "1.0" are allowed.
func checkVersion(r gjson.Result) error {
	if !r.Exists() {
		return nil
	}

	var raw string
	switch r.Type {
	case gjson.Number:
		raw = strconv.FormatFloat(r.Float(), 'f', -1, 64)
	case gjson.String:
		raw = r.String()
	default:
		return fmt.Errorf("%w: expected a number or a string", ErrInvalidField)
	}

	v := "v" + raw
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a version", ErrInvalidField, raw)
	}
	if semver.Compare(v, MaxBuildFileVersion) > 0 {
		return fmt.Errorf("%w: %s (newest supported is %s)", ErrUnsupportedVersion, raw, MaxBuildFileVersion)
	}
	return nil
}
