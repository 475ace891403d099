package loader

import (
	"errors"
	"io/fs"
	"testing"
	"time"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (m *MemFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m.files[path]; ok {
		return &memFileInfo{name: path}, nil
	}
	return nil, fs.ErrNotExist
}

type memFileInfo struct {
	name string
}

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return 0 }
func (f *memFileInfo) Mode() fs.FileMode  { return 0644 }
func (f *memFileInfo) ModTime() time.Time { return time.Now() }
func (f *memFileInfo) IsDir() bool        { return false }
func (f *memFileInfo) Sys() any           { return nil }

func TestTOMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/cpptasks.toml", `
log_level = "debug"
auto_detect = "on"

[folders.engine]
auto_detect = "off"
`)

	config, err := NewTOMLLoaderWithFS(memfs, "/cpptasks.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config["log_level"] != "debug" {
		t.Errorf("log_level = %v, want debug", config["log_level"])
	}
	folders, ok := config["folders"].(map[string]any)
	if !ok {
		t.Fatalf("folders = %T, want map", config["folders"])
	}
	engine, ok := folders["engine"].(map[string]any)
	if !ok || engine["auto_detect"] != "off" {
		t.Errorf("folders.engine = %v, want auto_detect off", folders["engine"])
	}
}

func TestTOMLLoader_Missing(t *testing.T) {
	config, err := NewTOMLLoaderWithFS(NewMemFS(), "/missing.toml").Load()
	if err != nil || config != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", config, err)
	}
}

func TestTOMLLoader_Empty(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/empty.toml", "")
	config, err := NewTOMLLoaderWithFS(memfs, "/empty.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config == nil || len(config) != 0 {
		t.Errorf("Load() = %v, want empty map", config)
	}
}

func TestTOMLLoader_ParseError(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "log_level = \"debug\"\nauto_detect = \n")

	_, err := NewTOMLLoaderWithFS(memfs, "/bad.toml").Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Path != "/bad.toml" {
		t.Errorf("Path = %q, want /bad.toml", perr.Path)
	}
	if perr.Line < 1 {
		t.Errorf("Line = %d, want a position", perr.Line)
	}
	if perr.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		err  *ParseError
		want string
	}{
		{&ParseError{Path: "a", Line: 3, Column: 7, Message: "bad"}, "parse error in a at line 3, column 7: bad"},
		{&ParseError{Path: "a", Line: 3, Message: "bad"}, "parse error in a at line 3: bad"},
		{&ParseError{Path: "a", Message: "bad"}, "parse error in a: bad"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestForPath(t *testing.T) {
	memfs := NewMemFS()
	tests := []struct {
		path string
		want string
	}{
		{"/a/cpptasks.toml", "toml"},
		{"/a/cpptasks.yaml", "yaml"},
		{"/a/cpptasks.YML", "yaml"},
	}
	for _, tt := range tests {
		l, err := ForPath(memfs, tt.path)
		if err != nil {
			t.Fatalf("ForPath(%q) error = %v", tt.path, err)
		}
		var got string
		switch l.(type) {
		case *TOMLLoader:
			got = "toml"
		case *YAMLLoader:
			got = "yaml"
		}
		if got != tt.want {
			t.Errorf("ForPath(%q) = %T, want %s", tt.path, l, tt.want)
		}
	}

	if _, err := ForPath(memfs, "/a/cpptasks.json"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ForPath(json) error = %v, want ErrUnknownFormat", err)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"log_level": "info",
		"folders": map[string]any{
			"a": map[string]any{"auto_detect": "off"},
		},
	}
	src := map[string]any{
		"log_level": "debug",
		"folders": map[string]any{
			"b": map[string]any{"auto_detect": "off"},
		},
	}

	got := DeepMerge(dst, src)
	if got["log_level"] != "debug" {
		t.Errorf("log_level = %v, want debug", got["log_level"])
	}
	folders := got["folders"].(map[string]any)
	if _, ok := folders["a"]; !ok {
		t.Error("folders.a lost in merge")
	}
	if _, ok := folders["b"]; !ok {
		t.Error("folders.b missing after merge")
	}

	if got := DeepMerge(nil, nil); got == nil {
		t.Error("DeepMerge(nil, nil) = nil, want empty map")
	}
}

type staticLoader struct {
	m   map[string]any
	err error
}

func (l staticLoader) Load() (map[string]any, error) { return l.m, l.err }

func TestLoadAll(t *testing.T) {
	got, err := LoadAll(
		staticLoader{m: map[string]any{"log_level": "info", "auto_detect": "on"}},
		staticLoader{},
		staticLoader{m: map[string]any{"log_level": "warn"}},
	)
	if err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	if got["log_level"] != "warn" || got["auto_detect"] != "on" {
		t.Errorf("LoadAll = %v", got)
	}

	boom := errors.New("boom")
	if _, err := LoadAll(staticLoader{err: boom}); !errors.Is(err, boom) {
		t.Errorf("LoadAll error = %v, want boom", err)
	}
}
