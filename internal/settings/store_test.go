package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.Equal(Defaults()) {
		t.Error("expected defaults for a missing file")
	}
}

func TestLoadCorruptFileFallsBack(t *testing.T) {
	path := writeFile(t, t.TempDir(), "{not json")
	r, err := Load(path)
	if r == nil {
		t.Fatal("Load returned nil record")
	}
	if !errors.Is(err, ErrConfigLoad) {
		t.Fatalf("expected ErrConfigLoad, got %v", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Err == nil {
		t.Fatalf("expected LoadError with cause, got %#v", err)
	}
	if !r.Equal(Defaults()) {
		t.Error("expected defaults for a corrupt file")
	}
}

func TestLoadResetsInvalidFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{
    "model_path": "m.gguf",
    "ctx_size": "lots",
    "jinja": "yes",
    "flash_attn": "sometimes",
    "temp": "0.5"
}`)
	r, err := Load(path)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Err != nil {
		t.Errorf("document parsed; Err should be nil, got %v", le.Err)
	}
	var keys []string
	for _, f := range le.Fields {
		keys = append(keys, f.Key)
		if !errors.Is(f.Err, ErrInvalidValue) {
			t.Errorf("%s: expected ErrInvalidValue, got %v", f.Key, f.Err)
		}
	}
	want := []string{"jinja", KeyCtxSize, "flash_attn"}
	if len(keys) != len(want) {
		t.Fatalf("issues = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("issues = %v, want %v", keys, want)
			break
		}
	}

	if r.String(KeyModelPath) != "m.gguf" || r.String("temp") != "0.5" {
		t.Error("valid fields should still load")
	}
	if r.Int(KeyCtxSize) != 4096 || r.Bool("jinja") || r.String("flash_attn") != "auto" {
		t.Error("invalid fields should fall back to defaults")
	}
}

func TestLoadAcceptsNumbersForNumberFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"threads": 8, "port": 9090, "gpu_layers": 33.0}`)
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.String("threads") != "8" || r.String(KeyPort) != "9090" {
		t.Errorf("threads=%q port=%q", r.String("threads"), r.String(KeyPort))
	}
	if r.Int(KeyGPULayers) != 33 {
		t.Errorf("gpu_layers = %d", r.Int(KeyGPULayers))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `{
    "model_path": "/models/qwen.gguf",
    "ctx_size": 8192,
    "gpu_layers": 40,
    "threads": "12",
    "jinja": true,
    "flash_attn": "on",
    "host": "0.0.0.0",
    "port": "8081",
    "custom_arguments_list": [
        {"value": "--rope-scaling linear", "enabled": true},
        {"value": "--slots", "enabled": false}
    ],
    "window_geometry": {"w": 1080, "h": 720},
    "theme": "cosmo"
}`)

	orig, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := filepath.Join(dir, "copy", FileName)
	if err := Save(orig, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(out)
	if err != nil {
		t.Fatalf("Load saved: %v", err)
	}
	if !loaded.Equal(orig) {
		t.Error("round trip changed the record")
	}

	extra := loaded.Extra()
	if string(extra["window_geometry"]) != `{"w":1080,"h":720}` {
		t.Errorf("unknown object not preserved: %s", extra["window_geometry"])
	}
	if string(extra["theme"]) != `"cosmo"` {
		t.Errorf("unknown string not preserved: %s", extra["theme"])
	}
	args := loaded.Arguments()
	if len(args) != 2 || args[1].Value != "--slots" || args[1].Enabled {
		t.Errorf("custom arguments not preserved: %+v", args)
	}
}

func TestSaveWritesIndentedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	r := Defaults()
	r.Set(KeyModelPath, "m.gguf")
	if err := Save(r, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	if obj[KeyModelPath] != "m.gguf" {
		t.Errorf("model_path = %v", obj[KeyModelPath])
	}
	if _, ok := obj[KeyCustomArguments].([]any); !ok {
		t.Errorf("custom_arguments_list should be a list, got %T", obj[KeyCustomArguments])
	}
	if data[0] != '{' || data[1] != '\n' {
		t.Error("expected indented output")
	}
}

func TestSaveUnwritablePath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on Windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0755)

	err := Save(Defaults(), filepath.Join(dir, FileName))
	if !errors.Is(err, ErrConfigSave) {
		t.Fatalf("expected ErrConfigSave, got %v", err)
	}
}

func TestSaveIntoFileAsDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	err := Save(Defaults(), filepath.Join(blocker, FileName))
	if !errors.Is(err, ErrConfigSave) {
		t.Fatalf("expected ErrConfigSave, got %v", err)
	}
}

func TestLoadMigratesLegacyCustomArgs(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"custom_args": "  --slots --metrics  "}`)
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	args := r.Arguments()
	if len(args) != 1 || args[0].Value != "--slots --metrics" || !args[0].Enabled {
		t.Fatalf("legacy args not migrated: %+v", args)
	}
	if _, ok := r.Extra()["custom_args"]; ok {
		t.Error("legacy key should not be carried as an unknown field")
	}
}

func TestLoadMigratesLegacyFlashAttn(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		raw  string
		want string
	}{
		{`true`, "on"},
		{`false`, "off"},
		{`"auto"`, "auto"},
	}
	for _, tt := range tests {
		path := writeFile(t, dir, `{"model_path": "m.gguf", "flash_attn": `+tt.raw+`, "custom_args": "--foo 1"}`)
		r, err := Load(path)
		if err != nil {
			t.Fatalf("flash_attn %s: Load: %v", tt.raw, err)
		}
		if got := r.String("flash_attn"); got != tt.want {
			t.Errorf("flash_attn %s loaded as %q, want %q", tt.raw, got, tt.want)
		}
	}

	path := writeFile(t, dir, `{"model_path": "m.gguf", "flash_attn": true}`)
	r, _ := Load(path)
	args := Args(r)
	i := slices.Index(args, "--flash-attn")
	if i < 0 || i+1 >= len(args) || args[i+1] != "on" {
		t.Errorf("migrated flash_attn not emitted: %q", args)
	}
}

func TestLoadReportsNonStringLegacyArgs(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"custom_args": ["--slots"]}`)
	r, err := Load(path)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if len(le.Fields) != 1 || le.Fields[0].Key != "custom_args" || !errors.Is(le.Fields[0].Err, ErrInvalidValue) {
		t.Errorf("issues = %+v", le.Fields)
	}
	if len(r.Arguments()) != 0 {
		t.Errorf("bad legacy value should not become an argument: %+v", r.Arguments())
	}
}

func TestLoadPrefersListOverLegacy(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"custom_args": "--old", "custom_arguments_list": [{"value": "--new", "enabled": true}]}`)
	r, _ := Load(path)
	args := r.Arguments()
	if len(args) != 1 || args[0].Value != "--new" {
		t.Fatalf("expected list to win, got %+v", args)
	}
}

func TestLoadArgumentWithoutEnabledDefaultsOn(t *testing.T) {
	path := writeFile(t, t.TempDir(), `{"custom_arguments_list": [{"value": "--metrics"}]}`)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if args := r.Arguments(); len(args) != 1 || !args[0].Enabled {
		t.Fatalf("args = %+v", args)
	}
}

func TestRecordUnmarshalStrict(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"ctx_size": "big"}`), &r); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"ctx_size": 2048}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.Int(KeyCtxSize) != 2048 {
		t.Errorf("ctx_size = %d", r.Int(KeyCtxSize))
	}
}
