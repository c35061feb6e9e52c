package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// chdir switches the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	})
}

func TestLoadFromProjectDir(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("create %s: %v", ProjectDirName, err)
	}

	configContent := `root: src
languages:
  - python
exclude:
  - "tests/**"
workers: 4
builtins:
  extra: [log]
  keep: [print]
output:
  format: jsonl
  path: graph.jsonl
store:
  path: /custom/db/path
watch:
  quiet_period: 2s
`
	if err := os.WriteFile(filepath.Join(projectDir, ProjectConfigFile), []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	subDir := filepath.Join(tmpDir, "deep", "sub")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("create subdirs: %v", err)
	}
	chdir(t, subDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigDir != projectDir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, projectDir)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if !slices.Equal(cfg.Exclude, []string{"tests/**"}) {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if !slices.Equal(cfg.Builtins.Extra, []string{"log"}) || !slices.Equal(cfg.Builtins.Keep, []string{"print"}) {
		t.Errorf("Builtins = %+v", cfg.Builtins)
	}
	if cfg.Output.Format != "jsonl" || cfg.Output.Path != "graph.jsonl" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.Watch.QuietPeriod != 2*time.Second {
		t.Errorf("Watch.QuietPeriod = %s, want 2s", cfg.Watch.QuietPeriod)
	}
	if got := cfg.ResolveDBPath(""); got != "/custom/db/path" {
		t.Errorf("ResolveDBPath = %q", got)
	}
	root, err := cfg.ResolveRoot("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(tmpDir, "src"); root != want {
		t.Errorf("ResolveRoot = %q, want %q", root, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ConfigDir != "" {
		t.Errorf("ConfigDir = %q, want empty", cfg.ConfigDir)
	}
	if !slices.Equal(cfg.Languages, []string{"python"}) {
		t.Errorf("Languages = %v, want [python]", cfg.Languages)
	}
	if cfg.Output.Format != "dot" {
		t.Errorf("Output.Format = %q, want dot", cfg.Output.Format)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d", cfg.MaxFileSize)
	}
	if cfg.Watch.QuietPeriod != 500*time.Millisecond {
		t.Errorf("Watch.QuietPeriod = %s", cfg.Watch.QuietPeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DEPGRAPH_WORKERS", "3")
	t.Setenv("DEPGRAPH_OUTPUT_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %q, want json", cfg.Output.Format)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Output: OutputConfig{Format: "dot"}, Server: ServerConfig{Addr: ":8000"}}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"unknown format", func(c *Config) { c.Output.Format = "svg" }, "output.format"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers must be"},
		{"negative max size", func(c *Config) { c.MaxFileSize = -5 }, "max_file_size must be"},
		{"negative quiet period", func(c *Config) { c.Watch.QuietPeriod = -time.Second }, "quiet_period"},
		{"no server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDiscoverProjectDir(t *testing.T) {
	tmpDir := t.TempDir()
	sub1 := filepath.Join(tmpDir, "sub1")
	sub2 := filepath.Join(sub1, "sub2")
	if err := os.MkdirAll(sub2, 0755); err != nil {
		t.Fatalf("create subdirs: %v", err)
	}
	projectDir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.Mkdir(projectDir, 0755); err != nil {
		t.Fatalf("create %s: %v", ProjectDirName, err)
	}

	for _, start := range []string{sub2, sub1, tmpDir} {
		if got := DiscoverProjectDir(start); got != projectDir {
			t.Errorf("DiscoverProjectDir(%q) = %q, want %q", start, got, projectDir)
		}
	}

	isolatedDir := t.TempDir()
	if got := DiscoverProjectDir(isolatedDir); got != "" {
		t.Errorf("DiscoverProjectDir(%q) = %q, want empty", isolatedDir, got)
	}
}

func TestResolveDBPath(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		flagValue string
		want      string
	}{
		{
			name:      "flag takes priority",
			cfg:       Config{Store: StoreConfig{Path: "/yaml/path"}, ConfigDir: "/proj/.depgraph"},
			flagValue: "/flag/path",
			want:      "/flag/path",
		},
		{
			name: "yaml store path second",
			cfg:  Config{Store: StoreConfig{Path: "/yaml/path"}, ConfigDir: "/proj/.depgraph"},
			want: "/yaml/path",
		},
		{
			name: "config dir default",
			cfg:  Config{ConfigDir: "/proj/.depgraph"},
			want: "/proj/.depgraph/graph.db",
		},
		{
			name: "all empty",
			cfg:  Config{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDBPath(tt.flagValue); got != tt.want {
				t.Errorf("ResolveDBPath(%q) = %q, want %q", tt.flagValue, got, tt.want)
			}
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ProjectDirName, ProjectConfigFile)

	cfg := &Config{
		Root:      ".",
		Languages: []string{"python"},
		Exclude:   []string{"migrations/**"},
		Output:    OutputConfig{Format: "json", Path: "graph.json"},
		Server:    ServerConfig{Addr: ":8080"},
		Watch:     WatchConfig{QuietPeriod: time.Second},
		ConfigDir: "ignored",
	}
	if err := WriteConfig(cfg, path); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# depgraph configuration\n") {
		t.Errorf("missing header:\n%s", data)
	}
	if strings.Contains(string(data), "ignored") {
		t.Errorf("ConfigDir should not be serialized:\n%s", data)
	}

	chdir(t, tmpDir)
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Output.Format != "json" || loaded.Server.Addr != ":8080" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Watch.QuietPeriod != time.Second {
		t.Errorf("QuietPeriod = %s, want 1s", loaded.Watch.QuietPeriod)
	}
	if !slices.Equal(loaded.Exclude, []string{"migrations/**"}) {
		t.Errorf("Exclude = %v", loaded.Exclude)
	}
}

func TestApplyPyproject(t *testing.T) {
	root := t.TempDir()
	content := `[project]
name = "demo"

[tool.depgraph]
exclude = ["migrations/**", "tests/**"]
extra-builtins = ["logger"]
keep-builtins = ["open"]
`
	if err := os.WriteFile(filepath.Join(root, PyprojectFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Exclude: []string{"tests/**"}}
	if err := cfg.ApplyPyproject(root); err != nil {
		t.Fatalf("ApplyPyproject: %v", err)
	}
	if !slices.Equal(cfg.Exclude, []string{"tests/**", "migrations/**"}) {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if !slices.Equal(cfg.Builtins.Extra, []string{"logger"}) {
		t.Errorf("Builtins.Extra = %v", cfg.Builtins.Extra)
	}
	if !slices.Equal(cfg.Builtins.Keep, []string{"open"}) {
		t.Errorf("Builtins.Keep = %v", cfg.Builtins.Keep)
	}
}

func TestApplyPyprojectMissingOrInvalid(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyPyproject(t.TempDir()); err != nil {
		t.Errorf("missing pyproject.toml should be ignored: %v", err)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, PyprojectFile), []byte("[tool.depgraph\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyPyproject(root); err == nil {
		t.Error("malformed pyproject.toml should fail")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Output.Format != "dot" {
		t.Errorf("Output.Format = %q, want dot", cfg.Output.Format)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.ConfigDir != "" {
		t.Errorf("ConfigDir = %q, want empty", cfg.ConfigDir)
	}
}
