package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Name     string        `toml:"test.name" env:"TEST_NAME"`
	Enabled  bool          `toml:"test.enabled" env:"TEST_ENABLED"`
	Count    int           `toml:"test.count" env:"TEST_COUNT"`
	Ratio    float64       `toml:"test.ratio" env:"TEST_RATIO"`
	Timeout  time.Duration `toml:"test.timeout" env:"TEST_TIMEOUT"`
	Tags     []string      `toml:"test.tags" env:"TEST_TAGS"`
	Deep     string        `toml:"nested.inner.value" env:"NESTED_VALUE"`
	Untagged string
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, `
[test]
name = "studio"
enabled = true
count = 42
ratio = 0.5
timeout = "750ms"
tags = ["a", "b"]

[nested.inner]
value = "deep"
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := testOptions{
		Config:  path,
		Name:    "studio",
		Enabled: true,
		Count:   42,
		Ratio:   0.5,
		Timeout: 750 * time.Millisecond,
		Tags:    []string{"a", "b"},
		Deep:    "deep",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigDurationSeconds(t *testing.T) {
	path := writeFile(t, "[test]\ntimeout = 3\n")
	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Timeout != 3*time.Second {
		t.Errorf("Expected 3s, got %v", opts.Timeout)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeFile(t, "[test]\nname = \"toml\"\ncount = 100\ntags = [\"x\"]\n")

	t.Setenv("OUTPUTNODE_TEST_NAME", "env")
	t.Setenv("OUTPUTNODE_TEST_TIMEOUT", "5")
	t.Setenv("OUTPUTNODE_TEST_TAGS", " one , two ")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Name != "env" {
		t.Errorf("Expected env override, got %q", opts.Name)
	}
	if opts.Count != 100 {
		t.Errorf("Expected TOML count 100, got %d", opts.Count)
	}
	if opts.Timeout != 5*time.Second {
		t.Errorf("Expected 5s from env, got %v", opts.Timeout)
	}
	if !reflect.DeepEqual(opts.Tags, []string{"one", "two"}) {
		t.Errorf("Expected trimmed env tags, got %v", opts.Tags)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	path := writeFile(t, "[test]\nname = \"toml\"\n")
	t.Setenv("OUTPUTNODE_TEST_NAME", "env")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Name, "name", "", "")
	if err := cmd.Flags().Set("name", "cli"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Name != "cli" {
		t.Errorf("Expected CLI value to win, got %q", opts.Name)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"invalid toml", "[test\nbroken", nil},
		{"bad env int", "", map[string]string{"OUTPUTNODE_TEST_COUNT": "many"}},
		{"bad env duration", "", map[string]string{"OUTPUTNODE_TEST_TIMEOUT": "soon"}},
		{"bad toml duration", "[test]\ntimeout = true\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeFile(t, tt.content)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{"value": "nested_value"},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"root.child", nil},
	}

	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"LoggingLevel":      "logging-level",
		"MultitrackTimeout": "multitrack-timeout",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "warn"
format = "json"
api = "error"

[logging.modules]
multitrack = "debug"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("Unexpected globals %+v", cfg)
	}
	if cfg.Modules["api"] != "error" || cfg.Modules["multitrack"] != "debug" {
		t.Errorf("Unexpected modules %v", cfg.Modules)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" {
		t.Errorf("Expected defaults, got %+v", def)
	}
}
