package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *c != *Default() {
		t.Fatalf("config = %+v, want defaults %+v", c, Default())
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".dedupe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "threshold: 0.8\nleading_chars: 5\nlinkage: components\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEDUPE_THRESHOLD", "0.75")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Threshold != 0.75 {
		t.Fatalf("env should beat file: threshold = %v", c.Threshold)
	}
	if c.LeadingChars != 5 || c.Linkage != "components" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Workers != 1 {
		t.Fatalf("defaults should fill the rest: workers = %d", c.Workers)
	}
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, dedupe.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing explicit config file, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("DEDUPE_THRESHOLD", "1.5")
	_, err := Load("")
	var ce *dedupe.ConfigError
	if !errors.As(err, &ce) || ce.Field != "threshold" {
		t.Fatalf("expected threshold ConfigError, got %v", err)
	}
	if !errors.Is(err, dedupe.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadRejectsInvalidFileValues(t *testing.T) {
	isolate(t)
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("threshold: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); !errors.Is(err, dedupe.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMalformedDefaultFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".dedupe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("threshold: [0.8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(""); !errors.Is(err, dedupe.ErrInvalidConfig) {
		t.Fatalf("a present but broken config file must not be ignored, got %v", err)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolate(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEDUPE_WORKERS=4\nDEDUPE_PREVIEW_ROWS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("DEDUPE_WORKERS")
	})
	t.Setenv("DEDUPE_PREVIEW_ROWS", "7")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Workers != 4 {
		t.Fatalf(".env value not applied: workers = %d", c.Workers)
	}
	if c.PreviewRows != 7 {
		t.Fatalf("real env must win over .env: preview_rows = %d", c.PreviewRows)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	p := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	c := Default()
	c.Threshold = 0.85
	c.OutputFormat = "xlsx"
	c.Delimiter = "\t"
	c.InferTypes = true
	if err := Save(c, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *back != *c {
		t.Fatalf("round trip = %+v, want %+v", back, c)
	}
}

func TestSaveDefaultPath(t *testing.T) {
	home := isolate(t)
	if err := Save(Default(), ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".dedupe", "config.yaml")); err != nil {
		t.Fatalf("config not written to default path: %v", err)
	}
}

func TestSetAndGet(t *testing.T) {
	c := Default()
	cases := []struct {
		key, val, shown string
	}{
		{"threshold", "0.95", "0.95"},
		{"leading_chars", "4", "4"},
		{"workers", "0", "0"},
		{"linkage", "Components", "components"},
		{"output_format", "SQLite", "sqlite"},
		{"delimiter", "tab", "tab"},
		{"infer_types", "true", "true"},
		{"max_rows", "1000", "1000"},
		{"decimal_separator", ",", ","},
	}
	for _, tc := range cases {
		if err := c.Set(tc.key, tc.val); err != nil {
			t.Fatalf("Set(%s, %s): %v", tc.key, tc.val, err)
		}
		got, err := c.Get(tc.key)
		if err != nil || got != tc.shown {
			t.Fatalf("Get(%s) = %q, %v; want %q", tc.key, got, err, tc.shown)
		}
	}
}

func TestSetRejects(t *testing.T) {
	c := Default()
	bad := [][2]string{
		{"threshold", "abc"},
		{"threshold", "2"},
		{"leading_chars", "0"},
		{"workers", "-2"},
		{"linkage", "single"},
		{"output_format", "json"},
		{"delimiter", "#"},
		{"infer_types", "maybe"},
		{"progress_every", "0"},
		{"decimal_separator", ";"},
	}
	for _, kv := range bad {
		if err := c.Set(kv[0], kv[1]); !errors.Is(err, dedupe.ErrInvalidConfig) {
			t.Errorf("Set(%s, %s) = %v, want ErrInvalidConfig", kv[0], kv[1], err)
		}
	}
	if *c != *Default() {
		t.Fatalf("failed Set must not change config: %+v", c)
	}
	if err := c.Set("api_key", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if _, err := c.Get("api_key"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestParseDelimiter(t *testing.T) {
	cases := map[string]rune{"": 0, ",": ',', ";": ';', "|": '|', "tab": '\t', "\t": '\t'}
	for in, want := range cases {
		got, err := ParseDelimiter(in)
		if err != nil || got != want {
			t.Errorf("ParseDelimiter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDelimiter(":"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseDecimalSeparator(t *testing.T) {
	cases := []struct {
		in        string
		dec, thou rune
	}{
		{"", 0, 0},
		{".", '.', ','},
		{",", ',', '.'},
	}
	for _, tc := range cases {
		dec, thou, err := ParseDecimalSeparator(tc.in)
		if err != nil || dec != tc.dec || thou != tc.thou {
			t.Errorf("ParseDecimalSeparator(%q) = %q, %q, %v", tc.in, dec, thou, err)
		}
	}
	if _, _, err := ParseDecimalSeparator("x"); !errors.Is(err, dedupe.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
