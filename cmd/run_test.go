package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "github.com/KaramelBytes/dedupe-cli/internal/config"
	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/report"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

const customersCSV = `name,city
Acme Corp,Boston
Beta Inc,Chicago
Acme Corp.,Boston
Gamma LLC,Denver
`

// execCmd executes the root command with args, resetting sticky flag state first.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "customers.csv"), []byte(customersCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return dir
}

func TestCLI_RunWritesAnnotatedCSV(t *testing.T) {
	dir := setup(t)
	in := filepath.Join(dir, "customers.csv")
	out := mustRun(t, "run", in)
	if !strings.Contains(out, "Found 2 records in 1 duplicate groups") {
		t.Fatalf("missing result line:\n%s", out)
	}
	if !strings.Contains(out, "Will perform 1 comparisons (reduced from 6 possible comparisons") {
		t.Fatalf("missing plan line:\n%s", out)
	}
	if !strings.Contains(out, "Duplicate detection complete!") {
		t.Fatalf("missing completion line:\n%s", out)
	}
	f, err := table.Load(filepath.Join(dir, "customers.dedupe.csv"), table.DefaultOptions())
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if strings.Join(f.Header, ",") != "name,city,duplicate_group,duplicate_rows" {
		t.Fatalf("header = %v", f.Header)
	}
	groups := []string{"1", "-1", "1", "-1"}
	for i, g := range groups {
		if got := f.Field(i, 2).String(); got != g {
			t.Fatalf("row %d group = %q, want %q", i, got, g)
		}
	}
	if got := f.Field(2, 3).String(); got != "1, 3" {
		t.Fatalf("duplicate_rows = %q", got)
	}

	// a second run never overwrites the first output
	mustRun(t, "run", "-q", in)
	if _, err := os.Stat(filepath.Join(dir, "customers.dedupe__2.csv")); err != nil {
		t.Fatalf("expected collision-suffixed output: %v", err)
	}
}

func TestCLI_RunSQLiteWithSummaryAndManifest(t *testing.T) {
	dir := setup(t)
	in := filepath.Join(dir, "customers.csv")
	mustRun(t, "run", "-q", "--format", "sqlite", "--summary", "--manifest", "--linkage", "components", "--workers", "2", in)
	for _, name := range []string{"customers.dedupe.sqlite", "customers.dedupe.summary.md", "customers.dedupe.manifest.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	md, err := os.ReadFile(filepath.Join(dir, "customers.dedupe.summary.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "- linkage: components") || !strings.Contains(string(md), "- workers: 2") {
		t.Fatalf("summary settings wrong:\n%s", md)
	}
	m, err := report.LoadManifest(filepath.Join(dir, "customers.dedupe.manifest.json"))
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.DuplicateRecords != 2 || len(m.Outputs) != 2 || m.RunID == "" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestCLI_RunExplicitXLSXOutput(t *testing.T) {
	dir := setup(t)
	dest := filepath.Join(dir, "result.xlsx")
	mustRun(t, "run", "-q", "-o", dest, "--threshold", "1", filepath.Join(dir, "customers.csv"))
	f, err := table.Load(dest, table.DefaultOptions())
	if err != nil {
		t.Fatalf("load xlsx: %v", err)
	}
	if f.Rows() != 4 || f.Field(0, 2).String() != "1" {
		t.Fatalf("unexpected xlsx output: rows=%d group=%q", f.Rows(), f.Field(0, 2).String())
	}
}

func TestCLI_RunGlobIntoDirectory(t *testing.T) {
	dir := setup(t)
	if err := os.WriteFile(filepath.Join(dir, "more.csv"), []byte("name\nDelta\nDelta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := t.TempDir()
	out := mustRun(t, "run", "-o", outDir, "--preview-rows", "0", filepath.Join(dir, "*.csv"))
	if !strings.Contains(out, "[1/2] Processing customers.csv") || !strings.Contains(out, "[2/2] Processing more.csv") {
		t.Fatalf("missing batch progress:\n%s", out)
	}
	for _, name := range []string{"customers.dedupe.csv", "more.dedupe.csv"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestCLI_RunRejectsBadSettings(t *testing.T) {
	dir := setup(t)
	in := filepath.Join(dir, "customers.csv")
	cases := [][]string{
		{"run", "--threshold", "1.5", in},
		{"run", "--leading-chars", "0", in},
		{"run", "--linkage", "single", in},
		{"run", "--format", "json", in},
		{"run", "--decimal-separator", ";", in},
		{"plan", "--leading-chars", "0", in},
	}
	for _, args := range cases {
		_, err := execCmd(t, args...)
		if !errors.Is(err, dedupe.ErrInvalidConfig) {
			t.Errorf("%v: expected a configuration error, got %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "customers.dedupe.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected settings must not produce output")
	}
}

func TestCLI_RunRejectsInvalidEnvConfig(t *testing.T) {
	dir := setup(t)
	t.Setenv("DEDUPE_THRESHOLD", "1.5")
	in := filepath.Join(dir, "customers.csv")
	for _, args := range [][]string{{"run", "-q", in}, {"plan", in}, {"config", "show"}} {
		if _, err := execCmd(t, args...); !errors.Is(err, dedupe.ErrInvalidConfig) {
			t.Errorf("%v: expected a configuration error, got %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "customers.dedupe.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid config must not fall back to defaults and run")
	}
}

func TestCLI_RunRejectsInvalidConfigFile(t *testing.T) {
	dir := setup(t)
	in := filepath.Join(dir, "customers.csv")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("threshold: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := [][]string{
		{"run", "-q", "--config", bad, in},
		{"plan", "--config", bad, in},
		{"run", "-q", "--config", filepath.Join(dir, "missing.yaml"), in},
	}
	for _, args := range cases {
		if _, err := execCmd(t, args...); !errors.Is(err, dedupe.ErrInvalidConfig) {
			t.Errorf("%v: expected a configuration error, got %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "customers.dedupe.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid config must not fall back to defaults and run")
	}
}

func TestCLI_RunRejectsBadInput(t *testing.T) {
	dir := setup(t)
	in := filepath.Join(dir, "customers.csv")
	cases := [][]string{
		{"run", filepath.Join(dir, "nope-*.csv")},
		{"run", "-o", filepath.Join(dir, "x.csv"), in, filepath.Join(dir, "customers.csv"), filepath.Join(dir, "other.csv")},
	}
	if err := os.WriteFile(filepath.Join(dir, "other.csv"), []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range cases {
		if _, err := execCmd(t, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestCLI_RunWarnsOutsideRecommendedRange(t *testing.T) {
	dir := setup(t)
	out := mustRun(t, "run", "--threshold", "0.3", "--leading-chars", "12", filepath.Join(dir, "customers.csv"))
	if !strings.Contains(out, "⚠ Warning: threshold 0.30") || !strings.Contains(out, "⚠ Warning: leading characters 12") {
		t.Fatalf("missing range warnings:\n%s", out)
	}
}

func TestCLI_Plan(t *testing.T) {
	dir := setup(t)
	out := mustRun(t, "plan", "--leading-chars", "1", filepath.Join(dir, "customers.csv"))
	for _, want := range []string{"Loaded 4 rows and 2 columns", "Will perform 1 comparisons", "Blocks: 1 (largest 2 records)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	setup(t)
	mustRun(t, "config", "set", "threshold", "0.8")
	mustRun(t, "config", "set", "linkage", "components")
	out := mustRun(t, "config", "show")
	if !strings.Contains(out, "threshold: 0.8\n") || !strings.Contains(out, "linkage: components\n") {
		t.Fatalf("config not persisted:\n%s", out)
	}
	if _, err := execCmd(t, "config", "set", "threshold", "abc"); err == nil {
		t.Fatalf("expected error for invalid threshold")
	}
	if _, err := execCmd(t, "config", "set", "api_key", "x"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestCLI_ConfigDrivesRun(t *testing.T) {
	dir := setup(t)
	mustRun(t, "config", "set", "output_format", "tsv")
	mustRun(t, "run", "-q", filepath.Join(dir, "customers.csv"))
	if _, err := os.Stat(filepath.Join(dir, "customers.dedupe.tsv")); err != nil {
		t.Fatalf("config output_format not used: %v", err)
	}
}

func TestCLI_PlanUsesConfigLeadingChars(t *testing.T) {
	dir := setup(t)
	for _, c := range []*cobra.Command{planCmd, runCmd} {
		if got := c.Flags().Lookup("leading-chars").DefValue; got != strconv.Itoa(cfgpkg.Default().LeadingChars) {
			t.Fatalf("%s --leading-chars default = %s", c.Name(), got)
		}
	}
	mustRun(t, "config", "set", "leading_chars", "1")
	out := mustRun(t, "plan", filepath.Join(dir, "customers.csv"))
	if !strings.Contains(out, "Blocks: 1 (largest 2 records)") {
		t.Fatalf("plan should use the configured leading_chars:\n%s", out)
	}
}
