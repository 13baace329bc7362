package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by Set for keys that are not part of Global.
var ErrUnknownKey = errors.New("unknown config key")

// Global configuration structure.
type Global struct {
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold"`
	LeadingChars  int     `mapstructure:"leading_chars" yaml:"leading_chars"`
	Workers       int     `mapstructure:"workers" yaml:"workers"`
	ProgressEvery int     `mapstructure:"progress_every" yaml:"progress_every"`
	Linkage       string  `mapstructure:"linkage" yaml:"linkage"`

	// Output
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	PreviewRows  int    `mapstructure:"preview_rows" yaml:"preview_rows"`

	// Input parsing
	MaxRows    int    `mapstructure:"max_rows" yaml:"max_rows"`
	Delimiter  string `mapstructure:"delimiter" yaml:"delimiter"`
	InferTypes bool   `mapstructure:"infer_types" yaml:"infer_types"`
	// DecimalSeparator is "." or ","; empty auto-detects per value.
	DecimalSeparator string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"threshold", "leading_chars", "workers", "progress_every", "linkage",
	"output_format", "preview_rows", "max_rows", "delimiter", "infer_types",
	"decimal_separator",
}

// Default returns the built-in configuration.
func Default() *Global {
	return &Global{
		Threshold:     0.9,
		LeadingChars:  3,
		Workers:       1,
		ProgressEvery: 100,
		Linkage:       "anchor",
		OutputFormat:  "csv",
		PreviewRows:   10,
	}
}

// DefaultPath is ~/.dedupe/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dedupe", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dedupe/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; command flags are applied by the caller.
// A .env file in the working directory is read first and never overrides
// variables already set in the environment.
//
// A missing ~/.dedupe/config.yaml is fine. Every other failure, including an
// unreadable explicit file and values outside their domain, wraps
// dedupe.ErrInvalidConfig.
func Load(cfgFile string) (*Global, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: load .env: %v", dedupe.ErrInvalidConfig, err)
	}

	v := viper.New()
	v.SetEnvPrefix("DEDUPE")
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("leading_chars", d.LeadingChars)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("progress_every", d.ProgressEvery)
	v.SetDefault("linkage", d.Linkage)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("preview_rows", d.PreviewRows)
	v.SetDefault("max_rows", d.MaxRows)
	v.SetDefault("delimiter", d.Delimiter)
	v.SetDefault("infer_types", d.InferTypes)
	v.SetDefault("decimal_separator", d.DecimalSeparator)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", dedupe.ErrInvalidConfig, cfgFile, err)
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: read config %s: %v", dedupe.ErrInvalidConfig, path, err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", dedupe.ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values outside their hard domain. Errors are
// *dedupe.ConfigError so callers can tell them apart from bad input.
func (c *Global) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return invalid("threshold", c.Threshold, "must be within [0, 1]")
	}
	if c.LeadingChars < 1 {
		return invalid("leading_chars", c.LeadingChars, "must be at least 1")
	}
	if c.Workers < 0 {
		return invalid("workers", c.Workers, "must not be negative")
	}
	if c.ProgressEvery < 1 {
		return invalid("progress_every", c.ProgressEvery, "must be at least 1")
	}
	switch strings.ToLower(c.Linkage) {
	case "anchor", "components":
	default:
		return invalid("linkage", c.Linkage, "use anchor or components")
	}
	switch strings.ToLower(c.OutputFormat) {
	case "csv", "tsv", "xlsx", "sqlite":
	default:
		return invalid("output_format", c.OutputFormat, "use csv, tsv, xlsx or sqlite")
	}
	if c.PreviewRows < 0 {
		return invalid("preview_rows", c.PreviewRows, "must not be negative")
	}
	if c.MaxRows < 0 {
		return invalid("max_rows", c.MaxRows, "must not be negative")
	}
	if _, err := ParseDelimiter(c.Delimiter); err != nil {
		return err
	}
	if _, _, err := ParseDecimalSeparator(c.DecimalSeparator); err != nil {
		return err
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	return &dedupe.ConfigError{Field: field, Value: value, Reason: reason}
}

// ParseDelimiter maps a delimiter setting to a rune; "" means auto-detect (0).
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case ";":
		return ';', nil
	case "|":
		return '|', nil
	case "\t", "tab":
		return '\t', nil
	}
	return 0, invalid("delimiter", strconv.Quote(s), "use ',' | ';' | '|' | 'tab'")
}

// ParseDecimalSeparator returns the decimal and thousands separators for a
// decimal_separator setting. "" auto-detects and yields zeros.
func ParseDecimalSeparator(s string) (dec, thou rune, err error) {
	switch s {
	case "":
		return 0, 0, nil
	case ".":
		return '.', ',', nil
	case ",":
		return ',', '.', nil
	}
	return 0, 0, invalid("decimal_separator", strconv.Quote(s), "use '.' or ','")
}

// Get renders the value of key for display.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "threshold":
		return strconv.FormatFloat(c.Threshold, 'f', -1, 64), nil
	case "leading_chars":
		return strconv.Itoa(c.LeadingChars), nil
	case "workers":
		return strconv.Itoa(c.Workers), nil
	case "progress_every":
		return strconv.Itoa(c.ProgressEvery), nil
	case "linkage":
		return c.Linkage, nil
	case "output_format":
		return c.OutputFormat, nil
	case "preview_rows":
		return strconv.Itoa(c.PreviewRows), nil
	case "max_rows":
		return strconv.Itoa(c.MaxRows), nil
	case "delimiter":
		if c.Delimiter == "\t" {
			return "tab", nil
		}
		return c.Delimiter, nil
	case "infer_types":
		return strconv.FormatBool(c.InferTypes), nil
	case "decimal_separator":
		return c.DecimalSeparator, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set parses val into key and validates the result. c is left unchanged on error.
func (c *Global) Set(key, val string) error {
	next := *c
	switch key {
	case "threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return invalid(key, val, "not a number")
		}
		next.Threshold = f
	case "leading_chars", "workers", "progress_every", "preview_rows", "max_rows":
		i, err := strconv.Atoi(val)
		if err != nil {
			return invalid(key, val, "not an integer")
		}
		switch key {
		case "leading_chars":
			next.LeadingChars = i
		case "workers":
			next.Workers = i
		case "progress_every":
			next.ProgressEvery = i
		case "preview_rows":
			next.PreviewRows = i
		case "max_rows":
			next.MaxRows = i
		}
	case "linkage":
		next.Linkage = strings.ToLower(strings.TrimSpace(val))
	case "output_format":
		next.OutputFormat = strings.ToLower(strings.TrimSpace(val))
	case "delimiter":
		if val == "tab" {
			val = "\t"
		}
		next.Delimiter = val
	case "infer_types":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return invalid(key, val, "not a boolean")
		}
		next.InferTypes = b
	case "decimal_separator":
		next.DecimalSeparator = strings.TrimSpace(val)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
