// Package export writes annotated tables to disk in the format implied by
// the destination file extension.
package export

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dedupe-cli/internal/table"
	"github.com/KaramelBytes/dedupe-cli/internal/utils"
)

// ErrUnsupported indicates no writer accepts the destination.
var ErrUnsupported = errors.New("unsupported output format")

// Writer persists a table to path.
type Writer interface {
	CanWrite(path string) bool
	Write(path string, f *table.Frame) error
}

var registry []Writer

// Register adds a writer implementation to the registry.
func Register(w Writer) {
	registry = append(registry, w)
}

// Write selects a writer based on the path extension.
func Write(path string, f *table.Frame) error {
	for _, w := range registry {
		if w.CanWrite(path) {
			return w.Write(path, f)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Extension maps a format name (csv, tsv, xlsx, sqlite) to a file extension.
func Extension(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return ".csv", nil
	case "tsv":
		return ".tsv", nil
	case "xlsx", "excel":
		return ".xlsx", nil
	case "sqlite", "sqlite3", "db":
		return ".sqlite", nil
	}
	return "", fmt.Errorf("%w: %s (use csv, tsv, xlsx or sqlite)", ErrUnsupported, format)
}

type csvWriter struct{}

func (csvWriter) CanWrite(path string) bool {
	name := strings.ToLower(path)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvWriter) Write(path string, f *table.Frame) error {
	delim := ','
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		delim = '\t'
	}
	return utils.AtomicWrite(path, func(w io.Writer) error {
		return table.WriteCSV(w, f, delim)
	})
}

type xlsxWriter struct{}

func (xlsxWriter) CanWrite(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".xlsx")
}

func (xlsxWriter) Write(path string, f *table.Frame) error {
	return utils.AtomicWrite(path, func(w io.Writer) error {
		return table.WriteXLSX(w, f, "Deduplicated")
	})
}

func init() {
	Register(csvWriter{})
	Register(xlsxWriter{})
	Register(sqliteWriter{})
}
