package table

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Loader reads one table format from disk.
type Loader interface {
	CanLoad(filename string) bool
	Load(path string, opt Options) (*Frame, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

// Load selects a loader based on the file extension.
func Load(path string, opt Options) (*Frame, error) {
	for _, l := range registry {
		if l.CanLoad(path) {
			return l.Load(path, opt)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Supported reports whether some registered loader accepts filename.
func Supported(filename string) bool {
	for _, l := range registry {
		if l.CanLoad(filename) {
			return true
		}
	}
	return false
}

type csvLoader struct{}

func (csvLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

func (csvLoader) Load(path string, opt Options) (*Frame, error) { return LoadCSV(path, opt) }

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

func (xlsxLoader) Load(path string, opt Options) (*Frame, error) { return LoadXLSX(path, opt) }

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}
