package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cfgpkg "github.com/KaramelBytes/dedupe-cli/internal/config"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// expandInputs resolves glob patterns and literal paths, dropping repeats.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	return files, nil
}

// tableOptions builds loader options from config plus the sheet flags.
func tableOptions(c *cfgpkg.Global, sheetName string, sheetIndex int) (table.Options, error) {
	opt := table.DefaultOptions()
	opt.MaxRows = c.MaxRows
	opt.InferTypes = c.InferTypes
	d, err := cfgpkg.ParseDelimiter(c.Delimiter)
	if err != nil {
		return opt, fmt.Errorf("unsupported --delimiter: %w", err)
	}
	opt.Delimiter = d
	if opt.DecimalSeparator, opt.ThousandsSeparator, err = cfgpkg.ParseDecimalSeparator(c.DecimalSeparator); err != nil {
		return opt, err
	}
	opt.SheetName = sheetName
	if sheetIndex > 0 {
		opt.SheetIndex = sheetIndex
	}
	return opt, nil
}
