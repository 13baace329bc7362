package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Options controls how tables are loaded.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffs among ',', ';', '\t', '|'.
	Delimiter rune
	// InferTypes converts CSV cells that parse as numbers or dates into
	// Number and Date values instead of keeping them as Text.
	InferTypes bool
	// Numeric parsing locale used by InferTypes. If DecimalSeparator is 0, auto-detect per value.
	// Set from the decimal_separator config key.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// XLSX sheet selection. SheetName wins over SheetIndex (1-based).
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns reasonable defaults for loading a table.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

// LoadCSV reads a delimited text file. The first record is the header.
func LoadCSV(path string, opt Options) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	return readCSV(f, filepath.Base(path), delim, opt)
}

func readCSV(src io.Reader, name string, delim rune, opt Options) (*Frame, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.Comma = delim
	// With a blank delimiter the reader's own trimming would eat empty
	// cells and shift the row left, so trim per cell instead.
	blankDelim := unicode.IsSpace(delim)
	r.TrimLeadingSpace = !blankDelim

	frame := &Frame{Name: name}
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return frame, nil
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrInput, err)
	}
	frame.Header = make([]string, len(header))
	for i, h := range header {
		frame.Header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	ncol := len(header)
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read row %d: %v", ErrInput, frame.Total+1, err)
		}
		frame.Total++
		if len(frame.Data) >= maxRows {
			continue
		}
		if len(rec) > ncol {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrInput, frame.Total, len(rec), ncol)
		}
		row := make([]Value, ncol)
		for j, cell := range rec {
			if blankDelim {
				cell = strings.TrimLeftFunc(cell, unicode.IsSpace)
			}
			row[j] = cellValue(cell, opt)
		}
		frame.Data = append(frame.Data, row)
	}
	if len(frame.Data) < frame.Total {
		frame.Warnings = append(frame.Warnings, fmt.Sprintf("loaded only %d/%d rows due to MaxRows", len(frame.Data), frame.Total))
	}
	return frame, nil
}

func cellValue(cell string, opt Options) Value {
	if strings.TrimSpace(cell) == "" {
		return Value{}
	}
	if !opt.InferTypes {
		return TextValue(cell)
	}
	v := strings.TrimSpace(cell)
	if x, ok := parseNumeric(v, opt); ok {
		return NumberValue(x)
	}
	if t, ok := parseTimeMaybe(v); ok {
		return DateValue(t)
	}
	return TextValue(cell)
}

// sniffDelimiter picks the candidate that splits the first lines most
// consistently. .tsv files are always tab separated.
func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	f, err := os.Open(path)
	if err != nil {
		return ','
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() && len(lines) < 10 {
		if strings.TrimSpace(sc.Text()) != "" {
			lines = append(lines, sc.Text())
		}
	}
	return guessDelimiter(lines)
}

func guessDelimiter(lines []string) rune {
	best, bestScore := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		first := -1
		score := 0
		for _, l := range lines {
			n := strings.Count(l, string(d))
			if n == 0 {
				score = 0
				break
			}
			if first < 0 {
				first = n
			}
			if n == first {
				score += n
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(s, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	// Leading zeros are identifiers (zip codes, SKUs), not numbers.
	if len(raw) > 1 && raw[0] == '0' && raw[1] >= '0' && raw[1] <= '9' {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
