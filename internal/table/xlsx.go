package table

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is day zero of the 1900 date system, shifted to absorb the
// phantom 1900-02-29 for every serial after February 1900.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// LoadXLSX parses a .xlsx file and returns the rows of the selected sheet.
// If opt.SheetName is empty and opt.SheetIndex <= 0, it defaults to the first sheet.
func LoadXLSX(p string, opt Options) (*Frame, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return readXLSX(b, filepath.Base(p), opt)
}

func readXLSX(b []byte, name string, opt Options) (*Frame, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", ErrInput, err)
	}
	sheets := parseWorkbook(readZipFile(zr, "xl/workbook.xml"))
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	target := ""
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, opt.SheetName) {
				if rel, ok := rels[s.RID]; ok {
					target = normalizeRelPath(rel)
				}
				break
			}
		}
		if target == "" {
			available := make([]string, len(sheets))
			for i, s := range sheets {
				available[i] = s.Name
			}
			return nil, fmt.Errorf("%w: sheet '%s' not found in workbook '%s'; available sheets: %s",
				ErrInput, opt.SheetName, name, strings.Join(available, ", "))
		}
	}
	if target == "" {
		idx := opt.SheetIndex
		if idx <= 0 {
			idx = 1
		}
		var rid string
		for _, s := range sheets {
			if s.SheetID == idx {
				rid = s.RID
				break
			}
		}
		if rid == "" && idx <= len(sheets) {
			rid = sheets[idx-1].RID
		}
		if rel, ok := rels[rid]; ok {
			target = normalizeRelPath(rel)
		}
		if target == "" {
			target = path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx))
		}
	}
	sheetXML := readZipFile(zr, target)
	if sheetXML == nil {
		return nil, fmt.Errorf("%w: worksheet %s missing from %s", ErrInput, target, name)
	}
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))
	dates := parseDateStyles(readZipFile(zr, "xl/styles.xml"))

	frame := &Frame{Name: name}
	rr := newSheetRowReader(sheetXML, shared, dates)
	header, headerNum, ok := rr.Next()
	if !ok || len(header) == 0 {
		return frame, nil
	}
	frame.Header = make([]string, len(header))
	for i, v := range header {
		frame.Header[i] = strings.TrimSpace(v.String())
	}
	ncol := len(header)
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	prev := headerNum
	appendRow := func(row []Value) {
		frame.Total++
		if len(frame.Data) >= maxRows {
			return
		}
		frame.Data = append(frame.Data, row)
	}
	for {
		row, num, ok := rr.Next()
		if !ok {
			break
		}
		// rows omitted from the sheet XML are blank rows in the workbook
		for gap := prev + 1; gap < num; gap++ {
			appendRow(make([]Value, ncol))
		}
		prev = num
		if len(row) > ncol {
			extra := row[ncol:]
			for _, v := range extra {
				if !v.IsMissing() {
					return nil, fmt.Errorf("%w: row %d has values beyond the %d header columns", ErrInput, num, ncol)
				}
			}
			row = row[:ncol]
		}
		if len(row) < ncol {
			tmp := make([]Value, ncol)
			copy(tmp, row)
			row = tmp
		}
		appendRow(row)
	}
	if rr.err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInput, target, rr.err)
	}
	if len(frame.Data) < frame.Total {
		frame.Warnings = append(frame.Warnings, fmt.Sprintf("loaded only %d/%d rows due to MaxRows", len(frame.Data), frame.Total))
	}
	return frame, nil
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) []wbSheet {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			var s wbSheet
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "name":
					s.Name = a.Value
				case "sheetId":
					s.SheetID = atoiSafe(a.Value)
				case "id":
					s.RID = a.Value // in r: namespace
				}
			}
			sheets = append(sheets, s)
		}
	}
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

func parseRelationships(data []byte) map[string]string {
	// returns map[r:id]Target
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			var id, target string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "Id":
					id = a.Value
				case "Target":
					target = a.Value
				}
			}
			if id != "" && target != "" {
				out[id] = target
			}
		}
	}
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

// parseSharedStrings concatenates every <t> run inside each <si>.
func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT, inRPh bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			case "rPh":
				// phonetic hints are not part of the cell text
				inRPh = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "rPh":
				inRPh = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT && !inRPh {
				buf.Write(se)
			}
		}
	}
}

// parseDateStyles returns the cellXfs indexes whose number format renders a date.
func parseDateStyles(data []byte) map[int]bool {
	out := map[int]bool{}
	if len(data) == 0 {
		return out
	}
	custom := map[int]string{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	inXfs := false
	xf := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "numFmt":
				var id int
				var code string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "numFmtId":
						id = atoiSafe(a.Value)
					case "formatCode":
						code = a.Value
					}
				}
				custom[id] = code
			case "cellXfs":
				inXfs = true
			case "xf":
				if !inXfs {
					continue
				}
				for _, a := range se.Attr {
					if a.Name.Local == "numFmtId" {
						id := atoiSafe(a.Value)
						if isDateFormat(id, custom[id]) {
							out[xf] = true
						}
					}
				}
				xf++
			}
		case xml.EndElement:
			if se.Name.Local == "cellXfs" {
				inXfs = false
			}
		}
	}
	return out
}

func isDateFormat(id int, code string) bool {
	if (id >= 14 && id <= 22) || (id >= 45 && id <= 47) {
		return true
	}
	if code == "" {
		return false
	}
	// drop quoted literals and bracketed sections such as [Red] or [$-409]
	var b strings.Builder
	quoted, bracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(b.String(), "ydh")
}

func fromSerial(f float64) time.Time {
	sec := math.Round(f * 86400)
	return excelEpoch.Add(time.Duration(sec) * time.Second)
}

func toSerial(t time.Time) float64 {
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return t.Sub(excelEpoch).Hours() / 24
}

// sheet row reader
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	dates  map[int]bool
	rowNum int
	err    error
}

func newSheetRowReader(data []byte, shared []string, dates map[int]bool) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared, dates: dates}
}

// Next returns the next row's cells and its 1-based sheet row number.
func (r *sheetRowReader) Next() ([]Value, int, bool) {
	var cur []Value
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			return nil, 0, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow = true
				cur = nil
				num := 0
				for _, a := range se.Attr {
					if a.Name.Local == "r" {
						num = atoiSafe(a.Value)
					}
				}
				if num <= r.rowNum {
					num = r.rowNum + 1
				}
				r.rowNum = num
			}
			if inRow && se.Name.Local == "c" {
				var rAttr, tAttr, sAttr string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						rAttr = a.Value
					case "t":
						tAttr = a.Value
					case "s":
						sAttr = a.Value
					}
				}
				colIdx := len(cur)
				if rAttr != "" {
					colIdx = colIndexFromRef(rAttr)
				}
				if colIdx < 0 {
					colIdx = len(cur)
				}
				val := r.readCellValue(tAttr, sAttr)
				if len(cur) <= colIdx {
					tmp := make([]Value, colIdx+1)
					copy(tmp, cur)
					cur = tmp
				}
				cur[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" && inRow {
				return cur, r.rowNum, true
			}
		}
	}
}

func (r *sheetRowReader) readCellValue(tAttr, sAttr string) Value {
	var raw strings.Builder
	var hasV bool
	// read until end of c; capture <v> or every <t> under <is>
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return Value{}
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				for {
					tk, er := r.dec.Token()
					if er != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						raw.Write(ch)
					}
				}
				hasV = true
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				if !hasV {
					return Value{}
				}
				return r.typedValue(raw.String(), tAttr, sAttr)
			}
		}
	}
}

func (r *sheetRowReader) typedValue(raw, tAttr, sAttr string) Value {
	switch tAttr {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(r.shared) {
			return Value{}
		}
		return textCell(r.shared[idx])
	case "inlineStr", "str", "e":
		return textCell(raw)
	case "b":
		return BoolValue(strings.TrimSpace(raw) == "1")
	case "d":
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return DateValue(t)
		}
		if t, ok := parseTimeMaybe(raw); ok {
			return DateValue(t)
		}
		return textCell(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return textCell(raw)
	}
	if sAttr != "" && r.dates[atoiSafe(sAttr)] {
		return DateValue(fromSerial(f))
	}
	return NumberValue(f)
}

func textCell(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return TextValue(s)
}

// helpers for refs like "C12" -> 2 (0-based index)
func colIndexFromRef(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			i++
			continue
		}
		break
	}
	s := strings.ToUpper(ref[:i])
	idx := 0
	for j := 0; j < len(s); j++ {
		idx = idx*26 + int(s[j]-'A'+1)
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship Target paths to ZIP-compatible paths.
// Relationships may have leading slashes (e.g., "/xl/worksheets/sheet1.xml")
// but ZIP entries don't include the leading slash.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
