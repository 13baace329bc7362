package table

import (
	"archive/zip"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteCSV writes the header and every row of f using delim.
func WriteCSV(w io.Writer, f *Frame, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	if err := cw.Write(f.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(f.Header))
	for i := range f.Data {
		for j := range rec {
			rec[j] = f.Field(i, j).String()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	xlsxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/><Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/><Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/></Types>`
	xlsxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/></Relationships>`
	xlsxWorkbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/><Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/></Relationships>`
	// xf 1 is a date, xf 2 a date-time
	xlsxStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts><fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills><borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders><cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs><cellXfs count="3"><xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/><xf numFmtId="14" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/><xf numFmtId="22" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/></cellXfs></styleSheet>`
)

// WriteXLSX writes f as a single-sheet workbook. Text cells are stored as
// inline strings so no shared string table is needed.
func WriteXLSX(w io.Writer, f *Frame, sheetName string) error {
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", xlsxContentTypes},
		{"_rels/.rels", xlsxRootRels},
		{"xl/workbook.xml", workbookXML(sheetName)},
		{"xl/_rels/workbook.xml.rels", xlsxWorkbookRels},
		{"xl/styles.xml", xlsxStyles},
	}
	for _, p := range parts {
		pw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	sw, err := zw.Create("xl/worksheets/sheet1.xml")
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeSheet(sw, f); err != nil {
		return err
	}
	return zw.Close()
}

func workbookXML(sheetName string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="`)
	_ = xml.EscapeText(&b, []byte(sheetName))
	b.WriteString(`" sheetId="1" r:id="rId1"/></sheets></workbook>`)
	return b.String()
}

func writeSheet(w io.Writer, f *Frame) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	header := make([]Value, len(f.Header))
	for j, h := range f.Header {
		header[j] = TextValue(h)
	}
	writeRow(&b, 1, header)
	row := make([]Value, len(f.Header))
	for i := range f.Data {
		for j := range row {
			row[j] = f.Field(i, j)
		}
		writeRow(&b, i+2, row)
		// flush periodically so large tables do not sit in memory twice
		if b.Len() > 1<<20 {
			if _, err := io.WriteString(w, b.String()); err != nil {
				return fmt.Errorf("write sheet: %w", err)
			}
			b.Reset()
		}
	}
	b.WriteString(`</sheetData></worksheet>`)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return nil
}

func writeRow(b *strings.Builder, num int, cells []Value) {
	fmt.Fprintf(b, `<row r="%d">`, num)
	for j, v := range cells {
		ref := colRef(j) + strconv.Itoa(num)
		switch v.Kind {
		case Text:
			fmt.Fprintf(b, `<c r="%s" t="inlineStr"><is><t xml:space="preserve">`, ref)
			_ = xml.EscapeText(b, []byte(v.String()))
			b.WriteString(`</t></is></c>`)
		case Number:
			fmt.Fprintf(b, `<c r="%s"><v>%s</v></c>`, ref, v.String())
		case Bool:
			bit := "0"
			if v.b {
				bit = "1"
			}
			fmt.Fprintf(b, `<c r="%s" t="b"><v>%s</v></c>`, ref, bit)
		case Date:
			style := 1
			if h, m, s := v.t.Clock(); h != 0 || m != 0 || s != 0 {
				style = 2
			}
			fmt.Fprintf(b, `<c r="%s" s="%d"><v>%s</v></c>`, ref, style, strconv.FormatFloat(toSerial(v.t), 'f', -1, 64))
		}
	}
	b.WriteString(`</row>`)
}

// colRef converts a 0-based column index to letters: 0 -> A, 27 -> AB.
func colRef(idx int) string {
	var buf []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('A' + (n-1)%26)}, buf...)
	}
	return string(buf)
}
