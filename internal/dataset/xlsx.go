package dataset

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(p string) bool { return hasExt(p, ".xlsx") }

func (xlsxLoader) Load(p string, opt Options) (*Dataset, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()
	return readWorkbook(&zr.Reader, filepath.Base(p), opt)
}

// ReadXLSX parses a workbook held in memory.
func ReadXLSX(r io.ReaderAt, size int64, name string, opt Options) (*Dataset, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	return readWorkbook(zr, name, opt)
}

type workbookSheet struct {
	Name    string
	SheetID int
	RelID   string
}

func readWorkbook(zr *zip.Reader, name string, opt Options) (*Dataset, error) {
	sheets, err := parseWorkbookSheets(zipEntry(zr, "xl/workbook.xml"))
	if err != nil {
		return nil, err
	}
	rels := parseWorkbookRels(zipEntry(zr, "xl/_rels/workbook.xml.rels"))
	target, err := resolveSheet(sheets, rels, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	shared := parseSharedStrings(zipEntry(zr, "xl/sharedStrings.xml"))
	sheetXML := zipEntry(zr, target)
	if sheetXML == nil {
		return nil, fmt.Errorf("%s: worksheet %s missing from archive", name, target)
	}
	defer sheetXML.Close()

	rows := newSheetRows(sheetXML, shared)
	header, ok := rows.next()
	if !ok {
		return FromColumns(name, nil, nil)
	}
	var records [][]string
	for {
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		rec, ok := rows.next()
		if !ok {
			break
		}
		records = append(records, rec)
	}
	if rows.err != nil && !errors.Is(rows.err, io.EOF) {
		return nil, fmt.Errorf("%s: read worksheet: %w", name, rows.err)
	}
	normalizeNumbers(header, records, opt)
	return New(name, header, records)
}

func resolveSheet(sheets []workbookSheet, rels map[string]string, opt Options) (string, error) {
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, opt.SheetName) {
				if rel, ok := rels[s.RelID]; ok {
					return sheetPath(rel), nil
				}
			}
		}
		names := make([]string, len(sheets))
		for i, s := range sheets {
			names[i] = s.Name
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", opt.SheetName, strings.Join(names, ", "))
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	for _, s := range sheets {
		if s.SheetID == idx {
			if rel, ok := rels[s.RelID]; ok {
				return sheetPath(rel), nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", idx), nil
}

// sheetPath turns a relationship target into a zip entry name. Targets may be
// absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func sheetPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

func zipEntry(zr *zip.Reader, name string) io.ReadCloser {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			return rc
		}
	}
	return nil
}

func parseWorkbookSheets(rc io.ReadCloser) ([]workbookSheet, error) {
	if rc == nil {
		return nil, errors.New("workbook.xml missing: not an xlsx file")
	}
	defer rc.Close()
	dec := xml.NewDecoder(rc)
	var out []workbookSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("parse workbook: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s workbookSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID, _ = strconv.Atoi(a.Value)
			case "id":
				s.RelID = a.Value
			}
		}
		out = append(out, s)
	}
}

func parseWorkbookRels(rc io.ReadCloser) map[string]string {
	out := map[string]string{}
	if rc == nil {
		return out
	}
	defer rc.Close()
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
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

func parseSharedStrings(rc io.ReadCloser) []string {
	if rc == nil {
		return nil
	}
	defer rc.Close()
	dec := xml.NewDecoder(rc)
	var out []string
	var buf strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
}

type sheetRows struct {
	dec    *xml.Decoder
	shared []string
	err    error
}

func newSheetRows(r io.Reader, shared []string) *sheetRows {
	return &sheetRows{dec: xml.NewDecoder(r), shared: shared}
}

// next returns the cells of the following <row>, placing each value at the
// column named by its cell reference so sparse rows keep their alignment.
func (s *sheetRows) next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := s.dec.Token()
		if err != nil {
			s.err = err
			return nil, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "row":
				inRow = true
				row = row[:0]
			case inRow && t.Name.Local == "c":
				var ref, typ string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := len(row)
				if i := columnIndex(ref); ref != "" && i >= 0 {
					col = i
				}
				val := s.cellValue(typ)
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = val
			}
		case xml.EndElement:
			if t.Name.Local == "row" && inRow {
				return append([]string(nil), row...), true
			}
		}
	}
}

func (s *sheetRows) cellValue(typ string) string {
	var val string
	for {
		tok, err := s.dec.Token()
		if err != nil {
			s.err = err
			return val
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "v" || t.Name.Local == "t" {
				var text string
				if err := s.dec.DecodeElement(&text, &t); err == nil {
					val += text
				}
			}
		case xml.EndElement:
			if t.Name.Local != "c" {
				continue
			}
			switch typ {
			case "s":
				i, err := strconv.Atoi(strings.TrimSpace(val))
				if err != nil || i < 0 || i >= len(s.shared) {
					return ""
				}
				return s.shared[i]
			case "b":
				if val == "1" {
					return "TRUE"
				}
				return "FALSE"
			}
			return val
		}
	}
}

// columnIndex converts a cell reference like "C12" to a 0-based column index.
func columnIndex(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}
