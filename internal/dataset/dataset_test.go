package dataset

import (
	"archive/zip"
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var csvRows = []string{
	"Group;Concentration;Temp;Score;LocaleNumber;Category;Note",
	"A;0,5;70;10,0;1.000,0;alpha;first",
	"A;0,6;71;11,0;1.100,0;alpha;second",
	"A;0,55;69;9,5;0.900,0;beta;",
	"B;0,7;75;10,5;1.050,0;alpha;fourth",
	"B;NA;74;9,8;0.980,0;beta;fifth",
}

func TestReadCSVLocaleAndMissing(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(strings.Join(csvRows, "\n")), "locale.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if ds.Rows() != 5 || ds.Width() != 7 {
		t.Fatalf("shape = %dx%d, want 5x7", ds.Rows(), ds.Width())
	}
	conc, ok := ds.Column("Concentration")
	if !ok {
		t.Fatalf("Concentration column missing")
	}
	if !conc.IsNumeric() {
		t.Fatalf("Concentration should be numeric after decimal-comma normalization")
	}
	vals := conc.Values()
	if len(vals) != 4 || vals[0] != 0.5 || vals[3] != 0.7 {
		t.Fatalf("Concentration values = %v", vals)
	}
	if conc.MissingCount() != 1 {
		t.Fatalf("Concentration missing = %d, want 1", conc.MissingCount())
	}
	loc, _ := ds.Column("LocaleNumber")
	if got := loc.Values(); got[0] != 1000 || got[2] != 900 {
		t.Fatalf("LocaleNumber values = %v", got)
	}
	temp, _ := ds.Column("Temp")
	if !temp.IsInteger() {
		t.Fatalf("Temp should be integer")
	}
	cat, _ := ds.Column("Category")
	if cat.IsNumeric() {
		t.Fatalf("Category must not be numeric")
	}
	counts := cat.Counts()
	if counts[0].Value != "alpha" || counts[0].Count != 3 {
		t.Fatalf("Category counts = %+v", counts)
	}
	note, _ := ds.Column("Note")
	if note.MissingCount() != 1 {
		t.Fatalf("empty cell should count as missing")
	}
}

func TestThousandsSeparatorDetection(t *testing.T) {
	in := "amount,label\n\"1,250\",a\n\"2,500.75\",b\n300,c\n"
	ds, err := ReadCSV(strings.NewReader(in), "t.csv", DefaultOptions())
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	col, _ := ds.Column("amount")
	got := col.Values()
	want := []float64{1250, 2500.75, 300}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("amount[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFromColumnsShapeAndDuplicates(t *testing.T) {
	if _, err := FromColumns("x", []string{"a", "b"}, [][]string{{"1"}, {"1", "2"}}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	ds, err := FromColumns("x", []string{"a", "a", ""}, [][]string{{"1"}, {"2"}, {"3"}})
	if err != nil {
		t.Fatalf("FromColumns: %v", err)
	}
	names := ds.ColumnNames()
	if names[0] != "a" || names[1] != "a.1" || names[2] != "Unnamed: 2" {
		t.Fatalf("names = %v", names)
	}
}

func TestAllMissingColumnIsNumericWithNoValues(t *testing.T) {
	ds, err := FromColumns("x", []string{"empty", "v"}, [][]string{{"", "NA", "null"}, {"1", "2", "2"}})
	if err != nil {
		t.Fatal(err)
	}
	col, _ := ds.Column("empty")
	if !col.IsNumeric() || len(col.Values()) != 0 {
		t.Fatalf("all-missing column: numeric=%v values=%v", col.IsNumeric(), col.Values())
	}
	if ds.UniqueRows() != 2 {
		t.Fatalf("UniqueRows = %d, want 2", ds.UniqueRows())
	}
}

func TestZeroRowColumnsAreNotNumeric(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b\n"), "h.csv", DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if ds.Rows() != 0 || len(ds.NumericColumns()) != 0 {
		t.Fatalf("rows=%d numeric=%d", ds.Rows(), len(ds.NumericColumns()))
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.parquet")
	if err := os.WriteFile(p, []byte("PAR1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p, DefaultOptions()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadTSVByExtension(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.tsv")
	if err := os.WriteFile(p, []byte("x\ty\n1\t2\n3\t4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := Load(p, DefaultOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Width() != 2 || ds.Name != "data.tsv" {
		t.Fatalf("width=%d name=%s", ds.Width(), ds.Name)
	}
}

// buildXLSX writes a two-sheet workbook; the second sheet uses an absolute
// relationship target and a sparse row.
func buildXLSX(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"xl/workbook.xml": `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>` +
			`<sheet name="Summary" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships>` +
			`<Relationship Id="rId1" Target="worksheets/sheet1.xml"/>` +
			`<Relationship Id="rId2" Target="/xl/worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml":     `<sst><si><t>city</t></si><si><t>sales</t></si><si><t>Oslo</t></si><si><t>Bergen</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>note</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>` +
			`<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>10.5</v></c></row>` +
			`<row r="3"><c r="B3"><v>7</v></c></row>` +
			`<row r="4"><c r="A4" t="s"><v>3</v></c><c r="B4"><v>3</v></c></row>` +
			`</sheetData></worksheet>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadXLSXSheetSelection(t *testing.T) {
	data := buildXLSX(t)
	opt := DefaultOptions()
	opt.SheetName = "data"
	ds, err := ReadXLSX(bytes.NewReader(data), int64(len(data)), "book.xlsx", opt)
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if got := ds.ColumnNames(); len(got) != 2 || got[0] != "city" || got[1] != "sales" {
		t.Fatalf("header = %v", got)
	}
	if ds.Rows() != 3 {
		t.Fatalf("rows = %d, want 3", ds.Rows())
	}
	city, _ := ds.Column("city")
	if !city.IsMissing(1) || city.Cell(2) != "Bergen" {
		t.Fatalf("sparse row misaligned: %q %q", city.Cell(1), city.Cell(2))
	}
	sales, _ := ds.Column("sales")
	if v := sales.Values(); len(v) != 3 || v[0] != 10.5 {
		t.Fatalf("sales = %v", v)
	}

	opt = DefaultOptions()
	ds, err = ReadXLSX(bytes.NewReader(data), int64(len(data)), "book.xlsx", opt)
	if err != nil {
		t.Fatalf("ReadXLSX default sheet: %v", err)
	}
	if ds.ColumnNames()[0] != "note" {
		t.Fatalf("default sheet header = %v", ds.ColumnNames())
	}

	opt.SheetName = "missing"
	if _, err := ReadXLSX(bytes.NewReader(data), int64(len(data)), "book.xlsx", opt); err == nil || !strings.Contains(err.Error(), "Summary, Data") {
		t.Fatalf("expected sheet-not-found error listing sheets, got %v", err)
	}
}

func TestSheetPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		if got := sheetPath(tt.in); got != tt.want {
			t.Errorf("sheetPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
