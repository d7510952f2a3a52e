package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedFormat is returned when no loader handles a file.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	// ErrShape is returned when column lengths disagree.
	ErrShape = errors.New("columns have different lengths")
)

// missingMarkers mirrors the tokens common CSV readers treat as NA.
var missingMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissing reports whether a raw cell is a missing marker.
func IsMissing(s string) bool {
	_, ok := missingMarkers[strings.TrimSpace(s)]
	return ok
}

// Dataset is an in-memory table with named columns. It is never mutated after
// construction, so concurrent readers are safe.
type Dataset struct {
	Name    string
	columns []*Column
	index   map[string]int
	rows    int
}

// Column holds the raw cells of one field plus a lazily parsed numeric view.
type Column struct {
	Name    string
	cells   []string
	missing []bool

	once    sync.Once
	nums    []float64
	numeric bool
	integer bool
}

// New builds a dataset from a header and row records. Short rows are padded
// with missing cells and extra cells are dropped.
func New(name string, header []string, records [][]string) (*Dataset, error) {
	cols := make([][]string, len(header))
	for i := range cols {
		cols[i] = make([]string, len(records))
	}
	for r, rec := range records {
		for c := range header {
			if c < len(rec) {
				cols[c][r] = rec[c]
			}
		}
	}
	return FromColumns(name, header, cols)
}

// FromColumns builds a dataset from column-major values.
func FromColumns(name string, names []string, values [][]string) (*Dataset, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), len(values))
	}
	ds := &Dataset{Name: name, index: make(map[string]int, len(names))}
	for i, raw := range values {
		if i == 0 {
			ds.rows = len(raw)
		} else if len(raw) != ds.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrShape, names[i], len(raw), ds.rows)
		}
		colName := uniqueName(strings.TrimSpace(names[i]), i, ds.index)
		cells := make([]string, len(raw))
		missing := make([]bool, len(raw))
		for r, s := range raw {
			cells[r] = strings.TrimSpace(s)
			missing[r] = IsMissing(s)
		}
		ds.index[colName] = len(ds.columns)
		ds.columns = append(ds.columns, &Column{Name: colName, cells: cells, missing: missing})
	}
	return ds, nil
}

// FromFloats builds a dataset of numeric columns; NaN marks a missing value.
func FromFloats(name string, names []string, values [][]float64) (*Dataset, error) {
	raw := make([][]string, len(values))
	for i, col := range values {
		raw[i] = make([]string, len(col))
		for r, v := range col {
			if math.IsNaN(v) {
				continue
			}
			raw[i][r] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	return FromColumns(name, names, raw)
}

func uniqueName(name string, pos int, seen map[string]int) string {
	if name == "" {
		name = fmt.Sprintf("Unnamed: %d", pos)
	}
	if _, dup := seen[name]; !dup {
		return name
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s.%d", name, n)
		if _, dup := seen[cand]; !dup {
			return cand
		}
	}
}

// Rows returns the number of records.
func (d *Dataset) Rows() int { return d.rows }

// Width returns the number of columns.
func (d *Dataset) Width() int { return len(d.columns) }

// Columns returns the columns in file order.
func (d *Dataset) Columns() []*Column { return d.columns }

// ColumnNames returns the column names in file order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// NumericColumns returns the columns whose present cells all parse as numbers.
func (d *Dataset) NumericColumns() []*Column {
	var out []*Column
	for _, c := range d.columns {
		if c.IsNumeric() {
			out = append(out, c)
		}
	}
	return out
}

// ObjectColumns returns the non-numeric columns.
func (d *Dataset) ObjectColumns() []*Column {
	var out []*Column
	for _, c := range d.columns {
		if !c.IsNumeric() {
			out = append(out, c)
		}
	}
	return out
}

// Row returns the raw cells of record i.
func (d *Dataset) Row(i int) []string {
	out := make([]string, len(d.columns))
	for c, col := range d.columns {
		out[c] = col.cells[i]
	}
	return out
}

// UniqueRows counts distinct records, treating missing cells as equal.
func (d *Dataset) UniqueRows() int {
	seen := make(map[string]struct{}, d.rows)
	var b strings.Builder
	for r := 0; r < d.rows; r++ {
		b.Reset()
		for _, col := range d.columns {
			if col.missing[r] {
				b.WriteString("\x00NA")
			} else {
				b.WriteString(col.cells[r])
			}
			b.WriteByte('\x1f')
		}
		seen[b.String()] = struct{}{}
	}
	return len(seen)
}

// MemoryBytes estimates the in-memory footprint: 8 bytes per numeric cell and
// string header plus payload for everything else.
func (d *Dataset) MemoryBytes() int64 {
	total := int64(128)
	for _, col := range d.columns {
		if col.IsNumeric() {
			total += int64(8 * col.Len())
			continue
		}
		for r, s := range col.cells {
			if col.missing[r] {
				total += 24
				continue
			}
			total += int64(49 + len(s))
		}
	}
	return total
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.cells) }

// Cell returns the trimmed raw cell at row i.
func (c *Column) Cell(i int) string { return c.cells[i] }

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// Present returns the non-missing raw cells in row order.
func (c *Column) Present() []string {
	out := make([]string, 0, len(c.cells))
	for i, s := range c.cells {
		if !c.missing[i] {
			out = append(out, s)
		}
	}
	return out
}

// Counts returns distinct present values with their frequencies, most
// frequent first; ties keep first-seen order.
func (c *Column) Counts() []ValueCount {
	idx := map[string]int{}
	var out []ValueCount
	for i, s := range c.cells {
		if c.missing[i] {
			continue
		}
		if j, ok := idx[s]; ok {
			out[j].Count++
			continue
		}
		idx[s] = len(out)
		out = append(out, ValueCount{Value: s, Count: 1})
	}
	sortCounts(out)
	return out
}

// Unique returns the number of distinct present values.
func (c *Column) Unique() int {
	seen := map[string]struct{}{}
	for i, s := range c.cells {
		if !c.missing[i] {
			seen[s] = struct{}{}
		}
	}
	return len(seen)
}

// IsNumeric reports whether the column holds numbers. A column with rows but
// no present values counts as numeric, the way an all-NA float column does.
func (c *Column) IsNumeric() bool {
	c.parse()
	return c.numeric
}

// IsInteger reports whether every present value is a whole number.
func (c *Column) IsInteger() bool {
	c.parse()
	return c.numeric && c.integer
}

// Floats returns one value per row with NaN for missing cells. It returns nil
// for non-numeric columns.
func (c *Column) Floats() []float64 {
	c.parse()
	if !c.numeric {
		return nil
	}
	out := make([]float64, len(c.nums))
	copy(out, c.nums)
	return out
}

// Values returns the present numeric values in row order.
func (c *Column) Values() []float64 {
	c.parse()
	if !c.numeric {
		return nil
	}
	out := make([]float64, 0, len(c.nums))
	for _, v := range c.nums {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Column) parse() {
	c.once.Do(func() {
		if len(c.cells) == 0 {
			return
		}
		nums := make([]float64, len(c.cells))
		integer := true
		for i, s := range c.cells {
			if c.missing[i] {
				nums[i] = math.NaN()
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsInf(f, 0) {
				return
			}
			if f != math.Trunc(f) || strings.ContainsAny(s, ".eE") {
				integer = false
			}
			nums[i] = f
		}
		c.nums = nums
		c.numeric = true
		c.integer = integer
	})
}

// ValueCount pairs a distinct value with its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func sortCounts(vc []ValueCount) {
	sort.SliceStable(vc, func(i, j int) bool { return vc[i].Count > vc[j].Count })
}
