package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

type csvLoader struct{}

func (csvLoader) CanLoad(path string) bool { return hasExt(path, ".csv", ".tsv", ".txt") }

func (csvLoader) Load(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, filepath.Base(path), withDelimiter(path, opt))
}

// ReadCSV parses delimited text into a Dataset. An empty input yields an
// empty dataset rather than an error.
func ReadCSV(r io.Reader, name string, opt Options) (*Dataset, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return FromColumns(name, nil, nil)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	maxRows := opt.MaxRows
	var records [][]string
	for {
		if maxRows > 0 && len(records) >= maxRows {
			break
		}
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(records)+2, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		records = append(records, rec)
	}
	normalizeNumbers(header, records, opt)
	return New(name, header, records)
}

func withDelimiter(path string, opt Options) Options {
	if opt.Delimiter == 0 && hasExt(path, ".tsv") {
		opt.Delimiter = '\t'
	}
	return opt
}

// sniffDelimiter peeks at the header line and picks the most frequent of
// comma, semicolon and tab.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

var thousandsGrouped = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// normalizeNumbers rewrites locale formatted numbers ("1.234,5", "12%") to
// plain decimal form, one column at a time. A column is only rewritten when
// every present cell parses, so text columns are left untouched.
func normalizeNumbers(header []string, records [][]string, opt Options) {
	for c := range header {
		parsed := make([]string, len(records))
		changed, ok := false, true
		for r, rec := range records {
			if c >= len(rec) || IsMissing(rec[c]) {
				continue
			}
			raw := strings.TrimSpace(rec[c])
			if _, err := strconv.ParseFloat(raw, 64); err == nil {
				parsed[r] = raw
				continue
			}
			f, good := parseNumeric(raw, opt)
			if !good {
				ok = false
				break
			}
			parsed[r] = strconv.FormatFloat(f, 'g', -1, 64)
			changed = true
		}
		if !ok || !changed {
			continue
		}
		for r, rec := range records {
			if c < len(rec) && parsed[r] != "" {
				rec[c] = parsed[r]
			}
		}
	}
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.IndexFunc(raw, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0 && cpos > dpos:
			dec, thou = ',', '.'
		case cpos >= 0 && dpos >= 0:
			dec, thou = '.', ','
		case cpos >= 0 && thousandsGrouped.MatchString(raw):
			dec, thou = '.', ','
		case cpos >= 0:
			dec = ','
		default:
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
	if err != nil {
		return 0, false
	}
	return f, true
}
