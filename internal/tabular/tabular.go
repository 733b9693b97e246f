// Package tabular reads uploaded spreadsheets and CSV files into a header row
// plus data rows of trimmed strings.
package tabular

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrFormat marks input that could not be read as a table.
var ErrFormat = eris.New("unreadable tabular file")

// Table is a parsed tabular upload. Rows may be shorter than Header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Options configures table reading.
type Options struct {
	SheetName string // xlsx only; empty means the first sheet
}

// Read parses r according to the extension of name.
func Read(name string, r io.Reader, opts Options) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".xlsx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "tabular: read upload")
		}
		return ReadXLSX(data, opts)
	case ".csv", ".txt":
		return ReadCSV(r)
	default:
		return nil, eris.Wrapf(ErrFormat, "tabular: unsupported file type %q (want .xlsx or .csv)", ext)
	}
}

// Column returns the index of the header cell equal to name, or -1.
func (t *Table) Column(name string) int {
	name = strings.TrimSpace(name)
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at column idx of row, or "" when the row is short.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// newTable splits raw records into header and non-blank data rows.
func newTable(records [][]string) (*Table, error) {
	var header []string
	var rows [][]string
	for _, rec := range records {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if blank(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		rows = append(rows, rec)
	}

	if header == nil {
		return nil, eris.Wrap(ErrFormat, "tabular: file has no header row")
	}
	return &Table{Header: header, Rows: rows}, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}
