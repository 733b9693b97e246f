package tabular

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// isoLayout is how date-formatted spreadsheet cells are handed to the
// record parser.
const isoLayout = "2006-01-02T15:04:05"

// ReadXLSX reads the configured sheet of an xlsx workbook.
func ReadXLSX(data []byte, opts Options) (*Table, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(ErrFormat, "tabular: open xlsx: %v", err)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		records = append(records, rowToStrings(row, f.Date1904))
	}

	return newTable(records)
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Wrapf(ErrFormat, "tabular: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if len(f.Sheets) == 0 {
		return nil, eris.Wrap(ErrFormat, "tabular: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row, date1904 bool) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cellString(cell, date1904)
	}
	return cells
}

// cellString keeps full precision for numbers (display formats may round
// coordinates) and renders date-formatted numbers as ISO timestamps.
func cellString(cell *xlsx.Cell, date1904 bool) string {
	if cell.Type() != xlsx.CellTypeNumeric {
		return cell.String()
	}
	if isDateFormat(cell.GetNumberFormat()) {
		t, err := cell.GetTime(date1904)
		if err == nil {
			return t.Round(time.Second).Format(isoLayout)
		}
	}
	return cell.Value
}

// isDateFormat reports whether an Excel number format renders dates or times.
func isDateFormat(format string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range format {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == '\\':
		default:
			b.WriteRune(r)
		}
	}
	f := strings.ToLower(b.String())
	if f == "general" || f == "@" {
		return false
	}
	return strings.ContainsAny(f, "ydh")
}
