// Package export produces downloadable copies of a rendered map: the
// standalone page, a PNG snapshot and the filtered records as a workbook.
package export

import (
	"bytes"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
)

// HTML returns the map as a standalone page.
func HTML(m *mapview.Map) ([]byte, error) {
	var buf bytes.Buffer
	if err := mapview.WriteHTML(&buf, m); err != nil {
		return nil, eris.Wrap(err, "export: html")
	}
	return buf.Bytes(), nil
}

// RecordsSheet is the worksheet name used by RecordsXLSX.
const RecordsSheet = "Records"

var recordColumns = []string{"Date", "Latitude", "Longitude", "Neighborhood", "Category", "Indicator"}

// RecordsXLSX writes records to a single-sheet workbook.
func RecordsXLSX(records []incident.Record) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(RecordsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range recordColumns {
		header.AddCell().SetString(name)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetDateTime(rec.Date)
		row.AddCell().SetFloat(rec.Latitude)
		row.AddCell().SetFloat(rec.Longitude)
		row.AddCell().SetString(rec.Neighborhood)
		row.AddCell().SetString(rec.Category.String())
		row.AddCell().SetString(rec.RawCategory)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}
