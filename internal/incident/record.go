package incident

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/tabular"
	"github.com/sells-group/response-map/internal/textnorm"
)

// Record is one response event built from a table row.
type Record struct {
	Latitude        float64
	Longitude       float64
	Neighborhood    string // as entered
	NeighborhoodKey string // textnorm.Key(Neighborhood)
	Date            time.Time
	RawCategory     string
	Category        Category
	Row             int // 1-based row in the source file, header is row 1
}

// Skip explains why a row did not make it into the clean subset.
type Skip struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// CleanSet is the result of mapping a table onto records.
type CleanSet struct {
	Records   []Record
	InputRows int
	Dropped   int
	Skipped   []Skip
}

// ParseOptions controls cell parsing.
type ParseOptions struct {
	DayFirst bool
}

// DefaultParseOptions reads slash dates day-first.
var DefaultParseOptions = ParseOptions{DayFirst: true}

// Build maps the table's rows onto records. Rows whose latitude, longitude
// or date is missing or unparsable are dropped and listed in Skipped.
func Build(t *tabular.Table, m ColumnMapping, opts ParseOptions) (*CleanSet, error) {
	if t == nil {
		return nil, eris.Wrap(ErrSchema, "incident: no table")
	}
	cols, err := m.resolve(t)
	if err != nil {
		return nil, err
	}

	set := &CleanSet{InputRows: len(t.Rows)}
	for i, row := range t.Rows {
		rowNum := i + 2
		rec, reason := buildRecord(row, cols, opts)
		if reason != "" {
			set.Skipped = append(set.Skipped, Skip{Row: rowNum, Reason: reason})
			continue
		}
		rec.Row = rowNum
		set.Records = append(set.Records, rec)
	}
	set.Dropped = set.InputRows - len(set.Records)

	zap.L().Info("incident: built clean subset",
		zap.String("component", "incident"),
		zap.Int("input_rows", set.InputRows),
		zap.Int("records", len(set.Records)),
		zap.Int("dropped", set.Dropped),
	)
	return set, nil
}

type columns struct {
	lat, lon, neighborhood, date, category int
}

func buildRecord(row []string, c columns, opts ParseOptions) (Record, string) {
	lat, ok := parseCoord(tabular.Cell(row, c.lat))
	if !ok {
		return Record{}, "invalid latitude"
	}
	lon, ok := parseCoord(tabular.Cell(row, c.lon))
	if !ok {
		return Record{}, "invalid longitude"
	}
	date, err := ParseDate(tabular.Cell(row, c.date), opts.DayFirst)
	if err != nil {
		return Record{}, "invalid date"
	}

	neighborhood := tabular.Cell(row, c.neighborhood)
	raw := tabular.Cell(row, c.category)
	return Record{
		Latitude:        lat,
		Longitude:       lon,
		Neighborhood:    neighborhood,
		NeighborhoodKey: textnorm.Key(neighborhood),
		Date:            date,
		RawCategory:     raw,
		Category:        Classify(raw),
	}, ""
}

// parseCoord accepts a finite decimal number. A decimal comma is tolerated
// when it is the only separator.
func parseCoord(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
