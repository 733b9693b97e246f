// Package pipeline runs the upload-to-map steps shared by the web surface
// and the render command.
package pipeline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
	"github.com/sells-group/response-map/internal/tabular"
)

// Request is one map render: the uploads plus the user's choices. It is
// built per request and never shared.
type Request struct {
	Table      *tabular.Table
	Boundaries *boundary.Collection
	Mapping    incident.ColumnMapping
	Range      *incident.DateRange // nil selects the full span of the data
	Parse      incident.ParseOptions
	Options    mapview.Options
}

// Result carries every intermediate product so callers can report counts.
type Result struct {
	Clean   *incident.CleanSet
	Span    incident.DateRange // full span of the clean records
	Range   incident.DateRange // range actually applied
	Records []incident.Record  // clean records within Range
	Counts  incident.Counts
	Map     *mapview.Map // nil when no record falls within Range
}

// Empty reports whether the selected range holds no records.
func (r *Result) Empty() bool {
	return r.Map == nil
}

// Run maps, filters and renders. Schema problems are errors; an empty date
// range is not, it yields a Result without a Map.
func Run(req Request) (*Result, error) {
	// Phase 1: table -> clean records.
	clean, err := incident.Build(req.Table, req.Mapping, req.Parse)
	if err != nil {
		return nil, err
	}
	if req.Boundaries != nil {
		if err := req.Boundaries.RequireField(req.Mapping.NameField); err != nil {
			return nil, err
		}
	}

	res := &Result{Clean: clean}
	span, ok := incident.Span(clean.Records)
	if !ok {
		zap.L().Info("pipeline: no clean records",
			zap.String("component", "pipeline"),
			zap.Int("input_rows", clean.InputRows),
		)
		return res, nil
	}
	res.Span = span

	// Phase 2: date filter.
	res.Range = span
	if req.Range != nil {
		res.Range = *req.Range
	}
	res.Records = incident.FilterByDate(clean.Records, res.Range)
	res.Counts = incident.Count(res.Records)
	if len(res.Records) == 0 {
		return res, nil
	}

	// Phase 3: render.
	m, err := mapview.Render(mapview.Input{
		Records:    res.Records,
		Boundaries: req.Boundaries,
		NameField:  req.Mapping.NameField,
		Options:    req.Options,
	})
	if err != nil {
		if eris.Is(err, mapview.ErrNoData) {
			return res, nil
		}
		return nil, err
	}
	res.Map = m

	zap.L().Info("pipeline: rendered map",
		zap.String("component", "pipeline"),
		zap.Int("input_rows", clean.InputRows),
		zap.Int("dropped", clean.Dropped),
		zap.Int("in_range", len(res.Records)),
		zap.Int("skipped_markers", len(m.Diagnostics.SkippedMarkers)),
		zap.Int("skipped_labels", len(m.Diagnostics.SkippedLabels)),
	)
	return res, nil
}
