package pipeline

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
	"github.com/sells-group/response-map/internal/tabular"
)

const coloniasJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"NOMBRE":"Centro"},
  "geometry":{"type":"Polygon","coordinates":[[[-99.14,19.42],[-99.12,19.42],[-99.12,19.44],[-99.14,19.44]]]}}
]}`

func testRequest(t *testing.T) Request {
	t.Helper()
	c, err := boundary.DecodeGeoJSON([]byte(coloniasJSON))
	require.NoError(t, err)
	return Request{
		Table: &tabular.Table{
			Header: []string{"lat", "lon", "colonia", "fecha", "sm"},
			Rows: [][]string{
				{"19.43", "-99.13", "CENTRO", "01/03/2024", "SM"},
				{"19.43", "-99.13", "Centro", "10/03/2024", "pc"},
				{"19.43", "-99.13", "Centro", "20/03/2024", "sm"},
				{"x", "-99.13", "Centro", "20/03/2024", "sm"},
			},
		},
		Boundaries: c,
		Mapping: incident.ColumnMapping{
			Latitude: "lat", Longitude: "lon", Neighborhood: "colonia", Date: "fecha", Category: "sm", NameField: "NOMBRE",
		},
		Parse:   incident.DefaultParseOptions,
		Options: mapview.Options{Zoom: 13, ShowLegend: true},
	}
}

func TestRun_FullSpan(t *testing.T) {
	res, err := Run(testRequest(t))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Clean.InputRows)
	assert.Equal(t, 1, res.Clean.Dropped)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.Span.Start)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), res.Span.End)
	assert.Equal(t, res.Span, res.Range)
	assert.Equal(t, incident.Counts{Total: 3, CivilProtection: 1, MedicalServices: 2}, res.Counts)
	require.False(t, res.Empty())

	labels, ok := res.Map.Layer(mapview.LayerNames)
	require.True(t, ok)
	require.Len(t, labels.Labels, 1)
	assert.Equal(t, "Centro", labels.Labels[0].Text)
}

func TestRun_DateRange(t *testing.T) {
	req := testRequest(t)
	req.Range = &incident.DateRange{
		Start: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
	}
	res, err := Run(req)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.Counts.MedicalServices)
}

func TestRun_EmptyRange(t *testing.T) {
	req := testRequest(t)
	req.Range = &incident.DateRange{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	res, err := Run(req)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Counts.Total)
}

func TestRun_NoCleanRecords(t *testing.T) {
	req := testRequest(t)
	req.Table.Rows = [][]string{{"x", "y", "", "", ""}}
	res, err := Run(req)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 1, res.Clean.Dropped)
}

func TestRun_SchemaErrors(t *testing.T) {
	req := testRequest(t)
	req.Mapping.Date = "when"
	_, err := Run(req)
	assert.True(t, eris.Is(err, incident.ErrSchema))

	req = testRequest(t)
	req.Mapping.NameField = "name"
	_, err = Run(req)
	assert.True(t, eris.Is(err, boundary.ErrSchema))
}

func TestRun_MarkersJoinBoundaryNames(t *testing.T) {
	req := testRequest(t)
	req.Boundaries.Features[0].Properties["NOMBRE"] = "Centro Histórico"
	req.Table.Rows = [][]string{
		{"19.43", "-99.13", "CENTRO HISTORICO", "01/03/2024", "pc"},
	}

	res, err := Run(req)
	require.NoError(t, err)

	points, ok := res.Map.Layer(mapview.LayerPointsCivil)
	require.True(t, ok)
	require.Len(t, points.Markers, 1)
	assert.Equal(t, "Centro Histórico", points.Markers[0].Neighborhood)
}
