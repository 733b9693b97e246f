package mapview

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
)

const colonias = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NOMBRE": "CENTRO"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2]]]}},
    {"type": "Feature", "properties": {"NOMBRE": "Sin Forma"},
     "geometry": {"type": "Polygon", "coordinates": "bad"}},
    {"type": "Feature", "properties": {"OTRO": "x"},
     "geometry": {"type": "Polygon", "coordinates": [[[5,5],[6,5],[6,6]]]}},
    {"type": "Feature", "properties": {"NOMBRE": "Punto"},
     "geometry": {"type": "Point", "coordinates": [1,1]}}
  ]
}`

func loadColonias(t *testing.T) *boundary.Collection {
	t.Helper()
	c, err := boundary.DecodeGeoJSON([]byte(colonias))
	require.NoError(t, err)
	return c
}

func rec(row int, lat, lng float64, cat incident.Category) incident.Record {
	return incident.Record{
		Latitude:     lat,
		Longitude:    lng,
		Neighborhood: "centro histórico",
		Date:         time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		Category:     cat,
		Row:          row,
	}
}

func defaultInput(t *testing.T, records ...incident.Record) Input {
	return Input{
		Records:    records,
		Boundaries: loadColonias(t),
		NameField:  "NOMBRE",
		Options: Options{
			ShowLegend:      true,
			TileURL:         "https://tiles.example/{z}/{x}/{y}.png",
			TileAttribution: "tiles",
			Zoom:            13,
		},
	}
}

func TestRender_LayersAndDefaults(t *testing.T) {
	in := defaultInput(t,
		rec(2, 1, 1, incident.CivilProtection),
		rec(3, 3, 1, incident.MedicalServices),
		rec(4, 2, 4, incident.CivilProtection),
	)
	m, err := Render(in)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.Center.Lat, 1e-12)
	assert.InDelta(t, 2.0, m.Center.Lng, 1e-12)
	assert.Equal(t, 13, m.Zoom)
	assert.Equal(t, incident.Counts{Total: 3, CivilProtection: 2, MedicalServices: 1}, m.Stats)

	var names []string
	visible := map[string]bool{}
	for _, l := range m.Layers {
		names = append(names, l.Name)
		visible[l.Name] = l.Visible
	}
	assert.Equal(t, []string{
		LayerNeighborhoods, LayerNames, LayerPointsCivil, LayerPointsMedical, LayerHeatCivil, LayerHeatMedical,
	}, names)
	assert.Equal(t, map[string]bool{
		LayerNeighborhoods: true,
		LayerNames:         true,
		LayerPointsCivil:   true,
		LayerPointsMedical: true,
		LayerHeatCivil:     true,
		LayerHeatMedical:   false,
	}, visible)

	civil, ok := m.Layer(LayerPointsCivil)
	require.True(t, ok)
	assert.Equal(t, "#007bff", civil.Color)
	assert.InDelta(t, 5.0, civil.Radius, 0)
	assert.InDelta(t, 0.8, civil.FillOpacity, 1e-12)
	require.Len(t, civil.Markers, 2)
	assert.Equal(t, Marker{
		Lat: 1, Lng: 1,
		Date:         "2024-03-05",
		Neighborhood: "Centro Histórico",
		AttendedBy:   "Civil Protection",
		Tooltip:      "Civil Protection",
	}, civil.Markers[0])

	medical, _ := m.Layer(LayerPointsMedical)
	assert.Equal(t, "#800000", medical.Color)

	heat, _ := m.Layer(LayerHeatCivil)
	assert.Equal(t, [][2]float64{{1, 1}, {2, 4}}, heat.Heat)
	assert.InDelta(t, 15.0, heat.HeatRadius, 0)

	hood, _ := m.Layer(LayerNeighborhoods)
	assert.Equal(t, &PolygonStyle{FillColor: "#ffffff", Color: "#808080", Weight: 1, FillOpacity: 0.1}, hood.Style)
	assert.Equal(t, "Neighborhood:", hood.TooltipLabel)

	require.NotNil(t, m.Legend)
	assert.Len(t, m.Legend.Entries, 2)
}

func TestRender_Labels(t *testing.T) {
	m, err := Render(defaultInput(t, rec(2, 1, 1, incident.CivilProtection)))
	require.NoError(t, err)

	labels, ok := m.Layer(LayerNames)
	require.True(t, ok)
	require.Len(t, labels.Labels, 1)
	assert.Equal(t, Label{Lat: 1, Lng: 1, Text: "Centro"}, labels.Labels[0])

	require.Len(t, m.Diagnostics.SkippedLabels, 3)
	assert.Equal(t, SkippedLabel{Feature: 1, Reason: "malformed Polygon geometry"}, m.Diagnostics.SkippedLabels[0])
	assert.Equal(t, SkippedLabel{Feature: 2, Reason: "no name"}, m.Diagnostics.SkippedLabels[1])
	assert.Equal(t, SkippedLabel{Feature: 3, Reason: "unsupported geometry Point"}, m.Diagnostics.SkippedLabels[2])
	assert.Equal(t, 1, m.Diagnostics.MalformedGeometries)
}

func TestRender_OmitsEmptyHeatAndLegend(t *testing.T) {
	in := defaultInput(t, rec(2, 1, 1, incident.CivilProtection))
	in.Options.ShowLegend = false
	m, err := Render(in)
	require.NoError(t, err)

	_, ok := m.Layer(LayerHeatMedical)
	assert.False(t, ok)
	_, ok = m.Layer(LayerHeatCivil)
	assert.True(t, ok)

	medical, ok := m.Layer(LayerPointsMedical)
	require.True(t, ok)
	assert.Empty(t, medical.Markers)
	assert.Nil(t, m.Legend)
}

func TestRender_SkipsBadCoordinates(t *testing.T) {
	in := defaultInput(t,
		rec(2, 1, 1, incident.CivilProtection),
		rec(3, 95, 1, incident.CivilProtection),
		rec(4, 1, -200, incident.MedicalServices),
		rec(5, math.NaN(), 1, incident.MedicalServices),
		rec(6, 3, 3, incident.MedicalServices),
	)
	m, err := Render(in)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, m.Center.Lat, 1e-12)
	require.Len(t, m.Diagnostics.SkippedMarkers, 3)
	assert.Equal(t, 3, m.Diagnostics.SkippedMarkers[0].Row)
	assert.Contains(t, m.Diagnostics.SkippedMarkers[0].Reason, "latitude")
	assert.Contains(t, m.Diagnostics.SkippedMarkers[1].Reason, "longitude")
	assert.Equal(t, "non-finite coordinates", m.Diagnostics.SkippedMarkers[2].Reason)

	medical, _ := m.Layer(LayerPointsMedical)
	assert.Len(t, medical.Markers, 1)
}

func TestRender_PopupUsesBoundarySpelling(t *testing.T) {
	c, err := boundary.DecodeGeoJSON([]byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"NOMBRE":"Juárez"},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2]]]}}]}`))
	require.NoError(t, err)

	joined := rec(2, 1, 1, incident.CivilProtection)
	joined.Neighborhood = "JUAREZ"
	joined.NeighborhoodKey = "juarez"
	unmatched := rec(3, 1, 1, incident.CivilProtection)
	unmatched.Neighborhood = "LOMAS ALTAS"
	unmatched.NeighborhoodKey = "lomas altas"

	in := defaultInput(t, joined, unmatched)
	in.Boundaries = c
	m, err := Render(in)
	require.NoError(t, err)

	points, ok := m.Layer(LayerPointsCivil)
	require.True(t, ok)
	require.Len(t, points.Markers, 2)
	assert.Equal(t, "Juárez", points.Markers[0].Neighborhood)
	assert.Equal(t, "Lomas Altas", points.Markers[1].Neighborhood)

	labels, _ := m.Layer(LayerNames)
	require.Len(t, labels.Labels, 1)
	assert.Equal(t, points.Markers[0].Neighborhood, labels.Labels[0].Text)
}

func TestRender_NoData(t *testing.T) {
	_, err := Render(defaultInput(t))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoData))

	_, err = Render(defaultInput(t, rec(2, 100, 0, incident.CivilProtection)))
	assert.True(t, eris.Is(err, ErrNoData))
}

func TestRender_WithoutBoundaries(t *testing.T) {
	in := defaultInput(t, rec(2, 1, 1, incident.CivilProtection))
	in.Boundaries = nil
	m, err := Render(in)
	require.NoError(t, err)
	_, ok := m.Layer(LayerNeighborhoods)
	assert.False(t, ok)
}

func TestRender_DoesNotMutateInput(t *testing.T) {
	in := defaultInput(t, rec(2, 1, 1, incident.MedicalServices))
	before := in.Boundaries.Features[0].Properties["NOMBRE"]
	_, err := Render(in)
	require.NoError(t, err)
	assert.Equal(t, before, in.Boundaries.Features[0].Properties["NOMBRE"])
	assert.Len(t, in.Records, 1)
}

func TestWriteHTML(t *testing.T) {
	r := rec(2, 1, 1, incident.CivilProtection)
	r.Neighborhood = "</script><script>alert(1)</script>"
	m, err := Render(defaultInput(t, r))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, m))
	page := buf.String()

	assert.Contains(t, page, "leaflet@1.9.4/dist/leaflet.js")
	assert.Contains(t, page, "leaflet-heat.js")
	assert.Contains(t, page, "Points: Civil Protection (Blue)")
	assert.Contains(t, page, `collapsed: false`)
	assert.NotContains(t, page, "<script>alert(1)")
	assert.Equal(t, 3, strings.Count(page, "</script>"))

	// the embedded data round-trips
	match := regexp.MustCompile(`var data = (\{.*\});`).FindStringSubmatch(page)
	require.Len(t, match, 2)
	var decoded Map
	require.NoError(t, json.Unmarshal([]byte(match[1]), &decoded))
	assert.Equal(t, m.Center, decoded.Center)
	assert.Len(t, decoded.Layers, len(m.Layers))
}

func TestWriteHTML_NilMap(t *testing.T) {
	assert.Error(t, WriteHTML(&bytes.Buffer{}, nil))
}
