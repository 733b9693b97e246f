// Package mapview renders clean response records and neighborhood
// boundaries into a layered Leaflet map.
package mapview

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/textnorm"
)

// ErrNoData is returned when there is nothing to center the map on.
var ErrNoData = eris.New("no data for the selected range")

// Layer names as shown in the layer control.
const (
	LayerNeighborhoods     = "Neighborhoods"
	LayerNames             = "Neighborhood Names"
	LayerPointsCivil       = "Points: Civil Protection (Blue)"
	LayerPointsMedical     = "Points: Medical Services (Maroon)"
	LayerHeatCivil         = "Heat: Civil Protection"
	LayerHeatMedical       = "Heat: Medical Services"
	neighborhoodTooltipTag = "Neighborhood:"
)

// Category colors.
var Colors = map[incident.Category]string{
	incident.CivilProtection: "#007bff",
	incident.MedicalServices: "#800000",
}

const (
	markerRadius      = 5
	markerFillOpacity = 0.8
	heatRadius        = 15
)

// LayerKind selects how the page draws a layer.
type LayerKind string

// Layer kinds.
const (
	KindBoundaries LayerKind = "boundaries"
	KindLabels     LayerKind = "labels"
	KindMarkers    LayerKind = "markers"
	KindHeat       LayerKind = "heat"
)

// Options are the user-facing render switches.
type Options struct {
	ShowLegend      bool
	TileURL         string // empty renders without a base layer
	TileAttribution string
	Zoom            int
}

// Input is everything one render needs. Render does not modify it.
type Input struct {
	Records    []incident.Record
	Boundaries *boundary.Collection
	NameField  string
	Options    Options
}

// Map is the rendered artifact. It is plain data; WriteHTML turns it into a
// page.
type Map struct {
	Center      boundary.Point  `json:"center"`
	Zoom        int             `json:"zoom"`
	Tiles       TileLayer       `json:"tiles"`
	Layers      []Layer         `json:"layers"`
	Legend      *Legend         `json:"legend,omitempty"`
	Stats       incident.Counts `json:"-"`
	Diagnostics Diagnostics     `json:"-"`
}

// TileLayer is the base map.
type TileLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
}

// Layer is one toggleable overlay. Only the payload matching Kind is set.
type Layer struct {
	Name    string    `json:"name"`
	Kind    LayerKind `json:"kind"`
	Visible bool      `json:"visible"`
	Color   string    `json:"color,omitempty"`

	GeoJSON      json.RawMessage `json:"geojson,omitempty"`
	Style        *PolygonStyle   `json:"style,omitempty"`
	TooltipLabel string          `json:"tooltip_label,omitempty"`

	Labels []Label `json:"labels,omitempty"`

	Markers     []Marker `json:"markers,omitempty"`
	Radius      float64  `json:"radius,omitempty"`
	FillOpacity float64  `json:"fill_opacity,omitempty"`

	Heat       [][2]float64 `json:"heat,omitempty"`
	HeatRadius float64      `json:"heat_radius,omitempty"`
}

// PolygonStyle styles the boundary overlay.
type PolygonStyle struct {
	FillColor   string  `json:"fill_color"`
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	FillOpacity float64 `json:"fill_opacity"`
}

// Label is a neighborhood name placed at its centroid.
type Label struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Text string  `json:"text"`
}

// Marker is one response record.
type Marker struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Date         string  `json:"date"`
	Neighborhood string  `json:"neighborhood"`
	AttendedBy   string  `json:"attended_by"`
	Tooltip      string  `json:"tooltip"`
}

// Legend explains the marker colors.
type Legend struct {
	Title   string        `json:"title"`
	Entries []LegendEntry `json:"entries"`
}

// LegendEntry is one legend row.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Diagnostics lists items that could not be drawn.
type Diagnostics struct {
	SkippedLabels       []SkippedLabel
	SkippedMarkers      []SkippedMarker
	MalformedGeometries int
}

// SkippedLabel is a feature that got no name label.
type SkippedLabel struct {
	Feature int
	Reason  string
}

// SkippedMarker is a record that was not plotted.
type SkippedMarker struct {
	Row    int
	Reason string
}

// Layer returns the layer called name.
func (m *Map) Layer(name string) (*Layer, bool) {
	for i := range m.Layers {
		if m.Layers[i].Name == name {
			return &m.Layers[i], true
		}
	}
	return nil, false
}

// Render builds the map for in.
func Render(in Input) (*Map, error) {
	if len(in.Records) == 0 {
		return nil, eris.Wrap(ErrNoData, "mapview: render")
	}

	m := &Map{
		Zoom:  in.Options.Zoom,
		Tiles: TileLayer{URL: in.Options.TileURL, Attribution: in.Options.TileAttribution},
		Stats: incident.Count(in.Records),
	}

	plottable := make([]incident.Record, 0, len(in.Records))
	var sumLat, sumLng float64
	for _, rec := range in.Records {
		if reason := coordProblem(rec.Latitude, rec.Longitude); reason != "" {
			m.Diagnostics.SkippedMarkers = append(m.Diagnostics.SkippedMarkers, SkippedMarker{Row: rec.Row, Reason: reason})
			continue
		}
		sumLat += rec.Latitude
		sumLng += rec.Longitude
		plottable = append(plottable, rec)
	}
	if len(plottable) == 0 {
		return nil, eris.Wrap(ErrNoData, "mapview: no record has valid coordinates")
	}
	m.Center = boundary.Point{Lat: sumLat / float64(len(plottable)), Lng: sumLng / float64(len(plottable))}
	points := incident.ByCategory(plottable)

	var names boundary.NameIndex
	if in.Boundaries != nil {
		idx, err := m.addBoundaryLayers(in.Boundaries, in.NameField)
		if err != nil {
			return nil, err
		}
		names = idx
	}

	m.Layers = append(m.Layers,
		markerLayer(LayerPointsCivil, incident.CivilProtection, points[incident.CivilProtection], names),
		markerLayer(LayerPointsMedical, incident.MedicalServices, points[incident.MedicalServices], names),
	)
	if pts := points[incident.CivilProtection]; len(pts) > 0 {
		m.Layers = append(m.Layers, heatLayer(LayerHeatCivil, true, pts))
	}
	if pts := points[incident.MedicalServices]; len(pts) > 0 {
		m.Layers = append(m.Layers, heatLayer(LayerHeatMedical, false, pts))
	}

	if in.Options.ShowLegend {
		m.Legend = &Legend{Title: "Attended by"}
		for _, c := range incident.Categories {
			m.Legend.Entries = append(m.Legend.Entries, LegendEntry{Label: c.String(), Color: Colors[c]})
		}
	}

	zap.L().Debug("mapview: rendered map",
		zap.String("component", "mapview"),
		zap.Int("records", len(in.Records)),
		zap.Int("skipped_markers", len(m.Diagnostics.SkippedMarkers)),
		zap.Int("skipped_labels", len(m.Diagnostics.SkippedLabels)),
	)
	return m, nil
}

// addBoundaryLayers adds the polygon and label layers and returns the name
// index so markers can share the boundary file's spelling.
func (m *Map) addBoundaryLayers(c *boundary.Collection, field string) (boundary.NameIndex, error) {
	idx := boundary.BuildNameIndex(c.Features, field)

	gj, err := c.FeatureCollectionJSON(field, idx)
	if err != nil {
		return nil, eris.Wrap(err, "mapview: boundary overlay")
	}
	m.Layers = append(m.Layers, Layer{
		Name:    LayerNeighborhoods,
		Kind:    KindBoundaries,
		Visible: true,
		GeoJSON: gj,
		Style: &PolygonStyle{
			FillColor:   "#ffffff",
			Color:       "#808080",
			Weight:      1,
			FillOpacity: 0.1,
		},
		TooltipLabel: neighborhoodTooltipTag,
	})

	labels := Layer{Name: LayerNames, Kind: KindLabels, Visible: true, Labels: []Label{}}
	for i, f := range c.Features {
		pt, ok := boundary.Centroid(f.Geometry)
		if !ok {
			m.Diagnostics.SkippedLabels = append(m.Diagnostics.SkippedLabels, SkippedLabel{Feature: i, Reason: centroidProblem(f)})
			continue
		}
		key, ok := f.NameKey(field)
		if !ok {
			m.Diagnostics.SkippedLabels = append(m.Diagnostics.SkippedLabels, SkippedLabel{Feature: i, Reason: "no name"})
			continue
		}
		text, _ := idx.DisplayName(key)
		labels.Labels = append(labels.Labels, Label{Lat: pt.Lat, Lng: pt.Lng, Text: text})
	}
	m.Layers = append(m.Layers, labels)
	m.Diagnostics.MalformedGeometries = c.MalformedGeometries
	return idx, nil
}

func markerLayer(name string, c incident.Category, recs []incident.Record, names boundary.NameIndex) Layer {
	l := Layer{
		Name:        name,
		Kind:        KindMarkers,
		Visible:     true,
		Color:       Colors[c],
		Markers:     make([]Marker, 0, len(recs)),
		Radius:      markerRadius,
		FillOpacity: markerFillOpacity,
	}
	for _, rec := range recs {
		l.Markers = append(l.Markers, Marker{
			Lat:          rec.Latitude,
			Lng:          rec.Longitude,
			Date:         rec.Date.Format("2006-01-02"),
			Neighborhood: neighborhoodName(rec, names),
			AttendedBy:   c.String(),
			Tooltip:      c.String(),
		})
	}
	return l
}

// neighborhoodName prefers the boundary file's spelling of the record's
// neighborhood and falls back to the record's own text.
func neighborhoodName(rec incident.Record, names boundary.NameIndex) string {
	if name, ok := names.DisplayName(rec.NeighborhoodKey); ok {
		return name
	}
	return textnorm.Title(rec.Neighborhood)
}

func heatLayer(name string, visible bool, recs []incident.Record) Layer {
	l := Layer{
		Name:       name,
		Kind:       KindHeat,
		Visible:    visible,
		Heat:       make([][2]float64, 0, len(recs)),
		HeatRadius: heatRadius,
	}
	for _, rec := range recs {
		l.Heat = append(l.Heat, [2]float64{rec.Latitude, rec.Longitude})
	}
	return l
}

func coordProblem(lat, lng float64) string {
	switch {
	case math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0):
		return "non-finite coordinates"
	case lat < -90 || lat > 90:
		return fmt.Sprintf("latitude %g out of range", lat)
	case lng < -180 || lng > 180:
		return fmt.Sprintf("longitude %g out of range", lng)
	}
	return ""
}

func centroidProblem(f boundary.Feature) string {
	switch {
	case f.Geometry == nil && f.GeometryType != "":
		return "malformed " + f.GeometryType + " geometry"
	case f.Geometry == nil:
		return "no geometry"
	case f.GeometryType != "Polygon" && f.GeometryType != "MultiPolygon":
		return "unsupported geometry " + f.GeometryType
	default:
		return "empty ring"
	}
}
