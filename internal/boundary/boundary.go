// Package boundary loads neighborhood polygons, indexes their names and
// places name labels.
package boundary

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Sentinel errors for boundary input problems.
var (
	ErrFormat = eris.New("unreadable boundary file")
	ErrSchema = eris.New("boundary features do not carry the requested name field")
)

// Feature is one polygon feature. Geometry is nil when the source payload
// could not be decoded; GeometryType keeps the declared type either way.
type Feature struct {
	Geometry     geom.T
	GeometryType string
	Properties   map[string]any
}

// Collection is a loaded boundary file.
type Collection struct {
	Features            []Feature
	MalformedGeometries int
}

// Load reads boundaries from r according to the extension of name:
// .geojson/.json for GeoJSON, .zip for a zipped shapefile.
func Load(name string, r io.Reader) (*Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: read upload")
	}

	var c *Collection
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".geojson", ".json":
		c, err = DecodeGeoJSON(data)
	case ".zip":
		c, err = DecodeShapefileZIP(bytes.NewReader(data), int64(len(data)))
	default:
		return nil, eris.Wrapf(ErrFormat, "boundary: unsupported file type %q (want .geojson or .zip)", ext)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("boundary: loaded features",
		zap.String("component", "boundary"),
		zap.String("file", name),
		zap.Int("features", len(c.Features)),
		zap.Int("malformed_geometries", c.MalformedGeometries),
	)
	return c, nil
}

// PropertyKeys lists the property names of the first feature, sorted. These
// are the selectable name fields.
func (c *Collection) PropertyKeys() []string {
	if c == nil || len(c.Features) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Features[0].Properties))
	for k := range c.Features[0].Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequireField checks that at least one feature carries field.
func (c *Collection) RequireField(field string) error {
	if strings.TrimSpace(field) == "" {
		return eris.Wrap(ErrSchema, "boundary: no name field selected")
	}
	if c != nil {
		for _, f := range c.Features {
			if _, ok := f.Properties[field]; ok {
				return nil
			}
		}
	}
	return eris.Wrapf(ErrSchema, "boundary: no feature has property %q", field)
}

// Name returns the display name stored under field. Non-string scalars are
// formatted; nil, missing and blank values report false.
func (f Feature) Name(field string) (string, bool) {
	v, ok := f.Properties[field]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64, int, int64, bool:
		s = fmt.Sprint(t)
	default:
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
