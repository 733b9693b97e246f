package boundary

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// rawFeature defers geometry decoding so one bad feature does not fail the
// whole collection.
type rawFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// DecodeGeoJSON decodes a FeatureCollection (or a single Feature). Features
// whose geometry cannot be decoded are kept with a nil Geometry and counted
// in MalformedGeometries.
func DecodeGeoJSON(data []byte) (*Collection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(ErrFormat, "boundary: invalid GeoJSON: %v", err)
	}

	var raws []rawFeature
	switch head.Type {
	case "FeatureCollection":
		var rc rawCollection
		if err := json.Unmarshal(data, &rc); err != nil {
			return nil, eris.Wrapf(ErrFormat, "boundary: invalid FeatureCollection: %v", err)
		}
		raws = rc.Features
	case "Feature":
		var rf rawFeature
		if err := json.Unmarshal(data, &rf); err != nil {
			return nil, eris.Wrapf(ErrFormat, "boundary: invalid Feature: %v", err)
		}
		raws = []rawFeature{rf}
	default:
		return nil, eris.Wrapf(ErrFormat, "boundary: GeoJSON type %q is not a FeatureCollection", head.Type)
	}

	if len(raws) == 0 {
		return nil, eris.Wrap(ErrSchema, "boundary: collection has no features")
	}

	c := &Collection{Features: make([]Feature, 0, len(raws))}
	for i, rf := range raws {
		f := Feature{Properties: rf.Properties}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}

		if len(rf.Geometry) > 0 && !bytes.Equal(bytes.TrimSpace(rf.Geometry), []byte("null")) {
			var gh struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(rf.Geometry, &gh)
			f.GeometryType = gh.Type

			var g geom.T
			if err := geojson.Unmarshal(rf.Geometry, &g); err != nil {
				c.MalformedGeometries++
				zap.L().Debug("boundary: malformed geometry",
					zap.String("component", "boundary"),
					zap.Int("feature", i),
					zap.String("type", gh.Type),
					zap.Error(err),
				)
			} else {
				f.Geometry = g
			}
		}
		c.Features = append(c.Features, f)
	}
	return c, nil
}

// FeatureCollectionJSON encodes the drawable features for the boundary
// overlay. Each feature gets a display_name property holding the
// title-cased name from idx; the source properties are copied, not changed.
func (c *Collection) FeatureCollectionJSON(field string, idx NameIndex) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	if c != nil {
		for _, f := range c.Features {
			if f.Geometry == nil {
				continue
			}
			props := make(map[string]any, len(f.Properties)+1)
			for k, v := range f.Properties {
				props[k] = v
			}
			if key, ok := f.NameKey(field); ok {
				if name, ok := idx.DisplayName(key); ok {
					props["display_name"] = name
				}
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				Geometry:   f.Geometry,
				Properties: props,
			})
		}
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode feature collection")
	}
	return data, nil
}
