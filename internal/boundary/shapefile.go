package boundary

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// DecodeShapefileZIP reads a zipped shapefile (.shp with its .dbf and .shx).
// Each polygon part becomes one polygon of a MultiPolygon and every DBF
// attribute becomes a string property.
func DecodeShapefileZIP(r io.ReaderAt, size int64) (*Collection, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrapf(ErrFormat, "boundary: open zip: %v", err)
	}

	dir, err := os.MkdirTemp("", "response-map-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: create temp dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := extractZIP(zr, dir); err != nil {
		return nil, err
	}
	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return nil, eris.Wrap(ErrFormat, "boundary: zip has no .shp file")
	}
	return readShapefile(shpPath)
}

func readShapefile(path string) (*Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrFormat, "boundary: open shapefile: %v", err)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	c := &Collection{}
	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			props[name] = strings.TrimSpace(val)
		}

		f := Feature{Properties: props, GeometryType: "MultiPolygon"}
		switch s := shape.(type) {
		case *shp.Polygon:
			if g := polygonToMultiPolygon(s); g != nil {
				f.Geometry = g
			} else {
				c.MalformedGeometries++
			}
		default:
			f.GeometryType = shapeTypeName(shape)
		}
		c.Features = append(c.Features, f)
	}

	if len(c.Features) == 0 {
		return nil, eris.Wrap(ErrSchema, "boundary: shapefile has no features")
	}
	if c.MalformedGeometries > 0 {
		zap.L().Debug("boundary: skipped malformed shapefile polygons",
			zap.String("component", "boundary"),
			zap.Int("malformed", c.MalformedGeometries),
		)
	}
	return c, nil
}

// polygonToMultiPolygon splits the shape's parts into single-ring polygons.
// Holes are not reassembled into their parent part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			continue
		}

		ring := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
		if err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func shapeTypeName(s shp.Shape) string {
	switch s.(type) {
	case *shp.Point:
		return "Point"
	case *shp.PolyLine:
		return "MultiLineString"
	case *shp.MultiPoint:
		return "MultiPoint"
	case *shp.Null, nil:
		return ""
	default:
		return "Unknown"
	}
}

// extractZIP writes the archive's files flat into destDir.
func extractZIP(zr *zip.Reader, destDir string) error {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if strings.HasPrefix(name, "._") {
			continue
		}
		destPath := filepath.Join(destDir, name)

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(ErrFormat, "boundary: open zip entry %s: %v", f.Name, err)
		}

		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "boundary: create %s", destPath)
		}

		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return eris.Wrapf(ErrFormat, "boundary: extract %s: %v", f.Name, err)
		}
		_ = out.Close()
		_ = rc.Close()
	}
	return nil
}

func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "boundary: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("boundary: no %s file found in %s", ext, dir)
}
