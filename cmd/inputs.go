package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/config"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/mapview"
	"github.com/sells-group/response-map/internal/tabular"
)

// readTable opens a records file from disk.
func readTable(path, sheet string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open data file %s", path)
	}
	defer f.Close() //nolint:errcheck

	return tabular.Read(filepath.Base(path), f, tabular.Options{SheetName: sheet})
}

// readBoundaries opens a GeoJSON or zipped shapefile from disk.
func readBoundaries(path string) (*boundary.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open boundaries file %s", path)
	}
	defer f.Close() //nolint:errcheck

	return boundary.Load(filepath.Base(path), f)
}

func parseOptions(c *config.Config) incident.ParseOptions {
	return incident.ParseOptions{DayFirst: c.Data.DayFirst}
}

func mapOptions(c *config.Config) mapview.Options {
	return mapview.Options{
		ShowLegend:      c.Map.ShowLegend,
		TileURL:         c.Map.TileURL,
		TileAttribution: c.Map.TileAttribution,
		Zoom:            c.Map.Zoom,
	}
}
