package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/response-map/internal/config"
	"github.com/sells-group/response-map/internal/export"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/pipeline"
)

// renderFlags holds the render command's inputs.
type renderFlags struct {
	data, boundaries string
	mappingPath      string
	mapping          incident.ColumnMapping
	from, to         string
	noLegend         bool
	out              string
	png              string
	records          string
}

var renderOpts renderFlags

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a map file from a records table and a boundaries file",
	Example: `  response-map render --data atenciones.xlsx --boundaries colonias.geojson --out mapa.html
  response-map render --data atenciones.csv --boundaries colonias.zip --mapping preset.yaml \
    --from 2024-03-01 --to 2024-03-31 --out marzo.html --png marzo.png --records marzo.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(cmd.Context(), cmd.OutOrStdout(), cfg, renderOpts)
	},
}

func runRender(ctx context.Context, out io.Writer, c *config.Config, f renderFlags) error {
	log := zap.L().With(zap.String("component", "render"))

	table, err := readTable(f.data, c.Data.SheetName)
	if err != nil {
		return err
	}
	coll, err := readBoundaries(f.boundaries)
	if err != nil {
		return err
	}

	// flags > preset file > suggestions
	mapping := f.mapping
	if f.mappingPath != "" {
		preset, err := incident.LoadMapping(f.mappingPath)
		if err != nil {
			return err
		}
		mapping = mapping.Merge(preset)
	}
	mapping = mapping.Merge(incident.SuggestMapping(table.Header))
	if mapping.NameField == "" {
		mapping.NameField = incident.SuggestNameField(coll.PropertyKeys())
	}

	dateRange, err := flagRange(f.from, f.to)
	if err != nil {
		return err
	}

	opts := mapOptions(c)
	if f.noLegend {
		opts.ShowLegend = false
	}

	res, err := pipeline.Run(pipeline.Request{
		Table:      table,
		Boundaries: coll,
		Mapping:    mapping,
		Range:      dateRange,
		Parse:      parseOptions(c),
		Options:    opts,
	})
	if err != nil {
		return err
	}

	formatRenderSummary(out, res)
	if res.Empty() {
		return eris.New("render: no records in the selected date range")
	}

	page, err := export.HTML(res.Map)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.out, page, 0o644); err != nil {
		return eris.Wrapf(err, "render: write %s", f.out)
	}
	log.Info("wrote map", zap.String("path", f.out), zap.Int("bytes", len(page)))

	if f.records != "" {
		data, err := export.RecordsXLSX(res.Records)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.records, data, 0o644); err != nil {
			return eris.Wrapf(err, "render: write %s", f.records)
		}
		log.Info("wrote records", zap.String("path", f.records), zap.Int("records", len(res.Records)))
	}

	if f.png != "" {
		timeout := time.Duration(c.Export.TimeoutSeconds) * time.Second
		raster := export.NewChromium(export.ChromiumOptions{
			BinPath: c.Export.ChromiumPath,
			Width:   c.Export.Width,
			Height:  c.Export.Height,
			Settle:  time.Duration(c.Export.SettleSeconds) * time.Second,
			Timeout: timeout,
		})
		img, err := raster.Rasterize(ctx, page)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.png, img, 0o644); err != nil {
			return eris.Wrapf(err, "render: write %s", f.png)
		}
		log.Info("wrote snapshot", zap.String("path", f.png), zap.Int("bytes", len(img)))
	}

	return nil
}

// flagRange parses --from/--to. Either bound may be left open.
func flagRange(from, to string) (*incident.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := incident.DateRange{
		Start: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if from != "" {
		d, err := incident.ParseDay(from)
		if err != nil {
			return nil, eris.Wrapf(err, "render: --from %q", from)
		}
		r.Start = d
	}
	if to != "" {
		d, err := incident.ParseDay(to)
		if err != nil {
			return nil, eris.Wrapf(err, "render: --to %q", to)
		}
		r.End = d
	}
	return &r, nil
}

// formatRenderSummary prints counts and everything that was left off the map.
func formatRenderSummary(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows read:\t%d\n", res.Clean.InputRows)
	_, _ = fmt.Fprintf(w, "Rows dropped:\t%d\n", res.Clean.Dropped)
	if !res.Range.Start.IsZero() {
		_, _ = fmt.Fprintf(w, "Date range:\t%s to %s\n",
			res.Range.Start.Format("2006-01-02"), res.Range.End.Format("2006-01-02"))
	}
	_, _ = fmt.Fprintf(w, "Total responses:\t%d\n", res.Counts.Total)
	_, _ = fmt.Fprintf(w, "  %s:\t%d\n", incident.CivilProtection, res.Counts.CivilProtection)
	_, _ = fmt.Fprintf(w, "  %s:\t%d\n", incident.MedicalServices, res.Counts.MedicalServices)
	if res.Map != nil {
		d := res.Map.Diagnostics
		_, _ = fmt.Fprintf(w, "Markers skipped:\t%d\n", len(d.SkippedMarkers))
		_, _ = fmt.Fprintf(w, "Labels skipped:\t%d\n", len(d.SkippedLabels))
		if d.MalformedGeometries > 0 {
			_, _ = fmt.Fprintf(w, "Malformed geometries:\t%d\n", d.MalformedGeometries)
		}
	}
	_ = w.Flush()

	for _, s := range res.Clean.Skipped {
		_, _ = fmt.Fprintf(out, "row %d: %s\n", s.Row, s.Reason)
	}
	if res.Map != nil {
		for _, s := range res.Map.Diagnostics.SkippedMarkers {
			_, _ = fmt.Fprintf(out, "row %d not plotted: %s\n", s.Row, s.Reason)
		}
		for _, s := range res.Map.Diagnostics.SkippedLabels {
			_, _ = fmt.Fprintf(out, "feature %d has no label: %s\n", s.Feature, s.Reason)
		}
	}
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderOpts.data, "data", "", "response records file (.xlsx or .csv)")
	f.StringVar(&renderOpts.boundaries, "boundaries", "", "neighborhood boundaries (.geojson or zipped shapefile)")
	f.StringVar(&renderOpts.mappingPath, "mapping", "", "YAML column mapping preset")
	f.StringVar(&renderOpts.mapping.Latitude, "lat", "", "latitude column")
	f.StringVar(&renderOpts.mapping.Longitude, "lon", "", "longitude column")
	f.StringVar(&renderOpts.mapping.Neighborhood, "neighborhood", "", "neighborhood column")
	f.StringVar(&renderOpts.mapping.Date, "date", "", "date column")
	f.StringVar(&renderOpts.mapping.Category, "category", "", "response source indicator column (SM = Medical Services)")
	f.StringVar(&renderOpts.mapping.NameField, "name-field", "", "boundary property holding the neighborhood name")
	f.StringVar(&renderOpts.from, "from", "", "first day to include (YYYY-MM-DD)")
	f.StringVar(&renderOpts.to, "to", "", "last day to include (YYYY-MM-DD)")
	f.BoolVar(&renderOpts.noLegend, "no-legend", false, "omit the legend")
	f.StringVar(&renderOpts.out, "out", "map.html", "output HTML file")
	f.StringVar(&renderOpts.png, "png", "", "also write a PNG snapshot (needs Chromium)")
	f.StringVar(&renderOpts.records, "records", "", "also write the filtered records as XLSX")
	_ = renderCmd.MarkFlagRequired("data")
	_ = renderCmd.MarkFlagRequired("boundaries")
	rootCmd.AddCommand(renderCmd)
}
