package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/response-map/internal/boundary"
	"github.com/sells-group/response-map/internal/incident"
	"github.com/sells-group/response-map/internal/tabular"
)

var inspectData, inspectBoundaries string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show columns, boundary properties and a suggested column mapping",
	Long:  "Reads both files and prints what the render command would see. The suggested mapping is valid YAML for render --mapping.",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := readTable(inspectData, cfg.Data.SheetName)
		if err != nil {
			return err
		}
		coll, err := readBoundaries(inspectBoundaries)
		if err != nil {
			return err
		}
		return formatInspect(cmd.OutOrStdout(), table, coll)
	},
}

// formatInspect prints a summary of both inputs followed by the suggested
// mapping as YAML.
func formatInspect(out io.Writer, table *tabular.Table, coll *boundary.Collection) error {
	keys := coll.PropertyKeys()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", len(table.Rows))
	_, _ = fmt.Fprintf(w, "Columns:\t%s\n", strings.Join(table.Header, ", "))
	_, _ = fmt.Fprintf(w, "Features:\t%d\n", len(coll.Features))
	if coll.MalformedGeometries > 0 {
		_, _ = fmt.Fprintf(w, "Malformed geometries:\t%d\n", coll.MalformedGeometries)
	}
	_, _ = fmt.Fprintf(w, "Properties:\t%s\n", strings.Join(keys, ", "))
	_ = w.Flush()

	m := incident.SuggestMapping(table.Header)
	m.NameField = incident.SuggestNameField(keys)
	if err := m.Validate(); err != nil {
		_, _ = fmt.Fprintln(out, "\n# incomplete, fill in the empty roles")
	} else {
		_, _ = fmt.Fprintln(out, "\n# suggested mapping")
	}
	return incident.WriteMapping(out, m)
}

func init() {
	inspectCmd.Flags().StringVar(&inspectData, "data", "", "response records file (.xlsx or .csv)")
	inspectCmd.Flags().StringVar(&inspectBoundaries, "boundaries", "", "neighborhood boundaries (.geojson or zipped shapefile)")
	_ = inspectCmd.MarkFlagRequired("data")
	_ = inspectCmd.MarkFlagRequired("boundaries")
	rootCmd.AddCommand(inspectCmd)
}
