package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/registry"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured weather sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.New(sourcesFromConfig(config.GetConfig().Weather.Sources))
		if err != nil {
			return err
		}

		if sourcesJSON {
			return writeJSON(cmd.OutOrStdout(), reg.List(), true)
		}
		return printSources(cmd.OutOrStdout(), reg.List())
	},
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print the sources as JSON")
}

func printSources(out io.Writer, sources []registry.Source) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWEIGHT\tACTIVE")
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%t\n", src.ID, src.Name, src.Weight, src.Active)
	}
	return w.Flush()
}
