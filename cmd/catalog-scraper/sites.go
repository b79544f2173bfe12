package main

import (
	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSitesCommand() *cobra.Command {
	var sitesFile string
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List the configured sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sites, err := config.LoadSites(sitesFile)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Slug", "Name", "Mode", "Entry URL"})
			for _, site := range sites {
				t.AppendRow(table.Row{site.Slug, site.Name, site.Mode, site.EntryURL()})
			}
			t.Render()
			return nil
		},
	}
	addSitesFileFlag(cmd, &sitesFile)
	return cmd
}
