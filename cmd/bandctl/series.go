package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	sqlitestore "bollinger-service/internal/store/sqlite"
)

func init() {
	RootCmd.AddCommand(seriesCmd)
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "list the series stored in the SQLite history",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := cmd.Flags().GetString("db")
		if err != nil {
			return err
		}

		r, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return err
		}
		defer r.Close()

		keys, err := r.ListSeries(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tINTERVAL\tSTREAM")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%ds\t%s\n", k.Symbol, k.Interval, k.StreamKey())
		}
		return tw.Flush()
	},
}
