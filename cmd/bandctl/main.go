// Command bandctl computes Bollinger Bands from candle files and manages
// the SQLite candle history the band engine reads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the bandctl entry point.
var RootCmd = &cobra.Command{
	Use:          "bandctl",
	Short:        "Bollinger Bands toolbox",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().String("db", "data/candles.db", "SQLite candle database")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
