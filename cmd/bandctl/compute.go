package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bollinger-service/internal/candlefile"
	"bollinger-service/internal/indicator"
	"bollinger-service/internal/model"
)

func init() {
	computeCmd.Flags().String("file", "", "candle file (.json or .csv)")
	computeCmd.Flags().Int("length", model.DefaultLength, "moving average length")
	computeCmd.Flags().Float64("mult", model.DefaultMultiplier, "standard deviation multiplier")
	computeCmd.Flags().Int("offset", model.DefaultOffset, "shift in bars, positive moves bands forward")
	computeCmd.Flags().Bool("last", false, "print only the newest defined point")
	computeCmd.MarkFlagRequired("file")
	RootCmd.AddCommand(computeCmd)
}

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "compute bands for a candle file and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("file")
		if err != nil {
			return err
		}
		p, err := paramsFromFlags(cmd)
		if err != nil {
			return err
		}
		last, err := cmd.Flags().GetBool("last")
		if err != nil {
			return err
		}

		candles, err := candlefile.Read(path)
		if err != nil {
			return err
		}
		return writeBands(cmd.OutOrStdout(), candles, p, last)
	},
}

func paramsFromFlags(cmd *cobra.Command) (model.BollingerParams, error) {
	p := model.DefaultBollingerParams()
	var err error
	if p.Length, err = cmd.Flags().GetInt("length"); err != nil {
		return p, err
	}
	if p.StdDevMultiplier, err = cmd.Flags().GetFloat64("mult"); err != nil {
		return p, err
	}
	if p.Offset, err = cmd.Flags().GetInt("offset"); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func writeBands(w io.Writer, candles []model.Candle, p model.BollingerParams, last bool) error {
	points := indicator.Bollinger(candles, p)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if !last {
		return enc.Encode(points)
	}

	point, ok := indicator.LastDefined(points)
	if !ok {
		return fmt.Errorf("no defined band point in %d candles (length %d)", len(candles), p.Length)
	}
	return enc.Encode(point)
}
