// Package candlefile loads candle history from JSON or CSV files.
//
// JSON files hold an array of model.Candle objects. CSV files use the
// Binance kline layout: open time in unix milliseconds, then open, high,
// low, close and an optional volume. A leading header row is skipped.
package candlefile

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"bollinger-service/internal/model"
)

var (
	// ErrNotEnoughColumns is returned when a CSV record has fewer than five columns.
	ErrNotEnoughColumns = errors.New("not enough columns")

	// ErrInvalidTime is returned when the first CSV column is not unix milliseconds.
	ErrInvalidTime = errors.New("cannot parse open time")

	// ErrInvalidPrice is returned when a price or volume column is not a number.
	ErrInvalidPrice = errors.New("prices and volume must be numbers")
)

// Format is the encoding of a candle file.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatOf guesses the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown candle file extension %q (want .json or .csv)", filepath.Ext(path))
}

// Read loads the file at path and returns its candles sorted by time.
func Read(path string) ([]model.Candle, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	candles, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// Decode reads candles in the given format and sorts them by time.
func Decode(r io.Reader, format Format) ([]model.Candle, error) {
	var (
		candles []model.Candle
		err     error
	)
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&candles)
	case FormatCSV:
		candles, err = decodeCSV(r)
	default:
		return nil, fmt.Errorf("unknown candle format %q", format)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].TS < candles[j].TS })
	return candles, nil
}

func decodeCSV(r io.Reader) ([]model.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var candles []model.Candle
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return candles, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && isHeader(record) {
			continue
		}
		c, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseInt(record[0], 10, 64)
	return err != nil
}

func decodeRecord(record []string) (model.Candle, error) {
	var c model.Candle
	if len(record) < 5 {
		return c, ErrNotEnoughColumns
	}

	ts, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return c, ErrInvalidTime
	}
	c.TS = ts

	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
	if len(record) > 5 {
		fields = append(fields, &c.Volume)
	}
	for i, dst := range fields {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return c, ErrInvalidPrice
		}
		*dst = v
	}
	return c, nil
}
