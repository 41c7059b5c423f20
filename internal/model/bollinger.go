package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned by BollingerParams.Validate.
var ErrInvalidParams = errors.New("invalid bollinger params")

// MAType selects the moving average used for the basis line.
// Only SMA is implemented; the field is kept for forward compatibility.
type MAType string

const MATypeSMA MAType = "SMA"

// Source selects the candle field the bands are computed from.
// Only close is implemented.
type Source string

const SourceClose Source = "close"

const (
	DefaultLength     = 20
	DefaultMultiplier = 2.0
	DefaultOffset     = 0
)

// BollingerParams holds the indicator inputs.
type BollingerParams struct {
	Length           int     `json:"length"`
	StdDevMultiplier float64 `json:"stdDevMultiplier"`
	Offset           int     `json:"offset"`
	MAType           MAType  `json:"maType"`
	Source           Source  `json:"source"`
}

// DefaultBollingerParams returns BB(20, 2) on close with no offset.
func DefaultBollingerParams() BollingerParams {
	return BollingerParams{
		Length:           DefaultLength,
		StdDevMultiplier: DefaultMultiplier,
		Offset:           DefaultOffset,
		MAType:           MATypeSMA,
		Source:           SourceClose,
	}
}

// Validate rejects settings that a settings surface should not accept.
// The band computation itself never calls this: it maps degenerate
// inputs to degenerate outputs instead.
func (p BollingerParams) Validate() error {
	if p.Length < 0 {
		return fmt.Errorf("%w: length must be >= 0, got %d", ErrInvalidParams, p.Length)
	}
	if p.MAType != "" && p.MAType != MATypeSMA {
		return fmt.Errorf("%w: unsupported ma type %q", ErrInvalidParams, p.MAType)
	}
	if p.Source != "" && p.Source != SourceClose {
		return fmt.Errorf("%w: unsupported source %q", ErrInvalidParams, p.Source)
	}
	return nil
}

// Normalize fills the fixed extension-point fields.
func (p BollingerParams) Normalize() BollingerParams {
	if p.MAType == "" {
		p.MAType = MATypeSMA
	}
	if p.Source == "" {
		p.Source = SourceClose
	}
	return p
}

// BandPoint is one output row. Nil fields are undefined (warm-up or
// shifted out) and encode as JSON null.
type BandPoint struct {
	TS    int64    `json:"timestamp"`
	Basis *float64 `json:"basis"`
	Upper *float64 `json:"upper"`
	Lower *float64 `json:"lower"`
}

// MarshalJSON writes NaN and ±Inf lines as null; JSON has no encoding
// for them. In memory the IEEE values are kept.
func (p BandPoint) MarshalJSON() ([]byte, error) {
	type wire BandPoint
	return json.Marshal(wire{
		TS:    p.TS,
		Basis: finiteOrNil(p.Basis),
		Upper: finiteOrNil(p.Upper),
		Lower: finiteOrNil(p.Lower),
	})
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Defined reports whether all three lines have a value.
func (p BandPoint) Defined() bool {
	return p.Basis != nil && p.Upper != nil && p.Lower != nil
}

// LineStyle is how a renderer draws a line.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
)

// LineOptions describes one band line for the rendering layer.
type LineOptions struct {
	Visible bool      `json:"visible"`
	Color   string    `json:"color"`
	Width   float64   `json:"width"`
	Style   LineStyle `json:"style"`
}

// FillOptions describes the fill between upper and lower.
type FillOptions struct {
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
	Color   string  `json:"color,omitempty"`
}

// BollingerStyle is passed through to renderers untouched.
type BollingerStyle struct {
	Basis      LineOptions `json:"basis"`
	Upper      LineOptions `json:"upper"`
	Lower      LineOptions `json:"lower"`
	Background FillOptions `json:"background"`
}

// DefaultBollingerStyle returns the stock chart style.
func DefaultBollingerStyle() BollingerStyle {
	return BollingerStyle{
		Basis:      LineOptions{Visible: true, Color: "#4f46e5", Width: 1.5, Style: LineSolid},
		Upper:      LineOptions{Visible: true, Color: "#22d3ee", Width: 1, Style: LineDashed},
		Lower:      LineOptions{Visible: true, Color: "#22d3ee", Width: 1, Style: LineDashed},
		Background: FillOptions{Visible: true, Opacity: 0.08},
	}
}

// Validate checks the style values a renderer cannot cope with.
func (s BollingerStyle) Validate() error {
	for name, l := range map[string]LineOptions{"basis": s.Basis, "upper": s.Upper, "lower": s.Lower} {
		if l.Width < 0 {
			return fmt.Errorf("%w: %s width must be >= 0", ErrInvalidParams, name)
		}
		if l.Style != "" && l.Style != LineSolid && l.Style != LineDashed {
			return fmt.Errorf("%w: %s style %q", ErrInvalidParams, name, l.Style)
		}
	}
	if s.Background.Opacity < 0 || s.Background.Opacity > 1 {
		return fmt.Errorf("%w: background opacity must be within [0,1]", ErrInvalidParams)
	}
	return nil
}

// BollingerOptions bundles inputs and style as the settings surface edits them.
type BollingerOptions struct {
	Inputs BollingerParams `json:"inputs"`
	Style  BollingerStyle  `json:"style"`
}

// DefaultBollingerOptions returns default inputs and style.
func DefaultBollingerOptions() BollingerOptions {
	return BollingerOptions{
		Inputs: DefaultBollingerParams(),
		Style:  DefaultBollingerStyle(),
	}
}
