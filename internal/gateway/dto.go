package gateway

import (
	"context"

	"bollinger-service/internal/model"
)

// BandComputer produces band points for one series.
type BandComputer interface {
	Compute(ctx context.Context, key model.SeriesKey, p model.BollingerParams, limit int) ([]model.BandPoint, error)
}

// Settings is the shared indicator options store.
type Settings interface {
	Get() model.BollingerOptions
	Set(opts model.BollingerOptions) error
}

// ParamsOverride carries the params a caller wants to change. Nil fields
// keep the value from the current settings.
type ParamsOverride struct {
	Length           *int     `json:"length,omitempty"`
	StdDevMultiplier *float64 `json:"stdDevMultiplier,omitempty"`
	Offset           *int     `json:"offset,omitempty"`
}

// Apply returns base with the overridden fields replaced.
func (o *ParamsOverride) Apply(base model.BollingerParams) model.BollingerParams {
	if o == nil {
		return base
	}
	if o.Length != nil {
		base.Length = *o.Length
	}
	if o.StdDevMultiplier != nil {
		base.StdDevMultiplier = *o.StdDevMultiplier
	}
	if o.Offset != nil {
		base.Offset = *o.Offset
	}
	return base
}

// BandsResponse is the REST response type for /api/bands.
type BandsResponse struct {
	Symbol   string                `json:"symbol"`
	Interval int                   `json:"interval"`
	Params   model.BollingerParams `json:"params"`
	Points   []model.BandPoint     `json:"points"`
}

// SeriesInfo is one entry of /api/series.
type SeriesInfo struct {
	Symbol   string `json:"symbol"`
	Interval int    `json:"interval"`
	Key      string `json:"key"`
}

type errorBody struct {
	Error string `json:"error"`
}
