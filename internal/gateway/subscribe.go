package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"bollinger-service/internal/model"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type     string          `json:"type"`     // "SUBSCRIBE"
	ReqID    string          `json:"reqId"`    // client-generated request ID
	Symbol   string          `json:"symbol"`   // e.g. "BTCUSDT"
	Interval int             `json:"interval"` // candle interval in seconds
	Limit    int             `json:"limit"`    // candles to read, 0 = server default
	Params   *ParamsOverride `json:"params,omitempty"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type     string `json:"type"` // "UNSUBSCRIBE"
	ReqID    string `json:"reqId"`
	Symbol   string `json:"symbol"`
	Interval int    `json:"interval"`
}

// RecomputeMsg asks for fresh snapshots. An empty symbol means every
// subscription of the client.
type RecomputeMsg struct {
	Type     string `json:"type"` // "RECOMPUTE"
	ReqID    string `json:"reqId"`
	Symbol   string `json:"symbol"`
	Interval int    `json:"interval"`
}

// Snapshot reasons.
const (
	ReasonSubscribe = "subscribe"
	ReasonRecompute = "recompute"
	ReasonSettings  = "settings"
)

// BandsSnapshot is the server → client message carrying a full band series.
type BandsSnapshot struct {
	Type     string                `json:"type"` // "bands"
	ReqID    string                `json:"reqId,omitempty"`
	Reason   string                `json:"reason"`
	Symbol   string                `json:"symbol"`
	Interval int                   `json:"interval"`
	Params   model.BollingerParams `json:"params"`
	Points   []model.BandPoint     `json:"points"`
}

// ErrorResponse is sent when a client request cannot be served.
type ErrorResponse struct {
	Type  string `json:"type"` // "error"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// Subscription is one series a client follows.
type Subscription struct {
	Key      model.SeriesKey
	Override *ParamsOverride
	Limit    int
}

// params resolves the subscription against the current settings.
func (s *Subscription) params(current model.BollingerParams) model.BollingerParams {
	return s.Override.Apply(current)
}

// SendJSON marshals v and queues it for the client. Slow clients drop.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] marshal %T: %v", v, err)
		return
	}
	c.deliver(data)
}

// deliver queues data, counting messages a full buffer had to drop.
func (c *Client) deliver(data []byte) {
	if err := c.enqueue(data); errors.Is(err, errSendFull) {
		log.Printf("[gateway] dropped %d-byte message for slow client", len(data))
		if c.hub.prom != nil {
			c.hub.prom.WSDropped.Inc()
		}
	}
}

// SendError reports a failed request to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{Type: "error", ReqID: reqID, Error: errMsg})
}

// pushBands computes the series for sub and sends it as a snapshot.
func (c *Client) pushBands(ctx context.Context, sub Subscription, reqID, reason string) {
	p := sub.params(c.hub.settings.Get().Inputs)
	if err := p.Validate(); err != nil {
		SendError(c, reqID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	points, err := c.hub.bands.Compute(ctx, sub.Key, p, sub.Limit)
	if err != nil {
		SendError(c, reqID, fmt.Sprintf("compute %s: %v", sub.Key, err))
		return
	}

	SendJSON(c, BandsSnapshot{
		Type:     "bands",
		ReqID:    reqID,
		Reason:   reason,
		Symbol:   sub.Key.Symbol,
		Interval: sub.Key.Interval,
		Params:   p,
		Points:   points,
	})
}
