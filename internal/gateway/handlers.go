package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bollinger-service/internal/logger"
	"bollinger-service/internal/metrics"
	"bollinger-service/internal/model"
	"bollinger-service/internal/registry"
	"bollinger-service/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Deps are the collaborators the HTTP routes serve from. Only Hub, Bands,
// Settings and Registry are required.
type Deps struct {
	Hub       *Hub
	Bands     BandComputer
	Settings  Settings
	Registry  *registry.Registry
	Series    model.SeriesLister      // /api/series
	Announcer model.SettingsPublisher // fans settings out to other instances
	Health    http.Handler            // /healthz
	Gatherer  prometheus.Gatherer     // /metrics
	Metrics   *metrics.Metrics
	MaxLimit  int // upper bound for ?limit=, 0 = unbounded
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		d.Hub.HandleWSRequest(conn)
	})

	mux.Handle("/api/bands", d.instrument("/api/bands", d.handleBands))
	mux.Handle("/api/settings", d.instrument("/api/settings", d.handleSettings))
	mux.Handle("/api/indicators", d.instrument("/api/indicators", d.handleIndicators))
	mux.Handle("/api/series", d.instrument("/api/series", d.handleSeries))

	if d.Health != nil {
		mux.Handle("/healthz", d.Health)
	}
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
}

// instrument adds CORS headers, answers preflight requests, attaches a
// trace ID to the request context and counts the response code.
func (d Deps) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		ctx := logger.WithTraceID(r.Context(), logger.NewTraceID(route, time.Now()))
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r.WithContext(ctx))

		if d.Metrics != nil {
			d.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		}
		if rec.code >= http.StatusInternalServerError {
			slog.Error("request failed", logger.Attrs(ctx, "route", route, "code", rec.code)...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// writeJSON encodes v before committing the status, so an unencodable
// value turns into a 500 instead of a 200 with an empty body.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("[gateway] encode %T: %v", v, err)
		code = http.StatusInternalServerError
		buf.Reset()
		json.NewEncoder(&buf).Encode(errorBody{Error: "encode response failed"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// GET /api/bands?symbol=&interval=&length=&mult=&offset=&limit=
func (d Deps) handleBands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	interval, err := strconv.Atoi(q.Get("interval"))
	if err != nil || interval <= 0 {
		writeError(w, http.StatusBadRequest, "interval must be a positive number of seconds")
		return
	}

	override, err := parseOverride(q.Get("length"), q.Get("mult"), q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := override.Apply(d.Settings.Get().Inputs)
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}
	if d.MaxLimit > 0 && limit > d.MaxLimit {
		limit = d.MaxLimit
	}

	key := model.SeriesKey{Symbol: symbol, Interval: interval}
	points, err := d.Bands.Compute(r.Context(), key, p, limit)
	switch {
	case errors.Is(err, store.ErrNoCandles):
		writeError(w, http.StatusNotFound, "no candles for "+key.String())
		return
	case err != nil:
		slog.Warn("compute failed", logger.Attrs(r.Context(), "series", key.String(), "error", err)...)
		writeError(w, http.StatusInternalServerError, "compute failed")
		return
	}

	writeJSON(w, http.StatusOK, BandsResponse{
		Symbol:   symbol,
		Interval: interval,
		Params:   p,
		Points:   points,
	})
}

func parseOverride(length, mult, offset string) (*ParamsOverride, error) {
	o := &ParamsOverride{}
	if length != "" {
		v, err := strconv.Atoi(length)
		if err != nil {
			return nil, errors.New("length must be an integer")
		}
		o.Length = &v
	}
	if mult != "" {
		v, err := strconv.ParseFloat(mult, 64)
		if err != nil {
			return nil, errors.New("mult must be a number")
		}
		o.StdDevMultiplier = &v
	}
	if offset != "" {
		v, err := strconv.Atoi(offset)
		if err != nil {
			return nil, errors.New("offset must be an integer")
		}
		o.Offset = &v
	}
	return o, nil
}

// GET/POST /api/settings
func (d Deps) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, d.Settings.Get())

	case http.MethodPost:
		opts := d.Settings.Get()
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if err := d.Settings.Set(opts); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if d.Metrics != nil {
			d.Metrics.SettingsChanges.WithLabelValues("http").Inc()
		}

		current := d.Settings.Get()
		if d.Announcer != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := d.Announcer.PublishSettings(ctx, current); err != nil {
				slog.Warn("settings broadcast failed", logger.Attrs(ctx, "error", err)...)
			}
			cancel()
		}
		log.Printf("[gateway] settings updated: length=%d mult=%g offset=%d",
			current.Inputs.Length, current.Inputs.StdDevMultiplier, current.Inputs.Offset)
		writeJSON(w, http.StatusOK, current)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/indicators
func (d Deps) handleIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Registry.Definitions())
}

// GET /api/series
func (d Deps) handleSeries(w http.ResponseWriter, r *http.Request) {
	out := []SeriesInfo{}
	if d.Series == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}

	keys, err := d.Series.ListSeries(r.Context())
	if err != nil {
		slog.Warn("list series failed", logger.Attrs(r.Context(), "error", err)...)
		writeError(w, http.StatusInternalServerError, "list series failed")
		return
	}
	for _, k := range keys {
		out = append(out, SeriesInfo{Symbol: k.Symbol, Interval: k.Interval, Key: k.String()})
	}
	writeJSON(w, http.StatusOK, out)
}
