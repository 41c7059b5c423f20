// Package registry holds the indicator definitions a host exposes to its
// charting surfaces.
//
// A Registry is a plain value created and filled by the host once during
// start-up (see RegisterBuiltins); there is no package-level state, so two
// hosts in one process, or two tests, never see each other's registrations.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"bollinger-service/internal/indicator"
	"bollinger-service/internal/model"
)

var (
	// ErrAlreadyRegistered is returned when a definition name is taken.
	ErrAlreadyRegistered = errors.New("indicator already registered")
	// ErrNotFound is returned by Lookup for unknown names.
	ErrNotFound = errors.New("indicator not registered")
)

// CalcFunc turns candles and params into band points.
type CalcFunc func(candles []model.Candle, p model.BollingerParams) []model.BandPoint

// Figure is one plotted output line of an indicator.
type Figure struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Definition describes one indicator the host can draw.
type Definition struct {
	Name      string                 `json:"name"`
	ShortName string                 `json:"shortName"`
	Overlay   bool                   `json:"overlay"` // drawn on the price pane
	Defaults  model.BollingerOptions `json:"defaults"`
	Figures   []Figure               `json:"figures"`
	Calc      CalcFunc               `json:"-"`
}

// Registry maps indicator names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def. Registering the same name twice is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("indicator name is required")
	}
	if def.Calc == nil {
		return fmt.Errorf("indicator %s: calc func is required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return def, nil
}

// Definitions returns all definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BollingerName is the registry name of the Bollinger Bands indicator.
const BollingerName = "BOLL"

// BollingerDefinition describes Bollinger Bands with the given defaults.
func BollingerDefinition(defaults model.BollingerOptions) Definition {
	return Definition{
		Name:      BollingerName,
		ShortName: "BB",
		Overlay:   true,
		Defaults:  defaults,
		Figures: []Figure{
			{Key: "basis", Title: "Basis: "},
			{Key: "upper", Title: "Upper: "},
			{Key: "lower", Title: "Lower: "},
		},
		Calc: indicator.Bollinger,
	}
}

// RegisterBuiltins registers every built-in indicator. Hosts call it once
// at start-up; a second call on the same registry fails with
// ErrAlreadyRegistered.
func RegisterBuiltins(r *Registry, defaults model.BollingerOptions) error {
	return r.Register(BollingerDefinition(defaults))
}
