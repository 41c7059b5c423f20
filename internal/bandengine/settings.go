package bandengine

import (
	"sync"

	"bollinger-service/internal/model"
)

// SettingsStore holds the process-wide indicator options edited by the
// settings surface. Listeners run synchronously after every change, in
// registration order, outside the lock.
type SettingsStore struct {
	mu        sync.RWMutex
	opts      model.BollingerOptions
	listeners []func(model.BollingerOptions)
}

// NewSettingsStore starts from initial.
func NewSettingsStore(initial model.BollingerOptions) *SettingsStore {
	initial.Inputs = initial.Inputs.Normalize()
	return &SettingsStore{opts: initial}
}

// Get returns the current options.
func (s *SettingsStore) Get() model.BollingerOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Set validates and stores opts, then notifies listeners.
func (s *SettingsStore) Set(opts model.BollingerOptions) error {
	opts.Inputs = opts.Inputs.Normalize()
	if err := opts.Inputs.Validate(); err != nil {
		return err
	}
	if err := opts.Style.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.opts = opts
	listeners := append(([]func(model.BollingerOptions))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(opts)
	}
	return nil
}

// OnChange registers fn to run after every accepted Set.
func (s *SettingsStore) OnChange(fn func(model.BollingerOptions)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
