package widgets

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Store owns the in-memory layout and writes the whole document through to
// its Storage on every mutation. Concurrent mutations are serialized; the
// last writer wins.
type Store struct {
	mu      sync.Mutex
	storage Storage
	current Preferences
	logger  zerolog.Logger
}

// NewStore returns a store holding the default layout. Call Load to read the
// persisted one.
func NewStore(storage Storage, logger zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		current: Default(),
		logger:  logger.With().Str("store", PreferencesKey).Logger(),
	}
}

// Load reads the persisted layout. A missing or corrupt document yields the
// default layout and is never reported as an error.
func (s *Store) Load() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.storage.Read(PreferencesKey)
	switch {
	case errors.Is(err, ErrNotFound):
		s.current = Default()
	case err != nil:
		s.logger.Warn().Err(err).Msg("reading widget layout, using default")
		s.current = Default()
	default:
		p, err := decode(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("corrupt widget layout, using default")
			p = Default()
		}
		s.current = p
	}
	return s.current.Clone()
}

// Current returns a copy of the layout in memory.
func (s *Store) Current() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Save normalizes p and persists it as the new layout.
func (s *Store) Save(p Preferences) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(p.Normalize())
}

// ToggleVisibility flips the visibility of a widget.
func (s *Store) ToggleVisibility(id string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !IsKnown(id) {
		return s.current.Clone(), fmt.Errorf("unknown widget %q", id)
	}
	next := s.current.Clone()
	next.Visibility[id] = !next.Visibility[id]
	return s.commit(next)
}

// SetSize changes the size of a widget.
func (s *Store) SetSize(id string, size Size) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !IsKnown(id) {
		return s.current.Clone(), fmt.Errorf("unknown widget %q", id)
	}
	if !size.Valid() {
		return s.current.Clone(), fmt.Errorf("unknown widget size %q", size)
	}
	next := s.current.Clone()
	next.Sizes[id] = size
	return s.commit(next)
}

// Reorder sets the widget order. The input is repaired rather than rejected:
// unknown and duplicate ids are dropped and omitted ids are appended in
// default order, so no widget becomes unreachable.
func (s *Store) Reorder(ids []string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.Clone()
	next.Order = repairOrder(ids)
	return s.commit(next)
}

// ResetToDefault persists and returns the default layout.
func (s *Store) ResetToDefault() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(Default())
}

// commit writes next and makes it current. Callers hold s.mu. On a write
// failure the in-memory layout is left unchanged.
func (s *Store) commit(next Preferences) (Preferences, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return s.current.Clone(), fmt.Errorf("encoding widget layout: %w", err)
	}
	if err := s.storage.Write(PreferencesKey, data); err != nil {
		return s.current.Clone(), fmt.Errorf("saving widget layout: %w", err)
	}
	s.current = next
	s.logger.Debug().Strs("order", next.Order).Msg("widget layout saved")
	return next.Clone(), nil
}
