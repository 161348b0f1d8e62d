package driver

import (
	"strings"
	"sync"

	"github.com/livecam/camcore/internal/logging"
	"github.com/livecam/camcore/pkg/driver/availability"
)

var logger = logging.NewLogger("camcore/driver")

// FilterFn is being used to decide if a device should be included in the
// enumeration result.
type FilterFn func(Identity) bool

// FilterKind returns a filter function to match devices served by kind.
func FilterKind(kind BackendKind) FilterFn {
	return func(id Identity) bool {
		return id.Kind == kind
	}
}

// FilterLabel returns a filter function to match devices whose label
// contains substr.
func FilterLabel(substr string) FilterFn {
	return func(id Identity) bool {
		return strings.Contains(id.Label, substr)
	}
}

// FilterNot returns a filter function to negate provided filter.
func FilterNot(filter FilterFn) FilterFn {
	return func(id Identity) bool {
		return !filter(id)
	}
}

// FilterAnd returns a filter function to take logical conjunction of given filters.
func FilterAnd(filters ...FilterFn) FilterFn {
	return func(id Identity) bool {
		for _, f := range filters {
			if !f(id) {
				return false
			}
		}
		return true
	}
}

// Manager enumerates devices across backends and hands out one Source per
// device. Handing out the same Source for the same Identity is what lets the
// Source's own state guard reject a second open.
type Manager struct {
	mu       sync.Mutex
	backends []Backend
	sources  map[string]Source
}

// NewManager creates a manager over backends. Nothing is global; callers
// inject the manager where it is needed.
func NewManager(backends ...Backend) *Manager {
	m := &Manager{
		sources: make(map[string]Source),
	}
	for _, b := range backends {
		m.Register(b)
	}
	return m
}

// Register adds a backend. A nil backend is ignored.
func (m *Manager) Register(b Backend) {
	if b == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends = append(m.backends, b)
}

// Enumerate lists attached devices matching all filters, in the order their
// backends were registered. It never fails: a
// backend that cannot enumerate is logged and skipped, and an empty slice
// means nothing is attached.
func (m *Manager) Enumerate(filters ...FilterFn) []Identity {
	m.mu.Lock()
	backends := append([]Backend(nil), m.backends...)
	m.mu.Unlock()

	filter := FilterAnd(filters...)
	results := make([]Identity, 0)
	for _, b := range backends {
		ids, err := b.Enumerate()
		if err != nil {
			logger.Warnf("%s enumeration failed: %v", b.Kind(), err)
			continue
		}
		for _, id := range ids {
			if filter(id) {
				results = append(results, id)
			}
		}
	}
	return results
}

// Source returns the Source for id, creating it on first use.
func (m *Manager) Source(id Identity) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[id.Key()]; ok {
		return s, nil
	}
	for _, b := range m.backends {
		if b.Kind() != id.Kind {
			continue
		}
		a, err := b.NewAdapter(id)
		if err != nil {
			return nil, err
		}
		s := wrapAdapter(id, a)
		m.sources[id.Key()] = s
		return s, nil
	}
	return nil, availability.Errorf(availability.KindNoDevice, "driver: source", "no backend for %s", id.Kind)
}

// Open resolves id and opens its Source.
func (m *Manager) Open(id Identity) (Source, Capability, error) {
	s, err := m.Source(id)
	if err != nil {
		return nil, Capability{}, err
	}
	c, err := s.Open()
	if err != nil {
		return nil, Capability{}, err
	}
	return s, c, nil
}
