package media

import "sync"

// Selector tracks the currently selected device per kind and falls back to
// the first available device when a selected one disappears.
type Selector struct {
	mu       sync.Mutex
	provider Provider
	selected map[DeviceKind]string
}

func NewSelector(provider Provider) *Selector {
	return &Selector{
		provider: provider,
		selected: make(map[DeviceKind]string),
	}
}

func (s *Selector) Select(kind DeviceKind, deviceID string) {
	s.mu.Lock()
	s.selected[kind] = deviceID
	s.mu.Unlock()
}

func (s *Selector) Selected(kind DeviceKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[kind]
}

// Fallback re-checks the selection of kind against the enumerated devices.
// When the selected device is gone it selects the first available one of
// that kind and reports the change.
func (s *Selector) Fallback(kind DeviceKind) (newID string, changed bool) {
	devices := s.provider.EnumerateDevices()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.selected[kind]
	var first string
	for _, d := range devices {
		if d.Kind != kind {
			continue
		}
		if first == "" {
			first = d.ID
		}
		if current != "" && d.ID == current {
			return current, false
		}
	}

	if first == "" {
		delete(s.selected, kind)
		return "", current != ""
	}
	s.selected[kind] = first
	return first, first != current
}
