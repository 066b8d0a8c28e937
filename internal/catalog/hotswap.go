package catalog

import (
	"sync"
)

// HotSwap holds the library a long-running server materializes from and
// lets it be replaced while requests are in flight.
//
// Callers take a snapshot with Current and use it for a whole run, so a
// swap never mixes two libraries within one materialization.
type HotSwap struct {
	mu       sync.RWMutex
	current  Folder
	location string
}

// NewHotSwap returns a holder serving initial, loaded from location.
func NewHotSwap(initial Folder, location string) *HotSwap {
	return &HotSwap{current: initial, location: location}
}

// Current returns the library in use.
func (h *HotSwap) Current() Folder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Location returns where the current library was loaded from.
func (h *HotSwap) Location() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.location
}

// Swap replaces the library.
func (h *HotSwap) Swap(lib Folder, location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = lib
	h.location = location
}

// Reload opens location (or the current location when empty) and swaps it
// in. On error the current library stays in place.
func (h *HotSwap) Reload(location string) (Folder, error) {
	if location == "" {
		location = h.Location()
	}
	lib, err := Open(location)
	if err != nil {
		return nil, err
	}
	h.Swap(lib, location)
	return lib, nil
}
