package main

import (
	"sync"

	"github.com/apimgr/weatherdash/src/config"
)

// trackedCities holds the reloadable refresh list
type trackedCities struct {
	mu     sync.RWMutex
	cities []string
}

func newTrackedCities(cities []string) *trackedCities {
	t := &trackedCities{}
	t.Set(cities)
	return t
}

func (t *trackedCities) Get() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.cities...)
}

func (t *trackedCities) Set(cities []string) {
	cleaned := config.CleanCities(cities)
	t.mu.Lock()
	t.cities = cleaned
	t.mu.Unlock()
}
