// Package history records refresh events and per-component health
// transitions in capped FIFO buffers.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlegrand/fleetdeck/internal/buffer"
	"github.com/mlegrand/fleetdeck/internal/models"
)

// DefaultCap bounds each buffer when no cap is configured.
const DefaultCap = 100

// Recorder appends refresh events globally and health-history entries both
// globally and per component.
type Recorder struct {
	events *buffer.Ring[models.RefreshEvent]
	global *buffer.Ring[models.HealthHistoryEntry]

	mu           sync.RWMutex
	perComponent map[models.Category]*buffer.Ring[models.HealthHistoryEntry]
	historyCap   int
}

// NewRecorder creates a recorder with the given buffer capacities.
func NewRecorder(eventCap, historyCap int) *Recorder {
	if eventCap < 1 {
		eventCap = DefaultCap
	}
	if historyCap < 1 {
		historyCap = DefaultCap
	}
	return &Recorder{
		events:       buffer.New[models.RefreshEvent](eventCap),
		global:       buffer.New[models.HealthHistoryEntry](historyCap),
		perComponent: make(map[models.Category]*buffer.Ring[models.HealthHistoryEntry]),
		historyCap:   historyCap,
	}
}

// RecordEvent appends a refresh event.
func (r *Recorder) RecordEvent(eventType, message string) models.RefreshEvent {
	event := models.RefreshEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
	r.events.Append(event)
	return event
}

// RecordHealth appends a health observation for a component.
func (r *Recorder) RecordHealth(component models.Category, name, status, details string) {
	entry := models.HealthHistoryEntry{
		Component: component,
		Name:      name,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	}
	r.global.Append(entry)
	r.componentRing(component).Append(entry)
}

func (r *Recorder) componentRing(component models.Category) *buffer.Ring[models.HealthHistoryEntry] {
	r.mu.RLock()
	ring, ok := r.perComponent[component]
	r.mu.RUnlock()
	if ok {
		return ring
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ring, ok = r.perComponent[component]; ok {
		return ring
	}
	ring = buffer.New[models.HealthHistoryEntry](r.historyCap)
	r.perComponent[component] = ring
	return ring
}

// Events returns buffered refresh events in arrival order.
func (r *Recorder) Events() []models.RefreshEvent {
	return r.events.Items()
}

// Health returns the global health history in arrival order.
func (r *Recorder) Health() []models.HealthHistoryEntry {
	return r.global.Items()
}

// ComponentHealth returns the history for one component.
func (r *Recorder) ComponentHealth(component models.Category) []models.HealthHistoryEntry {
	r.mu.RLock()
	ring, ok := r.perComponent[component]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return ring.Items()
}

// Seed replays persisted history entries, used at startup.
func (r *Recorder) Seed(entries []models.HealthHistoryEntry) {
	for _, entry := range entries {
		r.global.Append(entry)
		r.componentRing(entry.Component).Append(entry)
	}
}
