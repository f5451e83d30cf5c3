package refresh

import "time"

// ProgressKind tags which payload shape a progress event carries.
type ProgressKind string

const (
	// KindStep events come from full cycles: ordered step index/total/label.
	KindStep ProgressKind = "step"
	// KindComponent events come from selective cycles: per-component status.
	KindComponent ProgressKind = "component"
)

// ComponentState is the per-component progress status.
type ComponentState string

const (
	ComponentRunning   ComponentState = "running"
	ComponentCompleted ComponentState = "completed"
	ComponentError     ComponentState = "error"
)

// ProgressEvent is the single progress shape emitted by both refresh entry
// points. Step fields are set for KindStep, component fields for
// KindComponent.
type ProgressEvent struct {
	Kind ProgressKind `json:"kind"`

	// Step payload
	Index int    `json:"index,omitempty"`
	Total int    `json:"total,omitempty"`
	Label string `json:"label,omitempty"`

	// Component payload
	Component string         `json:"component,omitempty"`
	Status    ComponentState `json:"status,omitempty"`
	Percent   float64        `json:"percent,omitempty"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ProgressFunc receives progress events during a cycle. It may be nil.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) emit(event ProgressEvent) {
	if f != nil {
		f(event)
	}
}
