package domain

import "time"

// WindowPhase classifies an instant relative to the activity window.
type WindowPhase string

const (
	PhaseOpen       WindowPhase = "open"
	PhaseNotStarted WindowPhase = "not_started"
	PhaseEnded      WindowPhase = "ended"
)

// Window bounds when answers are accepted. Zero Start or End means unbounded on that side.
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Phase reports where now falls relative to the window.
func (w Window) Phase(now time.Time) WindowPhase {
	if !w.Start.IsZero() && now.Before(w.Start) {
		return PhaseNotStarted
	}
	if !w.End.IsZero() && now.After(w.End) {
		return PhaseEnded
	}
	return PhaseOpen
}

// IsOpen reports whether answers are accepted at now.
func (w Window) IsOpen(now time.Time) bool {
	return w.Phase(now) == PhaseOpen
}
