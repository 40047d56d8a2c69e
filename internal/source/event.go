package source

import (
	"context"
	"time"

	"github.com/beyondessential/alertd/internal/alertdef"
)

// EventRunner exists for interface symmetry; Event sources are never
// ticked by the Scheduler (alertdef.Source.Pollable reports false for
// them) — they're driven by the Control Server's POST /events endpoint
// fanning out directly to matching alerts instead.
type EventRunner struct{}

// Run always reports not-triggered: an Event source only ever triggers via
// the externally-driven path, never a scheduled tick.
func (r *EventRunner) Run(ctx context.Context, src alertdef.Source, notBefore time.Time, interval time.Duration, wasTriggered bool) (Result, error) {
	return skip, nil
}

// FromEvent builds the template-context Vars for an Event-sourced alert
// firing in response to an actual Event, merging its free-form context map.
func FromEvent(eventContext map[string]interface{}) Result {
	return Result{Triggered: true, Vars: eventContext}
}
