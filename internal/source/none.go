package source

import (
	"context"
	"time"

	"github.com/beyondessential/alertd/internal/alertdef"
)

// NoneRunner exists for interface symmetry; a None source means the alert
// file carries only sends and no condition — it is never ticked
// (alertdef.Source.Pollable reports false for it).
type NoneRunner struct{}

// Run always reports not-triggered.
func (r *NoneRunner) Run(ctx context.Context, src alertdef.Source, notBefore time.Time, interval time.Duration, wasTriggered bool) (Result, error) {
	return skip, nil
}
