package source

import (
	"context"
	"fmt"
	"time"

	"github.com/beyondessential/alertd/internal/alertdef"
)

// Runner evaluates one alert's Source for the current tick.
type Runner interface {
	Run(ctx context.Context, src alertdef.Source, notBefore time.Time, interval time.Duration, wasTriggered bool) (Result, error)
}

// Set bundles one Runner per SourceKind so the Scheduler can dispatch
// without knowing which kinds need a live database connection.
type Set struct {
	SQL   Runner
	Shell Runner
	Event Runner
	None  Runner
}

// NewSet wires the default runner set against one SQL connection pool.
func NewSet(sqlRunner *SQLRunner) *Set {
	return &Set{
		SQL:   sqlRunner,
		Shell: &ShellRunner{},
		Event: &EventRunner{},
		None:  &NoneRunner{},
	}
}

// For dispatches to the Runner matching src.Kind.
func (s *Set) For(kind alertdef.SourceKind) (Runner, error) {
	switch kind {
	case alertdef.SourceSQL:
		return s.SQL, nil
	case alertdef.SourceShell:
		return s.Shell, nil
	case alertdef.SourceEvent:
		return s.Event, nil
	case alertdef.SourceNone:
		return s.None, nil
	default:
		return nil, fmt.Errorf("unknown source kind: %q", kind)
	}
}
