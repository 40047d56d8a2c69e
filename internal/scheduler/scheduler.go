// Package scheduler implements the per-alert Scheduler (§4.I): one tick
// loop per pollable alert definition, coalescing overlapping ticks,
// honoring pauses, and gating dispatch through change detection.
package scheduler

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/beyondessential/alertd/internal/alertdef"
	"github.com/beyondessential/alertd/internal/changedetect"
	"github.com/beyondessential/alertd/internal/events"
	"github.com/beyondessential/alertd/internal/registry"
	sharederrors "github.com/beyondessential/alertd/internal/shared/errors"
	"github.com/beyondessential/alertd/internal/shared/logging"
	"github.com/beyondessential/alertd/internal/source"
	"github.com/beyondessential/alertd/internal/state"
	"github.com/beyondessential/alertd/internal/target"
	"github.com/beyondessential/alertd/internal/templates"
)

// Scheduler runs one tick loop per pollable alert, reconciling the set of
// running loops against the Registry's current definitions whenever asked.
type Scheduler struct {
	Registry   *registry.Registry
	Sources    *source.Set
	Dispatcher *target.Dispatcher
	State      state.Store
	Log        *zap.Logger
	DryRun     bool

	mu    sync.Mutex
	loops map[string]*loop // keyed by Definition.File
}

// New builds a Scheduler with no running loops; call Reconcile to start
// ticking against the Registry's current contents.
func New(reg *registry.Registry, sources *source.Set, dispatcher *target.Dispatcher, store state.Store, log *zap.Logger, dryRun bool) *Scheduler {
	return &Scheduler{
		Registry:   reg,
		Sources:    sources,
		Dispatcher: dispatcher,
		State:      store,
		Log:        log,
		DryRun:     dryRun,
		loops:      map[string]*loop{},
	}
}

type loop struct {
	def    *alertdef.Definition
	cancel context.CancelFunc
	busy   atomic.Bool
}

// Reconcile starts a tick loop for every pollable definition currently in
// the Registry that doesn't have one yet, and stops any loop whose
// definition has disappeared or changed (by replacing it wholesale — a
// changed interval or source needs a fresh ticker, not a patched one).
func (s *Scheduler) Reconcile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := map[string]*alertdef.Definition{}
	for _, def := range s.Registry.Definitions() {
		if def.Source.Pollable() {
			current[def.File] = def
		}
	}

	for file, l := range s.loops {
		if _, ok := current[file]; !ok {
			l.cancel()
			delete(s.loops, file)
		}
	}

	for file, def := range current {
		if existing, ok := s.loops[file]; ok {
			if reflect.DeepEqual(existing.def, def) {
				continue
			}
			existing.cancel()
			delete(s.loops, file)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		l := &loop{def: def, cancel: cancel}
		s.loops[file] = l
		go s.run(loopCtx, l)
	}
}

// Stop cancels every running tick loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for file, l := range s.loops {
		l.cancel()
		delete(s.loops, file)
	}
}

func (s *Scheduler) run(ctx context.Context, l *loop) {
	ticker := time.NewTicker(l.def.IntervalDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.busy.CompareAndSwap(false, true) {
				s.Log.Debug("skipping tick: previous evaluation still running", logging.AlertFields("tick", l.def.File).ToZapFields()...)
				continue
			}
			go func() {
				defer l.busy.Store(false)
				s.evaluate(ctx, l.def)
			}()
		}
	}
}

// evaluate runs one tick for def: checks the pause window, runs the
// source, gates on change detection, and dispatches on trigger.
func (s *Scheduler) evaluate(ctx context.Context, def *alertdef.Definition) {
	fields := logging.AlertFields("evaluate", def.File)
	entry, err := s.State.Get(ctx, def.File)
	if err != nil {
		s.Log.Error("reading state", append(fields.ToZapFields(), zap.Error(err))...)
		return
	}
	now := time.Now()
	if entry.Paused(now) {
		s.Log.Debug("alert paused, skipping tick", fields.ToZapFields()...)
		return
	}

	runner, err := s.Sources.For(def.Source.Kind)
	if err != nil {
		s.Log.Error("resolving source runner", append(fields.ToZapFields(), zap.Error(err))...)
		return
	}

	notBefore := now.Add(-def.IntervalDuration)
	result, err := runner.Run(ctx, def.Source, notBefore, def.IntervalDuration, entry.Triggered)
	if err != nil {
		retryFields := append(fields.ToZapFields(), zap.Error(err), zap.Bool("retryable", sharederrors.IsRetryable(err)))
		s.Log.Error("source runner failed", retryFields...)
		s.publishSourceError(def, err)
		return
	}

	entry.Triggered = result.Triggered
	if !result.Triggered {
		if err := s.State.Put(ctx, def.File, entry); err != nil {
			s.Log.Error("persisting state", append(fields.ToZapFields(), zap.Error(err))...)
		}
		return
	}

	rows, _ := result.Vars["rows"].([]map[string]interface{})
	policy := changedetect.Policy{Off: def.WhenChanged.Off, Only: def.WhenChanged.Only, Except: def.WhenChanged.Except}
	changeRows := toChangeRows(rows)
	dispatch, serialization := changedetect.ShouldDispatch(changeRows, policy, def.AlwaysSend, entry.LastSerialization)

	if !dispatch {
		// The gate itself decided this shape is nothing new to report; the
		// shape is still latched even though nothing was sent.
		entry.LastSerialization = serialization
		if err := s.State.Put(ctx, def.File, entry); err != nil {
			s.Log.Error("persisting state", append(fields.ToZapFields(), zap.Error(err))...)
		}
		s.Log.Debug("unchanged since last dispatch, skipping send", fields.ToZapFields()...)
		return
	}

	tctx := templates.Build(def.File, def.IntervalDuration, now)
	for k, v := range result.Vars {
		tctx.Insert(k, v)
	}

	// Only latch the new serialization and last-fired time once the send
	// actually succeeded for at least one target; if every target failed,
	// leave them as they were so the next tick retries with this same
	// payload instead of silently dropping it.
	dispatchErr := s.Dispatcher.Dispatch(ctx, def.File, def.ResolvedTargets, tctx)
	if dispatchErr == nil {
		entry.LastSerialization = serialization
		entry.LastFiredAt = now
	}

	if err := s.State.Put(ctx, def.File, entry); err != nil {
		s.Log.Error("persisting state", append(fields.ToZapFields(), zap.Error(err))...)
	}

	if dispatchErr != nil {
		s.Log.Error("dispatch failed", append(fields.ToZapFields(), zap.Error(dispatchErr))...)
	}
}

func (s *Scheduler) publishSourceError(def *alertdef.Definition, cause error) {
	if s.Dispatcher == nil || s.Dispatcher.Events == nil {
		return
	}
	s.Dispatcher.Events.Publish(events.Event{
		EventType: events.SourceError,
		Context: map[string]interface{}{
			"file":  def.File,
			"error": cause.Error(),
		},
	})
}

func toChangeRows(rows []map[string]interface{}) []changedetect.Row {
	out := make([]changedetect.Row, len(rows))
	for i, r := range rows {
		out[i] = changedetect.Row(r)
	}
	return out
}

// HandleEvent dispatches an externally-raised Event to every registered
// Event-sourced alert matching its type, bypassing the tick loop entirely.
func (s *Scheduler) HandleEvent(ctx context.Context, ev events.Event) {
	for _, def := range s.Registry.Definitions() {
		if def.Source.Kind != alertdef.SourceEvent || def.Source.EventType != ev.EventType {
			continue
		}
		now := time.Now()
		tctx := templates.Build(def.File, def.IntervalDuration, now)
		for k, v := range ev.Context {
			tctx.Insert(k, v)
		}
		if err := s.Dispatcher.Dispatch(ctx, def.File, def.ResolvedTargets, tctx); err != nil {
			s.Log.Error("dispatch failed for event-sourced alert", append(logging.AlertFields("event", def.File).ToZapFields(), zap.Error(err))...)
		}
	}
}
