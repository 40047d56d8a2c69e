// Package registry implements the Definition Registry (§4.G): loading
// every alert YAML file from a directory, merging in _targets.yml, and
// watching the directory for changes to trigger a reload.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/beyondessential/alertd/internal/alertdef"
	sharederrors "github.com/beyondessential/alertd/internal/shared/errors"
	"github.com/beyondessential/alertd/internal/shared/logging"
)

const targetsFileStem = "_targets"

// Registry holds the current, normalized set of alert Definitions loaded
// from a directory, and can be asked to Reload() at any time — on a
// fsnotify event, a SIGHUP, or the control server's /reload endpoint.
type Registry struct {
	Dir          string
	IntervalFloor time.Duration
	Log          *zap.Logger

	mu          sync.RWMutex
	definitions map[string]*alertdef.Definition // keyed by file path
}

// New builds an empty Registry rooted at dir.
func New(dir string, intervalFloor time.Duration, log *zap.Logger) *Registry {
	return &Registry{Dir: dir, IntervalFloor: intervalFloor, Log: log, definitions: map[string]*alertdef.Definition{}}
}

// Definitions returns a snapshot of every currently loaded, enabled
// definition.
func (r *Registry) Definitions() []*alertdef.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*alertdef.Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	return out
}

// Has reports whether file names a currently loaded, enabled definition.
func (r *Registry) Has(file string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[file]
	return ok
}

// Reload re-reads every alert file in Dir, replacing the current set
// atomically: a file that fails to parse or normalize is skipped and
// logged, but does not abort the reload of the rest.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return fmt.Errorf("reading alert directory %s: %w", r.Dir, err)
	}

	externalTargets := map[string][]alertdef.ExternalTarget{}
	targetsPath, ok := findTargetsFile(r.Dir, entries)
	if ok {
		data, err := os.ReadFile(targetsPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", targetsPath, err)
		}
		externalTargets, err = alertdef.ParseTargetsFile(data, targetsPath)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", targetsPath, err)
		}
	}

	next := map[string]*alertdef.Definition{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isYAML(name) || isTargetsFile(name) {
			continue
		}

		path := filepath.Join(r.Dir, name)
		def, err := r.loadOne(path, externalTargets)
		if err != nil {
			r.Log.Warn("skipping alert file", append(logging.AlertFields("load", path).ToZapFields(), zap.Error(err))...)
			continue
		}
		if !def.Enabled {
			continue
		}
		next[path] = def
	}

	r.mu.Lock()
	r.definitions = next
	r.mu.Unlock()

	r.Log.Info("registry reloaded", logging.NewFields().Component("registry").Count(len(next)).ToZapFields()...)
	return nil
}

func (r *Registry) loadOne(path string, externalTargets map[string][]alertdef.ExternalTarget) (*alertdef.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	def, err := alertdef.ParseDefinition(data, path)
	if err != nil {
		return nil, sharederrors.ParseError(path, "alert definition", err)
	}
	if err := alertdef.Normalize(def, r.IntervalFloor, externalTargets); err != nil {
		return nil, sharederrors.FailedToWithKind("normalize definition", "registry", path, sharederrors.KindDefinition, err)
	}
	return def, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}

func isTargetsFile(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem == targetsFileStem
}

func findTargetsFile(dir string, entries []os.DirEntry) (string, bool) {
	for _, e := range entries {
		if !e.IsDir() && isYAML(e.Name()) && isTargetsFile(e.Name()) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// Watch blocks, reloading whenever Dir's contents change, until ctx-like
// stop is closed. Errors from the underlying watcher are logged, not
// fatal — a missed event is recovered by the next one, or by an explicit
// reload.
func (r *Registry) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.Dir); err != nil {
		return fmt.Errorf("watching alert directory %s: %w", r.Dir, err)
	}

	var debounce *time.Timer
	debounced := make(chan struct{}, 1)

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					select {
					case debounced <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(200 * time.Millisecond)
			}
		case <-debounced:
			if err := r.Reload(); err != nil {
				r.Log.Error("reload failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Log.Error("directory watcher error", zap.Error(err))
		}
	}
}
