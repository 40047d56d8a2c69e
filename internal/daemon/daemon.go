// Package daemon supervises the alertd process: it wires the Registry,
// Scheduler, Control Server, and State Store together and runs the
// top-level signal-driven event loop.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/beyondessential/alertd/internal/config"
	"github.com/beyondessential/alertd/internal/control"
	"github.com/beyondessential/alertd/internal/registry"
	"github.com/beyondessential/alertd/internal/scheduler"
	"github.com/beyondessential/alertd/internal/source"
	"github.com/beyondessential/alertd/internal/state"
	"github.com/beyondessential/alertd/internal/target"
)

// Daemon supervises a running instance of the alert pipeline.
type Daemon struct {
	Config    *config.Config
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Control   *control.Server
	State     state.Store
	Log       *zap.Logger

	httpServer *http.Server
}

// New builds a Daemon with all its subsystems wired from cfg, but does not
// start anything yet.
func New(cfg *config.Config, log *zap.Logger) (*Daemon, error) {
	store := state.NewMemoryStore()

	reg := registry.New(cfg.Alerts.Dir, cfg.Alerts.IntervalFloor.AsDuration(), log)
	if err := reg.Reload(); err != nil {
		return nil, fmt.Errorf("initial registry load: %w", err)
	}

	sources := source.NewSet(nil)
	dispatcher := target.NewDispatcher(
		&target.EmailSender{Config: target.SMTPConfig{Addr: cfg.Email.Addr, From: cfg.Email.From, Username: cfg.Email.Username, Password: cfg.Email.Password}, DryRun: cfg.Alerts.DryRun},
		&target.SlackSender{},
		target.NewZendeskSender(),
		nil,
		log,
	)
	sched := scheduler.New(reg, sources, dispatcher, store, log, cfg.Alerts.DryRun)

	ctl := control.New(reg, sched, store, cfg.Alerts.IntervalFloor.AsDuration(), log)

	return &Daemon{
		Config:    cfg,
		Registry:  reg,
		Scheduler: sched,
		Control:   ctl,
		State:     store,
		Log:       log,
	}, nil
}

// Run starts the scheduler and (unless disabled) the Control Server, then
// blocks until ctx is canceled or a termination signal arrives, handling
// SIGHUP as a registry reload request along the way.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.Scheduler.Reconcile(ctx)
	defer d.Scheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	if !d.Config.Server.Disabled {
		ln, err := control.Listen(d.Config.Server.BindAddrs)
		if err != nil {
			return fmt.Errorf("starting control server: %w", err)
		}
		d.httpServer = &http.Server{Handler: d.Control}
		d.Log.Info("control server listening", zap.String("addr", ln.Addr().String()))
		go func() {
			if err := d.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				serverErrChan <- err
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			d.Log.Info("context canceled, shutting down")
			d.shutdown()
			return nil

		case err := <-serverErrChan:
			d.Log.Error("control server failed", zap.Error(err))
			d.shutdown()
			return err

		case sig := <-sigChan:
			if isReloadSignal(sig) {
				d.Log.Info("received reload signal")
				if err := d.Registry.Reload(); err != nil {
					d.Log.Error("reload failed", zap.Error(err))
					continue
				}
				d.Scheduler.Reconcile(ctx)
				continue
			}
			d.Log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			d.shutdown()
			return nil
		}
	}
}

func (d *Daemon) shutdown() {
	if d.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
			d.Log.Warn("control server shutdown error", zap.Error(err))
		}
	}
	d.Scheduler.Stop()
}
