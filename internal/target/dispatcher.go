// Package target implements the Target Dispatcher (§4.E): rendering each
// resolved target's subject/body templates and delivering them to email,
// Slack, or Zendesk (external targets are already resolved to one of these
// kinds by normalization).
package target

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/beyondessential/alertd/internal/alertdef"
	"github.com/beyondessential/alertd/internal/events"
	"github.com/beyondessential/alertd/internal/shared/logging"
	"github.com/beyondessential/alertd/internal/templates"
	"go.uber.org/zap"
)

// Sender delivers one already-rendered message to one target kind.
type Sender interface {
	Send(ctx context.Context, target alertdef.ExternalTarget, subject, body string) error
}

// EventPublisher lets the Dispatcher raise a dispatch-failed Event when
// every target for a send fails, without importing the Scheduler.
type EventPublisher interface {
	Publish(events.Event)
}

// Dispatcher renders and delivers every ResolvedTarget for one alert tick,
// guarding each target kind and id behind its own circuit breaker so one flaky
// Zendesk instance doesn't also stall email delivery.
type Dispatcher struct {
	Email   Sender
	Slack   Sender
	Zendesk Sender
	Events  EventPublisher
	Log     *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewDispatcher builds a Dispatcher over the three delivery senders.
func NewDispatcher(email, slack, zendesk Sender, events EventPublisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Email:    email,
		Slack:    slack,
		Zendesk:  zendesk,
		Events:   events,
		Log:      log,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// Dispatch renders and sends to every resolved target, continuing past
// individual failures; if every target failed it raises a dispatch-failed
// Event so an Event-sourced alert elsewhere in the registry can react.
func (d *Dispatcher) Dispatch(ctx context.Context, file string, targets []alertdef.ResolvedTarget, tctx *templates.Context) error {
	if len(targets) == 0 {
		return nil
	}

	dispatchID := uuid.NewString()
	var anySucceeded bool
	var lastErr error

	for _, rt := range targets {
		if err := d.dispatchOne(ctx, rt, tctx); err != nil {
			fields := logging.TargetFields("dispatch", rt.Target.ID).TraceID(dispatchID)
			d.Log.Error("dispatch failed", append(fields.ToZapFields(), zap.Error(err))...)
			lastErr = err
			continue
		}
		anySucceeded = true
	}

	if !anySucceeded {
		if d.Events != nil {
			d.Events.Publish(events.Event{
				EventType: events.DispatchFailed,
				Context: map[string]interface{}{
					"file":        file,
					"error":       fmt.Sprint(lastErr),
					"dispatch_id": dispatchID,
				},
			})
		}
		return fmt.Errorf("all targets failed for %s (dispatch %s): %w", file, dispatchID, lastErr)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, rt alertdef.ResolvedTarget, tctx *templates.Context) error {
	subjTpl, bodyTpl, err := templates.Load(rt.SubjectTemplate, rt.BodyTemplate)
	if err != nil {
		return fmt.Errorf("loading templates for target %s: %w", rt.Target.ID, err)
	}
	subject, body, err := templates.Render(tctx, subjTpl, bodyTpl)
	if err != nil {
		return fmt.Errorf("rendering templates for target %s: %w", rt.Target.ID, err)
	}

	sender, err := d.senderFor(rt.Target.Kind)
	if err != nil {
		return err
	}

	breaker := d.breakerFor(string(rt.Target.Kind) + ":" + rt.Target.ID)
	_, err = breaker.Execute(func() (interface{}, error) {
		return nil, sender.Send(ctx, rt.Target, subject, body)
	})
	return err
}

func (d *Dispatcher) senderFor(kind alertdef.SendKind) (Sender, error) {
	switch kind {
	case alertdef.SendEmail:
		return d.Email, nil
	case alertdef.SendSlack:
		return d.Slack, nil
	case alertdef.SendZendesk:
		return d.Zendesk, nil
	default:
		return nil, fmt.Errorf("unsupported resolved target kind: %q", kind)
	}
}

func (d *Dispatcher) breakerFor(id string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.breakers[id]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: id,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	d.breakers[id] = b
	return b
}
