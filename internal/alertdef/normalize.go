package alertdef

import (
	"fmt"
	"time"

	"github.com/beyondessential/alertd/internal/interval"
	"github.com/beyondessential/alertd/internal/templates"
)

// Normalize parses the definition's interval, raising it to floor if it
// parses shorter; validates every send's subject/template pair can be
// parsed; and expands Send into ResolvedTargets against externalTargets,
// clearing Send afterward. It mirrors the alert.rs normalise() step: an
// alert definition is either fully usable or rejected outright, never
// half-resolved.
func Normalize(def *Definition, floor time.Duration, externalTargets map[string][]ExternalTarget) error {
	d, err := interval.Parse(def.Interval)
	if err != nil {
		return fmt.Errorf("normalizing %s: %w", def.File, err)
	}
	if d < floor {
		d = floor
	}
	def.IntervalDuration = d

	resolved := make([]ResolvedTarget, 0, len(def.Send))
	for i, send := range def.Send {
		targets, err := resolveSendTargets(send)
		if err != nil {
			return fmt.Errorf("normalizing %s: send entry #%d: %w", def.File, i+1, err)
		}
		if send.Kind == SendExternal {
			known, ok := externalTargets[send.ID]
			if !ok || len(known) == 0 {
				return fmt.Errorf("normalizing %s: send entry #%d: unknown external target id %q", def.File, i+1, send.ID)
			}
			targets = known
		}

		if _, _, err := templates.Load(send.Subject, send.Template); err != nil {
			return fmt.Errorf("normalizing %s: send entry #%d: %w", def.File, i+1, err)
		}

		for _, target := range targets {
			resolved = append(resolved, ResolvedTarget{
				SubjectTemplate: send.Subject,
				BodyTemplate:    send.Template,
				Target:          target,
			})
		}
	}
	def.ResolvedTargets = resolved
	def.Send = nil

	return nil
}

// resolveSendTargets returns the single inline ExternalTarget a non-external
// SendSpec carries, wrapped in a slice for symmetry with the fan-out case.
func resolveSendTargets(send SendSpec) ([]ExternalTarget, error) {
	switch send.Kind {
	case SendEmail:
		return []ExternalTarget{{ID: send.ID, Kind: SendEmail, Email: send.Email}}, nil
	case SendSlack:
		return []ExternalTarget{{ID: send.ID, Kind: SendSlack, Slack: send.Slack}}, nil
	case SendZendesk:
		return []ExternalTarget{{ID: send.ID, Kind: SendZendesk, Zendesk: send.Zendesk}}, nil
	case SendExternal:
		return nil, nil // resolved by the caller against externalTargets
	default:
		return nil, fmt.Errorf("unknown send kind: %q", send.Kind)
	}
}
