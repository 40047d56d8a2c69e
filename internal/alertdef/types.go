// Package alertdef holds the AlertDefinition data model (§3) and its YAML
// parsing and normalization (§4.F): interval parsing, template validation,
// and SendSpec → ResolvedTarget expansion via the ExternalTarget id map.
package alertdef

import (
	"time"

	"github.com/beyondessential/alertd/internal/events"
	"github.com/beyondessential/alertd/internal/threshold"
)

// SourceKind discriminates the TicketSource sum type.
type SourceKind string

const (
	SourceSQL   SourceKind = "sql"
	SourceShell SourceKind = "shell"
	SourceEvent SourceKind = "event"
	SourceNone  SourceKind = "none"
)

// Source is the discriminated union of where an alert pulls its data from:
// one of Sql{Query, Thresholds}, Shell{Interpreter, Script}, Event{Type},
// or None.
type Source struct {
	Kind SourceKind

	// Sql fields.
	Query      string
	Thresholds []threshold.Threshold

	// Shell fields.
	Interpreter string
	Script      string

	// Event fields.
	EventType events.EventType
}

// Pollable reports whether the Scheduler should spawn a per-alert tick loop
// for this source (Sql and Shell only; Event is externally driven and None
// is a no-op).
func (s Source) Pollable() bool {
	return s.Kind == SourceSQL || s.Kind == SourceShell
}

// WhenChanged is the discriminated union: off, on, or detailed with
// only/except field filters.
type WhenChanged struct {
	Off    bool
	Only   []string
	Except []string
}

// SendKind discriminates a send entry: an inline target, or a reference by
// id into the external-targets map.
type SendKind string

const (
	SendEmail    SendKind = "email"
	SendSlack    SendKind = "slack"
	SendZendesk  SendKind = "zendesk"
	SendExternal SendKind = "external"
)

// SendSpec is one entry of an alert's `send` list, prior to resolution.
type SendSpec struct {
	Kind     SendKind
	ID       string
	Subject  string
	Template string

	Email   *EmailFields
	Slack   *SlackFields
	Zendesk *ZendeskFields
}

// EmailFields are the target-specific fields of an inline or external email target.
type EmailFields struct {
	Recipients []string
}

// SlackFields are the target-specific fields of an inline or external slack target.
type SlackFields struct {
	Webhook string
	Fields  []SlackField // nil means the default {subject, body} pair
}

// SlackField is one entry of a Slack message's field map: either a lookup
// (Field), which resolves only "subject" and "body" of the rendered message
// and yields an empty value for any other name, or a literal (Value).
type SlackField struct {
	Name  string
	Field string
	Value string
}

// ZendeskFields are the target-specific fields of an inline or external zendesk target.
type ZendeskFields struct {
	Endpoint      string
	AuthUser      string
	AuthPass      string
	Requester     string // anonymous requester email, mutually exclusive with AuthUser/AuthPass
	FormID        int64
	CustomFields  map[string]interface{}
}

// ExternalTarget is a named, shareable target definition from _targets.yml.
type ExternalTarget struct {
	ID      string
	Kind    SendKind
	Email   *EmailFields
	Slack   *SlackFields
	Zendesk *ZendeskFields
}

// ResolvedTarget binds a SendSpec's subject/template to one concrete
// ExternalTarget (inline or id-resolved).
type ResolvedTarget struct {
	SubjectTemplate string
	BodyTemplate    string
	Target          ExternalTarget
}

// Definition is one alert file's normalized content.
type Definition struct {
	File               string
	Enabled            bool
	Interval           string
	IntervalDuration   time.Duration
	AlwaysSend         bool
	WhenChanged        WhenChanged
	Source             Source
	Send               []SendSpec // cleared to nil after normalize()
	ResolvedTargets    []ResolvedTarget
}
