package alertdef

import (
	"fmt"

	"github.com/beyondessential/alertd/internal/events"
	"github.com/beyondessential/alertd/internal/threshold"
	"gopkg.in/yaml.v3"
)

// rawThreshold mirrors one entry of an alert's `numerical` list.
type rawThreshold struct {
	Field   string   `yaml:"field"`
	AlertAt float64  `yaml:"alert-at"`
	ClearAt *float64 `yaml:"clear-at"`
}

// rawSlackField mirrors one entry of a slack send's `fields` list.
type rawSlackField struct {
	Name  string `yaml:"name"`
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

// rawSendSpec is the flat, over-complete shape of one `send` list entry or
// one `_targets.yml` entry — every target-specific field lives side by
// side, and ParseDefinition/ParseTargetsFile pick out the ones that matter
// for the declared `target` kind.
type rawSendSpec struct {
	Target   string          `yaml:"target"`
	ID       string          `yaml:"id"`
	Subject  string          `yaml:"subject"`
	Template string          `yaml:"template"`

	Recipients []string        `yaml:"recipients"`
	Webhook    string          `yaml:"webhook"`
	Fields     []rawSlackField `yaml:"fields"`

	Endpoint     string                 `yaml:"endpoint"`
	User         string                 `yaml:"user"`
	Pass         string                 `yaml:"pass"`
	Requester    string                 `yaml:"requester"`
	FormID       int64                  `yaml:"form-id"`
	CustomFields map[string]interface{} `yaml:"custom-fields"`
}

func (r rawSendSpec) toSendSpec() (SendSpec, error) {
	kind := SendKind(r.Target)
	spec := SendSpec{Kind: kind, ID: r.ID, Subject: r.Subject, Template: r.Template}
	switch kind {
	case SendEmail:
		spec.Email = &EmailFields{Recipients: r.Recipients}
	case SendSlack:
		spec.Slack = &SlackFields{Webhook: r.Webhook, Fields: toSlackFields(r.Fields)}
	case SendZendesk:
		spec.Zendesk = &ZendeskFields{
			Endpoint:     r.Endpoint,
			AuthUser:     r.User,
			AuthPass:     r.Pass,
			Requester:    r.Requester,
			FormID:       r.FormID,
			CustomFields: r.CustomFields,
		}
	case SendExternal:
		if r.ID == "" {
			return SendSpec{}, fmt.Errorf("send target %q: external sends require an id", r.Target)
		}
	default:
		return SendSpec{}, fmt.Errorf("unknown send target kind: %q", r.Target)
	}
	return spec, nil
}

func toSlackFields(raw []rawSlackField) []SlackField {
	if len(raw) == 0 {
		return nil
	}
	out := make([]SlackField, len(raw))
	for i, f := range raw {
		out[i] = SlackField{Name: f.Name, Field: f.Field, Value: f.Value}
	}
	return out
}

// rawDefinition is the flat, over-complete shape of one alert YAML file.
type rawDefinition struct {
	Enabled     *bool         `yaml:"enabled"`
	Interval    *string       `yaml:"interval"`
	AlwaysSend  bool          `yaml:"always-send"`
	WhenChanged yaml.Node     `yaml:"when-changed"`
	SQL         *string       `yaml:"sql"`
	Numerical   []rawThreshold `yaml:"numerical"`
	Shell       *string       `yaml:"shell"`
	Run         *string       `yaml:"run"`
	Event       *string       `yaml:"event"`
	Send        []rawSendSpec `yaml:"send"`
}

type rawWhenChangedDetail struct {
	Only   []string `yaml:"only"`
	Except []string `yaml:"except"`
}

func parseWhenChanged(node yaml.Node) (WhenChanged, error) {
	if node.Kind == 0 {
		return WhenChanged{Off: true}, nil // absent
	}
	if node.Kind == yaml.ScalarNode {
		var b bool
		if err := node.Decode(&b); err != nil {
			return WhenChanged{}, fmt.Errorf("parsing when-changed: %w", err)
		}
		return WhenChanged{Off: !b}, nil
	}
	var detail rawWhenChangedDetail
	if err := node.Decode(&detail); err != nil {
		return WhenChanged{}, fmt.Errorf("parsing when-changed: %w", err)
	}
	return WhenChanged{Only: detail.Only, Except: detail.Except}, nil
}

// ParseDefinition parses one alert YAML file's raw bytes into an
// un-normalized Definition; file is recorded verbatim, and an omitted
// interval defaults to "1 minute" (Normalize applies the daemon-wide floor).
func ParseDefinition(data []byte, file string) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	def := &Definition{
		File:       file,
		Enabled:    true,
		Interval:   "1 minute",
		AlwaysSend: raw.AlwaysSend,
	}
	if raw.Enabled != nil {
		def.Enabled = *raw.Enabled
	}
	if raw.Interval != nil {
		def.Interval = *raw.Interval
	}

	whenChanged, err := parseWhenChanged(raw.WhenChanged)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	def.WhenChanged = whenChanged

	source, err := parseSource(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	def.Source = source

	for i, rs := range raw.Send {
		spec, err := rs.toSendSpec()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: send entry #%d: %w", file, i+1, err)
		}
		def.Send = append(def.Send, spec)
	}

	return def, nil
}

// rawTargetsFile mirrors `_targets.yml`: a flat list of named, shareable
// targets that `send: {target: external, id: ...}` entries resolve against.
type rawTargetsFile struct {
	Targets []rawSendSpec `yaml:"targets"`
}

// ParseTargetsFile parses `_targets.yml`'s raw bytes into an id-keyed map.
// More than one entry may share an id, in which case a `target: external`
// send fans out to all of them.
func ParseTargetsFile(data []byte, file string) (map[string][]ExternalTarget, error) {
	var raw rawTargetsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	out := map[string][]ExternalTarget{}
	for i, rt := range raw.Targets {
		if rt.ID == "" {
			return nil, fmt.Errorf("parsing %s: target entry #%d: missing id", file, i+1)
		}
		target := ExternalTarget{ID: rt.ID, Kind: SendKind(rt.Target)}
		switch target.Kind {
		case SendEmail:
			target.Email = &EmailFields{Recipients: rt.Recipients}
		case SendSlack:
			target.Slack = &SlackFields{Webhook: rt.Webhook, Fields: toSlackFields(rt.Fields)}
		case SendZendesk:
			target.Zendesk = &ZendeskFields{
				Endpoint:     rt.Endpoint,
				AuthUser:     rt.User,
				AuthPass:     rt.Pass,
				Requester:    rt.Requester,
				FormID:       rt.FormID,
				CustomFields: rt.CustomFields,
			}
		default:
			return nil, fmt.Errorf("parsing %s: target %q: unknown kind %q", file, rt.ID, rt.Target)
		}
		out[rt.ID] = append(out[rt.ID], target)
	}
	return out, nil
}

func parseSource(raw rawDefinition) (Source, error) {
	set := 0
	if raw.SQL != nil {
		set++
	}
	if raw.Shell != nil || raw.Run != nil {
		set++
	}
	if raw.Event != nil {
		set++
	}
	if set > 1 {
		return Source{}, fmt.Errorf("at most one of sql, shell+run, event may be set")
	}

	switch {
	case raw.SQL != nil:
		thresholds := make([]threshold.Threshold, len(raw.Numerical))
		for i, n := range raw.Numerical {
			thresholds[i] = threshold.Threshold{Field: n.Field, AlertAt: n.AlertAt, ClearAt: n.ClearAt}
		}
		return Source{Kind: SourceSQL, Query: *raw.SQL, Thresholds: thresholds}, nil
	case raw.Shell != nil || raw.Run != nil:
		if raw.Shell == nil || raw.Run == nil {
			return Source{}, fmt.Errorf("shell source requires both shell and run")
		}
		return Source{Kind: SourceShell, Interpreter: *raw.Shell, Script: *raw.Run}, nil
	case raw.Event != nil:
		et := events.EventType(*raw.Event)
		if !et.Valid() {
			return Source{}, fmt.Errorf("unknown event type: %q", *raw.Event)
		}
		return Source{Kind: SourceEvent, EventType: et}, nil
	default:
		if len(raw.Numerical) > 0 {
			return Source{}, fmt.Errorf("numerical thresholds are only valid on an sql source")
		}
		return Source{Kind: SourceNone}, nil
	}
}
