package alertdef

import "testing"

const sqlAlert = `
interval: 5 minutes
when-changed:
  except: [created_at]
sql: "select count(*) as error_count, now() as created_at from errors"
numerical:
  - field: error_count
    alert-at: 10
send:
  - target: email
    subject: "{{.error_count}} errors"
    template: "see dashboard"
    recipients: ["oncall@example.com"]
`

func TestParseDefinition_SQL(t *testing.T) {
	def, err := ParseDefinition([]byte(sqlAlert), "errors.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Source.Kind != SourceSQL {
		t.Fatalf("expected sql source, got %v", def.Source.Kind)
	}
	if len(def.Source.Thresholds) != 1 || def.Source.Thresholds[0].Field != "error_count" {
		t.Fatalf("unexpected thresholds: %+v", def.Source.Thresholds)
	}
	if def.WhenChanged.Off {
		t.Fatal("expected when-changed to be on")
	}
	if len(def.WhenChanged.Except) != 1 || def.WhenChanged.Except[0] != "created_at" {
		t.Fatalf("unexpected except list: %+v", def.WhenChanged.Except)
	}
	if len(def.Send) != 1 || def.Send[0].Kind != SendEmail {
		t.Fatalf("unexpected send: %+v", def.Send)
	}
}

const shellAlert = `
shell: /bin/sh
run: check-disk.sh
send:
  - target: slack
    subject: "disk alert"
    template: "{{.output}}"
    webhook: "https://hooks.slack.example/abc"
`

func TestParseDefinition_Shell(t *testing.T) {
	def, err := ParseDefinition([]byte(shellAlert), "disk.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Source.Kind != SourceShell {
		t.Fatalf("expected shell source, got %v", def.Source.Kind)
	}
	if def.Source.Interpreter != "/bin/sh" || def.Source.Script != "check-disk.sh" {
		t.Fatalf("unexpected shell fields: %+v", def.Source)
	}
}

const eventAlert = `
event: source-error
send:
  - target: external
    id: oncall
    subject: "source failed"
    template: "{{.message}}"
`

func TestParseDefinition_Event(t *testing.T) {
	def, err := ParseDefinition([]byte(eventAlert), "event.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Source.Kind != SourceEvent {
		t.Fatalf("expected event source, got %v", def.Source.Kind)
	}
	if def.Source.EventType != "source-error" {
		t.Fatalf("unexpected event type: %v", def.Source.EventType)
	}
	if def.Send[0].ID != "oncall" {
		t.Fatalf("expected external send id 'oncall', got %q", def.Send[0].ID)
	}
}

func TestParseDefinition_WhenChangedBoolOff(t *testing.T) {
	doc := "event: source-error\nwhen-changed: false\n"
	def, err := ParseDefinition([]byte(doc), "x.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !def.WhenChanged.Off {
		t.Fatal("expected when-changed: false to turn off change detection")
	}
}

func TestParseDefinition_WhenChangedAbsentDefaultsOff(t *testing.T) {
	doc := "event: source-error\n"
	def, err := ParseDefinition([]byte(doc), "x.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !def.WhenChanged.Off {
		t.Fatal("expected absent when-changed to default off")
	}
}

func TestParseDefinition_ConflictingSources(t *testing.T) {
	doc := "sql: \"select 1\"\nevent: source-error\n"
	if _, err := ParseDefinition([]byte(doc), "x.yml"); err == nil {
		t.Fatal("expected error for conflicting sources")
	}
}

func TestParseDefinition_NumericalOnNonSQLRejected(t *testing.T) {
	doc := "event: source-error\nnumerical:\n  - field: x\n    alert-at: 1\n"
	if _, err := ParseDefinition([]byte(doc), "x.yml"); err == nil {
		t.Fatal("expected error for numerical thresholds on a non-sql source")
	}
}

func TestParseDefinition_DefaultsEnabledAndInterval(t *testing.T) {
	doc := "event: source-error\n"
	def, err := ParseDefinition([]byte(doc), "x.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !def.Enabled {
		t.Fatal("expected enabled to default true")
	}
	if def.Interval != "1 minute" {
		t.Fatalf("expected default interval '1 minute', got %q", def.Interval)
	}
}

const targetsFile = `
targets:
  - id: oncall
    target: slack
    webhook: "https://hooks.slack.example/oncall"
  - id: oncall
    target: email
    recipients: ["oncall@example.com"]
`

func TestParseTargetsFile_FanOut(t *testing.T) {
	targets, err := ParseTargetsFile([]byte(targetsFile), "_targets.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets["oncall"]) != 2 {
		t.Fatalf("expected 2 targets fanned out under id 'oncall', got %d", len(targets["oncall"]))
	}
}

func TestParseTargetsFile_MissingID(t *testing.T) {
	doc := "targets:\n  - target: slack\n    webhook: x\n"
	if _, err := ParseTargetsFile([]byte(doc), "_targets.yml"); err == nil {
		t.Fatal("expected error for missing id")
	}
}
