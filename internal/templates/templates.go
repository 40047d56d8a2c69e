// Package templates builds and renders the shared template context used by
// the Target Dispatcher: hostname, filename, now, interval, plus whatever
// the Source Runner inserted (rows or output), and the rendered subject.
package templates

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// Context is the mutable render context threaded from Source Runner through
// to Target Dispatcher for one evaluation.
type Context struct {
	Hostname string
	Filename string
	Now      time.Time
	Interval time.Duration
	Vars     map[string]interface{}
}

// Build seeds a fresh Context for one evaluation of the alert at file,
// with the given interval and current time.
func Build(file string, interval time.Duration, now time.Time) *Context {
	host, _ := os.Hostname()
	return &Context{
		Hostname: host,
		Filename: file,
		Now:      now,
		Interval: interval,
		Vars:     map[string]interface{}{},
	}
}

// Insert adds or replaces a named variable in the context (e.g. "rows",
// "output", or an Event's context map merged in).
func (c *Context) Insert(key string, value interface{}) {
	c.Vars[key] = value
}

// data flattens the Context into the map text/template renders against.
func (c *Context) data() map[string]interface{} {
	m := make(map[string]interface{}, len(c.Vars)+4)
	for k, v := range c.Vars {
		m[k] = v
	}
	m["hostname"] = c.Hostname
	m["filename"] = c.Filename
	m["now"] = c.Now
	m["interval"] = c.Interval
	return m
}

// Load parses a subject and body template pair, failing fast on syntax
// errors so normalization can reject a bad alert definition before it's
// ever scheduled.
func Load(subject, body string) (*template.Template, *template.Template, error) {
	subjTpl, err := template.New("subject").Parse(subject)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing subject template: %w", err)
	}
	bodyTpl, err := template.New("body").Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing body template: %w", err)
	}
	return subjTpl, bodyTpl, nil
}

// Render renders subject then body, inserting the rendered subject into the
// context under "subject" before rendering body (so bodies can reference
// {{.subject}}).
func Render(c *Context, subjTpl, bodyTpl *template.Template) (subject, body string, err error) {
	var subjBuf bytes.Buffer
	if err := subjTpl.Execute(&subjBuf, c.data()); err != nil {
		return "", "", fmt.Errorf("rendering subject template: %w", err)
	}
	subject = subjBuf.String()
	c.Insert("subject", subject)

	var bodyBuf bytes.Buffer
	if err := bodyTpl.Execute(&bodyBuf, c.data()); err != nil {
		return "", "", fmt.Errorf("rendering body template: %w", err)
	}
	body = bodyBuf.String()

	return subject, body, nil
}
