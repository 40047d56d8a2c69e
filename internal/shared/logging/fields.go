// Package logging provides a chainable structured-field builder used
// across alertd and the join worker, plus a set of per-component
// convenience constructors. Fields is logger-agnostic; ToZapFields adapts
// it for the zap logger used throughout the daemon.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields is an unordered set of structured log attributes, built up through
// chained calls and flushed into the concrete logger at the call site.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

func (f Fields) TraceID(id string) Fields {
	if id != "" {
		f["trace_id"] = id
	}
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToZapFields flattens the set into []zap.Field for use with zap.Logger.
func (f Fields) ToZapFields() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// DatabaseFields is the standard field set for a database-component log line.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is the standard field set for an HTTP request/response log line.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// AlertFields is the standard field set for an alert evaluation log line.
func AlertFields(operation, file string) Fields {
	return NewFields().Component("alert").Operation(operation).Resource("definition", file)
}

// TargetFields is the standard field set for a dispatch-to-target log line.
func TargetFields(operation, targetID string) Fields {
	return NewFields().Component("target").Operation(operation).Resource("target", targetID)
}

// JoinFields is the standard field set for a join-worker log line.
func JoinFields(operation, name string) Fields {
	return NewFields().Component("join").Operation(operation).Resource("chunked-file", name)
}

// PerformanceFields is the standard field set for a timed operation's outcome.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}
