// Package obslog is the structured logging ambient concern shared by every
// stage of the pipeline. It wraps github.com/phuslu/log with the field set
// dbmco-flux-etl's LogEntry standardized on (service, trace/span/correlation
// ids, arbitrary fields), and applies the PII masking rules spec.md §7
// requires before a field reaches the sink.
package obslog

import (
	"os"
	"regexp"
	"time"

	plog "github.com/phuslu/log"
)

// Logger is a thin, chainable wrapper around phuslu/log that carries a
// fixed set of contextual fields (tenant, document, request, stage) through
// every call site in the pipeline, the way a request-scoped logger would.
type Logger struct {
	base   plog.Logger
	fields map[string]string
}

// New builds the root logger for the process. service names the component
// ("ingest", "orchestrator", "factstore", ...) the way dbmco-flux-etl's
// LogEntry.Service field does.
func New(service string) *Logger {
	base := plog.Logger{
		Level:      plog.InfoLevel,
		Writer:     &plog.ConsoleWriter{Writer: os.Stderr},
		TimeFormat: time.RFC3339,
	}
	return &Logger{base: base, fields: map[string]string{"service": service}}
}

// WithLevel returns a copy of the logger at the given level. Accepted
// values: debug, info, warn, error.
func (l *Logger) WithLevel(level string) *Logger {
	cp := l.clone()
	switch level {
	case "debug":
		cp.base.Level = plog.DebugLevel
	case "warn":
		cp.base.Level = plog.WarnLevel
	case "error":
		cp.base.Level = plog.ErrorLevel
	default:
		cp.base.Level = plog.InfoLevel
	}
	return cp
}

// With returns a copy of the logger carrying an additional contextual field.
// Values are masked before being retained (see mask below), so a caller can
// never accidentally leak a tax id, IBAN, or email through a long-lived
// request-scoped logger.
func (l *Logger) With(key, value string) *Logger {
	cp := l.clone()
	cp.fields[key] = mask(value)
	return cp
}

func (l *Logger) WithTenant(tenantID string) *Logger   { return l.With("tenant_id", tenantID) }
func (l *Logger) WithDocument(docID string) *Logger    { return l.With("document_id", docID) }
func (l *Logger) WithRequest(requestID string) *Logger { return l.With("request_id", requestID) }
func (l *Logger) WithStage(stage string) *Logger       { return l.With("stage", stage) }

func (l *Logger) clone() *Logger {
	fields := make(map[string]string, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{base: l.base, fields: fields}
}

func (l *Logger) entry(e *plog.Entry) *plog.Entry {
	for k, v := range l.fields {
		e = e.Str(k, v)
	}
	return e
}

func (l *Logger) Debug(msg string) { l.entry(l.base.Debug()).Msg(msg) }
func (l *Logger) Info(msg string)  { l.entry(l.base.Info()).Msg(msg) }
func (l *Logger) Warn(msg string)  { l.entry(l.base.Warn()).Msg(msg) }

func (l *Logger) Error(err error, msg string) {
	l.entry(l.base.Error()).Err(err).Msg(msg)
}

// Event returns a raw phuslu/log entry at the given level pre-populated
// with this logger's fields, for call sites that need to attach additional
// structured values (counts, durations) before calling .Msg.
func (l *Logger) Event(level string) *plog.Entry {
	var e *plog.Entry
	switch level {
	case "debug":
		e = l.base.Debug()
	case "warn":
		e = l.base.Warn()
	case "error":
		e = l.base.Error()
	default:
		e = l.base.Info()
	}
	return l.entry(e)
}

var (
	taxIDPattern = regexp.MustCompile(`(?i)\b[A-Z]{6}\d{2}[A-Z]\d{2}[A-Z]\d{3}[A-Z]\b`)
	ibanPattern  = regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
)

// mask redacts tax-ID, IBAN, and email patterns from a value before it is
// retained on the logger or written to the sink, per spec.md §7.
func mask(value string) string {
	value = taxIDPattern.ReplaceAllString(value, "[REDACTED-TAXID]")
	value = ibanPattern.ReplaceAllString(value, "[REDACTED-IBAN]")
	value = emailPattern.ReplaceAllString(value, "[REDACTED-EMAIL]")
	return value
}
