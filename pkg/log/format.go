package log

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TextFormatter renders entries as "TIME LEVEL message key=value ...".
type TextFormatter struct{}

// Format implements Formatter.
func (f *TextFormatter) Format(e *Entry) []byte {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, f := range e.Fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(f.Value))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " =\"") {
			return fmt.Sprintf("%q", t)
		}
		return t
	case error:
		return fmt.Sprintf("%q", t.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(e *Entry) []byte {
	m := make(map[string]interface{}, len(e.Fields)+3)
	m["ts"] = e.Timestamp.Format(time.RFC3339Nano)
	m["level"] = strings.ToLower(e.Level.String())
	m["msg"] = e.Message
	for _, f := range e.Fields {
		if err, ok := f.Value.(error); ok {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}
	b, err := json.Marshal(m)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"level":"error","msg":"log marshal failed: %v"}`, err))
	}
	return append(b, '\n')
}

// FormatterFor returns the formatter for a format name ("text" or "json").
func FormatterFor(name string) Formatter {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}
