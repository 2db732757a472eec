package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/Chichichkin/docsink/internal/logging"
)

var templateEscaper = strings.NewReplacer("{", "{{", "}", "}}")

// EscapeTemplate makes text render verbatim as a message template.
func EscapeTemplate(text string) string {
	return templateEscaper.Replace(text)
}

// ParseLine converts one log line into a record. JSON objects are read as
// compact structured events: @t/timestamp/time, @l/level, @mt (template),
// @m/msg/message (plain text) and @x/error map onto the record, every other
// field becomes a property. Anything else is a plain Information record.
// structured reports whether the line was read as JSON.
func ParseLine(p *fastjson.Parser, line string, now time.Time) (rec *logging.LogRecord, structured bool) {
	rec = &logging.LogRecord{
		Timestamp:  now,
		Level:      logging.InformationLevel,
		Properties: map[string]logging.PropertyValue{},
	}

	if looksStructured(line) {
		if v, err := p.Parse(strings.TrimSpace(line)); err == nil && v.Type() == fastjson.TypeObject {
			fillFromJSON(rec, v.GetObject())
			return rec, true
		}
	}

	rec.MessageTemplate = EscapeTemplate(strings.TrimRight(line, "\r"))
	return rec, false
}

// looksStructured reports whether line is meant to be a JSON event. Such a
// line that ParseLine reads as plain text is malformed.
func looksStructured(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "{")
}

func fillFromJSON(rec *logging.LogRecord, obj *fastjson.Object) {
	var template, plain string
	var hasTemplate bool

	obj.Visit(func(key []byte, v *fastjson.Value) {
		k := string(key)
		switch k {
		case "@t", "timestamp", "time":
			if ts, ok := parseTime(v); ok {
				rec.Timestamp = ts
				return
			}
		case "@l", "level":
			if lvl, err := logging.ParseLevel(string(v.GetStringBytes())); err == nil {
				rec.Level = lvl
				return
			}
		case "@mt":
			template = string(v.GetStringBytes())
			hasTemplate = true
			return
		case "@m", "msg", "message":
			if v.Type() == fastjson.TypeString {
				plain = string(v.GetStringBytes())
				return
			}
		case "@x", "error":
			if v.Type() == fastjson.TypeString {
				rec.Exception = exceptionFromText(string(v.GetStringBytes()))
				return
			}
		}
		rec.Properties[k] = logging.ValueOf(jsonValue(v))
	})

	if hasTemplate {
		rec.MessageTemplate = template
	} else {
		rec.MessageTemplate = EscapeTemplate(plain)
	}
}

func parseTime(v *fastjson.Value) (time.Time, bool) {
	switch v.Type() {
	case fastjson.TypeString:
		ts, err := time.Parse(time.RFC3339Nano, string(v.GetStringBytes()))
		return ts, err == nil
	case fastjson.TypeNumber:
		secs := v.GetFloat64()
		return time.Unix(0, int64(secs*float64(time.Second))), true
	}
	return time.Time{}, false
}

// exceptionFromText splits a captured exception into its first line and the
// remaining stack trace.
func exceptionFromText(text string) *logging.ExceptionInfo {
	msg, stack, _ := strings.Cut(text, "\n")
	return &logging.ExceptionInfo{Message: strings.TrimSpace(msg), StackTrace: stack}
}

func jsonValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		items := v.GetArray()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	case fastjson.TypeObject:
		out := map[string]any{}
		v.GetObject().Visit(func(key []byte, item *fastjson.Value) {
			out[string(key)] = jsonValue(item)
		})
		return out
	}
	return nil
}

// pathProperties derives source properties from a log file path. Files laid
// out as <root>/<namespace>_<pod>_<uid>/<container>/<n>.log also carry the
// pod coordinates.
func pathProperties(root, path, node string) map[string]logging.PropertyValue {
	props := map[string]logging.PropertyValue{
		"File": logging.Scalar{Value: path},
	}
	if node != "" {
		props["Node"] = logging.Scalar{Value: node}
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return props
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return props
	}
	pod := strings.Split(parts[0], "_")
	if len(pod) != 3 {
		return props
	}
	props["Namespace"] = logging.Scalar{Value: pod[0]}
	props["Pod"] = logging.Scalar{Value: pod[1]}
	props["PodUID"] = logging.Scalar{Value: pod[2]}
	props["Container"] = logging.Scalar{Value: parts[1]}
	return props
}
