package sink

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Chichichkin/docsink/internal/logging"
)

// Handler adapts a Sink to slog. The record message is used as the message
// template, attributes become properties and groups become structures. The
// first error-valued attribute also populates the record exception.
type Handler struct {
	sink   *Sink
	attrs  []groupedAttr
	groups []string
}

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

func (s *Sink) Handler() *Handler {
	return &Handler{sink: s}
}

// LevelFromSlog maps slog levels onto the six sink levels.
func LevelFromSlog(l slog.Level) logging.Level {
	switch {
	case l < slog.LevelDebug:
		return logging.VerboseLevel
	case l < slog.LevelInfo:
		return logging.DebugLevel
	case l < slog.LevelWarn:
		return logging.InformationLevel
	case l < slog.LevelError:
		return logging.WarningLevel
	case l < slog.LevelError+4:
		return logging.ErrorLevel
	default:
		return logging.FatalLevel
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.sink.IsEnabled(LevelFromSlog(l))
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := &logging.LogRecord{
		Timestamp:       r.Time,
		Level:           LevelFromSlog(r.Level),
		MessageTemplate: r.Message,
	}

	root := map[string]any{}
	for _, ga := range h.attrs {
		insertAttr(root, ga.groups, ga.attr, rec)
	}
	r.Attrs(func(a slog.Attr) bool {
		insertAttr(root, h.groups, a, rec)
		return true
	})

	rec.Properties = make(map[string]logging.PropertyValue, len(root))
	for k, v := range root {
		rec.Properties[k] = toProperty(v)
	}

	h.sink.Emit(rec)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		sink:   h.sink,
		attrs:  append([]groupedAttr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

// node is an attribute group under construction.
type node map[string]any

func insertAttr(root map[string]any, groups []string, a slog.Attr, rec *logging.LogRecord) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	target := root
	for _, g := range groups {
		child, ok := target[g].(node)
		if !ok {
			child = node{}
			target[g] = child
		}
		target = child
	}

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if len(members) == 0 {
			return
		}
		path := groups
		if a.Key != "" {
			path = append(append([]string(nil), groups...), a.Key)
		}
		for _, m := range members {
			insertAttr(root, path, m, rec)
		}
		return
	}

	v := a.Value.Any()
	if err, ok := v.(error); ok {
		if rec.Exception == nil {
			rec.Exception = logging.ExceptionFromError(err)
		}
		v = err.Error()
	}
	target[a.Key] = v
}

func toProperty(v any) logging.PropertyValue {
	n, ok := v.(node)
	if !ok {
		return logging.ValueOf(v)
	}
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	props := make([]logging.Property, 0, len(keys))
	for _, k := range keys {
		props = append(props, logging.Property{Name: k, Value: toProperty(n[k])})
	}
	return logging.Structure{Properties: props}
}
