package logging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// token is a parsed {Name,alignment:format} hole in a message template.
type token struct {
	raw       string
	name      string
	hint      byte // '@', '$' or 0
	alignment int
	format    string
}

// Render substitutes the template's property tokens with the rendered values
// from props. Unknown properties and malformed tokens are written verbatim.
// String values are quoted unless the ":l" format is used.
func Render(template string, props map[string]PropertyValue, fp FormatProvider) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			raw := template[i : i+end+1]
			i += end + 1
			tok, ok := parseToken(raw)
			if !ok {
				b.WriteString(raw)
				continue
			}
			v, found := props[tok.name]
			if !found {
				b.WriteString(raw)
				continue
			}
			writeAligned(&b, renderToken(tok, v, fp), tok.alignment)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func parseToken(raw string) (token, bool) {
	inner := raw[1 : len(raw)-1]
	tok := token{raw: raw}
	if inner == "" {
		return tok, false
	}
	if inner[0] == '@' || inner[0] == '$' {
		tok.hint = inner[0]
		inner = inner[1:]
	}
	if idx := strings.IndexByte(inner, ':'); idx >= 0 {
		tok.format = inner[idx+1:]
		inner = inner[:idx]
	}
	if idx := strings.IndexByte(inner, ','); idx >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(inner[idx+1:]))
		if err != nil {
			return tok, false
		}
		tok.alignment = n
		inner = inner[:idx]
	}
	if !validName(inner) {
		return tok, false
	}
	tok.name = inner
	return tok, true
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= utf8.RuneSelf) {
			return false
		}
	}
	return true
}

func writeAligned(b *strings.Builder, s string, alignment int) {
	width := alignment
	if width < 0 {
		width = -width
	}
	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		b.WriteString(s)
		return
	}
	if alignment > 0 {
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(s)
		return
	}
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
}

func renderToken(tok token, v PropertyValue, fp FormatProvider) string {
	if tok.hint == '$' {
		if s, ok := v.(Scalar); ok {
			return quote(fmt.Sprint(s.Value))
		}
	}
	var b strings.Builder
	renderValue(&b, v, tok.format, fp)
	return b.String()
}

func renderValue(b *strings.Builder, v PropertyValue, format string, fp FormatProvider) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case Scalar:
		b.WriteString(renderScalar(t.Value, format, fp))
	case Sequence:
		b.WriteByte('[')
		for i, e := range t.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			renderValue(b, e, "", fp)
		}
		b.WriteByte(']')
	case Structure:
		if t.TypeTag != "" {
			b.WriteString(t.TypeTag)
			b.WriteByte(' ')
		}
		b.WriteString("{ ")
		for i, p := range t.Properties {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			b.WriteString(": ")
			renderValue(b, p.Value, "", fp)
		}
		b.WriteString(" }")
	case Dictionary:
		b.WriteByte('[')
		for i, e := range t.Entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			b.WriteString(renderScalar(e.Key.Value, "", fp))
			b.WriteString(": ")
			renderValue(b, e.Value, "", fp)
			b.WriteString(")")
		}
		b.WriteByte(']')
	}
}

func renderScalar(v any, format string, fp FormatProvider) string {
	if fp != nil {
		if s, ok := fp.FormatValue(v, format); ok {
			return s
		}
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		if format == "l" {
			return t
		}
		return quote(t)
	case time.Time:
		if format != "" {
			return t.Format(format)
		}
		return t.Format(time.RFC3339Nano)
	}
	if format != "" && format != "l" {
		return fmt.Sprintf("%"+format, v)
	}
	return fmt.Sprint(v)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
