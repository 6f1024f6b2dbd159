package analytics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errTemplate = errors.New("invalid summary template")

// RenderTemplate fills {name} and {name:spec} placeholders from values.
// Supported specs are .Nf, d, "," and ",.Nf"; {{ and }} are literal braces.
// Any unknown name, malformed brace or unsupported spec is an error.
func RenderTemplate(tmpl string, values map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder", errTemplate)
			}
			field := tmpl[i+1 : i+1+end]
			out, err := renderField(field, values)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}'", errTemplate)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func renderField(field string, values map[string]any) (string, error) {
	name, spec, _ := strings.Cut(field, ":")
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "{[.!") {
		return "", fmt.Errorf("%w: placeholder %q", errTemplate, field)
	}
	v, ok := values[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown name %q", errTemplate, name)
	}
	if spec == "" {
		return plain(v), nil
	}
	num, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("%w: spec %q on non-number %q", errTemplate, spec, name)
	}
	return formatSpec(num, spec)
}

func plain(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case nil:
		return "None"
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func formatSpec(v float64, spec string) (string, error) {
	grouped := strings.HasPrefix(spec, ",")
	rest := strings.TrimPrefix(spec, ",")
	switch {
	case rest == "d":
		if v != math.Trunc(v) {
			return "", fmt.Errorf("%w: 'd' on fractional value", errTemplate)
		}
		return group(strconv.FormatFloat(v, 'f', 0, 64), grouped), nil
	case rest == "" && grouped:
		if v == math.Trunc(v) {
			return group(strconv.FormatFloat(v, 'f', 0, 64), true), nil
		}
		return group(strconv.FormatFloat(v, 'f', -1, 64), true), nil
	case strings.HasPrefix(rest, ".") && strings.HasSuffix(rest, "f"):
		prec, err := strconv.Atoi(rest[1 : len(rest)-1])
		if err != nil || prec < 0 || prec > 10 {
			return "", fmt.Errorf("%w: precision in %q", errTemplate, spec)
		}
		return group(strconv.FormatFloat(v, 'f', prec, 64), grouped), nil
	}
	return "", fmt.Errorf("%w: unsupported spec %q", errTemplate, spec)
}

// group inserts thousands separators into a plain decimal string.
func group(s string, enabled bool) string {
	if !enabled {
		return s
	}
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}
