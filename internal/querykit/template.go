package querykit

import (
	"fmt"
	"regexp"
	"strings"
)

// formatSuffixes are the Grafana format modifiers a braced placeholder may
// carry; the modifier is stripped and the raw value substituted.
const formatSuffixes = `(?::(?:csv|json|pipe|regex|distributed))?`

var templateVarRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)` + formatSuffixes + `\}|\$([A-Za-z0-9_]+)\b`)

// placeholderRe matches every reference form of one variable: ${name},
// ${name:format} and bare $name (word-bounded, so $app never matches
// inside $apple).
func placeholderRe(name string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	return regexp.MustCompile(`\$\{` + quoted + formatSuffixes + `\}|\$` + quoted + `\b`)
}

// ResolveTemplateVariables substitutes $name and ${name} placeholders in a
// query with bindings from vars. Values may be strings or string slices.
// Multi-value bindings become a quoted regex alternation and the adjacent
// "=" operator is rewritten to "=~"; substitution alone is not enough for
// multi-value correctness. Unbound placeholders are left untouched.
// Resolution is idempotent: a fully resolved string passes through
// unchanged.
func ResolveTemplateVariables(query string, vars map[string]any) string {
	if query == "" || len(vars) == 0 {
		return query
	}

	resolved := query
	seen := make(map[string]bool)
	for _, m := range templateVarRe.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		bound, ok := vars[name]
		if !ok {
			continue
		}

		values := normalizeBinding(bound)
		refRe := placeholderRe(name)

		switch len(values) {
		case 0:
			resolved = refRe.ReplaceAllLiteralString(resolved, "")
		case 1:
			replacement := values[0]
			if needsPromQLQuoting(replacement) {
				replacement = `"` + replacement + `"`
			}
			resolved = refRe.ReplaceAllLiteralString(resolved, replacement)
		default:
			escaped := make([]string, len(values))
			for i, v := range values {
				escaped[i] = escapeForPromQLRegex(v)
			}
			alternation := `"` + strings.Join(escaped, "|") + `"`
			// "= $var" must become "=~" alongside the alternation.
			opRe := regexp.MustCompile(`=\s*(?:` + refRe.String() + `)`)
			resolved = opRe.ReplaceAllLiteralString(resolved, "=~"+alternation)
			resolved = refRe.ReplaceAllLiteralString(resolved, alternation)
		}
	}
	return resolved
}

// normalizeBinding flattens a binding into a list of non-empty strings.
// Comma-joined scalars are split; single-item lists collapse to scalar
// substitution upstream.
func normalizeBinding(bound any) []string {
	var raw []string
	switch v := bound.(type) {
	case nil:
		return nil
	case string:
		if strings.Contains(v, ",") {
			raw = strings.Split(v, ",")
		} else {
			raw = []string{v}
		}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			raw = append(raw, fmt.Sprintf("%v", item))
		}
	default:
		raw = []string{fmt.Sprintf("%v", v)}
	}

	values := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// escapeForPromQLRegex escapes regex metacharacters so vendor values can be
// used inside a PromQL regex alternation.
func escapeForPromQLRegex(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '|', '(', ')', '[', ']', '{', '}', '^', '$', '*', '+', '?', '.', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// needsPromQLQuoting reports whether a scalar substitution must be quoted:
// PromQL special characters anywhere, or a leading digit.
func needsPromQLQuoting(value string) bool {
	if value == "" {
		return false
	}
	if value[0] >= '0' && value[0] <= '9' {
		return true
	}
	return strings.ContainsAny(value, `/\:;=!~^$*+?()[]{}|& `+"\t\n")
}
