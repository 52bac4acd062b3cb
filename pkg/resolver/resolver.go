// Package resolver implements the single strict template resolver used
// throughout AetherFlow. It recognizes exactly two token forms —
// {{PATH}} and {{PATH:DEFAULT}} — and rejects every other templating
// syntax that might appear in a YAML value (${...}, {%...%}, {#...#}, or a
// bare brace form). Scoping by execution phase is not performed inside the
// resolver: callers build a smaller variable root containing only the
// roots allowed for that phase, per the single-function design.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Root is the variable root a string is rendered against: a (possibly
// nested) mapping from identifier to value or to another Root.
type Root = map[string]interface{}

// Render expands every {{PATH}} / {{PATH:DEFAULT}} token in s against root.
// Any other brace form anywhere in s fails with *errors.ResolverSyntaxError
// carrying the fixed message. A token whose PATH does not resolve and has
// no DEFAULT fails with *errors.ResolverMissingKeyError.
func Render(s string, root Root) (string, error) {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		switch {
		case hasPrefixAt(s, i, "${"), hasPrefixAt(s, i, "{%"), hasPrefixAt(s, i, "{#"):
			return "", &aferrors.ResolverSyntaxError{Source: s}

		case hasPrefixAt(s, i, "{{"):
			closeIdx := strings.Index(s[i+2:], "}}")
			if closeIdx == -1 {
				return "", &aferrors.ResolverSyntaxError{Source: s}
			}
			inner := s[i+2 : i+2+closeIdx]
			rendered, err := renderToken(inner, root)
			if err != nil {
				return "", err
			}
			buf.WriteString(rendered)
			i = i + 2 + closeIdx + 2

		case s[i] == '{':
			// Any brace usage other than a well-formed {{...}} token is
			// disallowed syntax, per the exhaustive grammar.
			return "", &aferrors.ResolverSyntaxError{Source: s}

		default:
			buf.WriteByte(s[i])
			i++
		}
	}
	return buf.String(), nil
}

// hasPrefixAt reports whether s[i:] begins with prefix, bounds-checked.
func hasPrefixAt(s string, i int, prefix string) bool {
	return i+len(prefix) <= len(s) && s[i:i+len(prefix)] == prefix
}

// renderToken renders the content between "{{" and "}}" (exclusive).
func renderToken(inner string, root Root) (string, error) {
	path, defaultVal, hasDefault := splitToken(inner)

	if !identPattern.MatchString(path) {
		return "", &aferrors.ResolverSyntaxError{Source: "{{" + inner + "}}"}
	}

	val, ok := lookup(path, root)
	if ok {
		return val, nil
	}
	if hasDefault {
		return defaultVal, nil
	}
	return "", &aferrors.ResolverMissingKeyError{Path: path}
}

// splitToken splits "PATH" or "PATH:DEFAULT" on the first colon. PATH is
// trimmed of surrounding whitespace; DEFAULT is the literal remainder,
// untrimmed.
func splitToken(inner string) (path string, defaultVal string, hasDefault bool) {
	idx := strings.IndexByte(inner, ':')
	if idx == -1 {
		return strings.TrimSpace(inner), "", false
	}
	return strings.TrimSpace(inner[:idx]), inner[idx+1:], true
}

// lookup traverses path (dot-separated identifiers) through root. Returns
// ok=false if any segment is absent, not a nested mapping, or resolves to
// the empty string — all three are "missing" per the resolver's rules.
func lookup(path string, root Root) (string, bool) {
	segments := strings.Split(path, ".")

	var current interface{} = map[string]interface{}(root)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		val, present := m[seg]
		if !present {
			return "", false
		}
		current = val
	}

	text := ToText(current)
	if text == "" {
		return "", false
	}
	return text, true
}

// ToText converts a resolved leaf value to its textual substitution form.
func ToText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// IsStandaloneToken reports whether s is exactly one {{...}} token with no
// surrounding text, e.g. "{{env.API_KEY}}" but not "prefix-{{env.X}}" or
// "{{env.X}}{{env.Y}}". Decode-marked resource fields must be standalone
// tokens; a concatenated string cannot be decoded.
func IsStandaloneToken(s string) bool {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < len("{{}}") {
		return false
	}
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return false
	}
	inner := trimmed[2 : len(trimmed)-2]
	// No nested/second token boundary inside.
	return !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}")
}

// RenderValue renders s like Render, except when s is a standalone
// {{PATH}} / {{PATH:DEFAULT}} token (see IsStandaloneToken): in that
// case the resolved value is returned as-is rather than converted to
// text, so a leaf referencing e.g. a step's boolean or numeric output
// keeps its type instead of becoming the string "true" or "0". A
// non-standalone string (one with surrounding text, or none at all)
// always renders to its textual form, same as Render. Used for
// rendering a step's declared `outputs` mapping, where a bare
// `{{result.KEY}}` expression should promote KEY's original type.
func RenderValue(s string, root Root) (interface{}, error) {
	if !IsStandaloneToken(s) {
		return Render(s, root)
	}

	trimmed := strings.TrimSpace(s)
	inner := trimmed[2 : len(trimmed)-2]
	path, defaultVal, hasDefault := splitToken(inner)

	if !identPattern.MatchString(path) {
		return "", &aferrors.ResolverSyntaxError{Source: s}
	}

	val, ok := lookupRaw(path, root)
	if ok {
		return val, nil
	}
	if hasDefault {
		return defaultVal, nil
	}
	return nil, &aferrors.ResolverMissingKeyError{Path: path}
}

// lookupRaw traverses path through root like lookup, but returns the
// resolved value unconverted. Missingness is still decided by the
// textual-form emptiness rule so RenderValue and Render agree on which
// paths count as missing.
func lookupRaw(path string, root Root) (interface{}, bool) {
	segments := strings.Split(path, ".")

	var current interface{} = map[string]interface{}(root)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, present := m[seg]
		if !present {
			return nil, false
		}
		current = val
	}

	if ToText(current) == "" {
		return nil, false
	}
	return current, true
}

// RenderTree walks v — recursing through map[string]interface{} and
// []interface{} — rendering every string leaf through Render against
// root. Non-string, non-container leaves (numbers, bools, nil) pass
// through unchanged. Used wherever a whole config/options/inputs
// fragment needs rendering rather than a single string, e.g. the
// profile/resource builder and step-input rendering.
func RenderTree(v interface{}, root Root) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return Render(t, root)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			rendered, err := RenderTree(val, root)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			rendered, err := RenderTree(val, root)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// ContainsTemplateSyntax reports whether s contains any templating marker
// at all (used by callers deciding whether a literal value needs
// rendering).
func ContainsTemplateSyntax(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "${") ||
		strings.Contains(s, "{%") || strings.Contains(s, "{#")
}
