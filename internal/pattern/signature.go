package pattern

import (
	"sort"
	"strings"
)

const (
	partSep = "|"
	kvSep   = "="
)

// Signature normalizes the given parts into a context signature. Empty parts
// are dropped; each part is lowercased with whitespace collapsed.
func Signature(parts ...string) string {
	norm := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = normalize(p); p != "" {
			norm = append(norm, p)
		}
	}
	return strings.Join(norm, partSep)
}

// ContextSignature derives the signature for a template used in a context.
// Context keys are sorted so map iteration order never leaks into the key.
func ContextSignature(templateID string, context map[string]string) string {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, templateID)
	for _, k := range keys {
		key, val := normalize(k), normalize(context[k])
		if key == "" || val == "" {
			continue
		}
		parts = append(parts, key+kvSep+val)
	}
	return Signature(parts...)
}

// NormalizeSignature canonicalizes a signature supplied by a caller so lookups
// are insensitive to case and stray whitespace.
func NormalizeSignature(sig string) string {
	return Signature(strings.Split(sig, partSep)...)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokens splits a signature into comparable tokens.
func tokens(sig string) []string {
	return strings.FieldsFunc(strings.ToLower(sig), func(r rune) bool {
		switch r {
		case '|', '=', '/', ' ', '\t', '\n':
			return true
		}
		return false
	})
}
