package input

import (
	"slices"
	"strings"
)

// Completions returns full-input completion candidates for a partially typed
// command name. names are bare command names without the prefix.
func (p Parser) Completions(text string, names []string) []string {
	prefix := p.prefix()
	if !strings.HasPrefix(text, prefix) {
		return nil
	}
	// Once the name is complete there is nothing left to suggest.
	if strings.ContainsAny(text, " \t") {
		return nil
	}
	partial := text[len(prefix):]
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return FilterByPrefix(sorted, prefix, partial)
}

// FilterByPrefix returns candidates starting with partial, each prepended
// with prefix.
func FilterByPrefix(candidates []string, prefix, partial string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, partial) {
			out = append(out, prefix+c)
		}
	}
	return out
}
