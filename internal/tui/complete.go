package tui

import (
	"slices"
	"strings"

	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/input"
)

// ConfigSubcommands lists the /config verbs. Group names are completed too.
var ConfigSubcommands = []string{"reset", "set", "show"}

// Completer computes full-input completion candidates for the input line.
type Completer struct {
	Parser input.Parser
	// Names are the bare directive and command names.
	Names []string
	// SessionIDs complete the argument of switch.
	SessionIDs []string
}

func (c Completer) prefix() string {
	if c.Parser.Prefix == "" {
		return input.DefaultPrefix
	}
	return c.Parser.Prefix
}

// Complete returns candidates for text, or nil when nothing applies.
func (c Completer) Complete(text string) []string {
	prefix := c.prefix()
	if !strings.HasPrefix(text, prefix) {
		return nil
	}
	fields := strings.Fields(text[len(prefix):])
	trailingSpace := strings.HasSuffix(text, " ")

	// Still typing the command name.
	if len(fields) == 0 || (len(fields) == 1 && !trailingSpace) {
		return c.Parser.Completions(text, c.Names)
	}

	// argument returns the partial text of the n-th argument (1-based) when
	// the cursor is on it, or false when the line is past it.
	argument := func(n int) (string, bool) {
		switch {
		case len(fields) == n && trailingSpace:
			return "", true
		case len(fields) == n+1 && !trailingSpace:
			return fields[n], true
		}
		return "", false
	}
	head := prefix + fields[0] + " "

	switch fields[0] {
	case "config":
		if partial, ok := argument(1); ok {
			verbs := append(slices.Clone(ConfigSubcommands), config.ConfigGroupNames()...)
			return input.FilterByPrefix(verbs, head, partial)
		}
		if fields[1] == "set" {
			if partial, ok := argument(2); ok {
				return input.FilterByPrefix(config.ValidConfigKeys(), head+"set ", partial)
			}
		}
	case "switch":
		if partial, ok := argument(1); ok {
			return input.FilterByPrefix(c.SessionIDs, head, partial)
		}
	}
	return nil
}
