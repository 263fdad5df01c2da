package tui

import (
	"strings"
	"testing"

	"github.com/batalabs/convo/internal/input"
)

func TestCompleter_Complete(t *testing.T) {
	c := Completer{
		Names:      []string{"help", "commands", "config", "switch", "review", "reopen"},
		SessionIDs: []string{"abc123", "abd456", "xyz"},
	}
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain text", "hello", nil},
		{"bare prefix lists all", "/", []string{"/commands", "/config", "/help", "/reopen", "/review", "/switch"}},
		{"partial name", "/re", []string{"/reopen", "/review"}},
		{"no match", "/zz", nil},
		{"config verbs", "/config ", []string{
			"/config reset", "/config set", "/config show",
			"/config input", "/config commands", "/config daemon", "/config autochat", "/config runtime",
		}},
		{"config partial", "/config s", []string{"/config set", "/config show"}},
		{"config set keys", "/config set autochat.m", []string{"/config set autochat.max_iterations"}},
		{"config value is not completed", "/config set log.level ", nil},
		{"switch ids", "/switch ab", []string{"/switch abc123", "/switch abd456"}},
		{"unknown command args", "/review x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Complete(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Complete(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompleter_customPrefix(t *testing.T) {
	c := Completer{Parser: input.Parser{Prefix: "!"}, Names: []string{"help"}}
	if got := c.Complete("!h"); len(got) != 1 || got[0] != "!help" {
		t.Errorf("Complete = %q", got)
	}
	if got := c.Complete("/h"); got != nil {
		t.Errorf("default prefix should not complete, got %q", got)
	}
}
