package input

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse_plainText(t *testing.T) {
	for _, s := range []string{"", "hello", " /task x", "what is 1/2", "@Bob hi", "/", "/ task", "/\tx"} {
		got := Parse(s)
		plain, ok := got.(PlainText)
		if !ok {
			t.Errorf("Parse(%q) = %T, want PlainText", s, got)
			continue
		}
		if plain.Text != s {
			t.Errorf("Parse(%q).Text = %q", s, plain.Text)
		}
	}
}

func TestParse_customCommand(t *testing.T) {
	got := Parse("/task buy milk")
	want := CustomCommand{Name: "task", Args: []string{"buy", "milk"}, RawArgs: "buy milk"}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_directive(t *testing.T) {
	got := Parse("/autochat   5  plan the trip ")
	d, ok := got.(Directive)
	if !ok {
		t.Fatalf("Parse = %T, want Directive", got)
	}
	if d.Name != "autochat" {
		t.Errorf("Name = %q", d.Name)
	}
	if diff := cmp.Diff([]string{"5", "plan", "the", "trip"}, d.Args); diff != "" {
		t.Errorf("Args mismatch:\n%s", diff)
	}
	if d.RawArgs != "5  plan the trip" {
		t.Errorf("RawArgs = %q", d.RawArgs)
	}
}

func TestParse_nameOnly(t *testing.T) {
	got := Parse("/deploy")
	c, ok := got.(CustomCommand)
	if !ok || c.Name != "deploy" || len(c.Args) != 0 || c.RawArgs != "" {
		t.Errorf("Parse(/deploy) = %#v", got)
	}
}

func TestParse_caseSensitiveDirectives(t *testing.T) {
	if _, ok := Parse("/Help").(CustomCommand); !ok {
		t.Error("directive lookup should be case-sensitive")
	}
}

func TestParse_customPrefixAndDirectives(t *testing.T) {
	p := Parser{Prefix: "!!", IsDirective: func(n string) bool { return n == "go" }}
	if _, ok := p.Parse("!!go now").(Directive); !ok {
		t.Error("expected directive with custom prefix")
	}
	if _, ok := p.Parse("!!help").(CustomCommand); !ok {
		t.Error("help is not a directive for this parser")
	}
	if _, ok := p.Parse("/go").(PlainText); !ok {
		t.Error("default prefix should not apply")
	}
}

func TestParse_commandExposesArgMentions(t *testing.T) {
	c := Parse("/ask @Ayaka_Nakamura about @Bob").(CustomCommand)
	if len(c.Mentions) != 2 {
		t.Fatalf("Mentions = %d, want 2", len(c.Mentions))
	}
	if c.Mentions[0].DisplayName != "Ayaka Nakamura" {
		t.Errorf("DisplayName = %q", c.Mentions[0].DisplayName)
	}
	if c.RawArgs[c.Mentions[1].Start:c.Mentions[1].End] != "@Bob" {
		t.Error("offsets should index RawArgs")
	}
}

func TestExtractMentions(t *testing.T) {
	text := "@Ayaka_Nakamura hi @Bob"
	want := []Mention{
		{RawToken: "@Ayaka_Nakamura", DisplayName: "Ayaka Nakamura", Start: 0, End: 15},
		{RawToken: "@Bob", DisplayName: "Bob", Start: 19, End: 23},
	}
	got := ExtractMentions(text)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractMentions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, ExtractMentions(text)); diff != "" {
		t.Errorf("ExtractMentions is not idempotent:\n%s", diff)
	}
	if text != "@Ayaka_Nakamura hi @Bob" {
		t.Error("input modified")
	}
}

func TestExtractMentions_edgeCases(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"no mentions here", 0},
		{"lonely @ sign", 0},
		{"trailing @", 0},
		{"mail me at a@b.c", 1},
		{"@a@b", 1},
		{"héllo @Zoë", 1},
	}
	for _, tt := range tests {
		if got := ExtractMentions(tt.text); len(got) != tt.want {
			t.Errorf("ExtractMentions(%q) = %d mentions, want %d", tt.text, len(got), tt.want)
		}
	}
}

func TestExtractMentions_multibyteOffsets(t *testing.T) {
	text := "héllo @Zoë!"
	m := ExtractMentions(text)
	if len(m) != 1 {
		t.Fatalf("got %d mentions", len(m))
	}
	if text[m[0].Start:m[0].End] != "@Zoë!" {
		t.Errorf("slice = %q", text[m[0].Start:m[0].End])
	}
}

func TestCompletions(t *testing.T) {
	p := Parser{}
	names := []string{"help", "hello", "deploy", "help"}
	got := p.Completions("/he", names)
	if diff := cmp.Diff([]string{"/hello", "/help"}, got); diff != "" {
		t.Errorf("Completions mismatch:\n%s", diff)
	}
	if got := p.Completions("/help me", names); got != nil {
		t.Errorf("expected no completions after a space, got %v", got)
	}
	if got := p.Completions("hello", names); got != nil {
		t.Errorf("expected nil for plain text, got %v", got)
	}
	if got := p.Completions("/", names); len(got) != 3 {
		t.Errorf("bare prefix should list all names, got %v", got)
	}
}
