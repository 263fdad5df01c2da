// Package input classifies one line of raw user text.
package input

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/batalabs/convo/internal/domain"
)

// IntentKind identifies the shape of a parsed line.
type IntentKind string

const (
	IntentPlain     IntentKind = "plain"
	IntentDirective IntentKind = "directive"
	IntentCommand   IntentKind = "command"
)

// Intent is the classified shape of one line of input.
type Intent interface {
	Kind() IntentKind
}

// PlainText is dialogue to forward as-is.
type PlainText struct {
	Text     string
	Mentions []Mention
}

// Directive invokes a built-in command.
type Directive struct {
	Name    string
	Args    []string
	RawArgs string
	// Mentions found in the argument tail. Offsets are relative to RawArgs.
	Mentions []Mention
}

// CustomCommand invokes a user-defined command.
type CustomCommand struct {
	Name     string
	Args     []string
	RawArgs  string
	Mentions []Mention
}

func (PlainText) Kind() IntentKind     { return IntentPlain }
func (Directive) Kind() IntentKind     { return IntentDirective }
func (CustomCommand) Kind() IntentKind { return IntentCommand }

// Defaults used when a Parser field is left empty.
const (
	DefaultPrefix    = "/"
	DefaultDelimiter = '@'
)

// Parser turns raw input into an Intent. The zero value parses with "/" as
// the command prefix, "@" as the mention delimiter and the built-in
// directive table.
type Parser struct {
	Prefix      string
	Delimiter   rune
	IsDirective func(name string) bool
}

func (p Parser) prefix() string {
	if p.Prefix == "" {
		return DefaultPrefix
	}
	return p.Prefix
}

func (p Parser) delimiter() rune {
	if p.Delimiter == 0 {
		return DefaultDelimiter
	}
	return p.Delimiter
}

// Parse classifies raw. It never fails: anything that is not a well-formed
// command invocation is plain text.
func (p Parser) Parse(raw string) Intent {
	prefix := p.prefix()
	if !strings.HasPrefix(raw, prefix) {
		return PlainText{Text: raw, Mentions: p.ExtractMentions(raw)}
	}
	rest := raw[len(prefix):]
	first, _ := utf8.DecodeRuneInString(rest)
	if rest == "" || unicode.IsSpace(first) {
		return PlainText{Text: raw, Mentions: p.ExtractMentions(raw)}
	}

	name, tail := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, tail = rest[:i], rest[i:]
	}
	rawArgs := strings.TrimSpace(tail)
	args := strings.Fields(rawArgs)
	mentions := p.ExtractMentions(rawArgs)

	isDirective := p.IsDirective
	if isDirective == nil {
		isDirective = domain.IsDirective
	}
	if isDirective(name) {
		return Directive{Name: name, Args: args, RawArgs: rawArgs, Mentions: mentions}
	}
	return CustomCommand{Name: name, Args: args, RawArgs: rawArgs, Mentions: mentions}
}

// Parse classifies raw with the default parser.
func Parse(raw string) Intent {
	return Parser{}.Parse(raw)
}
