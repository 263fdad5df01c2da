package input

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mention is an @token reference inside free text.
// Start and End are byte offsets into the scanned string; End is exclusive.
type Mention struct {
	RawToken    string
	DisplayName string
	Start       int
	End         int
}

// mentionSeparator is rendered as a space in display names.
const mentionSeparator = "_"

// ExtractMentions scans text for the delimiter followed by one or more
// non-whitespace characters. The input is never modified.
func (p Parser) ExtractMentions(text string) []Mention {
	delim := p.delimiter()
	var out []Mention
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != delim {
			i += size
			continue
		}
		start := i
		j := i + size
		for j < len(text) {
			rr, sz := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(rr) {
				break
			}
			j += sz
		}
		if j == start+size {
			i = j
			continue
		}
		raw := text[start:j]
		out = append(out, Mention{
			RawToken:    raw,
			DisplayName: strings.ReplaceAll(raw[size:], mentionSeparator, " "),
			Start:       start,
			End:         j,
		})
		i = j
	}
	return out
}

// ExtractMentions scans text with the default delimiter.
func ExtractMentions(text string) []Mention {
	return Parser{}.ExtractMentions(text)
}
