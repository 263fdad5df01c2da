package tui

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/batalabs/convo/internal/domain"
)

var (
	inlineCodeRe   = regexp.MustCompile("`([^`]+)`")
	boldRe         = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingRe      = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	bulletRe       = regexp.MustCompile(`^(\s*)[-*+]\s+(.+)$`)
	numberedListRe = regexp.MustCompile(`^(\s*)(\d+)[.)]\s+(.+)$`)
)

// maxShellLines caps how much of a shell turn is rendered.
const maxShellLines = 200

const indent = "  "

// WrapWords splits s into lines no wider than width cells, breaking at
// spaces. Words wider than width are hard-broken.
func WrapWords(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var cur string
	for _, w := range words {
		candidate := w
		if cur != "" {
			candidate = cur + " " + w
		}
		if lipgloss.Width(candidate) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		for lipgloss.Width(w) > width {
			r := []rune(w)
			cut := min(width, len(r))
			lines = append(lines, string(r[:cut]))
			w = string(r[cut:])
		}
		cur = w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// TruncateToWidth shortens s to fit maxWidth cells, marking the cut with an
// ellipsis.
func TruncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > maxWidth {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

// RenderMarkdownLines renders the small markdown subset agents reply with:
// headings, bullet and numbered lists, fenced code and inline code/bold.
func RenderMarkdownLines(content string, width int) []string {
	if width < 20 {
		width = 20
	}
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var out []string
	var code []string
	lang := ""
	inCode := false

	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				out = append(out, highlightBlock(lang, strings.Join(code, "\n"))...)
				code = code[:0]
				inCode = false
				continue
			}
			inCode = true
			lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			continue
		}
		if inCode {
			code = append(code, line)
			continue
		}

		switch {
		case trimmed == "":
			out = append(out, "")
		case headingRe.MatchString(trimmed):
			m := headingRe.FindStringSubmatch(trimmed)
			for _, w := range WrapWords(m[2], width) {
				out = append(out, HeadingStyle.Render(w))
			}
		case bulletRe.MatchString(line):
			m := bulletRe.FindStringSubmatch(line)
			out = append(out, listItem(m[1], BulletStyle.Render("•")+" ", m[2], width)...)
		case numberedListRe.MatchString(line):
			m := numberedListRe.FindStringSubmatch(line)
			out = append(out, listItem(m[1], BulletStyle.Render(m[2]+".")+" ", m[3], width)...)
		default:
			for _, w := range WrapWords(line, width) {
				out = append(out, ApplyInlineFormatting(w))
			}
		}
	}
	// An unterminated fence still renders what arrived.
	if inCode {
		out = append(out, highlightBlock(lang, strings.Join(code, "\n"))...)
	}
	return out
}

func listItem(lead, marker, text string, width int) []string {
	pad := strings.Repeat(" ", len(lead))
	hang := pad + strings.Repeat(" ", lipgloss.Width(marker))
	wrapped := WrapWords(text, width-lipgloss.Width(hang))
	out := make([]string, len(wrapped))
	for i, w := range wrapped {
		if i == 0 {
			out[i] = pad + marker + ApplyInlineFormatting(w)
			continue
		}
		out[i] = hang + ApplyInlineFormatting(w)
	}
	return out
}

// ApplyInlineFormatting styles `code` and **bold** spans.
func ApplyInlineFormatting(s string) string {
	s = inlineCodeRe.ReplaceAllStringFunc(s, func(match string) string {
		return InlineCodeStyle.Render(inlineCodeRe.FindStringSubmatch(match)[1])
	})
	return boldRe.ReplaceAllStringFunc(s, func(match string) string {
		return BoldInlineStyle.Render(boldRe.FindStringSubmatch(match)[1])
	})
}

// highlightBlock syntax-highlights code with Chroma and prefixes a line
// number gutter. An empty or unknown language is guessed from the content.
func highlightBlock(lang, code string) []string {
	lang = resolveLexer(lang, code)
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, code, lang, "terminal256", "dracula"); err != nil {
		buf.Reset()
		buf.WriteString(code)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = CodeGutterStyle.Render(fmt.Sprintf("%3d │ ", i+1)) + l
	}
	return out
}

func resolveLexer(lang, code string) string {
	if lang != "" && lexers.Get(lang) != nil {
		return lang
	}
	if l := lexers.Analyse(code); l != nil {
		return l.Config().Name
	}
	return "plaintext"
}

// RenderShellOutput highlights captured shell output. Long output keeps its
// tail, which is where failures usually are.
func RenderShellOutput(output string) []string {
	output = strings.TrimRight(output, "\n")
	lines := strings.Split(output, "\n")
	var out []string
	if n := len(lines); n > maxShellLines {
		out = append(out, SystemStyle.Render(fmt.Sprintf("… %d earlier lines hidden", n-maxShellLines)))
		output = strings.Join(lines[n-maxShellLines:], "\n")
	}
	return append(out, highlightBlock("", output)...)
}

// RenderMessage renders one transcript turn for a terminal width cells wide.
func RenderMessage(m domain.Message, width int) []string {
	body := max(20, width-len(indent))
	switch m.Kind {
	case domain.KindUser:
		if m.Closed {
			first, _, _ := strings.Cut(m.Text, "\n")
			short := m.ID
			if len(short) > 8 {
				short = short[:8]
			}
			return []string{ClosedStyle.Render(TruncateToWidth("❯ "+first, body-14) + " (closed " + short + ")")}
		}
		lines := prefixed(UserIconStyle.Render("❯ "), WrapWords(m.Text, body))
		if len(m.Attachments) > 0 {
			names := make([]string, len(m.Attachments))
			for i, a := range m.Attachments {
				names[i] = filepath.Base(a)
			}
			lines = append(lines, SystemStyle.Render(indent+"📎 "+strings.Join(names, ", ")))
		}
		return lines

	case domain.KindAI, domain.KindActionResult:
		head := AuthorStyle.Render(m.Author)
		if m.Kind == domain.KindActionResult {
			head = ActionStyle.Render("◆ " + m.Author)
		}
		if m.ModelName != "" {
			head += " " + FooterMeta.Render(m.ModelName)
		}
		return append([]string{head}, indented(RenderMarkdownLines(m.Text, body))...)

	case domain.KindError:
		return prefixed(ErrorLineStyle.Render("✗ "), styled(ErrorLineStyle, WrapWords(m.Text, body)))

	case domain.KindCommand:
		return []string{CommandStyle.Render("$ " + TruncateToWidth(m.Text, body))}

	case domain.KindTask:
		return prefixed(TaskStyle.Render("⚑ "), WrapWords(m.Text, body))

	case domain.KindShellOutput:
		head := CommandStyle.Render("▸ " + m.Author)
		return append([]string{head}, indented(RenderShellOutput(m.Text))...)

	default:
		var out []string
		for _, para := range strings.Split(m.Text, "\n") {
			out = append(out, styled(SystemStyle, WrapWords(para, body))...)
		}
		return out
	}
}

// RenderTranscript renders every turn, separated by blank lines.
func RenderTranscript(msgs []domain.Message, width int) []string {
	var out []string
	for i, m := range msgs {
		if i > 0 {
			out = append(out, "")
		}
		out = append(out, RenderMessage(m, width)...)
	}
	return out
}

func prefixed(lead string, lines []string) []string {
	for i := range lines {
		if i == 0 {
			lines[i] = lead + lines[i]
			continue
		}
		lines[i] = indent + lines[i]
	}
	return lines
}

func indented(lines []string) []string {
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return lines
}

func styled(s lipgloss.Style, lines []string) []string {
	for i, l := range lines {
		lines[i] = s.Render(l)
	}
	return lines
}
