package command

import (
	"regexp"
	"strings"

	"github.com/batalabs/convo/internal/domain"
)

// Placeholder names recognized by Expand.
const (
	VarWorkspaceName    = "workspace_name"
	VarWorkspacePath    = "workspace_path"
	VarFiles            = "files"
	VarGitBranch        = "git_branch"
	VarGitStatus        = "git_status"
	VarArgs             = "args"
	VarTranscript       = "transcript"
	VarTranscriptRecent = "transcript_recent"
)

// DefaultRecentWindow is the number of turns {{transcript_recent}} renders
// when neither the command nor the context sets a window.
const DefaultRecentWindow = 10

// Context is the runtime data a template is expanded against. It is built
// by the caller from the workspace and the active tab; Expand never does
// I/O of its own.
type Context struct {
	WorkspaceName string
	WorkspacePath string
	Files         []string
	GitBranch     string
	GitStatus     string
	Args          string

	// Transcript placeholders are only substituted when IncludeTranscript is
	// set, which the dispatcher does for action commands.
	IncludeTranscript bool
	Transcript        []domain.Message
	RecentWindow      int
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Expand substitutes known placeholders verbatim. Unknown placeholders are
// left untouched so templates written for newer versions still expand.
func Expand(template string, ctx Context) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := ctx.value(name); ok {
			return v
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names used in template.
func Placeholders(template string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func (c Context) value(name string) (string, bool) {
	switch name {
	case VarWorkspaceName:
		return c.WorkspaceName, true
	case VarWorkspacePath:
		return c.WorkspacePath, true
	case VarFiles:
		return FormatFiles(c.Files), true
	case VarGitBranch:
		return c.GitBranch, true
	case VarGitStatus:
		return c.GitStatus, true
	case VarArgs:
		return c.Args, true
	case VarTranscript:
		if !c.IncludeTranscript {
			return "", false
		}
		return RenderTranscript(c.Transcript, 0), true
	case VarTranscriptRecent:
		if !c.IncludeTranscript {
			return "", false
		}
		n := c.RecentWindow
		if n <= 0 {
			n = DefaultRecentWindow
		}
		return RenderTranscript(c.Transcript, n), true
	}
	return "", false
}

// FormatFiles renders a file list one entry per line.
func FormatFiles(files []string) string {
	if len(files) == 0 {
		return "(no files)"
	}
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f)
	}
	return b.String()
}

// RenderTranscript renders the last n messages (all when n <= 0) as
// "author: text" lines.
func RenderTranscript(msgs []domain.Message, n int) string {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		author := m.Author
		if author == "" {
			author = string(m.Kind)
		}
		b.WriteString(author)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// Expanded is the result of expanding one command definition.
type Expanded struct {
	Content    string
	WorkingDir string
}

// ExpandCommand expands the content and working directory of def. Kinds that
// need content fail with EmptyExpansionError when the result is blank; a
// task with no content falls back to the raw arguments.
func ExpandCommand(def domain.CommandDefinition, ctx Context) (Expanded, error) {
	if def.Kind == domain.CommandAction {
		ctx.IncludeTranscript = true
		if def.Action != nil && def.Action.TranscriptWindow > 0 {
			ctx.RecentWindow = def.Action.TranscriptWindow
		}
	}
	out := Expanded{
		Content:    Expand(def.Content, ctx),
		WorkingDir: strings.TrimSpace(Expand(def.WorkingDir, ctx)),
	}
	switch def.Kind {
	case domain.CommandTask:
		if strings.TrimSpace(out.Content) == "" {
			out.Content = ctx.Args
		}
	case domain.CommandPipeline:
		return out, nil
	}
	if strings.TrimSpace(out.Content) == "" {
		return out, &domain.EmptyExpansionError{Name: def.Name}
	}
	return out, nil
}
