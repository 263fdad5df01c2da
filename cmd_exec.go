package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/engine"
	"github.com/batalabs/convo/internal/input"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

func newExecCmd(f *flags) *cobra.Command {
	var dryRun, offline bool
	cmd := &cobra.Command{
		Use:   "exec LINE...",
		Short: "Run one line of input and print what it did",
		Long: `Run one line of input as if it were typed into the active tab.

Exit status: 0 success, 1 unknown command, 2 expansion error, 3 execution error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			a, err := newApp(cmd.Context(), f, cmd.ErrOrStderr(), offline || dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			if dryRun {
				err = previewLine(cmd.Context(), a.eng, line, cmd.OutOrStdout())
			} else {
				err = execLine(cmd.Context(), a.eng, line, cmd.OutOrStdout())
			}
			if err != nil {
				return &exitError{code: domain.ExitCode(err), err: err}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Expand the line without executing it")
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact the agent service")
	return cmd
}

func previewLine(ctx context.Context, eng *engine.Engine, line string, w io.Writer) error {
	p, err := eng.PreviewInput(ctx, line)
	printField(w, "intent", string(p.Intent.Kind()))
	if err != nil {
		return err
	}
	if p.Kind == "" {
		return nil
	}
	printField(w, "kind", string(p.Kind))
	if len(p.Placeholders) > 0 {
		printField(w, "placeholders", strings.Join(p.Placeholders, ", "))
	}
	if len(p.Steps) > 0 {
		printField(w, "steps", strings.Join(p.Steps, " → "))
		return nil
	}
	printField(w, "content", p.Content)
	return nil
}

// execLine runs line against the first tab and prints every turn it
// appended.
func execLine(ctx context.Context, eng *engine.Engine, line string, w io.Writer) error {
	t, err := eng.Bootstrap(ctx)
	if t == nil {
		return err
	}
	before := t.Len()
	out, err := eng.HandleInput(ctx, t, line)
	if out.Intent != nil {
		printField(w, "intent", string(out.Intent.Kind()))
	}
	if d := out.Dispatch; d != nil {
		printField(w, "kind", string(d.Kind))
		if d.Content != "" {
			printField(w, "content", d.Content)
		}
	}
	msgs := t.Messages()
	for _, m := range msgs[before:] {
		printTurn(w, m)
	}
	return err
}

func printTurn(w io.Writer, m domain.Message) {
	head := string(m.Kind)
	if m.Author != "" {
		head += " " + m.Author
	}
	if m.Kind == domain.KindError {
		head = errorStyle.Render(head)
	} else {
		head = labelStyle.Render(head)
	}
	fmt.Fprintf(w, "[%s] %s\n", head, m.Text)
}

func newParseCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "parse LINE...",
		Short: "Print how a line of input is classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := f.preferences()
			if err != nil {
				return err
			}
			p := input.Parser{Prefix: prefs.CommandPrefix, Delimiter: prefs.MentionRune()}
			printIntent(cmd.OutOrStdout(), p.Parse(strings.Join(args, " ")))
			return nil
		},
	}
}

func printIntent(w io.Writer, intent input.Intent) {
	printField(w, "intent", string(intent.Kind()))
	var mentions []input.Mention
	switch in := intent.(type) {
	case input.PlainText:
		printField(w, "text", in.Text)
		mentions = in.Mentions
	case input.Directive:
		printField(w, "name", in.Name)
		printField(w, "args", fmt.Sprintf("%q", in.Args))
		mentions = in.Mentions
	case input.CustomCommand:
		printField(w, "name", in.Name)
		printField(w, "args", fmt.Sprintf("%q", in.Args))
		mentions = in.Mentions
	}
	for _, m := range mentions {
		printField(w, "mention", fmt.Sprintf("%s %q [%d,%d)", m.RawToken, m.DisplayName, m.Start, m.End))
	}
}
