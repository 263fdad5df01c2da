package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCommandsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Manage the user-defined command library",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the loaded commands",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd.Context(), f, cmd.ErrOrStderr(), true)
				if err != nil {
					return err
				}
				defer a.Close()

				defs := a.eng.Registry().Snapshot().Commands()
				if len(defs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No commands defined.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, d := range defs {
					star := " "
					if d.IsFavorite {
						star = "★"
					}
					fmt.Fprintf(tw, "%s %s\t%s\t%s\n", star, d.Name, d.Kind, d.Description)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Save every command in a YAML library to the database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), f, cmd.ErrOrStderr(), true)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := a.eng.ImportCommands(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d commands from %s\n", n, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "export FILE",
			Short: "Write the loaded commands as a YAML library",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), f, cmd.ErrOrStderr(), true)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := a.eng.ExportCommands(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d commands to %s\n", n, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove NAME",
			Short: "Delete a stored command",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), f, cmd.ErrOrStderr(), true)
				if err != nil {
					return err
				}
				defer a.Close()

				if err := a.eng.RemoveCommand(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
