package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ThatCatDev/tanrenai/launcher/internal/app"
	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

var argsCmd = &cobra.Command{
	Use:   "args",
	Short: "Manage extra llama-server arguments",
	Long: "Extra arguments are appended to the generated command line in list order. " +
		"Disabled entries are kept but not passed to the server. Entries are numbered from 1.",
}

var argsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extra arguments",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		list := s.ctrl.Arguments()
		if len(list) == 0 {
			fmt.Fprintln(out, "No extra arguments.")
			return nil
		}
		for i, a := range list {
			mark := " "
			if a.Enabled {
				mark = "x"
			}
			fmt.Fprintf(out, "%2d [%s] %s\n", i+1, mark, a.Value)
		}
		return nil
	},
}

var argsAddCmd = &cobra.Command{
	Use:     "add VALUE...",
	Short:   "Append an argument",
	Example: "  llama-launcher config args add -- --rope-scaling linear",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editArgs(cmd, func(c *app.Controller) error {
			return c.AddArgument(strings.Join(args, " "))
		})
	},
}

var argsRemoveCmd = &cobra.Command{
	Use:     "rm N",
	Aliases: []string{"remove"},
	Short:   "Remove argument N",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := argIndex(args[0])
		if err != nil {
			return err
		}
		return editArgs(cmd, func(c *app.Controller) error { return c.RemoveArgument(i) })
	},
}

var argsEnableCmd = &cobra.Command{
	Use:   "enable N",
	Short: "Pass argument N to the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := argIndex(args[0])
		if err != nil {
			return err
		}
		return editArgs(cmd, func(c *app.Controller) error { return c.SetArgumentEnabled(i, true) })
	},
}

var argsDisableCmd = &cobra.Command{
	Use:   "disable N",
	Short: "Keep argument N but do not pass it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := argIndex(args[0])
		if err != nil {
			return err
		}
		return editArgs(cmd, func(c *app.Controller) error { return c.SetArgumentEnabled(i, false) })
	},
}

var argsEditCmd = &cobra.Command{
	Use:   "edit N VALUE...",
	Short: "Replace the text of argument N",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := argIndex(args[0])
		if err != nil {
			return err
		}
		return editArgs(cmd, func(c *app.Controller) error {
			return c.EditArgument(i, strings.Join(args[1:], " "))
		})
	},
}

func init() {
	argsCmd.AddCommand(argsListCmd, argsAddCmd, argsRemoveCmd, argsEnableCmd, argsDisableCmd, argsEditCmd)
	configCmd.AddCommand(argsCmd)
}

// editArgs applies fn to the loaded settings and saves the result.
func editArgs(cmd *cobra.Command, fn func(*app.Controller) error) error {
	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s.ctrl); err != nil {
		return err
	}
	return s.ctrl.Save()
}

// argIndex converts a 1-based position from the command line.
func argIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", settings.ErrArgumentIndex, s)
	}
	return n - 1, nil
}
