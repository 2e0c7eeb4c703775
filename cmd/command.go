package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:     "command",
	Aliases: []string{"preview"},
	Short:   "Print the llama-server command line without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		s.warn(cmd.ErrOrStderr())

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			exe, argv, err := s.ctrl.Command()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(append([]string{exe}, argv...), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		line, err := s.ctrl.Preview()
		if err != nil {
			return err
		}
		if force, _ := cmd.Flags().GetBool("highlight"); wantColor(out, force) {
			line = highlight("bash", line)
		}
		fmt.Fprintln(out, line)
		return nil
	},
}

func init() {
	commandCmd.Flags().Bool("highlight", false, "syntax-highlight even when stdout is not a terminal")
	commandCmd.Flags().Bool("json", false, "print the argument vector as a JSON array")
	rootCmd.AddCommand(commandCmd)
}
