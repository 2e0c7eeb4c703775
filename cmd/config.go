package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the llama-server settings file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Fprintln(cmd.OutOrStdout(), s.ctrl.Path())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		s.warn(cmd.ErrOrStderr())

		data, err := json.MarshalIndent(s.ctrl.Settings(), "", "    ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		text := string(data)
		if force, _ := cmd.Flags().GetBool("highlight"); wantColor(out, force) {
			text = highlight("json", text)
		}
		fmt.Fprintln(out, text)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		r := s.ctrl.Settings()
		if v, ok := r.Get(args[0]); ok {
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}
		// Keys this version does not know are kept verbatim; a dotted path
		// reaches inside them, e.g. window_geometry.w.
		head, rest, _ := strings.Cut(args[0], ".")
		if raw, ok := r.Extra()[head]; ok {
			if rest == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			if res := gjson.GetBytes(raw, rest); res.Exists() {
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				return nil
			}
		}
		return fmt.Errorf("%w: %q", settings.ErrUnknownField, args[0])
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set KEY VALUE",
	Short:   "Change one setting and save",
	Example: "  llama-launcher config set model_path /models/qwen2.5-7b.gguf\n  llama-launcher config set flash_attn on",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ctrl.Set(args[0], args[1]); err != nil {
			return err
		}
		return s.ctrl.Save()
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset KEY",
	Short: "Restore one setting to its default and save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.ctrl.Reset(args[0]); err != nil {
			return err
		}
		return s.ctrl.Save()
	},
}

var configFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the known settings with their flags and defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTYPE\tFLAG\tGROUP\tDEFAULT")
		for _, f := range settings.Fields() {
			flag := f.Flag
			if flag == "" {
				flag = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", f.Key, f.Kind, flag, f.Group, f.Default)
		}
		return tw.Flush()
	},
}

func init() {
	configShowCmd.Flags().Bool("highlight", false, "syntax-highlight even when stdout is not a terminal")
	configCmd.AddCommand(configPathCmd, configShowCmd, configGetCmd, configSetCmd, configResetCmd, configFieldsCmd)
	rootCmd.AddCommand(configCmd)
}
