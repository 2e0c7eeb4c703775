package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ThatCatDev/tanrenai/launcher/internal/app"
	"github.com/ThatCatDev/tanrenai/launcher/internal/runner"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start llama-server and stream its output",
	Long: "Start llama-server with the saved settings and print its output until it exits. " +
		"SIGINT or SIGTERM stops the server gracefully.",
	Example: "  llama-launcher start\n  llama-launcher start --set model_path=/models/qwen.gguf --set port=9000",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer s.Close()
		s.warn(cmd.ErrOrStderr())

		overrides, _ := cmd.Flags().GetStringArray("set")
		if err := applyOverrides(s.ctrl, overrides); err != nil {
			return err
		}
		if save, _ := cmd.Flags().GetBool("save"); save && len(overrides) > 0 {
			if err := s.ctrl.Save(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runHeadless(ctx, s.ctrl, cmd.OutOrStdout())
	},
}

func init() {
	startCmd.Flags().StringArray("set", nil, "override a setting for this run (KEY=VALUE, repeatable)")
	startCmd.Flags().Bool("save", false, "write --set overrides to the settings file")
	rootCmd.AddCommand(startCmd)
}

func applyOverrides(ctrl *app.Controller, overrides []string) error {
	for _, kv := range overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: expected KEY=VALUE", kv)
		}
		if err := ctrl.Set(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}

// runHeadless starts the server and copies its output to w until the process
// exits. Cancelling ctx stops the server. A crash is returned as an error.
func runHeadless(ctx context.Context, ctrl *app.Controller, w io.Writer) error {
	h, err := ctrl.Start()
	if err != nil {
		printLines(w, ctrl.Drain())
		return err
	}
	fmt.Fprintf(w, "Web UI: %s\n", ctrl.ServerURL())

	done := ctx.Done()
	for {
		select {
		case <-ctrl.Ready():
			printLines(w, ctrl.Drain())
		case <-done:
			done = nil
			printLines(w, ctrl.Drain())
			if err := ctrl.Stop(); err != nil {
				fmt.Fprintf(w, "Error stopping server: %v\n", err)
			}
		case <-h.Done():
			printLines(w, ctrl.Drain())
			if dropped := ctrl.Dropped(); dropped > 0 {
				fmt.Fprintf(w, "(%d output lines dropped)\n", dropped)
			}
			return h.Err()
		}
	}
}

func printLines(w io.Writer, lines []runner.Line) {
	for _, l := range lines {
		fmt.Fprintln(w, l.Text)
	}
}
