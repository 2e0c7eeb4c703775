package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rivo/tview"

	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

// helpMarkdown documents the key bindings and every setting with the flag
// it turns into.
func helpMarkdown() string {
	var b strings.Builder
	b.WriteString("# llama-launcher\n\n")
	b.WriteString("Edit the settings in the tabs, save them with **Ctrl-S** and start llama-server with **F5**. ")
	b.WriteString("Blank fields are left out of the command line so llama-server uses its own defaults.\n\n")

	b.WriteString("## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, k := range [][2]string{
		{"F1", "this help"},
		{"F2", "preview the command line"},
		{"F5 / F6", "start / stop the server"},
		{"F7", "open the web UI in a browser"},
		{"Ctrl-S / Ctrl-R", "save / reload the settings file"},
		{"Ctrl-N / Ctrl-P", "next / previous tab"},
		{"Ctrl-L", "clear the output"},
		{"Ctrl-Q", "quit (stops the server)"},
	} {
		fmt.Fprintf(&b, "| %s | %s |\n", k[0], k[1])
	}

	for _, group := range settings.Groups {
		fmt.Fprintf(&b, "\n## %s\n\n", group)
		for _, f := range settings.FieldsInGroup(group) {
			flag := "launcher only"
			if f.Flag != "" {
				flag = "`" + f.Flag + "`"
			}
			fmt.Fprintf(&b, "- **%s** (%s, %s)", f.Label, f.Key, flag)
			if len(f.Choices) > 0 {
				fmt.Fprintf(&b, ": %s", strings.Join(nonEmpty(f.Choices), ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Arguments\n\nExtra arguments are appended after the generated flags. ")
	b.WriteString("An entry may hold a flag and its value, e.g. `--rope-scaling linear`.\n")
	return b.String()
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func renderMarkdown(content string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(92),
	)
	if err != nil {
		return tview.Escape(content)
	}
	out, err := r.Render(content)
	if err != nil {
		return tview.Escape(content)
	}
	return tview.TranslateANSI(strings.TrimRight(out, "\n"))
}
