package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ThatCatDev/tanrenai/launcher/internal/app"
	"github.com/ThatCatDev/tanrenai/launcher/internal/runner"
	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal UI (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

const (
	tabArguments = "Arguments"
	tabOutput    = "Output"
	modalPage    = "modal"
	mainPage     = "main"
)

// tuiApp is the single mutable state struct for the tview-based TUI. All
// fields are touched only on the tview event goroutine.
type tuiApp struct {
	app    *tview.Application
	ctrl   *app.Controller
	logger *slog.Logger

	pages    *tview.Pages // main layout + modal overlay
	tabBar   *tview.TextView
	tabPages *tview.Pages
	tabs     []string
	tab      int
	forms    map[string]*tview.Form

	argList  *tview.List
	argInput *tview.InputField
	editing  int // argument being edited, -1 when adding

	// rejected holds form fields whose current text did not parse; the
	// record still has their last accepted value.
	rejected map[string]error

	output    *tview.TextView
	statusBar *tview.TextView
	message   string

	drainInterval time.Duration
	lastSave      time.Time
	stale         bool // settings file changed on disk since load/save
}

func runTUI(cmd *cobra.Command) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("the terminal UI needs an interactive terminal; use 'start' to run headless")
	}
	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	t := newTuiApp(s.ctrl, s.logger, s.opts.DrainInterval, s.opts.QueueSize)
	if s.warning != nil {
		t.setError(s.warning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := settings.Watch(ctx, s.ctrl.Path(), s.logger, t.onExternalChange); err != nil {
		s.logger.Warn("cannot watch settings file", "path", s.ctrl.Path(), "error", err)
	}
	go t.drainLoop(ctx)

	runErr := t.run()
	cancel()
	if err := s.ctrl.Shutdown(); err != nil {
		s.logger.Error("stop server on exit", "error", err)
	}
	return runErr
}

func newTuiApp(ctrl *app.Controller, logger *slog.Logger, drainInterval time.Duration, maxLines int) *tuiApp {
	t := &tuiApp{
		ctrl:          ctrl,
		logger:        logger.With("component", "tui"),
		forms:         make(map[string]*tview.Form),
		rejected:      make(map[string]error),
		editing:       -1,
		drainInterval: drainInterval,
	}
	t.app = tview.NewApplication()
	t.tabs = append(slices.Clone(settings.Groups), tabArguments, tabOutput)

	t.tabPages = tview.NewPages()
	for _, group := range settings.Groups {
		form := tview.NewForm()
		form.SetItemPadding(0)
		form.SetBorder(true).SetTitle(" " + group + " ")
		t.forms[group] = form
		t.tabPages.AddPage(group, form, true, false)
	}
	t.tabPages.AddPage(tabArguments, t.newArgumentsPane(), true, false)

	t.output = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true).
		SetMaxLines(maxLines)
	t.output.SetBorder(true).SetTitle(" Server output ")
	t.tabPages.AddPage(tabOutput, t.output, true, false)

	t.tabBar = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWrap(false).
		SetHighlightedFunc(func(added, removed, remaining []string) {
			if len(added) == 0 {
				return
			}
			idx, err := strconv.Atoi(added[0])
			if err != nil {
				return
			}
			t.tab = idx
			t.tabPages.SwitchToPage(t.tabs[idx])
			t.focusTab()
		})
	for i, name := range t.tabs {
		fmt.Fprintf(t.tabBar, `["%d"][darkcyan] %s [white][""] `, i, name)
	}

	t.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.tabBar, 1, 0, false).
		AddItem(t.tabPages, 0, 1, true).
		AddItem(newHDivider(), 1, 0, false).
		AddItem(t.statusBar, 2, 0, false)

	t.pages = tview.NewPages().AddPage(mainPage, layout, true, true)

	t.rebuildForms()
	t.refreshArguments()
	t.switchTab(0)
	t.setupInputCapture()
	t.refreshStatus()
	return t
}

// newHDivider creates a 1-row box that draws a horizontal line.
func newHDivider() *tview.Box {
	box := tview.NewBox()
	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		style := tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
		for cx := x; cx < x+width; cx++ {
			screen.SetContent(cx, y, tcell.RuneHLine, nil, style)
		}
		return x, y, width, height
	})
	return box
}

func (t *tuiApp) run() error {
	return t.app.SetRoot(t.pages, true).EnableMouse(true).Run()
}

// ── Input Capture ──────────────────────────────────────────────────────

func (t *tuiApp) setupInputCapture() {
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if t.pages.HasPage(modalPage) {
			switch event.Key() {
			case tcell.KeyEscape:
				t.closeModal()
				return nil
			case tcell.KeyCtrlC:
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyF1:
			t.showHelp()
		case tcell.KeyF2:
			t.showPreview()
		case tcell.KeyF5:
			t.start()
		case tcell.KeyF6:
			t.stop()
		case tcell.KeyF7:
			t.openBrowser()
		case tcell.KeyCtrlS:
			t.save()
		case tcell.KeyCtrlR:
			t.reload()
		case tcell.KeyCtrlN:
			t.switchTab(t.tab + 1)
		case tcell.KeyCtrlP:
			t.switchTab(t.tab - 1)
		case tcell.KeyCtrlL:
			t.output.Clear()
		case tcell.KeyCtrlQ, tcell.KeyCtrlC:
			t.quit()
		default:
			return event
		}
		return nil
	})
}

// ── Tabs ───────────────────────────────────────────────────────────────

func (t *tuiApp) switchTab(idx int) {
	n := len(t.tabs)
	idx = (idx%n + n) % n
	t.tabBar.Highlight(strconv.Itoa(idx)).ScrollToHighlight()
}

func (t *tuiApp) switchToOutput() {
	t.switchTab(slices.Index(t.tabs, tabOutput))
}

func (t *tuiApp) focusTab() {
	switch name := t.tabs[t.tab]; name {
	case tabArguments:
		t.app.SetFocus(t.argList)
	case tabOutput:
		t.app.SetFocus(t.output)
	default:
		t.app.SetFocus(t.forms[name])
	}
}

// ── Settings Forms ─────────────────────────────────────────────────────

func (t *tuiApp) rebuildForms() {
	r := t.ctrl.Settings()
	clear(t.rejected)
	for _, group := range settings.Groups {
		form := t.forms[group]
		form.Clear(true)
		for _, f := range settings.FieldsInGroup(group) {
			t.addField(form, f, r)
		}
	}
}

func (t *tuiApp) addField(form *tview.Form, f settings.Field, r *settings.Record) {
	key := f.Key
	label := fieldLabel(f)

	switch {
	case f.Kind == settings.KindBool:
		form.AddCheckbox(label, r.Bool(key), func(checked bool) {
			t.apply(t.ctrl.SetValue(key, checked))
		})

	case f.Kind == settings.KindChoice && !f.Open:
		idx := max(slices.Index(f.Choices, r.String(key)), 0)
		form.AddDropDown(label, f.Choices, idx, func(option string, _ int) {
			t.apply(t.ctrl.Set(key, option))
		})

	default:
		var accept func(string, rune) bool
		if f.Kind == settings.KindInt {
			accept = tview.InputFieldInteger
		}
		form.AddInputField(label, r.String(key), 48, accept, func(text string) {
			err := t.ctrl.Set(key, text)
			if err != nil {
				t.rejected[key] = err
			} else {
				delete(t.rejected, key)
			}
			t.apply(err)
		})
		field := form.GetFormItem(form.GetFormItemCount() - 1).(*tview.InputField)
		// Leaving a field with unparsable text puts the stored value back.
		field.SetFinishedFunc(func(tcell.Key) {
			if _, bad := t.rejected[key]; bad {
				field.SetText(t.ctrl.Settings().String(key))
			}
		})
		if f.Kind == settings.KindChoice {
			field.SetAutocompleteFunc(choiceCompleter(f.Choices))
		}
	}
}

func fieldLabel(f settings.Field) string {
	if f.Flag == "" {
		return f.Label
	}
	return fmt.Sprintf("%s (%s)", f.Label, f.Flag)
}

// invalidEdit reports the first field, in schema order, whose form text was
// rejected. Starting, previewing or saving then would use a value the form
// no longer shows.
func invalidEdit(rejected map[string]error) error {
	for _, f := range settings.Fields() {
		if err, ok := rejected[f.Key]; ok {
			return fmt.Errorf("%s: %w", f.Label, err)
		}
	}
	return nil
}

// choiceCompleter suggests the known values of an open choice field that
// start with what has been typed.
func choiceCompleter(choices []string) func(string) []string {
	return func(current string) []string {
		var out []string
		for _, c := range choices {
			if c != "" && strings.HasPrefix(c, strings.ToLower(current)) {
				out = append(out, c)
			}
		}
		return out
	}
}

// ── Custom Arguments ───────────────────────────────────────────────────

func (t *tuiApp) newArgumentsPane() tview.Primitive {
	t.argList = tview.NewList().ShowSecondaryText(false)
	t.argList.SetBorder(true).SetTitle(" Extra arguments: Enter toggles, Del removes, Ctrl-E edits, Tab adds ")
	t.argList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		i := t.argList.GetCurrentItem()
		switch event.Key() {
		case tcell.KeyDelete, tcell.KeyBackspace, tcell.KeyBackspace2:
			if t.argList.GetItemCount() > 0 {
				t.apply(t.ctrl.RemoveArgument(i))
				t.refreshArguments()
			}
			return nil
		case tcell.KeyCtrlE:
			args := t.ctrl.Arguments()
			if i >= 0 && i < len(args) {
				t.editing = i
				t.argInput.SetLabel(fmt.Sprintf("Edit #%d: ", i+1)).SetText(args[i].Value)
				t.app.SetFocus(t.argInput)
			}
			return nil
		case tcell.KeyTab:
			t.app.SetFocus(t.argInput)
			return nil
		}
		return event
	})

	t.argInput = tview.NewInputField().
		SetLabel("Add: ").
		SetPlaceholder("--flag value").
		SetFieldBackgroundColor(tcell.ColorDefault)
	t.argInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			t.submitArgument()
		case tcell.KeyEscape:
			t.resetArgumentInput()
			t.app.SetFocus(t.argList)
		case tcell.KeyTab, tcell.KeyBacktab:
			t.app.SetFocus(t.argList)
		}
	})

	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.argList, 0, 1, true).
		AddItem(t.argInput, 1, 0, false)
}

func (t *tuiApp) submitArgument() {
	text := t.argInput.GetText()
	var err error
	if t.editing >= 0 {
		err = t.ctrl.EditArgument(t.editing, text)
	} else {
		err = t.ctrl.AddArgument(text)
	}
	t.apply(err)
	if err != nil {
		return
	}
	t.resetArgumentInput()
	t.refreshArguments()
	t.argList.SetCurrentItem(t.argList.GetItemCount() - 1)
}

func (t *tuiApp) resetArgumentInput() {
	t.editing = -1
	t.argInput.SetLabel("Add: ").SetText("")
}

func (t *tuiApp) refreshArguments() {
	current := t.argList.GetCurrentItem()
	t.argList.Clear()
	for i, a := range t.ctrl.Arguments() {
		mark := "[gray]✗[-]"
		if a.Enabled {
			mark = "[green]✓[-]"
		}
		t.argList.AddItem(fmt.Sprintf("%s %s", mark, tview.Escape(a.Value)), "", 0, func() {
			t.apply(t.ctrl.SetArgumentEnabled(i, !a.Enabled))
			t.refreshArguments()
		})
	}
	if n := t.argList.GetItemCount(); n > 0 {
		t.argList.SetCurrentItem(min(current, n-1))
	}
}

// ── Server Control ─────────────────────────────────────────────────────

// start and stop run on their own goroutines; stop may wait out the
// grace period and the UI must keep drawing meanwhile.
func (t *tuiApp) start() {
	if err := invalidEdit(t.rejected); err != nil {
		t.setError(err)
		return
	}
	t.switchToOutput()
	go func() {
		_, err := t.ctrl.Start()
		t.app.QueueUpdateDraw(func() {
			if err != nil {
				t.setError(err)
				return
			}
			t.setMessage("Server starting, web UI at " + t.ctrl.ServerURL())
		})
	}()
}

func (t *tuiApp) stop() {
	if t.ctrl.State() != runner.StateRunning {
		t.setMessage("Server is not running")
		return
	}
	go func() {
		err := t.ctrl.Stop()
		t.app.QueueUpdateDraw(func() {
			if err != nil {
				t.setError(err)
			}
		})
	}()
}

func (t *tuiApp) openBrowser() {
	if t.ctrl.State() != runner.StateRunning {
		t.setMessage("Start the server first")
		return
	}
	url := t.ctrl.ServerURL()
	go func() {
		if err := openURL(url); err != nil {
			t.app.QueueUpdateDraw(func() { t.setError(err) })
		}
	}()
}

// drainLoop moves queued output into the output view on every tick.
func (t *tuiApp) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(t.drainInterval)
	defer ticker.Stop()

	last := t.ctrl.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lines := t.ctrl.Drain()
		state := t.ctrl.State()
		if len(lines) == 0 && state == last {
			continue
		}
		last = state
		t.app.QueueUpdateDraw(func() {
			t.appendOutput(lines)
			t.refreshStatus()
		})
	}
}

func (t *tuiApp) appendOutput(lines []runner.Line) {
	if len(lines) == 0 {
		return
	}
	var b strings.Builder
	for _, l := range lines {
		text := tview.Escape(l.Text)
		if l.Source == runner.SourceSupervisor {
			text = "[yellow]" + text + "[-]"
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	fmt.Fprint(t.output, b.String())
	t.output.ScrollToEnd()
}

// ── Settings File ──────────────────────────────────────────────────────

func (t *tuiApp) save() bool {
	if err := invalidEdit(t.rejected); err != nil {
		t.setError(err)
		return false
	}
	if err := t.ctrl.Save(); err != nil {
		t.setError(err)
		return false
	}
	t.lastSave = time.Now()
	t.stale = false
	t.setMessage("Saved " + t.ctrl.Path())
	return true
}

func (t *tuiApp) reload() {
	err := t.ctrl.Reload()
	t.stale = false
	t.rebuildForms()
	t.refreshArguments()
	t.focusTab()
	if err != nil {
		t.setError(err)
		return
	}
	t.setMessage("Reloaded " + t.ctrl.Path())
}

// onExternalChange runs on the watcher goroutine.
func (t *tuiApp) onExternalChange() {
	t.app.QueueUpdateDraw(func() {
		if time.Since(t.lastSave) < time.Second {
			return
		}
		t.stale = true
		t.setMessage("[yellow]Settings file changed on disk. Ctrl-R reloads it.[-]")
	})
}

func (t *tuiApp) quit() {
	if !t.ctrl.Dirty() {
		t.app.Stop()
		return
	}
	modal := tview.NewModal().
		SetText("Save changes to the settings before quitting?").
		AddButtons([]string{"Save", "Discard", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			switch label {
			case "Save":
				if t.save() {
					t.app.Stop()
					return
				}
				t.closeModal()
			case "Discard":
				t.app.Stop()
			default:
				t.closeModal()
			}
		})
	t.pages.AddPage(modalPage, modal, true, true)
	t.app.SetFocus(modal)
}

// ── Modals ─────────────────────────────────────────────────────────────

func (t *tuiApp) showPreview() {
	if err := invalidEdit(t.rejected); err != nil {
		t.setError(err)
		return
	}
	line, err := t.ctrl.Preview()
	if err != nil {
		t.setError(err)
		return
	}
	t.showText("Command preview", tview.TranslateANSI(highlight("bash", line)))
}

func (t *tuiApp) showHelp() {
	t.showText("Help", renderMarkdown(helpMarkdown()))
}

func (t *tuiApp) showText(title, content string) {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true).
		SetText(content)
	tv.SetBorder(true).SetTitle(" " + title + " (Esc closes) ")
	t.pages.AddPage(modalPage, centered(tv, 100, 30), true, true)
	t.app.SetFocus(tv)
}

func (t *tuiApp) closeModal() {
	t.pages.RemovePage(modalPage)
	t.focusTab()
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

// ── Status Bar ─────────────────────────────────────────────────────────

func (t *tuiApp) apply(err error) {
	if err != nil {
		t.setError(err)
		return
	}
	t.message = ""
	t.refreshStatus()
}

func (t *tuiApp) setMessage(msg string) {
	t.message = msg
	t.refreshStatus()
}

func (t *tuiApp) setError(err error) {
	t.logger.Debug("ui error", "error", err)
	msg := err.Error()
	if errors.Is(err, settings.ErrModelRequired) {
		msg = "Model path is required (Model tab)"
	}
	t.setMessage("[red]" + tview.Escape(msg) + "[-]")
}

func (t *tuiApp) refreshStatus() {
	t.statusBar.SetText(statusLine(t.ctrl.State(), t.ctrl.Current(), t.ctrl.ServerURL(), t.ctrl.Dirty(), t.stale, t.message))
}

func statusLine(state runner.State, h *runner.Handle, url string, dirty, stale bool, message string) string {
	var b strings.Builder
	switch state {
	case runner.StateRunning:
		pid := 0
		if h != nil {
			pid = h.PID
		}
		fmt.Fprintf(&b, "[green::b]running[-::-] pid %d  %s", pid, url)
	case runner.StateStarting, runner.StateStopping:
		fmt.Fprintf(&b, "[yellow::b]%s[-::-]", state)
	default:
		b.WriteString("[gray::b]idle[-::-]")
	}
	if dirty {
		b.WriteString("  [orange]unsaved changes[-]")
	}
	if stale {
		b.WriteString("  [yellow]file changed on disk[-]")
	}
	if message != "" {
		b.WriteString("  " + message)
	}
	b.WriteString("\n[gray]F1 help  F2 preview  F5 start  F6 stop  F7 browser  ^S save  ^R reload  ^N/^P tabs  ^L clear  ^Q quit[-]")
	return b.String()
}
