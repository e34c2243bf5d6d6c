// Package tui renders the interactive chat surface. It is a pure view
// layer: every mutation is dispatched as an intent to the chat.Store and
// the model re-renders whatever state the store exposes afterwards.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ragdesk-ai/ragdesk/internal/api"
	"github.com/ragdesk-ai/ragdesk/internal/chat"
	"github.com/ragdesk-ai/ragdesk/internal/config"
)

// ---------- messages produced by store commands ----------

type sessionsLoadedMsg struct{}
type sendDoneMsg struct{ err error }
type opDoneMsg struct {
	err error
	ok  string // system line printed on success, "" = none
}

// TUIConfig carries static info for the status bar and welcome box.
type TUIConfig struct {
	Version string
	Server  string
	Email   string
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusTitleStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	citationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	followupStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	feedbackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	pickerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Padding(0, 1)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

var askSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

type viewMode int

const (
	modeChat viewMode = iota
	modePicker
)

// Model is the bubbletea model for the chat surface.
type Model struct {
	store *chat.Store
	prefs *config.PrefsStore
	cfg   TUIConfig

	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	mode      viewMode
	pickerSel int
	pickerRow []api.Session
	slashSel  int

	loadingList bool
	quitting    bool

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewModel creates the initial bubbletea model.
func NewModel(store *chat.Store, prefs *config.PrefsStore, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = askSpinner
	sp.Style = spinnerStyle

	return Model{
		store:       store,
		prefs:       prefs,
		cfg:         cfg,
		textinput:   ti,
		spinner:     sp,
		loadingList: true,
	}
}

// Run starts the TUI program and blocks until it exits.
func Run(store *chat.Store, prefs *config.PrefsStore, cfg TUIConfig) error {
	p := tea.NewProgram(NewModel(store, prefs, cfg))
	_, err := p.Run()
	return err
}

// ---------- commands (store intents) ----------

func (m Model) loadSessionsCmd() tea.Cmd {
	return func() tea.Msg {
		m.store.LoadSessions(context.Background())
		return sessionsLoadedMsg{}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.store.SendMessage(context.Background(), text)}
	}
}

func (m Model) regenerateCmd() tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.store.Regenerate(context.Background())}
	}
}

func (m Model) newSessionCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.store.CreateSession(context.Background()), ok: "started a new chat"}
	}
}

func (m Model) selectSessionCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.store.SelectSession(context.Background(), id)}
	}
}

func (m Model) deleteSessionCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.store.DeleteSession(context.Background(), id), ok: "chat deleted"}
	}
}

func (m Model) renameSessionCmd(id int64, title string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.store.RenameSession(context.Background(), id, title), ok: "chat renamed"}
	}
}

func (m Model) feedbackCmd(messageID, marker string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.store.SubmitFeedback(context.Background(), messageID, marker), ok: "feedback recorded"}
	}
}

// ---------- bubbletea plumbing ----------

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		tea.Println(renderWelcome(m.cfg)),
		m.loadSessionsCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = m.width - 4
		m.rebuildRenderer()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case sessionsLoadedMsg:
		m.loadingList = false

	case sendDoneMsg:
		// Request failures surface through the store's error banner.
		// Precondition errors never reach the banner, so print them here.
		if msg.err != nil && m.store.SendError() == "" {
			cmds = append(cmds, tea.Println(errorStyle.Render("  "+msg.err.Error())))
		}

	case opDoneMsg:
		if msg.err != nil {
			cmds = append(cmds, tea.Println(errorStyle.Render("  "+msg.err.Error())))
		} else if msg.ok != "" {
			cmds = append(cmds, tea.Println(systemStyle.Render("  "+msg.ok)))
		}

	case tea.KeyMsg:
		return m.handleKey(msg, cmds)
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if m.mode == modePicker {
		return m.handlePickerKey(msg)
	}

	// Any keystroke dismisses the current error banner.
	if m.store.SendError() != "" {
		m.store.ClearSendError()
	}

	// Autocomplete menu while the input holds a slash command.
	if items := m.slashMenuItems(); items != nil {
		switch msg.String() {
		case "up":
			if m.slashSel > 0 {
				m.slashSel--
			}
			return m, nil
		case "down":
			if m.slashSel < len(items)-1 {
				m.slashSel++
			}
			return m, nil
		case "tab":
			if m.slashSel < len(items) {
				m.textinput.SetValue(items[m.slashSel].Name)
				m.textinput.CursorEnd()
			}
			return m, nil
		}
	} else {
		m.slashSel = 0
	}

	switch msg.String() {
	case "ctrl+c":
		m.store.StopGeneration()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.store.StopGeneration()
		return m, nil

	case "ctrl+n":
		return m, m.newSessionCmd()

	case "ctrl+r":
		return m, m.regenerateCmd()

	case "ctrl+s":
		m.mode = modePicker
		m.pickerRow = m.store.Sessions()
		m.pickerSel = 0
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.textinput.Value())
		if text == "" {
			return m, nil
		}
		m.textinput.SetValue("")
		if strings.HasPrefix(text, "/") {
			return m.handleSlash(text)
		}
		if m.store.Sending() {
			// One send at a time; the input is dropped back for later.
			m.textinput.SetValue(text)
			return m, nil
		}
		return m, tea.Batch(tea.Println(userStyle.Render("❯ "+text)), m.sendCmd(text))
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.pickerSel > 0 {
			m.pickerSel--
		}
	case "down", "j":
		if m.pickerSel < len(m.pickerRow)-1 {
			m.pickerSel++
		}
	case "enter":
		m.mode = modeChat
		if m.pickerSel < len(m.pickerRow) {
			return m, m.selectSessionCmd(m.pickerRow[m.pickerSel].ID)
		}
	case "d":
		if m.pickerSel < len(m.pickerRow) {
			id := m.pickerRow[m.pickerSel].ID
			m.mode = modeChat
			return m, m.deleteSessionCmd(id)
		}
	case "esc", "ctrl+s", "q":
		m.mode = modeChat
	}
	return m, nil
}

// handleSlash dispatches a typed slash command.
func (m Model) handleSlash(text string) (tea.Model, tea.Cmd) {
	cmd, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		return m, tea.Println(renderHelp())
	case "/new":
		return m, m.newSessionCmd()
	case "/sessions":
		m.mode = modePicker
		m.pickerRow = m.store.Sessions()
		m.pickerSel = 0
		return m, nil
	case "/rename":
		active, ok := m.store.Active()
		if !ok {
			return m, tea.Println(errorStyle.Render("  no active chat"))
		}
		return m, m.renameSessionCmd(active.ID, args)
	case "/delete":
		active, ok := m.store.Active()
		if !ok {
			return m, tea.Println(errorStyle.Render("  no active chat"))
		}
		return m, m.deleteSessionCmd(active.ID)
	case "/stop":
		m.store.StopGeneration()
		return m, nil
	case "/regen":
		return m, m.regenerateCmd()
	case "/up", "/down":
		target, ok := lastAssistantMessage(m.store.Messages())
		if !ok {
			return m, tea.Println(errorStyle.Render("  no answer to rate"))
		}
		marker := api.FeedbackUp
		if cmd == "/down" {
			marker = api.FeedbackDown
		}
		return m, m.feedbackCmd(target.ID, marker)
	case "/compact":
		err := m.prefs.Update(func(p *config.Prefs) { p.CompactLayout = !p.CompactLayout })
		if err != nil {
			return m, tea.Println(errorStyle.Render("  " + err.Error()))
		}
		return m, nil
	case "/quit":
		m.store.StopGeneration()
		m.quitting = true
		return m, tea.Quit
	}
	return m, tea.Println(errorStyle.Render("  unknown command " + cmd + " (try /help)"))
}

func lastAssistantMessage(msgs []chat.Message) (chat.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

// ---------- view ----------

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.mode == modePicker {
		return m.renderPicker()
	}

	var b strings.Builder
	b.WriteString(m.renderTranscript())

	if errText := m.store.SendError(); errText != "" {
		b.WriteString(errorStyle.Render("✗ " + errText))
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("  resubmit or press ctrl+r to regenerate"))
		b.WriteString("\n")
	}

	switch {
	case m.store.Sending():
		b.WriteString(m.spinner.View() + " thinking… " + hintStyle.Render("(esc to stop)"))
		b.WriteString("\n")
	case m.loadingList || m.store.Loading():
		b.WriteString(m.spinner.View() + " loading…")
		b.WriteString("\n")
	}

	b.WriteString(m.textinput.View())
	b.WriteString("\n")
	if items := m.slashMenuItems(); items != nil {
		sel := m.slashSel
		if sel >= len(items) {
			sel = len(items) - 1
		}
		b.WriteString(renderSlashMenu(items, sel, m.width))
		b.WriteString("\n")
	}
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// slashMenuItems returns the autocomplete candidates for the current
// input, or nil when the input is not a slash command prefix.
func (m Model) slashMenuItems() []SlashMenuItem {
	val := m.textinput.Value()
	if !strings.HasPrefix(val, "/") || strings.Contains(val, " ") {
		return nil
	}
	return filterSlashItems(BuiltinSlashCommands(), val)
}

func (m Model) renderTranscript() string {
	msgs := m.store.Messages()
	if len(msgs) == 0 {
		return ""
	}
	prefs := m.prefs.Get()

	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render("❯ " + msg.Text))
			b.WriteString("\n")
		case chat.RoleAssistant:
			b.WriteString(m.renderAnswer(msg, prefs))
		}
	}
	return b.String()
}

func (m Model) renderAnswer(msg chat.Message, prefs config.Prefs) string {
	var b strings.Builder

	text := msg.Text
	if !prefs.ShowImages {
		text = stripImages(text)
	}
	b.WriteString(m.renderMarkdown(text))

	for i, c := range msg.Citations {
		line := fmt.Sprintf("  [%d] %s p.%d · %s", i+1, c.Filename, c.Page, c.CollectionName)
		if !prefs.CompactLayout && c.Snippet != "" {
			line += "\n      " + truncate(c.Snippet, 100)
		}
		b.WriteString(citationStyle.Render(line))
		b.WriteString("\n")
	}
	if msg.Feedback != "" {
		b.WriteString(feedbackStyle.Render("  rated " + msg.Feedback))
		b.WriteString("\n")
	}
	for _, f := range msg.Followups {
		b.WriteString(followupStyle.Render("  ↳ " + f))
		b.WriteString("\n")
	}
	return b.String()
}

// rebuildRenderer recreates the glamour renderer for the current width.
// Called from Update on resize so the cached renderer survives in the
// returned model.
func (m *Model) rebuildRenderer() {
	width := m.width - 2
	if width < 20 {
		width = 78
	}
	if m.mdRenderer != nil && m.mdRendererWidth == width {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	m.mdRenderer = r
	m.mdRendererWidth = width
}

// renderMarkdown renders assistant markdown via glamour, falling back to
// the raw text before the first resize event arrives.
func (m Model) renderMarkdown(text string) string {
	if m.mdRenderer == nil {
		return text + "\n"
	}
	out, err := m.mdRenderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(welcomeTitleStyle.Render("Chats"))
	b.WriteString("\n")
	if len(m.pickerRow) == 0 {
		b.WriteString(systemStyle.Render("  no chats yet"))
		b.WriteString("\n")
	}
	for i, sess := range m.pickerRow {
		line := fmt.Sprintf("%s  %s", sess.Title, hintStyle.Render(previewOf(sess)))
		if i == m.pickerSel {
			line = pickerSelectedStyle.Render("› ") + pickerSelectedStyle.Render(line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("enter select · d delete · esc back"))
	return pickerBorderStyle.Render(b.String())
}

func previewOf(sess api.Session) string {
	if sess.LastMessage == "" {
		return "empty"
	}
	return truncate(sess.LastMessage, 40)
}

func (m Model) renderStatusBar() string {
	title := "no chat"
	if active, ok := m.store.Active(); ok {
		title = active.Title
	}
	left := statusTitleStyle.Render(" " + title + " ")
	right := statusBarStyle.Render(m.cfg.Server + " · ctrl+n new · ctrl+s chats · ctrl+r regen ")
	return left + right
}

func renderWelcome(cfg TUIConfig) string {
	var b strings.Builder
	b.WriteString(welcomeTitleStyle.Render("ragdesk " + cfg.Version))
	b.WriteString("\n")
	b.WriteString("server  " + cfg.Server)
	if cfg.Email != "" {
		b.WriteString("\naccount " + cfg.Email)
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("ask a question about your documents · /help for commands"))
	return welcomeBorderStyle.Render(b.String())
}

func renderHelp() string {
	var b strings.Builder
	for _, it := range BuiltinSlashCommands() {
		b.WriteString(fmt.Sprintf("  %-12s %s\n", it.Name, it.Desc))
	}
	b.WriteString("  keys: esc stop · ctrl+n new chat · ctrl+s chats · ctrl+r regenerate")
	return systemStyle.Render(b.String())
}

func stripImages(markdown string) string {
	var b strings.Builder
	lines := strings.Split(markdown, "\n")
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "![") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
