package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Zuo-Peng/guruchat/internal/api"
	"github.com/Zuo-Peng/guruchat/internal/catalog"
	"github.com/Zuo-Peng/guruchat/internal/gesture"
	"github.com/Zuo-Peng/guruchat/internal/session"
)

type screen int

const (
	screenWelcome screen = iota
	screenChat
)

// Personas lists the characters a new session can be opened with.
type Personas interface {
	Characters(ctx context.Context) ([]api.Character, error)
}

// Deps is everything the program drives. Controller and Catalog are only
// mutated from Update.
type Deps struct {
	Personas   Personas
	Client     catalog.API
	Controller *session.Controller
	Catalog    *catalog.Catalog
	// Resume is a session id to open once the catalog is loaded.
	Resume string
	Log    *zap.Logger
}

// model

type model struct {
	ctx     context.Context
	deps    Deps
	ctrl    *session.Controller
	catalog *catalog.Catalog
	log     *zap.Logger

	screen    screen
	width     int
	height    int
	ready     bool
	quitting  bool
	status    string
	statusErr bool

	// request is the token of the newest start or load; older results
	// are dropped when they arrive.
	request int

	// welcome
	personas   []api.Character
	picked     map[string]bool
	pickCursor int

	// chat
	composer textinput.Model
	feed     viewport.Model

	// history
	filterInput textinput.Model
	renameInput textinput.Model
	renaming    string
	histCursor  int
	histOffset  int
	gestures    map[string]*gesture.Machine
	dragID      string
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = limit
	return ti
}

func initialModel(ctx context.Context, d Deps) model {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	composer := newInput("Send a message.", 2000)
	composer.Focus()

	return model{
		ctx:         ctx,
		deps:        d,
		ctrl:        d.Controller,
		catalog:     d.Catalog,
		log:         d.Log,
		picked:      make(map[string]bool),
		composer:    composer,
		feed:        newViewport(0, 0),
		filterInput: newInput("Search chats...", 256),
		renameInput: newInput("New title", 256),
		gestures:    make(map[string]*gesture.Machine),
	}
}

// Run starts the TUI and blocks until it exits. Any reply still streaming
// is cancelled on exit.
func Run(ctx context.Context, d Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialModel(ctx, d)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	d.Controller.Close()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Init triggers the initial persona and history load.
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, bootCmd(m.ctx, m.deps))
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.feed = newViewport(m.width-2, m.feedHeight())
		m.composer.Width = m.width - 6
		m.refreshFeed()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.ctrl.Close()
			m.quitting = true
			return m, tea.Quit
		}
		switch {
		case m.catalog.Visible():
			return m.updateHistoryKeys(msg)
		case m.screen == screenWelcome:
			return m.updateWelcomeKeys(msg)
		default:
			return m.updateChatKeys(msg)
		}

	case tea.MouseMsg:
		if !m.ready {
			return m, nil
		}
		if m.catalog.Visible() {
			return m.updateHistoryMouse(msg)
		}
		if m.screen == screenChat && (msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown) {
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		}
		return m, nil

	case bootMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("could not load gurus: %w", msg.err))
		}
		m.personas = msg.characters
		if msg.sessionsErr != nil {
			m.log.Warn("list sessions at startup", zap.Error(msg.sessionsErr))
		} else {
			m.catalog.Reconcile(msg.sessions)
		}
		if id := m.deps.Resume; id != "" {
			entry, ok := m.catalog.Find(id)
			if !ok {
				m.setError(fmt.Errorf("session %s not found", id))
				return m, nil
			}
			m.setStatus("Resuming " + entry.Title + "...")
			seq := m.nextRequest()
			return m, loadCmd(m.ctx, m.ctrl, seq, entry)
		}
		return m, nil

	case startedMsg:
		if msg.seq != m.request {
			m.log.Debug("drop stale session start", zap.String("session_id", msg.sess.ID))
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		if err := m.ctrl.Begin(msg.sess, msg.characters); err != nil {
			m.setError(err)
			return m, nil
		}
		m.enterChat()
		m.setStatus("")
		return m, nil

	case turnOpenedMsg:
		ok := m.ctrl.Opened(msg.turn, msg.err)
		m.refreshFeed()
		if !ok {
			if msg.err != nil && !msg.turn.Stopped() {
				m.setError(msg.err)
			}
			return m, nil
		}
		return m, nextEventCmd(msg.turn)

	case streamEventMsg:
		if msg.err != nil {
			m.ctrl.Finish(msg.turn, msg.err)
			if msg.turn.Stopped() {
				m.refreshFeed()
				return m, nil
			}
			if m.ctrl.State() == session.StateErrored {
				m.setError(fmt.Errorf("reply interrupted: %w", m.ctrl.LastError()))
			}
			m.refreshFeed()
			return m, nil
		}
		if !m.ctrl.Apply(msg.turn, msg.ev) && !m.ctrl.Current(msg.turn) {
			m.ctrl.Finish(msg.turn, nil)
			return m, nil
		}
		m.refreshFeed()
		return m, nextEventCmd(msg.turn)

	case historyMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.catalog.Reconcile(msg.sessions)
		m.clampHistoryCursor()
		return m, nil

	case loadedMsg:
		if msg.seq != m.request {
			m.log.Debug("drop stale session load", zap.String("session_id", msg.entry.ID))
			return m, nil
		}
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		if err := m.ctrl.ApplyHistory(msg.entry.ID, msg.entry.Characters, msg.stored); err != nil {
			m.setError(err)
			return m, nil
		}
		m.catalog.Hide()
		m.enterChat()
		m.setStatus("Opened " + m.catalog.DisplayTitle(msg.entry))
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.catalog.Remove(msg.id)
		delete(m.gestures, msg.id)
		m.clampHistoryCursor()
		m.setStatus("Deleted")
		return m, nil

	case renamedMsg:
		if err := m.catalog.ResolveRename(msg.id, msg.title, msg.err); err != nil {
			m.setError(err)
			return m, nil
		}
		m.setStatus("Renamed to " + msg.title)
		return m, nil
	}

	return m, nil
}

func (m model) updateWelcomeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.pickCursor < len(m.personas)-1 {
			m.pickCursor++
		}
	case key.Matches(msg, keys.Toggle):
		if m.pickCursor < len(m.personas) {
			id := m.personas[m.pickCursor].ID
			m.picked[id] = !m.picked[id]
		}
	case key.Matches(msg, keys.Enter):
		var chosen []api.Character
		for _, c := range m.personas {
			if m.picked[c.ID] {
				chosen = append(chosen, c)
			}
		}
		if err := m.ctrl.CheckPersonas(chosen); err != nil {
			m.setError(err)
			return m, nil
		}
		m.setStatus("Starting session...")
		seq := m.nextRequest()
		return m, startCmd(m.ctx, m.ctrl, seq, chosen)
	case key.Matches(msg, keys.History):
		return m.openHistory()
	case key.Matches(msg, keys.Back):
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) updateChatKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Enter):
		turn, err := m.ctrl.Submit(m.ctx, m.composer.Value())
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			return m, nil
		case errors.Is(err, session.ErrNoPersona):
			m.composer.Reset()
			m.refreshFeed()
			return m, nil
		case err != nil:
			m.setError(err)
			return m, nil
		}
		m.composer.Reset()
		m.setStatus("")
		m.refreshFeed()
		return m, openTurnCmd(turn)

	case key.Matches(msg, keys.Style):
		m.setStatus("Mode: " + m.ctrl.ToggleStyle())
		return m, nil

	case key.Matches(msg, keys.History):
		return m.openHistory()

	case key.Matches(msg, keys.Copy):
		id := m.ctrl.SessionID()
		if err := clipboard.WriteAll(id); err != nil {
			m.setStatus("Session " + id)
		} else {
			m.setStatus("Copied session id " + id)
		}
		return m, nil

	case key.Matches(msg, keys.PageUp):
		m.feed.HalfViewUp()
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.feed.HalfViewDown()
		return m, nil

	case key.Matches(msg, keys.Back):
		if m.ctrl.Busy() {
			m.setStatus("Stopped")
		}
		m.ctrl.Close()
		m.nextRequest()
		m.screen = screenWelcome
		return m, nil
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m model) openHistory() (tea.Model, tea.Cmd) {
	m.catalog.Show()
	m.composer.Blur()
	m.filterInput.Focus()
	m.histCursor, m.histOffset = 0, 0
	return m, historyCmd(m.ctx, m.catalog, m.ctrl.UserID())
}

func (m model) closeHistory() model {
	m.catalog.Hide()
	m.filterInput.Blur()
	m.renaming = ""
	if m.screen == screenChat {
		m.composer.Focus()
	}
	return m
}

func (m model) updateHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming != "" {
		switch {
		case key.Matches(msg, keys.Enter):
			id := m.renaming
			title, err := m.catalog.MarkPending(id, m.renameInput.Value())
			if err != nil {
				m.setError(err)
				return m, nil
			}
			m.renaming = ""
			m.renameInput.Blur()
			m.filterInput.Focus()
			return m, renameCmd(m.ctx, m.deps.Client, id, title)
		case key.Matches(msg, keys.Back):
			m.renaming = ""
			m.renameInput.Blur()
			m.filterInput.Focus()
			return m, nil
		}
		var cmd tea.Cmd
		m.renameInput, cmd = m.renameInput.Update(msg)
		return m, cmd
	}

	entries := historyEntries(m.filtered())
	switch {
	case key.Matches(msg, keys.Back):
		return m.closeHistory(), nil

	case key.Matches(msg, keys.Up):
		if m.histCursor > 0 {
			m.histCursor--
			m.adjustHistoryScroll(m.panelHeight())
		}
		return m, nil

	case key.Matches(msg, keys.Down):
		if m.histCursor < len(entries)-1 {
			m.histCursor++
			m.adjustHistoryScroll(m.panelHeight())
		}
		return m, nil

	case key.Matches(msg, keys.Enter):
		if m.histCursor < len(entries) {
			seq := m.nextRequest()
			return m, loadCmd(m.ctx, m.ctrl, seq, entries[m.histCursor])
		}
		return m, nil

	case key.Matches(msg, keys.Delete):
		if m.histCursor < len(entries) {
			return m, deleteCmd(m.ctx, m.deps.Client, entries[m.histCursor].ID)
		}
		return m, nil

	case key.Matches(msg, keys.Rename):
		if m.histCursor < len(entries) {
			e := entries[m.histCursor]
			m.renaming = e.ID
			m.renameInput.SetValue(m.catalog.DisplayTitle(e))
			m.renameInput.CursorEnd()
			m.filterInput.Blur()
			m.renameInput.Focus()
		}
		return m, nil
	}

	before := m.filterInput.Value()
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if m.filterInput.Value() != before {
		m.histCursor, m.histOffset = 0, 0
	}
	return m, cmd
}

func (m model) updateHistoryMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	x := float64(msg.X * pixelsPerCell)
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		if m.histOffset > 0 {
			m.histOffset--
		}
		return m, nil

	case msg.Button == tea.MouseButtonWheelDown:
		if m.histOffset < len(historyLines(m.filtered()))-1 {
			m.histOffset++
		}
		return m, nil

	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		entry, ok := m.historyHit(msg.Y)
		if !ok {
			return m, nil
		}
		g := m.gestureFor(entry.ID)
		if g.Revealed() && msg.X < gesture.RevealOffset/pixelsPerCell {
			return m, deleteCmd(m.ctx, m.deps.Client, entry.ID)
		}
		m.selectEntry(entry.ID)
		g.Down(x)
		m.dragID = entry.ID
		return m, nil

	case msg.Action == tea.MouseActionMotion:
		if m.dragID == "" {
			return m, nil
		}
		g := m.gestureFor(m.dragID)
		if entry, ok := m.historyHit(msg.Y); !ok || entry.ID != m.dragID {
			g.Cancel()
			m.dragID = ""
			return m, nil
		}
		g.Move(x)
		return m, nil

	case msg.Action == tea.MouseActionRelease:
		if m.dragID == "" {
			return m, nil
		}
		id := m.dragID
		m.dragID = ""
		if m.gestureFor(id).Up() != gesture.OutcomeSelect {
			return m, nil
		}
		if entry, ok := m.catalog.Find(id); ok {
			seq := m.nextRequest()
			return m, loadCmd(m.ctx, m.ctrl, seq, entry)
		}
		return m, nil
	}
	return m, nil
}

func (m *model) nextRequest() int {
	m.request++
	return m.request
}

func (m *model) selectEntry(id string) {
	for i, e := range historyEntries(m.filtered()) {
		if e.ID == id {
			m.histCursor = i
			return
		}
	}
}

func (m *model) clampHistoryCursor() {
	n := len(historyEntries(m.filtered()))
	if m.histCursor >= n {
		m.histCursor = max(n-1, 0)
	}
	m.adjustHistoryScroll(m.panelHeight())
}

func (m model) filtered() []catalog.Bucket {
	return m.catalog.Filter(m.filterInput.Value())
}

func (m *model) enterChat() {
	m.screen = screenChat
	m.filterInput.Blur()
	m.composer.Focus()
	m.refreshFeed()
}

func (m *model) refreshFeed() {
	m.feed.SetContent(renderFeed(m.ctrl.Messages(), m.ctrl.Typing(), m.feed.Width-2))
	m.feed.GotoBottom()
}

func (m *model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *model) setError(err error) {
	m.log.Warn("tui", zap.Error(err))
	m.status, m.statusErr = err.Error(), true
}

// View renders the full TUI.
func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}
	switch {
	case m.catalog.Visible():
		return m.historyView()
	case m.screen == screenWelcome:
		return m.welcomeView()
	default:
		return m.chatView()
	}
}

func (m model) welcomeView() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("GuruChat"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("Pick up to three gurus, then press enter to get started."))
	b.WriteString("\n\n")
	if len(m.personas) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("Loading gurus..."))
	}
	for i, c := range m.personas {
		b.WriteString(renderPersona(c, m.width, m.picked[c.ID], i == m.pickCursor))
		b.WriteString("\n")
	}
	body := lipgloss.NewStyle().Height(m.height - 1).Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, body,
		m.statusBar("space pick", "enter start", "C-h history", "esc quit"))
}

func (m model) chatView() string {
	var names []string
	for _, c := range m.ctrl.Characters() {
		names = append(names, c.Name)
	}
	mode := styleModeNormal.Render("normal")
	if m.ctrl.Style() == "spicy" {
		mode = styleModeSpicy.Render("spicy")
	}
	header := styleTitle.Render("GuruChat") + "  " +
		lipgloss.NewStyle().Foreground(colorDim).Render(strings.Join(names, ", ")) + "  " + mode

	m.feed.Width = m.width - 2
	m.feed.Height = m.feedHeight()
	feed := m.feed.View()

	composer := styleActiveBorder.Width(m.width - 2).Render(m.composer.View())
	if m.ctrl.Busy() {
		composer = stylePanelBorder.Width(m.width - 2).Render(m.composer.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, feed, composer,
		m.statusBar("enter send", "C-s mode", "C-h history", "C-y copy id", "esc back"))
}

func (m model) historyView() string {
	title := styleTitle.Render("History")
	input := m.filterInput.View()
	if m.renaming != "" {
		input = m.renameInput.View()
	}
	list := m.renderHistory(m.width, m.panelHeight())
	return lipgloss.JoinVertical(lipgloss.Left, title, input, "", list,
		m.statusBar("enter/click open", "drag right to delete", "C-d delete", "C-r rename", "esc close"))
}

// helper methods

func (m model) feedHeight() int {
	if m.height <= 0 {
		return 10
	}
	// header (1) + viewport borders (2) + composer with borders (3) + status bar (1)
	h := m.height - 7
	if h < 3 {
		h = 3
	}
	return h
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// Subtract title, input and blank rows + status bar (1)
	h := m.height - historyTop - 1
	if h < 3 {
		h = 3
	}
	return h
}

func (m model) statusBar(hints ...string) string {
	if m.status != "" {
		if m.statusErr {
			return styleError.Render(m.status)
		}
		return styleStatusBar.Render(m.status)
	}
	return styleStatusBar.Render(strings.Join(hints, " | "))
}
