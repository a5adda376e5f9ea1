package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quocson95/flit/pkg/config"
	"github.com/quocson95/flit/pkg/ftpclient"
	"github.com/quocson95/flit/pkg/listing"
	"github.com/quocson95/flit/pkg/remotepath"
	"github.com/quocson95/flit/pkg/search"
	"github.com/quocson95/flit/pkg/transfer"
)

// AppState represents the current screen/state of the application
type AppState int

const (
	StateConnecting AppState = iota
	StateBrowse
	StateSearch
	StatePreview
	StateHelp
)

// maxConcurrentTransfers bounds how many downloads run at once; the rest
// queue as pending in the registry.
const maxConcurrentTransfers = 4

const (
	searchDebounce = 300 * time.Millisecond
	searchFlush    = 250 * time.Millisecond
	panelRefresh   = time.Second
	noticeExpiry   = 5 * time.Second
)

// Messages produced by background work.
type (
	connectedMsg struct {
		entries []listing.Entry
		err     error
	}
	listLoadedMsg struct {
		path    string
		entries []listing.Entry
		err     error
	}
	previewLoadedMsg struct {
		path    string
		content string
		err     error
	}
	transferUpdateMsg struct{}
	panelTickMsg      struct{}
	noticeExpiredMsg  struct{ gen int }
	searchDebounceMsg struct{ gen int }
	searchFlushMsg    struct{ gen int }
	searchFinishedMsg struct {
		gen int
		err error
	}
)

// AppModel is the root model that manages all screens
type AppModel struct {
	state     AppState
	prevState AppState // where help returns to

	cfg      config.Session
	session  *ftpclient.Session
	registry *transfer.Registry

	browser *BrowserModel
	search  *SearchModel
	preview *PreviewModel

	spin      spinner.Model
	updates   chan transferUpdateMsg
	sem       chan struct{}
	ticking   bool
	noticeGen int

	width  int
	height int
}

// NewAppModel creates a new application model
func NewAppModel(cfg config.Session) *AppModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = selectedItemStyle

	return &AppModel{
		state:    StateConnecting,
		cfg:      cfg,
		session:  ftpclient.NewSession(cfg),
		registry: transfer.NewRegistry(),
		browser:  NewBrowserModel(),
		spin:     spin,
		updates:  make(chan transferUpdateMsg, 64),
		sem:      make(chan struct{}, maxConcurrentTransfers),
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.connectCmd(), m.waitForTransferUpdate)
}

func (m *AppModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Connect(); err != nil {
			return connectedMsg{err: err}
		}
		entries, err := m.session.Navigate("/")
		return connectedMsg{entries: entries, err: err}
	}
}

func (m *AppModel) navigateCmd(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.session.Navigate(path)
		return listLoadedMsg{path: path, entries: entries, err: err}
	}
}

// navigateLinkCmd tries each candidate resolution of a symlink until one
// lists.
func (m *AppModel) navigateLinkCmd(candidates []string) tea.Cmd {
	return func() tea.Msg {
		var lastErr error
		for _, p := range candidates {
			entries, err := m.session.Navigate(p)
			if err == nil {
				return listLoadedMsg{path: p, entries: entries}
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = ftpclient.NewError(ftpclient.KindNotFound, "symlink target not found", nil)
		}
		return listLoadedMsg{err: lastErr}
	}
}

func (m *AppModel) previewCmd(path string) tea.Cmd {
	return func() tea.Msg {
		content, err := m.session.Preview(path, previewMaxBytes)
		return previewLoadedMsg{path: path, content: content, err: err}
	}
}

// waitForTransferUpdate is a command that waits for pings from transfer
// goroutines and re-arms itself after every message.
func (m *AppModel) waitForTransferUpdate() tea.Msg {
	return <-m.updates
}

// ping nudges the UI to re-render transfer state. Drops are fine; another
// ping always follows while a transfer is live.
func (m *AppModel) ping() {
	select {
	case m.updates <- transferUpdateMsg{}:
	default:
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.browser.width = msg.Width
		m.browser.SetViewportHeight(msg.Height)
		if m.preview != nil {
			m.preview.height = msg.Height
		}
		return m, nil

	case tea.KeyMsg:
		// Global quit
		if msg.String() == "ctrl+c" {
			m.shutdown()
			return m, tea.Quit
		}

	case connectedMsg:
		// The browser screen is shown either way; a failed connect
		// surfaces there with its error.
		m.state = StateBrowse
		if msg.err != nil {
			m.browser.SetError(msg.err)
			return m, nil
		}
		m.browser.SetEntries(m.session.CurrentPath(), msg.entries)
		return m, nil

	case transferUpdateMsg:
		return m, tea.Batch(m.waitForTransferUpdate, m.armPanelTick())

	case panelTickMsg:
		m.ticking = false
		return m, m.armPanelTick()

	case noticeExpiredMsg:
		// A later notice restarted the clock; only the newest expires.
		if msg.gen == m.noticeGen {
			m.browser.err = nil
			m.browser.status = ""
		}
		return m, nil
	}

	switch m.state {
	case StateConnecting:
		return m.updateConnecting(msg)
	case StateBrowse:
		return m.updateBrowse(msg)
	case StateSearch:
		return m.updateSearch(msg)
	case StatePreview:
		return m.updatePreview(msg)
	case StateHelp:
		return m.updateHelp(msg)
	default:
		return m, nil
	}
}

// notice shows a transient status or error on the browse screen and
// schedules its expiry.
func (m *AppModel) notice(status string, err error) tea.Cmd {
	m.browser.status = status
	m.browser.err = err
	m.noticeGen++
	gen := m.noticeGen
	return tea.Tick(noticeExpiry, func(time.Time) tea.Msg { return noticeExpiredMsg{gen: gen} })
}

// armPanelTick keeps the transfers panel redrawing once a second while
// anything is in it, so speeds, ETAs and retention expiry stay current.
func (m *AppModel) armPanelTick() tea.Cmd {
	if m.ticking || len(m.registry.Records()) == 0 {
		return nil
	}
	m.ticking = true
	return tea.Tick(panelRefresh, func(time.Time) tea.Msg { return panelTickMsg{} })
}

func (m *AppModel) updateConnecting(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.spin, cmd = m.spin.Update(msg)
	return m, cmd
}

func (m *AppModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case listLoadedMsg:
		if msg.err != nil {
			m.browser.loading = false
			return m, m.notice("", msg.err)
		}
		m.browser.SetEntries(m.session.CurrentPath(), msg.entries)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			m.shutdown()
			return m, tea.Quit

		case "up", "k":
			m.browser.MoveCursor(-1)
		case "down", "j":
			m.browser.MoveCursor(1)
		case "left", "h", "pgup":
			m.browser.PrevPage()
		case "right", "l", "pgdown":
			m.browser.NextPage()
		case "+", "=":
			m.browser.ResizePage(5)
		case "-", "_":
			m.browser.ResizePage(-5)

		case " ":
			m.browser.ToggleChecked()

		case "backspace":
			if !remotepath.IsRoot(m.browser.path) {
				m.browser.loading = true
				return m, m.navigateCmd(remotepath.Parent(m.browser.path))
			}

		case "r":
			m.browser.loading = true
			return m, m.navigateCmd(m.browser.path)

		case "enter":
			e, ok := m.browser.CurrentEntry()
			if !ok {
				return m, nil
			}
			switch e.Type {
			case listing.TypeDir:
				m.browser.loading = true
				return m, m.navigateCmd(remotepath.Join(m.browser.path, e.Name))
			case listing.TypeLink:
				m.browser.loading = true
				return m, m.navigateLinkCmd(linkCandidates(m.browser.path, e.LinkTarget))
			default:
				return m.openPreview(remotepath.Join(m.browser.path, e.Name))
			}

		case "v":
			if e, ok := m.browser.CurrentEntry(); ok && e.Type == listing.TypeFile {
				return m.openPreview(remotepath.Join(m.browser.path, e.Name))
			}

		case "d":
			targets := m.browser.Targets()
			if len(targets) == 0 {
				return m, nil
			}
			for _, e := range targets {
				m.startDownload(e)
			}
			m.browser.checked = make(map[int]struct{})
			return m, tea.Batch(
				m.notice(fmt.Sprintf("Queued %d download(s)", len(targets)), nil),
				m.armPanelTick(),
			)

		case "x":
			m.cancelNewestTransfer()
			return m, nil

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			// Cancel the n-th record shown in the transfers panel.
			n := int(msg.String()[0] - '0')
			records := m.registry.Records()
			if n <= len(records) {
				m.registry.Cancel(records[n-1].ID)
			}
			return m, nil

		case "/":
			m.search = NewSearchModel(m.browser.path)
			m.state = StateSearch
			return m, textinput.Blink

		case "?":
			m.prevState = StateBrowse
			m.state = StateHelp
			return m, nil
		}
	}
	return m, nil
}

func (m *AppModel) openPreview(path string) (tea.Model, tea.Cmd) {
	m.preview = NewPreviewModel(path)
	m.preview.height = m.height
	m.state = StatePreview
	return m, m.previewCmd(path)
}

func (m *AppModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	s := m.search
	if s == nil {
		m.state = StateBrowse
		return m, nil
	}

	switch msg := msg.(type) {
	case searchDebounceMsg:
		// A newer keystroke restarted the timer; this one is stale.
		if msg.gen != s.gen {
			return m, nil
		}
		return m, m.startSearch(s.input.Value())

	case searchFlushMsg:
		if msg.gen != s.gen {
			return m, nil
		}
		s.Drain()
		if s.searching {
			return m, m.armSearchFlush(s.gen)
		}
		return m, nil

	case searchFinishedMsg:
		if msg.gen != s.gen {
			return m, nil
		}
		s.Drain()
		s.searching = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			s.err = msg.err
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			s.Stop()
			m.state = StateBrowse
			return m, nil
		case "up":
			s.MoveCursor(-1)
			return m, nil
		case "down":
			s.MoveCursor(1)
			return m, nil
		case "tab":
			// Toggle between editing the query and acting on results,
			// so selection keys are not swallowed by the text input.
			if s.input.Focused() {
				s.input.Blur()
				return m, nil
			}
			s.input.Focus()
			return m, textinput.Blink
		case "enter":
			e, ok := s.CurrentResult()
			if !ok {
				return m, nil
			}
			s.Stop()
			m.state = StateBrowse
			m.browser.loading = true
			dest := e.OriginPath
			if e.Type == listing.TypeDir {
				dest = remotepath.Join(e.OriginPath, e.Name)
			}
			return m, m.navigateCmd(dest)

		case "ctrl+v":
			if e, ok := s.CurrentResult(); ok && e.Type == listing.TypeFile {
				s.Stop()
				return m.openPreview(remotepath.Join(e.OriginPath, e.Name))
			}
			return m, nil
		}

		if !s.input.Focused() {
			switch msg.String() {
			case " ":
				s.ToggleChecked()
				return m, nil
			case "d":
				targets := s.Targets()
				if len(targets) == 0 {
					return m, nil
				}
				for _, e := range targets {
					m.startDownload(e)
				}
				s.checked = make(map[int]struct{})
				s.status = fmt.Sprintf("Queued %d download(s)", len(targets))
				return m, m.armPanelTick()
			}
			return m, nil
		}

		before := s.input.Value()
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		if s.input.Value() != before {
			gen := s.Restart()
			if strings.TrimSpace(s.input.Value()) == "" {
				return m, cmd
			}
			debounce := tea.Tick(searchDebounce, func(time.Time) tea.Msg {
				return searchDebounceMsg{gen: gen}
			})
			return m, tea.Batch(cmd, debounce)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return m, cmd
}

// startSearch launches the walker for the current query.
func (m *AppModel) startSearch(query string) tea.Cmd {
	s := m.search
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.searching = true
	s.matches = make(chan listing.Entry, searchBufferSize)
	gen := s.gen
	matches := s.matches
	basePath := s.basePath
	session := m.session

	walk := func() tea.Msg {
		_, err := search.Search(ctx, session, basePath, query, searchMaxDepth, func(e listing.Entry) {
			select {
			case matches <- e:
			case <-ctx.Done():
			}
		})
		return searchFinishedMsg{gen: gen, err: err}
	}
	return tea.Batch(walk, m.armSearchFlush(gen))
}

func (m *AppModel) armSearchFlush(gen int) tea.Cmd {
	return tea.Tick(searchFlush, func(time.Time) tea.Msg { return searchFlushMsg{gen: gen} })
}

func (m *AppModel) updatePreview(msg tea.Msg) (tea.Model, tea.Cmd) {
	p := m.preview
	if p == nil {
		m.state = StateBrowse
		return m, nil
	}

	switch msg := msg.(type) {
	case previewLoadedMsg:
		if msg.path != p.path {
			return m, nil
		}
		if msg.err != nil {
			p.SetError(msg.err)
		} else {
			p.SetContent(msg.content)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			m.preview = nil
			m.state = StateBrowse
		case "up", "k":
			p.Scroll(-1)
		case "down", "j":
			p.Scroll(1)
		case "pgup":
			p.Scroll(-p.visibleLines())
		case "pgdown":
			p.Scroll(p.visibleLines())
		}
	}
	return m, nil
}

func (m *AppModel) updateHelp(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "q", "?":
			m.state = m.prevState
		}
	}
	return m, nil
}

// startDownload registers the transfer and hands it to a goroutine that
// waits its turn on the admission semaphore.
func (m *AppModel) startDownload(e listing.Entry) {
	origin := e.OriginPath
	if origin == "" {
		origin = m.browser.path
	}
	remote := remotepath.Join(origin, e.Name)
	local := filepath.Join(m.cfg.DownloadDir, e.Name)

	if e.Type == listing.TypeLink {
		log.Printf("[INFO] Not downloading symlink %s", remote)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := m.registry.Add(e.Name, remote, local, e.Size, cancel)
	go m.runDownload(ctx, id, e, remote, local)
}

func (m *AppModel) runDownload(ctx context.Context, id int, e listing.Entry, remote, local string) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.ping()
		return
	}
	defer func() { <-m.sem }()

	m.registry.Start(id)
	m.ping()

	onProgress := func(p transfer.Progress) {
		m.registry.Update(id, p)
		m.ping()
	}

	var err error
	if e.IsDir() {
		err = transfer.DownloadDir(ctx, m.session.NewTransferConn, m.session, remote, local, onProgress)
	} else {
		err = transfer.DownloadFile(ctx, m.session.NewTransferConn, remote, local, onProgress)
	}

	switch {
	case err == nil:
		m.registry.Complete(id)
	case errors.Is(err, context.Canceled):
		// Cancel already marked the record.
	default:
		log.Printf("[ERROR] Download %s failed: %v", remote, err)
		m.registry.Fail(id, err)
	}
	m.ping()
}

// cancelNewestTransfer stops the most recently queued live transfer.
func (m *AppModel) cancelNewestTransfer() {
	records := m.registry.Records()
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Status == transfer.StatusPending || r.Status == transfer.StatusActive {
			m.registry.Cancel(r.ID)
			return
		}
	}
}

func (m *AppModel) shutdown() {
	for _, r := range m.registry.Records() {
		if r.Status == transfer.StatusPending || r.Status == transfer.StatusActive {
			m.registry.Cancel(r.ID)
		}
	}
	m.session.Disconnect()
}

func (m *AppModel) View() string {
	switch m.state {
	case StateConnecting:
		return boxStyle.Render(fmt.Sprintf("%s Connecting to %s...",
			m.spin.View(), m.cfg.Addr()))
	case StateBrowse:
		body := m.browser.View() + m.transfersPanel()
		body += "\n" + helpStyle.Render("↑/↓ move • ←/→ page • space: select • enter: open • d: download • v: preview • /: search • x: cancel transfer • ?: help • q: quit")
		return boxStyle.Render(body)
	case StateSearch:
		return boxStyle.Render(m.search.View())
	case StatePreview:
		return boxStyle.Render(m.preview.View())
	case StateHelp:
		return boxStyle.Render(m.helpView())
	default:
		return "Unknown state"
	}
}

func (m *AppModel) transfersPanel() string {
	records := m.registry.Records()
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Transfers"))
	b.WriteString("\n")
	for i, r := range records {
		tag := fmt.Sprintf("[%d]", i+1)
		switch r.Status {
		case transfer.StatusActive:
			pct := "?"
			if r.Total > 0 {
				pct = fmt.Sprintf("%d%%", r.Transferred*100/r.Total)
			}
			line := fmt.Sprintf("%s ⏬ %s  %s/%s (%s)  %s  ETA %s",
				tag, r.Filename, formatSize(r.Transferred), formatSize(r.Total), pct,
				formatSpeed(r.Speed), formatETA(r.ETA))
			b.WriteString(itemStyle.Render(line))
		case transfer.StatusPending:
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s ⏳ %s  queued", tag, r.Filename)))
		case transfer.StatusCompleted:
			b.WriteString(successStyle.Render(fmt.Sprintf("%s ✓ %s  done (%s)", tag, r.Filename, formatSize(r.Transferred))))
		case transfer.StatusCancelled:
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s ✗ %s  cancelled", tag, r.Filename)))
		case transfer.StatusFailed:
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s ✗ %s  %v", tag, r.Filename, r.Err)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func (m *AppModel) helpView() string {
	rows := [][2]string{
		{"↑/k, ↓/j", "move cursor"},
		{"←/h, →/l", "previous / next page"},
		{"+/-", "grow / shrink page size"},
		{"space", "select / deselect entry"},
		{"enter", "open directory, follow symlink, preview file"},
		{"backspace", "parent directory"},
		{"d", "download selection (or entry under cursor)"},
		{"v", "preview file"},
		{"/", "recursive search"},
		{"x", "cancel newest transfer"},
		{"1-9", "cancel transfer by panel number"},
		{"r", "refresh listing"},
		{"q/esc", "quit"},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys"))
	b.WriteString("\n\n")
	keyStyle := lipgloss.NewStyle().Bold(true).Width(12)
	for _, row := range rows {
		b.WriteString("  " + keyStyle.Render(row[0]) + row[1] + "\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("esc/q/? back"))
	return b.String()
}
