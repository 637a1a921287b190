package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/testherd/testherd/internal/core"
)

const asciiLogo = `
╔══════════════════════════════════════════════════════╗
║  ████████╗███████╗███████╗████████╗██╗  ██╗          ║
║  ╚══██╔══╝██╔════╝██╔════╝╚══██╔══╝██║  ██║          ║
║     ██║   █████╗  ███████╗   ██║   ███████║erd       ║
║     ██║   ██╔══╝  ╚════██║   ██║   ██╔══██║          ║
║     ██║   ███████╗███████║   ██║   ██║  ██║          ║
║     ╚═╝   ╚══════╝╚══════╝   ╚═╝   ╚═╝  ╚═╝          ║
║              COMMIT TEST PIPELINE WATCH              ║
╚══════════════════════════════════════════════════════╝
`

type model struct {
	styles  styles
	baseURL string

	// UI Components
	viewport  viewport.Model
	spinner   spinner.Model
	isLoading bool
	width     int
	height    int

	// Pipeline state
	status    core.PipelineStatus
	statusOK  bool
	results   *core.ResultSet
	lastErr   error
	fetchedAt time.Time
}

func initialModel(theme ThemeName, baseURL string) *model {
	styles := GetTheme(theme)

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	vp := viewport.New(80, 20)

	return &model{
		styles:    styles,
		baseURL:   baseURL,
		spinner:   sp,
		viewport:  vp,
		isLoading: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatusCmd(m.baseURL),
		fetchResultsCmd(m.baseURL),
		m.spinner.Tick,
		tickCmd(),
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.isLoading = true
			return m, tea.Batch(fetchStatusCmd(m.baseURL), fetchResultsCmd(m.baseURL), spCmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 18
		if m.viewport.Height < 5 {
			m.viewport.Height = 5
		}
		m.refreshViewport()

	case tickMsg:
		return m, tea.Batch(fetchStatusCmd(m.baseURL), fetchResultsCmd(m.baseURL), tickCmd(), spCmd)

	case statusMsg:
		m.isLoading = false
		m.fetchedAt = time.Now()
		if msg.err != nil {
			m.lastErr = msg.err
			m.statusOK = false
		} else {
			m.lastErr = nil
			m.statusOK = true
			m.status = msg.status
		}

	case resultsMsg:
		if msg.err == nil {
			m.results = msg.rs
			m.refreshViewport()
		}
	}

	return m, tea.Batch(vpCmd, spCmd)
}

func (m *model) refreshViewport() {
	if m.results == nil {
		m.viewport.SetContent(m.styles.inactive.Render("no results recorded yet"))
		return
	}

	var b strings.Builder
	passed, failed, errored := m.results.Counts()
	fmt.Fprintf(&b, "%s %s\n",
		m.styles.label.Render("commit"),
		m.results.CommitID,
	)
	fmt.Fprintf(&b, "%s sequence %d, produced %s\n\n",
		m.styles.inactive.Render("·"),
		m.results.Sequence,
		m.results.ProducedAt.Format(time.RFC822),
	)

	for _, r := range m.results.Results {
		switch r.Kind {
		case core.ResultPass:
			b.WriteString(m.styles.success.Render(" PASS "))
		case core.ResultFail:
			b.WriteString(m.styles.error.Render(" FAIL "))
		case core.ResultError:
			b.WriteString(m.styles.warning.Render(" ERROR"))
		}
		b.WriteString(" " + r.TestName + "\n")
		for _, reason := range r.Reasons {
			b.WriteString(m.styles.inactive.Render("       "+reason) + "\n")
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d passed, %d failed, %d errored", passed, failed, errored)
	if failed == 0 && errored == 0 {
		b.WriteString(m.styles.success.Render(summary))
	} else {
		b.WriteString(m.styles.error.Render(summary))
	}
	m.viewport.SetContent(b.String())
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.ascii.Render(asciiLogo))
	b.WriteString("\n")

	if m.isLoading {
		b.WriteString(m.spinner.View() + " connecting to " + m.baseURL + "\n")
	} else if m.lastErr != nil {
		b.WriteString(m.styles.error.Render("dispatcher unreachable: "+m.lastErr.Error()) + "\n")
	} else if m.statusOK {
		b.WriteString(m.statusLine() + "\n")
	}

	b.WriteString(m.styles.viewport.Render(m.viewport.View()))
	b.WriteString(m.styles.footer.Render("\n[r] refresh  ·  [q] quit"))

	return m.styles.app.Render(b.String())
}

func (m *model) statusLine() string {
	parts := []string{
		m.styles.label.Render("queued ") + fmt.Sprintf("%d", m.status.QueuedJobs),
		m.styles.label.Render("active ") + fmt.Sprintf("%d", m.status.ActiveJobs),
		m.styles.label.Render("idle workers ") + fmt.Sprintf("%d", m.status.IdleWorkers),
		m.styles.label.Render("busy workers ") + fmt.Sprintf("%d", m.status.BusyWorkers),
	}
	line := strings.Join(parts, m.styles.inactive.Render("  │  "))
	return line + m.styles.inactive.Render("   refreshed "+m.fetchedAt.Format("15:04:05"))
}
