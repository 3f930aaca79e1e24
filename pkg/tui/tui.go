// Package tui provides the Bubble Tea picker used by coverfetch when a cover
// is chosen interactively. It drives a cover.Orchestrator session and renders
// its results as they stream in.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"Cover-Art-Go/pkg/cover"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	serviceStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// Stage is the screen the picker shows.
type Stage int

const (
	StageCandidates Stage = iota
	StageImages
	StageWorking
	StageConfirm
	StageDone
	StageError
)

// SaveFunc stores the chosen cover and returns where it went.
type SaveFunc func(ctx context.Context, img *cover.ImageResult) (string, error)

// Config wires the picker to the engine.
type Config struct {
	Orchestrator *cover.Orchestrator
	Query        cover.SearchQuery
	Options      cover.Options
	Save         SaveFunc
	// NoSavePrompt saves an accepted image without asking.
	NoSavePrompt bool
	// ExitOnDownload quits once the cover is saved.
	ExitOnDownload bool
}

// Outcome is what the picker produced when it exited.
type Outcome struct {
	Result *cover.ImageResult
	Path   string
}

// row is one selectable line of the candidate screen.
type row struct {
	service string
	cand    *cover.AlbumCandidate
	img     *cover.ImageResult
}

// Model is the Bubble Tea model of the picker.
type Model struct {
	cfg     Config
	spinner spinner.Model
	events  <-chan cover.Event
	unsub   func()

	stage   Stage
	session *cover.Session
	snap    cover.Snapshot
	rows    []row
	cursor  int

	images    []cover.PotentialImage
	imgCursor int

	working string
	notice  string
	chosen  *cover.ImageResult
	path    string
	err     error
}

type (
	startedMsg struct {
		session *cover.Session
		err     error
	}

	eventMsg struct{ event cover.Event }

	eventsClosedMsg struct{}

	imagesMsg struct{ images []cover.PotentialImage }

	resolvedMsg struct {
		result   *cover.ImageResult
		accepted bool
	}

	savedMsg struct {
		path string
		err  error
	}
)

// NewModel subscribes to the orchestrator events. The search starts when the
// program calls Init.
func NewModel(cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	ch, unsub := cfg.Orchestrator.Subscribe()
	return Model{cfg: cfg, spinner: sp, events: ch, unsub: unsub, stage: StageWorking, working: "Starting search..."}
}

// Init starts the search session and begins listening for events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), waitEvent(m.events))
}

func (m Model) start() tea.Cmd {
	o, q, opts := m.cfg.Orchestrator, m.cfg.Query, m.cfg.Options
	return func() tea.Msg {
		s, err := o.StartSearch(q, opts)
		return startedMsg{session: s, err: err}
	}
}

func waitEvent(ch <-chan cover.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		if msg.err != nil {
			m.stage, m.err = StageError, msg.err
			return m, nil
		}
		m.session = msg.session
		m.stage = StageCandidates
		m.refresh()
		return m, nil

	case eventMsg:
		if m.session != nil && msg.event.Session == m.session.ID() {
			m.refresh()
			if msg.event.Kind == cover.EventBatchFailed {
				m.notice = fmt.Sprintf("%s: %s", msg.event.Service, msg.event.Message)
			}
		}
		return m, waitEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case imagesMsg:
		if len(msg.images) == 0 {
			m.stage = StageCandidates
			m.notice = "No images found for that album."
			return m, nil
		}
		m.images, m.imgCursor = msg.images, 0
		m.stage = StageImages
		return m, nil

	case resolvedMsg:
		return m.resolved(msg)

	case savedMsg:
		if msg.err != nil {
			m.stage, m.err = StageError, msg.err
			return m, nil
		}
		m.path = msg.path
		m.stage = StageDone
		if m.cfg.ExitOnDownload {
			return m, m.quit()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) resolved(msg resolvedMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.result == nil:
		m.notice = "Could not read the size of that image."
	case !msg.accepted:
		m.notice = fmt.Sprintf("Image is %dx%d, smaller than the %dx%d minimum.",
			msg.result.FullWidth, msg.result.FullHeight, m.cfg.Options.MinWidth, m.cfg.Options.MinHeight)
	default:
		m.chosen = msg.result
		if m.cfg.Save == nil {
			m.stage = StageDone
			return m, m.quit()
		}
		if m.cfg.NoSavePrompt {
			return m.save()
		}
		m.stage = StageConfirm
		return m, nil
	}
	if len(m.images) > 0 {
		m.stage = StageImages
	} else {
		m.stage = StageCandidates
	}
	m.refresh()
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, m.quit()
	case "q":
		if m.stage != StageWorking {
			return m, m.quit()
		}
	}

	switch m.stage {
	case StageCandidates:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "m":
			if r, ok := m.current(); ok && m.session != nil {
				if err := m.session.RequestMore(r.service); err != nil {
					m.notice = fmt.Sprintf("%s: %v", r.service, err)
				} else {
					m.notice = fmt.Sprintf("Loading more images from %s...", r.service)
				}
			}
		case "enter":
			r, ok := m.current()
			if !ok {
				return m, nil
			}
			m.notice = ""
			m.stage = StageWorking
			if r.img != nil {
				m.images = nil
				m.working = "Checking image size..."
				return m, m.selectImage(&r.img.PotentialImage)
			}
			m.working = fmt.Sprintf("Listing images of %s...", r.cand.AlbumName)
			return m, m.selectCandidate(r.cand)
		}

	case StageImages:
		switch msg.String() {
		case "up", "k":
			if m.imgCursor > 0 {
				m.imgCursor--
			}
		case "down", "j":
			if m.imgCursor < len(m.images)-1 {
				m.imgCursor++
			}
		case "esc", "backspace":
			m.stage = StageCandidates
			m.images = nil
			m.refresh()
		case "enter":
			m.notice = ""
			m.stage = StageWorking
			m.working = "Checking image size..."
			pi := m.images[m.imgCursor]
			return m, m.selectImage(&pi)
		}

	case StageConfirm:
		switch msg.String() {
		case "y", "enter":
			return m.save()
		case "n", "esc":
			return m, m.quit()
		}
	}
	return m, nil
}

func (m Model) save() (tea.Model, tea.Cmd) {
	m.stage = StageWorking
	m.working = "Saving cover..."
	save, img := m.cfg.Save, m.chosen
	return m, func() tea.Msg {
		path, err := save(context.Background(), img)
		return savedMsg{path: path, err: err}
	}
}

func (m Model) selectCandidate(c *cover.AlbumCandidate) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return imagesMsg{images: s.SelectCandidate(c)}
	}
}

func (m Model) selectImage(pi *cover.PotentialImage) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		res, ok := s.SelectImage(pi)
		return resolvedMsg{result: res, accepted: ok}
	}
}

// quit cancels a search still in progress and ends the program.
func (m Model) quit() tea.Cmd {
	if m.session != nil && !m.session.State().Terminal() {
		m.session.Cancel()
	}
	if m.unsub != nil {
		m.unsub()
	}
	return tea.Quit
}

func (m *Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// refresh rebuilds the rows from a new snapshot keeping the cursor on the
// same item when it still exists.
func (m *Model) refresh() {
	if m.session == nil {
		return
	}
	prev, hadPrev := m.current()
	m.snap = m.session.Snapshot()
	m.rows = nil
	for i := range m.snap.Services {
		svc := &m.snap.Services[i]
		for j := range svc.Images {
			m.rows = append(m.rows, row{service: svc.Service, img: &svc.Images[j]})
		}
		for j := range svc.Candidates {
			m.rows = append(m.rows, row{service: svc.Service, cand: &svc.Candidates[j]})
		}
	}
	if hadPrev {
		for i, r := range m.rows {
			if sameRow(r, prev) {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
}

func sameRow(a, b row) bool {
	switch {
	case a.service != b.service:
		return false
	case a.cand != nil && b.cand != nil:
		return a.cand.Identifier == b.cand.Identifier
	case a.img != nil && b.img != nil:
		return a.img.Identifier == b.img.Identifier
	}
	return false
}

// Outcome reports the chosen image and where it was saved.
func (m Model) Outcome() Outcome {
	return Outcome{Result: m.chosen, Path: m.path}
}

// Err returns the error that ended the picker, if any.
func (m Model) Err() error { return m.err }

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder
	title := "Album Art Picker"
	if q := m.cfg.Query; q.Artist != "" || q.Album != "" {
		title = fmt.Sprintf("Album Art Picker: %s", strings.TrimPrefix(q.Artist+" - "+q.Album, " - "))
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	switch m.stage {
	case StageCandidates:
		b.WriteString(m.viewCandidates())
	case StageImages:
		b.WriteString(m.viewImages())
	case StageWorking:
		b.WriteString(m.spinner.View() + " " + m.working + "\n")
	case StageConfirm:
		r := m.chosen
		b.WriteString(boxStyle.Render(fmt.Sprintf("%s cover from %s\n%dx%d\n\nSave it? (y/n)",
			r.AlbumName, r.SourceService, r.FullWidth, r.FullHeight)))
		b.WriteString("\n")
	case StageDone:
		msg := "Cover selected."
		if m.path != "" {
			msg = "Saved to " + m.path
		}
		b.WriteString(successStyle.Render(msg) + "\n")
	case StageError:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n" + warningStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(m.help()))
	return b.String()
}

func (m Model) viewCandidates() string {
	var b strings.Builder
	if m.snap.State == cover.StateSearching {
		b.WriteString(fmt.Sprintf("%s Searching, %d service(s) pending\n\n", m.spinner.View(), m.snap.Pending))
	}
	i := 0
	for _, svc := range m.snap.Services {
		status := ""
		if !svc.Done {
			status = dimStyle.Render(" searching")
		}
		b.WriteString(serviceStyle.Render(svc.Service) + status + "\n")
		if svc.Done && len(svc.Candidates) == 0 {
			b.WriteString(dimStyle.Render("  no results") + "\n")
		}
		for _, img := range svc.Images {
			b.WriteString(m.line(i, fmt.Sprintf("[%dx%d] %s", img.FullWidth, img.FullHeight, img.AlbumName)))
			i++
		}
		for _, c := range svc.Candidates {
			b.WriteString(m.line(i, fmt.Sprintf("%s - %s", c.ArtistName, c.AlbumName)))
			i++
		}
	}
	return b.String()
}

func (m Model) line(i int, text string) string {
	if i == m.cursor {
		return cursorStyle.Render("> "+text) + "\n"
	}
	return "  " + text + "\n"
}

func (m Model) viewImages() string {
	var b strings.Builder
	for i, pi := range m.images {
		label := pi.OriginalType
		if label == "" {
			label = "image"
		}
		if pi.IsFront {
			label += " (front)"
		}
		text := fmt.Sprintf("%s %s", label, dimStyle.Render(pi.FullImageURL))
		if i == m.imgCursor {
			b.WriteString(cursorStyle.Render("> ") + text + "\n")
		} else {
			b.WriteString("  " + text + "\n")
		}
	}
	return b.String()
}

func (m Model) help() string {
	switch m.stage {
	case StageCandidates:
		return "up/down: move | enter: open | m: more images | q: quit"
	case StageImages:
		return "up/down: move | enter: pick | esc: back | q: quit"
	case StageConfirm:
		return "y: save | n: quit without saving"
	case StageWorking:
		return "ctrl+c: cancel"
	}
	return "q: quit"
}

// Run shows the picker until the user quits and returns what was chosen.
func Run(cfg Config) (Outcome, error) {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Outcome{}, err
	}
	m := final.(Model)
	return m.Outcome(), m.Err()
}
