package ui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/gitcha"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
)

const (
	libraryHeaderHeight = 3
	libraryItemHeight   = 3
	libraryFooterHeight = 2
)

type openDocumentMsg struct{ path string }

// pdfFile is an entry in the library listing.
type pdfFile struct {
	path    string // absolute
	note    string // path relative to the listing root
	size    int64
	modTime time.Time
}

func localFileToPDF(cwd string, res gitcha.SearchResult) *pdfFile {
	f := &pdfFile{
		path: res.Path,
		note: stripAbsolutePath(res.Path, cwd),
	}
	if res.Info != nil {
		f.size = res.Info.Size()
		f.modTime = res.Info.ModTime()
	}
	return f
}

// stripAbsolutePath returns path relative to cwd when it is inside cwd.
func stripAbsolutePath(path, cwd string) string {
	rel, err := filepath.Rel(cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

type statusMessage struct {
	message string
	isError bool
}

type libraryModel struct {
	common *commonModel

	files   []*pdfFile
	matches []fuzzy.Match // nil when unfiltered
	cursor  int
	offset  int
	loaded  bool

	filterState filterState
	filterInput textinput.Model
	spinner     spinner.Model

	statusMessage      *statusMessage
	statusMessageTimer *time.Timer
}

func newLibraryModel(common *commonModel) libraryModel {
	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.PromptStyle = selectedStyle
	ti.Cursor.Style = selectedStyle
	ti.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = selectedStyle

	return libraryModel{
		common:      common,
		filterInput: ti,
		spinner:     sp,
	}
}

func (m *libraryModel) setSize(w, _ int) {
	m.filterInput.Width = max(0, w-len(m.filterInput.Prompt)-4)
	m.clampOffset()
}

func (m *libraryModel) reset() {
	m.files = nil
	m.matches = nil
	m.cursor = 0
	m.offset = 0
	m.loaded = false
}

func (m libraryModel) filtering() bool {
	return m.filterState == filtering
}

// fileSource adapts the listing to fuzzy.Source.
type fileSource []*pdfFile

func (s fileSource) String(i int) string { return s[i].note }
func (s fileSource) Len() int            { return len(s) }

// addFile inserts f keeping the listing sorted by path.
func (m *libraryModel) addFile(f *pdfFile) {
	i := sort.Search(len(m.files), func(i int) bool { return m.files[i].note >= f.note })
	m.files = append(m.files, nil)
	copy(m.files[i+1:], m.files[i:])
	m.files[i] = f
	if m.filterState != unfiltered {
		m.applyFilter()
	}
}

func (m *libraryModel) applyFilter() {
	term := strings.TrimSpace(m.filterInput.Value())
	if term == "" {
		m.matches = nil
	} else {
		m.matches = fuzzy.FindFrom(term, fileSource(m.files))
		if m.matches == nil {
			m.matches = []fuzzy.Match{}
		}
	}
	m.cursor = 0
	m.offset = 0
}

func (m *libraryModel) resetFilter() {
	m.filterState = unfiltered
	m.filterInput.Reset()
	m.filterInput.Blur()
	m.matches = nil
	m.cursor = 0
	m.offset = 0
}

// visible returns the entries currently listed, in display order.
func (m libraryModel) visible() []*pdfFile {
	if m.matches == nil {
		return m.files
	}
	out := make([]*pdfFile, len(m.matches))
	for i, match := range m.matches {
		out[i] = m.files[match.Index]
	}
	return out
}

func (m libraryModel) selected() *pdfFile {
	v := m.visible()
	if m.cursor < 0 || m.cursor >= len(v) {
		return nil
	}
	return v[m.cursor]
}

func (m libraryModel) perPage() int {
	h := m.common.height - libraryHeaderHeight - libraryFooterHeight
	return max(1, h/libraryItemHeight)
}

func (m *libraryModel) moveCursor(delta int) {
	n := len(m.visible())
	if n == 0 {
		return
	}
	m.cursor = max(0, min(n-1, m.cursor+delta))
	m.clampOffset()
}

func (m *libraryModel) clampOffset() {
	per := m.perPage()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+per {
		m.offset = m.cursor - per + 1
	}
}

func (m *libraryModel) showStatusMessage(msg statusMessage) tea.Cmd {
	m.statusMessage = &msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(libraryContext, m.statusMessageTimer)
}

func (m libraryModel) update(msg tea.Msg) (libraryModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filterState == filtering {
			switch msg.String() {
			case keyEsc:
				m.resetFilter()
				return m, nil
			case "enter", "tab", "shift+tab", "ctrl+k", "up", "ctrl+j", "down":
				m.filterInput.Blur()
				m.filterState = filterApplied
				if m.filterInput.Value() == "" {
					m.resetFilter()
				}
				return m, nil
			}
			var cmd tea.Cmd
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "k", "up", "ctrl+k":
			m.moveCursor(-1)
		case "j", "down", "ctrl+j":
			m.moveCursor(1)
		case "b", "pgup":
			m.moveCursor(-m.perPage())
		case "f", "pgdown", " ":
			m.moveCursor(m.perPage())
		case "g", "home":
			m.moveCursor(-len(m.files))
		case "G", "end":
			m.moveCursor(len(m.files))
		case "/":
			m.resetFilter()
			m.filterState = filtering
			m.matches = nil
			return m, m.filterInput.Focus()
		case keyEsc:
			if m.filterState == filterApplied {
				m.resetFilter()
			}
		case "enter":
			if f := m.selected(); f != nil {
				path := f.path
				return m, func() tea.Msg { return openDocumentMsg{path: path} }
			}
		}

	case spinner.TickMsg:
		if !m.loaded && msg.ID == m.spinner.ID() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == libraryContext {
			m.statusMessage = nil
		}
	}

	return m, tea.Batch(cmds...)
}

func (m libraryModel) View() string {
	var b strings.Builder

	// Header
	header := logoView() + " "
	switch {
	case !m.loaded:
		header += m.spinner.View() + dimStyle.Render(" Looking for PDFs"+ellipsis)
	case len(m.files) == 1:
		header += dimStyle.Render("1 document")
	default:
		header += dimStyle.Render(fmt.Sprintf("%d documents", len(m.files)))
	}
	if m.statusMessage != nil {
		style := statusBarMessageStyle
		if m.statusMessage.isError {
			style = statusBarErrorStyle
		}
		header += "  " + style(" "+m.statusMessage.message+" ")
	}
	fmt.Fprintf(&b, "\n  %s\n", header)

	if m.filterState != unfiltered {
		fmt.Fprintf(&b, "  %s\n", m.filterInput.View())
	} else {
		b.WriteString("\n")
	}

	// Items
	visible := m.visible()
	if m.loaded && len(visible) == 0 {
		if len(m.files) == 0 {
			b.WriteString("\n" + indent(subtleStyle.Render("No PDFs found."), 2))
		} else {
			b.WriteString("\n" + indent(subtleStyle.Render("Nothing matched."), 2))
		}
	}
	end := min(len(visible), m.offset+m.perPage())
	for i := m.offset; i < end; i++ {
		var matched []int
		if m.matches != nil {
			matched = m.matches[i].MatchedIndexes
		}
		b.WriteString(m.itemView(visible[i], i == m.cursor, matched))
	}

	// Footer
	help := "enter open • / find • r rescan • q quit"
	if m.filterState == filterApplied {
		help = "enter open • esc clear filter • q quit"
	}
	if pages := (len(visible) + m.perPage() - 1) / m.perPage(); pages > 1 {
		help = fmt.Sprintf("%d/%d • %s", m.offset/m.perPage()+1, pages, help)
	}
	fmt.Fprintf(&b, "\n  %s", subtleStyle.Render(help))

	return b.String()
}

func (m libraryModel) itemView(f *pdfFile, selected bool, matched []int) string {
	width := max(0, m.common.width-6)
	title := truncate.StringWithTail(f.note, uint(width), ellipsis) //nolint:gosec
	title = highlightMatches(title, matched, selected)

	meta := humanize.Bytes(uint64(f.size)) //nolint:gosec
	if !f.modTime.IsZero() {
		meta += " · " + humanize.Time(f.modTime)
	}

	gutter := " "
	metaStyle := subtleStyle
	if selected {
		gutter = selectedStyle.Render("│")
		metaStyle = lipgloss.NewStyle().Foreground(dullFuchsia)
	}
	return fmt.Sprintf("  %s %s\n  %s %s\n\n", gutter, title, gutter, metaStyle.Render(meta))
}

// highlightMatches styles the runes of s at the matched byte offsets.
func highlightMatches(s string, matched []int, selected bool) string {
	base := lipgloss.NewStyle()
	if selected {
		base = selectedStyle
	}
	if len(matched) == 0 {
		return base.Render(s)
	}

	set := make(map[int]struct{}, len(matched))
	for _, i := range matched {
		set[i] = struct{}{}
	}

	var b strings.Builder
	for i, r := range s {
		if _, ok := set[i]; ok {
			b.WriteString(matchStyle.Render(string(r)))
			continue
		}
		b.WriteString(base.Render(string(r)))
	}
	return b.String()
}
