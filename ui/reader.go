package ui

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

const (
	statusBarHeight = 1
	textMargin      = 2
)

var readerHelpHeight int

type reloadMsg struct{ path string }

type readerState int

const (
	readerStateBrowse readerState = iota
	readerStateStatusMessage
)

type readerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    readerState
	showHelp bool

	// Scroll with playback so the current sentence stays in view.
	follow bool

	statusMessage      statusMessage
	statusMessageTimer *time.Timer

	doc    *document.Document
	spans  []span
	status playback.Status

	watcher *fsnotify.Watcher
}

func newReaderModel(common *commonModel) readerModel {
	// Init viewport
	vp := viewport.New(0, 0)
	vp.YPosition = 0
	vp.HighPerformanceRendering = common.cfg.HighPerformancePager

	return readerModel{
		common:   common,
		state:    readerStateBrowse,
		viewport: vp,
		follow:   true,
	}
}

func (m readerModel) controller() *playback.Controller {
	return m.common.deps.Controller
}

func (m *readerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + readerHelpHeight)
	}
	m.render()
}

func (m *readerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// setDocument shows doc, which the controller has just loaded, and starts
// watching its file for changes.
func (m *readerModel) setDocument(doc *document.Document, reloaded bool) tea.Cmd {
	m.doc = doc
	m.spans = sentenceSpans(doc.Text, m.controller().Sentences())
	m.status = m.controller().Status()
	m.viewport.GotoTop()
	m.render()

	var cmds []tea.Cmd
	if m.viewport.HighPerformanceRendering {
		cmds = append(cmds, viewport.Sync(m.viewport))
	}
	if reloaded {
		cmds = append(cmds, m.showStatusMessage(statusMessage{message: "Reloaded " + doc.Filename}))
	}
	cmds = append(cmds, m.watch())
	return tea.Batch(cmds...)
}

func (m *readerModel) unload() {
	log.Debug("unload")
	if m.showHelp {
		m.toggleHelp()
	}
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.state = readerStateBrowse
	m.doc = nil
	m.spans = nil
	m.status = playback.Status{}
	m.viewport.SetContent("")
	m.viewport.YOffset = 0
	m.unwatch()
}

// refresh pulls the controller status and redraws when the current
// sentence moved.
func (m *readerModel) refresh() {
	if m.doc == nil {
		return
	}
	prev := m.status
	m.status = m.controller().Status()
	if prev.Index != m.status.Index || prev.Total != m.status.Total {
		m.render()
	}
}

func (m *readerModel) render() {
	if m.doc == nil {
		return
	}
	width := m.viewport.Width - 2*textMargin
	if limit := int(m.common.cfg.GlamourMaxWidth); limit > 0 && limit < width { //nolint:gosec
		width = limit
	}
	content, line := renderText(m.doc.Text, m.spans, m.status.Index, width)
	m.viewport.SetContent(indent(strings.Trim(content, "\n"), textMargin))
	if m.follow {
		// Leading blank lines were trimmed above.
		lead := strings.Count(content, "\n") - strings.Count(strings.TrimLeft(content, "\n"), "\n")
		m.viewport.SetYOffset(max(0, line-lead-m.viewport.Height/3))
	}
}

func (m *readerModel) showStatusMessage(msg statusMessage) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(readerContext, m.statusMessageTimer)
}

func (m readerModel) update(msg tea.Msg) (readerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", keyEsc:
			if m.state != readerStateBrowse {
				m.state = readerStateBrowse
				return m, nil
			}
			if m.showHelp {
				m.toggleHelp()
				return m, nil
			}
		case "home", "g":
			m.viewport.GotoTop()
			if m.viewport.HighPerformanceRendering {
				cmds = append(cmds, viewport.Sync(m.viewport))
			}
		case "end", "G":
			m.viewport.GotoBottom()
			if m.viewport.HighPerformanceRendering {
				cmds = append(cmds, viewport.Sync(m.viewport))
			}

		case "c":
			if s := m.status.Sentence; s != "" {
				// Copy using OSC 52
				termenv.Copy(s)
				// Copy using native system clipboard
				_ = clipboard.WriteAll(s)
				cmds = append(cmds, m.showStatusMessage(statusMessage{message: "Copied sentence"}))
			}

		case "r":
			if m.doc != nil {
				path := m.doc.Path
				return m, func() tea.Msg { return reloadMsg{path: path} }
			}

		case "t":
			m.follow = !m.follow
			if m.follow {
				m.render()
				cmds = append(cmds, m.showStatusMessage(statusMessage{message: "Following playback"}))
			} else {
				cmds = append(cmds, m.showStatusMessage(statusMessage{message: "Stopped following playback"}))
			}

		case "?":
			m.toggleHelp()
			if m.viewport.HighPerformanceRendering {
				cmds = append(cmds, viewport.Sync(m.viewport))
			}

		default:
			// Playback keys never reach the viewport, which binds some of
			// them to scrolling.
			if handled, cmd := m.handlePlaybackKey(msg.String()); handled {
				m.refresh()
				return m, cmd
			}
		}

	// We've received terminal dimensions, either for the first time or
	// after a resize
	case tea.WindowSizeMsg:
		m.render()

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == readerContext {
			m.state = readerStateBrowse
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handlePlaybackKey maps transport keys to controller calls.
func (m *readerModel) handlePlaybackKey(key string) (bool, tea.Cmd) {
	ctrl := m.controller()
	switch key {
	case " ":
		ctrl.TogglePlay()
	case "s":
		ctrl.Stop()
	case "right", "n":
		ctrl.SkipForward()
	case "left", "p":
		ctrl.SkipBack()
	case "1", "2", "3", "4", "5":
		return true, m.speedResult(ctrl.SetSpeed(playback.QuickSpeeds[key[0]-'1']))
	case "+", "=":
		return true, m.speedResult(ctrl.AdjustSpeed(1))
	case "-", "_":
		return true, m.speedResult(ctrl.AdjustSpeed(-1))
	case "]":
		ctrl.AdjustVolume(1)
	case "[":
		ctrl.AdjustVolume(-1)
	case "m":
		ctrl.ToggleMute()
	case "v":
		if m.status.Backend != "remote" {
			return true, m.showStatusMessage(statusMessage{message: "Voices apply to the remote backend", isError: true})
		}
		voice := nextVoice(m.status.Voice)
		ctrl.SetVoice(voice)
		return true, m.showStatusMessage(statusMessage{message: "Voice " + voice + " from the next sentence"})
	default:
		return false, nil
	}
	return true, nil
}

func (m *readerModel) speedResult(err error) tea.Cmd {
	m.refresh()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, playback.ErrUnsupported):
		return m.showStatusMessage(statusMessage{message: "Speed " + formatSpeed(m.status.Speed) + " applies from the next sentence"})
	default:
		return m.showStatusMessage(statusMessage{message: err.Error(), isError: true})
	}
}

// nextVoice cycles through the built-in voices.
func nextVoice(current string) string {
	voices := api.BuiltinVoices()
	for i, v := range voices {
		if v.Name == current || v.ID == current {
			return voices[(i+1)%len(voices)].Name
		}
	}
	return voices[0].Name
}

func (m readerModel) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

func stateIcon(s playback.State) string {
	switch s {
	case playback.Playing:
		return "▶"
	case playback.Paused:
		return "⏸"
	default:
		return "■"
	}
}

// playbackView renders the transport summary, such as
// "▶ 3/120 · 1.25× · 80% · remote".
func playbackView(st playback.Status) string {
	pos := 0
	if st.Total > 0 {
		pos = st.Index + 1
	}
	vol := fmt.Sprintf("%.0f%%", st.Volume*100)
	if st.Muted {
		vol = "muted"
	}
	return fmt.Sprintf(" %s %d/%d · %s · %s · %s ",
		stateIcon(st.State), pos, st.Total, formatSpeed(st.Speed), vol, st.Backend)
}

func formatSpeed(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "×"
}

func (m readerModel) statusBarView(b *strings.Builder) {
	showStatusMessage := m.state == readerStateStatusMessage
	isError := showStatusMessage && m.statusMessage.isError

	// Logo
	logo := logoView()

	// Playback summary and scroll percent
	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	transport := playbackView(m.status) + fmt.Sprintf("%3.f%% ", percent*100)
	if showStatusMessage {
		transport = statusBarMessageStyle(transport)
	} else {
		transport = statusBarPlaybackStyle(transport)
	}

	// "Help" note
	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	// Note
	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage.message
	case m.doc != nil:
		note = m.doc.Describe()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(transport)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	switch {
	case isError:
		note = statusBarErrorStyle(note)
	case showStatusMessage:
		note = statusBarMessageStyle(note)
	default:
		note = statusBarNoteStyle(note)
	}

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(transport)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	switch {
	case isError:
		emptySpace = statusBarErrorStyle(emptySpace)
	case showStatusMessage:
		emptySpace = statusBarMessageStyle(emptySpace)
	default:
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		transport,
		helpNote,
	)
}

func (m readerModel) helpView() (s string) {
	col1 := []string{
		"space    play/pause",
		"s        stop",
		"←/p →/n  previous/next sentence",
		"1-5      speed 0.75× to 2×",
		"+/-      faster/slower",
		"[/]      volume down/up",
		"m        mute",
	}
	col2 := []string{
		"v        next voice (remote)",
		"t        follow playback",
		"c        copy sentence",
		"r        reload document",
		"tab      chat about document",
		"esc      back to files",
		"q        quit",
	}

	s += "\n"
	s += "k/↑      up                  " + col1[0] + "      " + col2[0] + "\n"
	s += "j/↓      down                " + col1[1] + "      " + col2[1] + "\n"
	s += "b/pgup   page up             " + col1[2] + "  " + col2[2] + "\n"
	s += "f/pgdn   page down           " + col1[3] + "      " + col2[3] + "\n"
	s += "u        ½ page up           " + col1[4] + "      " + col2[4] + "\n"
	s += "d        ½ page down         " + col1[5] + "      " + col2[5] + "\n"
	s += "g/G      top/bottom          " + col1[6] + "      " + col2[6]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}

// COMMANDS

// watch starts a fresh watcher on the document's directory. The previous
// watcher, if any, is closed, which ends its goroutine.
func (m *readerModel) watch() tea.Cmd {
	m.unwatch()
	if m.doc == nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
		return nil
	}
	m.watcher = w
	return watchFile(w, m.doc.Path)
}

func (m *readerModel) unwatch() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Close(); err != nil {
		log.Debug("fsnotify close", "error", err)
	}
	m.watcher = nil
}

func watchFile(w *fsnotify.Watcher, path string) tea.Cmd {
	return func() tea.Msg {
		dir := filepath.Dir(path)
		if err := w.Add(dir); err != nil {
			log.Error("error adding dir to fsnotify watcher", "error", err)
			return nil
		}

		log.Info("fsnotify watching dir", "dir", dir)

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if event.Name != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return reloadMsg{path: path}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Debug("fsnotify error", "dir", dir, "error", err)
			}
		}
	}
}
