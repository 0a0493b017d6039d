package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/dgnsrekt/readaloud/internal/chat"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

const chatInputHeight = 2

const chatIntro = `Ask anything about the document. For example:

  • What is this document about?
  • Summarize the main points
  • Find information about a topic
  • Explain a specific section`

type (
	chatAnswerMsg struct {
		answer string
		err    error
	}
	chatExportedMsg struct {
		path string
		err  error
	}
)

type chatModel struct {
	common *commonModel

	session  *chat.Session
	docPath  string
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	pending     string // question awaiting an answer
	registering bool

	// Rendered answers keyed by width and content.
	rendered map[string]string

	statusMessage      *statusMessage
	statusMessageTimer *time.Timer
}

func newChatModel(common *commonModel) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about the PDF" + ellipsis
	ti.Prompt = "› "
	ti.PromptStyle = selectedStyle
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	m := chatModel{
		common:   common,
		viewport: viewport.New(0, 0),
		input:    ti,
		spinner:  sp,
		rendered: make(map[string]string),
	}
	if common.deps.Chat != nil {
		m.session = chat.NewSession(common.deps.Chat, "", "")
	}
	return m
}

func (m *chatModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(0, h-statusBarHeight-chatInputHeight)
	m.input.Width = max(0, w-len(m.input.Prompt)-2)
	m.render()
}

func (m *chatModel) focus() tea.Cmd {
	m.render()
	return m.input.Focus()
}

// attach binds the conversation to doc. The history is cleared when the
// document changes.
func (m *chatModel) attach(doc *document.Document) {
	if m.session == nil {
		return
	}
	m.docPath = doc.Path
	m.pending = ""
	m.registering = false
	m.session.Attach(doc.PDFID, doc.Filename)
	m.render()
}

func (m *chatModel) registered(msg documentRegisteredMsg) tea.Cmd {
	m.registering = false
	if msg.err != nil {
		log.Error("Unable to register document for chat", "error", msg.err)
		return m.showStatusMessage(statusMessage{message: describeError(msg.err), isError: true})
	}
	if m.session == nil || msg.doc.Path != m.docPath {
		return nil
	}
	m.session.Attach(msg.doc.PDFID, msg.doc.Filename)
	m.render()
	return nil
}

func (m *chatModel) showStatusMessage(msg statusMessage) tea.Cmd {
	m.statusMessage = &msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(chatContext, m.statusMessageTimer)
}

func (m chatModel) update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending != "" || m.session == nil {
				return m, nil
			}
			if m.registering {
				return m, m.showStatusMessage(statusMessage{message: "Still uploading the document" + ellipsis})
			}
			m.input.Reset()
			m.pending = q
			m.render()
			return m, tea.Batch(askCmd(m.session, q), m.spinner.Tick)

		case keyEsc:
			m.input.Reset()
			return m, nil

		case "ctrl+l":
			if m.session != nil {
				m.session.Clear()
				m.render()
				return m, m.showStatusMessage(statusMessage{message: "Chat cleared"})
			}

		case "ctrl+y":
			if answer := m.lastAnswer(); answer != "" {
				s := plainText(answer)
				termenv.Copy(s)
				_ = clipboard.WriteAll(s)
				return m, m.showStatusMessage(statusMessage{message: "Copied answer"})
			}

		case "ctrl+s":
			if m.session != nil && m.session.Len() > 0 {
				return m, exportCmd(m.session, m.transcriptPath())
			}

		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case chatAnswerMsg:
		m.pending = ""
		if msg.err != nil {
			log.Error("Chat failed", "error", msg.err)
			cmds = append(cmds, m.showStatusMessage(statusMessage{message: describeError(msg.err), isError: true}))
		}
		m.render()

	case chatExportedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatusMessage(statusMessage{message: msg.err.Error(), isError: true}))
		} else {
			cmds = append(cmds, m.showStatusMessage(statusMessage{message: "Saved " + msg.path}))
		}

	case spinner.TickMsg:
		if m.pending != "" || m.registering {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.render()
			cmds = append(cmds, cmd)
		}

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == chatContext {
			m.statusMessage = nil
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m chatModel) lastAnswer() string {
	if m.session == nil {
		return ""
	}
	h := m.session.History()
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == api.RoleAssistant {
			return h[i].Content
		}
	}
	return ""
}

func (m chatModel) transcriptPath() string {
	base := strings.TrimSuffix(filepath.Base(m.docPath), filepath.Ext(m.docPath))
	name := fmt.Sprintf("%s.chat-%s.yaml", base, time.Now().Format("20060102-150405"))
	dir := m.common.cfg.TranscriptDir
	if dir == "" {
		dir = filepath.Dir(m.docPath)
	}
	return filepath.Join(dir, name)
}

// render rebuilds the transcript and scrolls to the newest message.
func (m *chatModel) render() {
	width := max(0, m.viewport.Width-2*textMargin)

	var b strings.Builder
	var history []api.Message
	if m.session != nil {
		history = m.session.History()
	}
	if len(history) == 0 && m.pending == "" {
		b.WriteString(subtleStyle.Render(chatIntro))
	}
	for _, msg := range history {
		if msg.Role == api.RoleUser {
			b.WriteString(userLabelStyle.Render("You") + "\n" + wrap(msg.Content, width) + "\n\n")
			continue
		}
		b.WriteString(assistantLabelStyle.Render("Assistant") + "\n" + m.renderAnswer(msg.Content, width) + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(userLabelStyle.Render("You") + "\n" + wrap(m.pending, width) + "\n\n")
		b.WriteString(m.spinner.View() + dimStyle.Render(" Thinking"+ellipsis))
	}
	if m.registering {
		b.WriteString("\n" + m.spinner.View() + dimStyle.Render(" Uploading document"+ellipsis))
	}

	m.viewport.SetContent("\n" + indent(strings.TrimRight(b.String(), "\n"), textMargin))
	m.viewport.GotoBottom()
}

func (m chatModel) renderAnswer(md string, width int) string {
	key := fmt.Sprintf("%d:%s", width, md)
	if out, ok := m.rendered[key]; ok {
		return out
	}
	out, err := renderMarkdown(m.common.cfg, md, width)
	if err != nil {
		log.Debug("glamour render failed", "error", err)
		return wrap(md, width)
	}
	m.rendered[key] = out
	return out
}

func (m chatModel) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, m.viewport.View())
	m.statusBarView(&b)
	fmt.Fprint(&b, "\n"+m.input.View())
	return b.String()
}

func (m chatModel) statusBarView(b *strings.Builder) {
	logo := logoView()
	st := m.common.deps.Controller.Status()
	transport := statusBarPlaybackStyle(playbackView(st))
	helpNote := statusBarHelpStyle(" enter ask • ctrl+y copy • ctrl+s save • ctrl+l clear • tab back ")

	note := "Chat"
	style := statusBarNoteStyle
	if m.statusMessage != nil {
		note = m.statusMessage.message
		style = statusBarMessageStyle
		if m.statusMessage.isError {
			style = statusBarErrorStyle
		}
	}
	avail := max(0, m.common.width-
		ansi.PrintableRuneWidth(logo)-
		ansi.PrintableRuneWidth(transport)-
		ansi.PrintableRuneWidth(helpNote))
	note = truncate.StringWithTail(" "+note+" ", uint(avail), ellipsis) //nolint:gosec
	padding := strings.Repeat(" ", max(0, avail-ansi.PrintableRuneWidth(note)))

	fmt.Fprintf(b, "%s%s%s%s%s", logo, style(note), style(padding), transport, helpNote)
}

// COMMANDS

func askCmd(s *chat.Session, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := s.Ask(context.Background(), question)
		return chatAnswerMsg{answer: answer, err: err}
	}
}

func exportCmd(s *chat.Session, path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return chatExportedMsg{err: fmt.Errorf("unable to create transcript: %w", err)}
		}
		if err := s.Export(f); err != nil {
			_ = f.Close()
			return chatExportedMsg{err: err}
		}
		if err := f.Close(); err != nil {
			return chatExportedMsg{err: fmt.Errorf("unable to write transcript: %w", err)}
		}
		log.Info("Chat transcript exported", "path", path)
		return chatExportedMsg{path: path}
	}
}
