// Package ui provides the terminal interface for readaloud: a library of
// PDFs, a reader that follows playback sentence by sentence, and a chat
// about the open document.
package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/chat"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/muesli/gitcha"
	te "github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
	keyEsc               = "esc"
)

var pdfExtensions = []string{"*.pdf", "*.PDF"}

// Deps are the services the program drives. Controller, Events and
// Extractor are required. Chat is nil when no reader server is configured,
// which disables the chat view. Service, when set, registers locally
// extracted documents with the server so they can be discussed.
type Deps struct {
	Controller *playback.Controller
	Events     *Events
	Extractor  document.Extractor
	Chat       chat.Client
	Service    document.Service
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting readaloud",
		"high_perf_pager",
		cfg.HighPerformancePager,
		"glamour",
		cfg.GlamourEnabled,
		"chat",
		deps.Chat != nil,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, deps)
	return tea.NewProgram(m, opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	initLocalFileSearchMsg struct {
		cwd string
		ch  chan gitcha.SearchResult
	}
	foundLocalFileMsg       gitcha.SearchResult
	localFileSearchFinished struct{}
	statusMessageTimeoutMsg applicationContext

	documentLoadedMsg struct {
		doc      *document.Document
		reloaded bool
	}
	documentErrMsg struct {
		path string
		err  error
	}
	documentRegisteredMsg struct {
		doc *document.Document
		err error
	}
)

// applicationContext indicates the area of the application something applies
// to. Occasionally used as an argument to commands and messages.
type applicationContext int

const (
	libraryContext applicationContext = iota
	readerContext
	chatContext
)

// state is the top-level application state.
type state int

const (
	stateShowLibrary state = iota
	stateLoadingDocument
	stateShowDocument
	stateShowChat
)

func (s state) String() string {
	return map[state]string{
		stateShowLibrary:     "showing file listing",
		stateLoadingDocument: "loading document",
		stateShowDocument:    "showing document",
		stateShowChat:        "showing chat",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	deps   Deps
	cwd    string
	width  int
	height int
}

type model struct {
	common   *commonModel
	state    state
	fatalErr error

	// Sub-models
	library libraryModel
	reader  readerModel
	chat    chatModel

	// Spinner shown while a document is being extracted
	spinner spinner.Model
	loading string

	// Opened directly from the command line; a failed extraction is fatal
	// and esc does not lead to a library.
	single bool

	// Channel that receives paths to local PDF files
	// (via the github.com/muesli/gitcha package)
	localFileFinder chan gitcha.SearchResult
}

func newModel(cfg Config, deps Deps) model {
	if cfg.GlamourStyle == styles.AutoStyle || cfg.GlamourStyle == "" {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	common := &commonModel{
		cfg:  cfg,
		deps: deps,
	}

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = selectedStyle

	m := model{
		common:  common,
		state:   stateShowLibrary,
		library: newLibraryModel(common),
		reader:  newReaderModel(common),
		chat:    newChatModel(common),
		spinner: sp,
	}

	path := cfg.Path
	if path == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Error("unable to stat file", "file", path, "error", err)
		m.fatalErr = err
		return m
	}
	if !info.IsDir() {
		m.single = true
		m.state = stateLoadingDocument
		m.loading = filepath.Base(path)
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.library.spinner.Tick}
	if m.common.deps.Events != nil {
		cmds = append(cmds, waitForEvent(m.common.deps.Events))
	}

	switch m.state { //nolint:exhaustive
	case stateShowLibrary:
		cmds = append(cmds, findLocalFiles(*m.common))
	case stateLoadingDocument:
		cmds = append(cmds, loadDocument(m.common.deps.Extractor, m.common.cfg.Path, false))
	}
	return tea.Batch(cmds...)
}

// unloadDocument stops playback and returns to the library.
func (m *model) unloadDocument() []tea.Cmd {
	m.common.deps.Controller.Unload()
	m.reader.unload()
	m.state = stateShowLibrary

	var batch []tea.Cmd
	if m.reader.viewport.HighPerformanceRendering {
		batch = append(batch, tea.ClearScrollArea) //nolint:staticcheck
	}
	if !m.library.loaded {
		batch = append(batch, m.library.spinner.Tick)
	}
	return batch
}

func (m *model) quit() tea.Cmd {
	m.reader.unload()
	return tea.Quit
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case keyEsc:
			switch m.state { //nolint:exhaustive
			case stateShowChat:
				if m.chat.input.Focused() && m.chat.input.Value() != "" {
					break
				}
				m.state = stateShowDocument
				return m, nil
			case stateShowDocument, stateLoadingDocument:
				if m.single || m.reader.showHelp {
					break
				}
				return m, tea.Batch(m.unloadDocument()...)
			}

		case "tab":
			switch m.state { //nolint:exhaustive
			case stateShowDocument:
				return m, m.openChat()
			case stateShowChat:
				m.state = stateShowDocument
				return m, nil
			}

		case "r":
			if m.state == stateShowLibrary && !m.library.filtering() {
				m.library.reset()
				return m, tea.Batch(findLocalFiles(*m.common), m.library.spinner.Tick)
			}

		case "q":
			switch m.state { //nolint:exhaustive
			case stateShowChat:
				// typing
			case stateShowLibrary:
				if !m.library.filtering() {
					return m, m.quit()
				}
			default:
				return m, m.quit()
			}

		case "ctrl+z":
			return m, tea.Suspend

		// Ctrl+C always quits no matter where in the application you are.
		case "ctrl+c":
			return m, m.quit()
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.library.setSize(msg.Width, msg.Height)
		m.reader.setSize(msg.Width, msg.Height)
		m.chat.setSize(msg.Width, msg.Height)

	case initLocalFileSearchMsg:
		m.localFileFinder = msg.ch
		m.common.cwd = msg.cwd
		cmds = append(cmds, findNextLocalFile(m))

	case foundLocalFileMsg:
		m.library.addFile(localFileToPDF(m.common.cwd, gitcha.SearchResult(msg)))
		cmds = append(cmds, findNextLocalFile(m))

	case localFileSearchFinished:
		m.library.loaded = true

	case openDocumentMsg:
		m.state = stateLoadingDocument
		m.loading = filepath.Base(msg.path)
		return m, tea.Batch(m.spinner.Tick, loadDocument(m.common.deps.Extractor, msg.path, false))

	case documentLoadedMsg:
		if m.state != stateLoadingDocument && !msg.reloaded {
			// The user backed out while extracting.
			return m, nil
		}
		if msg.reloaded && m.reader.doc == nil {
			return m, nil
		}
		total := m.common.deps.Controller.Load(msg.doc.Text)
		log.Info("Document loaded", "file", msg.doc.Filename, "sentences", total, "reloaded", msg.reloaded)
		m.chat.attach(msg.doc)
		if m.state != stateShowChat {
			m.state = stateShowDocument
		}
		return m, m.reader.setDocument(msg.doc, msg.reloaded)

	case documentErrMsg:
		log.Error("Unable to load document", "file", msg.path, "error", msg.err)
		if m.single && m.reader.doc == nil {
			m.fatalErr = msg.err
			return m, nil
		}
		if m.state == stateLoadingDocument {
			m.state = stateShowLibrary
			return m, m.library.showStatusMessage(statusMessage{message: describeError(msg.err), isError: true})
		}
		return m, m.reader.showStatusMessage(statusMessage{message: describeError(msg.err), isError: true})

	case documentRegisteredMsg:
		return m, m.chat.registered(msg)

	case reloadMsg:
		if m.reader.doc != nil && m.reader.doc.Path == msg.path {
			return m, loadDocument(m.common.deps.Extractor, msg.path, true)
		}
		return m, nil

	case playbackChangedMsg:
		cmds = append(cmds, waitForEvent(m.common.deps.Events))
		if m.state == stateShowDocument || m.state == stateShowChat {
			m.reader.refresh()
		}
		return m, tea.Batch(cmds...)

	case playbackErrMsg:
		cmds = append(cmds, waitForEvent(m.common.deps.Events))
		m.reader.refresh()
		cmds = append(cmds, m.reader.showStatusMessage(statusMessage{message: describeError(msg.err), isError: true}))
		return m, tea.Batch(cmds...)

	case eventsClosedMsg:
		return m, nil

	case spinner.TickMsg:
		if m.state == stateLoadingDocument && msg.ID == m.spinner.ID() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case errMsg:
		m.fatalErr = msg.err
		return m, nil
	}

	switch m.state { //nolint:exhaustive
	case stateShowLibrary:
		newLibrary, cmd := m.library.update(msg)
		m.library = newLibrary
		cmds = append(cmds, cmd)

	case stateShowDocument:
		newReader, cmd := m.reader.update(msg)
		m.reader = newReader
		cmds = append(cmds, cmd)

	case stateShowChat:
		newChat, cmd := m.chat.update(msg)
		m.chat = newChat
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// openChat switches to the chat view, registering the document with the
// reader server first when it has no server ID yet.
func (m *model) openChat() tea.Cmd {
	if m.common.deps.Chat == nil {
		return m.reader.showStatusMessage(statusMessage{message: "Chat needs a reader server (set server.url)", isError: true})
	}
	m.state = stateShowChat
	cmds := []tea.Cmd{m.chat.focus()}
	if doc := m.reader.doc; doc != nil && doc.PDFID == "" && m.common.deps.Service != nil && !m.chat.registering {
		m.chat.registering = true
		cmds = append(cmds, registerDocument(m.common.deps.Service, doc), m.chat.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state {
	case stateLoadingDocument:
		return "\n" + indent(fmt.Sprintf("%s Extracting %s%s", m.spinner.View(), m.loading, ellipsis), 2)
	case stateShowDocument:
		return m.reader.View()
	case stateShowChat:
		return m.chat.View()
	default:
		return m.library.View()
	}
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// describeError shortens well-known failures for the status bar.
func describeError(err error) string {
	switch {
	case errors.Is(err, document.ErrNotPDF):
		return "Only PDF files are allowed"
	case errors.Is(err, document.ErrTooLarge):
		return "File is larger than the upload limit"
	case errors.Is(err, document.ErrNoText):
		return "No text found in PDF"
	case errors.Is(err, chat.ErrNoDocument):
		return "Document is not registered with the reader server"
	case errors.Is(err, playback.ErrUnsupported):
		return "Speed applies from the next sentence"
	}
	return err.Error()
}

// COMMANDS

func loadDocument(ex document.Extractor, path string, reloaded bool) tea.Cmd {
	return func() tea.Msg {
		doc, err := ex.Extract(context.Background(), path)
		if err != nil {
			return documentErrMsg{path: path, err: err}
		}
		return documentLoadedMsg{doc: doc, reloaded: reloaded}
	}
}

func registerDocument(svc document.Service, doc *document.Document) tea.Cmd {
	// Register mutates the document; work on a copy so the reader's
	// document is only updated from Update.
	cp := *doc
	return func() tea.Msg {
		err := document.Register(context.Background(), svc, &cp)
		return documentRegisteredMsg{doc: &cp, err: err}
	}
}

func findLocalFiles(m commonModel) tea.Cmd {
	return func() tea.Msg {
		log.Info("findLocalFiles")
		var (
			cwd = m.cfg.Path
			err error
		)

		if cwd == "" {
			cwd, err = os.Getwd()
		} else {
			var info os.FileInfo
			info, err = os.Stat(cwd)
			if err == nil && info.IsDir() {
				cwd, err = filepath.Abs(cwd)
			}
		}

		// Note that this is one error check for both cases above
		if err != nil {
			log.Error("error finding local files", "error", err)
			return errMsg{err}
		}

		log.Debug("local directory is", "cwd", cwd)

		// Switch between FindFiles and FindAllFiles to bypass .gitignore rules
		var ch chan gitcha.SearchResult
		if m.cfg.ShowAllFiles {
			ch, err = gitcha.FindAllFilesExcept(cwd, pdfExtensions, nil)
		} else {
			ch, err = gitcha.FindFilesExcept(cwd, pdfExtensions, ignorePatterns(m))
		}

		if err != nil {
			log.Error("error finding local files", "error", err)
			return errMsg{err}
		}

		return initLocalFileSearchMsg{ch: ch, cwd: cwd}
	}
}

func findNextLocalFile(m model) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-m.localFileFinder

		if ok {
			// Okay now find the next one
			return foundLocalFileMsg(res)
		}
		// We're done
		log.Debug("local file search finished")
		return localFileSearchFinished{}
	}
}

func ignorePatterns(m commonModel) []string {
	return []string{
		m.cfg.Gopath,
		"node_modules",
		".*",
	}
}

func waitForStatusMessageTimeout(appCtx applicationContext, t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg(appCtx)
	}
}
