package ui

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/playback"
)

// fakeBackend records started units and never finishes them.
type fakeBackend struct {
	mu      sync.Mutex
	name    string
	live    bool
	started []playback.Unit
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Start(u playback.Unit, _ func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, u)
}

func (f *fakeBackend) Pause() error { return nil }
func (f *fakeBackend) Resume() error { return nil }
func (f *fakeBackend) Cancel() {}
func (f *fakeBackend) SetVolume(float64) {}
func (f *fakeBackend) LiveSpeed() bool { return f.live }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) last() playback.Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[len(f.started)-1]
}

type fakeExtractor struct{ doc *document.Document }

func (f fakeExtractor) Extract(context.Context, string) (*document.Document, error) {
	if f.doc == nil {
		return nil, document.ErrNoText
	}
	return f.doc, nil
}

type fakeChatClient struct{ answer string }

func (f fakeChatClient) Chat(context.Context, api.ChatRequest) (string, error) {
	return f.answer, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func newTestModel(t *testing.T, b *fakeBackend, client *fakeChatClient) (model, *playback.Controller) {
	t.Helper()

	events := NewEvents()
	t.Cleanup(events.Close)
	ctrl := playback.New(audio.NewMockPlayer(audio.MockCallbacks{}), b,
		playback.WithObserver(events.Observer()),
		playback.WithVoice("Lily"),
	)
	t.Cleanup(func() { _ = ctrl.Close() })

	deps := Deps{
		Controller: ctrl,
		Events:     events,
		Extractor:  fakeExtractor{},
	}
	if client != nil {
		deps.Chat = client
	}
	cfg := Config{
		Path:          t.TempDir(),
		GlamourStyle:  "dark",
		TranscriptDir: t.TempDir(),
	}

	m := newModel(cfg, deps)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, ctrl
}

func openTestDocument(t *testing.T, m model, doc *document.Document) model {
	t.Helper()
	m = update(t, m, openDocumentMsg{path: doc.Path})
	if m.state != stateLoadingDocument {
		t.Fatalf("state = %v, want loading", m.state)
	}
	m = update(t, m, documentLoadedMsg{doc: doc})
	if m.state != stateShowDocument {
		t.Fatalf("state = %v, want document", m.state)
	}
	if w := m.reader.watcher; w != nil {
		t.Cleanup(func() { _ = w.Close() })
	}
	return m
}

func testDocument(t *testing.T) *document.Document {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	return &document.Document{
		ID:       "doc-1",
		PDFID:    "pdf-1",
		Path:     path,
		Filename: "paper.pdf",
		Text:     "\n\n--- Page 1 ---\n\nFirst one. Second one. Third one.",
	}
}

func TestReaderTransportKeys(t *testing.T) {
	b := &fakeBackend{name: "remote"}
	m, ctrl := newTestModel(t, b, nil)
	m = openTestDocument(t, m, testDocument(t))

	if st := ctrl.Status(); st.Total != 3 || st.State != playback.Stopped {
		t.Fatalf("after load: %+v", st)
	}

	m = update(t, m, key(" "))
	if st := ctrl.Status(); st.State != playback.Playing {
		t.Fatalf("space: state = %v", st.State)
	}
	if m.reader.status.State != playback.Playing {
		t.Errorf("reader did not refresh: %v", m.reader.status.State)
	}

	m = update(t, m, key("n"))
	if got := ctrl.Status().Index; got != 1 {
		t.Errorf("next: index = %d, want 1", got)
	}
	if u := b.last(); u.Index != 1 || u.Text != "Second one." {
		t.Errorf("started unit = %+v", u)
	}

	m = update(t, m, key("p"))
	if got := ctrl.Status().Index; got != 0 {
		t.Errorf("previous: index = %d, want 0", got)
	}

	m = update(t, m, key("["))
	if got := ctrl.Status().Volume; math.Abs(got-0.9) > 1e-9 {
		t.Errorf("volume = %v, want 0.9", got)
	}
	m = update(t, m, key("m"))
	if !ctrl.Status().Muted {
		t.Error("m did not mute")
	}

	// The remote backend cannot change speed mid-sentence.
	m = update(t, m, key("3"))
	if got := ctrl.Status().Speed; got != 1.25 {
		t.Errorf("speed = %v, want 1.25", got)
	}
	if m.reader.state != readerStateStatusMessage || !strings.Contains(m.reader.statusMessage.message, "1.25×") {
		t.Errorf("status message = %q", m.reader.statusMessage.message)
	}

	m = update(t, m, key("v"))
	if got := ctrl.Status().Voice; got == "Lily" || got == "" {
		t.Errorf("voice = %q, want the next built-in voice", got)
	}

	m = update(t, m, key("s"))
	if st := ctrl.Status(); st.State != playback.Stopped {
		t.Errorf("stop: state = %v", st.State)
	}

	m = update(t, m, key("esc"))
	if m.state != stateShowLibrary {
		t.Errorf("esc: state = %v, want library", m.state)
	}
	if got := ctrl.Status().Total; got != 0 {
		t.Errorf("esc did not unload, total = %d", got)
	}
}

func TestReaderLiveSpeed(t *testing.T) {
	b := &fakeBackend{name: "local", live: true}
	m, ctrl := newTestModel(t, b, nil)
	m = openTestDocument(t, m, testDocument(t))

	m = update(t, m, key(" "))
	m = update(t, m, key("+"))
	if got := ctrl.Status().Speed; got != 1.25 {
		t.Errorf("speed = %v, want 1.25", got)
	}
	if m.reader.state == readerStateStatusMessage {
		t.Errorf("unexpected status message %q", m.reader.statusMessage.message)
	}
	if u := b.last(); u.Speed != 1.25 || u.Index != 0 {
		t.Errorf("restarted unit = %+v", u)
	}

	m = update(t, m, key("v"))
	if !m.reader.statusMessage.isError {
		t.Error("voice change on local backend should report an error")
	}
}

func TestDocumentErrorReturnsToLibrary(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{name: "remote"}, nil)
	path := filepath.Join(t.TempDir(), "scan.pdf")

	m = update(t, m, openDocumentMsg{path: path})
	m = update(t, m, documentErrMsg{path: path, err: document.ErrNoText})
	if m.state != stateShowLibrary {
		t.Fatalf("state = %v, want library", m.state)
	}
	if m.library.statusMessage == nil || m.library.statusMessage.message != "No text found in PDF" {
		t.Errorf("status = %+v", m.library.statusMessage)
	}
	if m.fatalErr != nil {
		t.Errorf("fatalErr = %v", m.fatalErr)
	}
}

func TestSingleFileFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	events := NewEvents()
	t.Cleanup(events.Close)
	ctrl := playback.New(audio.NewMockPlayer(audio.MockCallbacks{}), &fakeBackend{name: "remote"})
	t.Cleanup(func() { _ = ctrl.Close() })

	m := newModel(Config{Path: path, GlamourStyle: "dark"}, Deps{Controller: ctrl, Events: events, Extractor: fakeExtractor{}})
	if m.state != stateLoadingDocument || !m.single {
		t.Fatalf("state = %v single = %v", m.state, m.single)
	}
	m = update(t, m, documentErrMsg{path: path, err: document.ErrNoText})
	if !errors.Is(m.fatalErr, document.ErrNoText) {
		t.Errorf("fatalErr = %v", m.fatalErr)
	}
	if !strings.Contains(m.View(), "ERROR") {
		t.Error("error view not shown")
	}
}

func TestPlaybackErrorShowsStatus(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{name: "remote"}, nil)
	m = openTestDocument(t, m, testDocument(t))

	err := &playback.Error{Backend: "remote", Index: 1, Err: api.ErrGenerationFailed}
	m = update(t, m, playbackErrMsg{err: err})
	if !m.reader.statusMessage.isError || !strings.Contains(m.reader.statusMessage.message, "sentence 2") {
		t.Errorf("status = %+v", m.reader.statusMessage)
	}
}

func TestChatFlow(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{name: "remote"}, &fakeChatClient{answer: "**Sure**, it is."})
	m = openTestDocument(t, m, testDocument(t))

	m = update(t, m, key("tab"))
	if m.state != stateShowChat {
		t.Fatalf("tab: state = %v, want chat", m.state)
	}

	for _, r := range "Is it good?" {
		m = update(t, m, key(string(r)))
	}
	if m.state != stateShowChat {
		t.Fatal("typing left the chat")
	}
	if got := m.chat.input.Value(); got != "Is it good?" {
		t.Fatalf("input = %q", got)
	}

	m = update(t, m, key("enter"))
	if m.chat.pending != "Is it good?" || m.chat.input.Value() != "" {
		t.Fatalf("pending = %q input = %q", m.chat.pending, m.chat.input.Value())
	}

	m = update(t, m, askCmd(m.chat.session, "Is it good?")())
	if m.chat.pending != "" || m.chat.session.Len() != 2 {
		t.Fatalf("pending = %q turns = %d", m.chat.pending, m.chat.session.Len())
	}
	if got := plainText(m.chat.lastAnswer()); got != "Sure, it is." {
		t.Errorf("plain answer = %q", got)
	}
	if !strings.Contains(m.chat.viewport.View(), "Sure") {
		t.Error("answer not rendered")
	}

	next, cmd := m.Update(key("ctrl+s"))
	m = next.(model)
	if cmd == nil {
		t.Fatal("ctrl+s returned no command")
	}
	exported, ok := cmd().(chatExportedMsg)
	if !ok || exported.err != nil {
		t.Fatalf("export = %+v", exported)
	}
	data, err := os.ReadFile(exported.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "role: assistant") || !strings.Contains(string(data), "paper.pdf") {
		t.Errorf("transcript:\n%s", data)
	}

	m = update(t, m, key("esc"))
	if m.state != stateShowDocument {
		t.Errorf("esc: state = %v, want document", m.state)
	}
}

func TestChatNeedsServer(t *testing.T) {
	m, _ := newTestModel(t, &fakeBackend{name: "local"}, nil)
	m = openTestDocument(t, m, testDocument(t))

	m = update(t, m, key("tab"))
	if m.state != stateShowDocument {
		t.Errorf("state = %v, want document", m.state)
	}
	if !m.reader.statusMessage.isError {
		t.Error("expected an error status message")
	}
}

func TestPlaybackView(t *testing.T) {
	tests := []struct {
		name string
		st   playback.Status
		want string
	}{
		{
			name: "playing",
			st:   playback.Status{State: playback.Playing, Index: 2, Total: 120, Speed: 1.25, Volume: 0.8, Backend: "remote"},
			want: " ▶ 3/120 · 1.25× · 80% · remote ",
		},
		{
			name: "paused muted",
			st:   playback.Status{State: playback.Paused, Index: 0, Total: 4, Speed: 1, Volume: 1, Muted: true, Backend: "local"},
			want: " ⏸ 1/4 · 1× · muted · local ",
		},
		{
			name: "empty document",
			st:   playback.Status{Speed: 0.75, Volume: 0.5, Backend: "local"},
			want: " ■ 0/0 · 0.75× · 50% · local ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := playbackView(tt.st); got != tt.want {
				t.Errorf("playbackView() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	ev := NewEvents()
	obs := ev.Observer()

	// Refreshes never block, even when nobody is reading.
	for i := 0; i < 2*eventBuffer; i++ {
		obs.OnSentenceChange(i, 10)
	}
	if _, ok := waitForEvent(ev)().(playbackChangedMsg); !ok {
		t.Error("expected a refresh")
	}

	ev.Close()
	ev.Close()
	obs.OnError(errors.New("dropped after close"))
}

func TestEventsDeliverErrors(t *testing.T) {
	ev := NewEvents()
	defer ev.Close()

	ev.Observer().OnError(api.ErrGenerationFailed)
	msg, ok := waitForEvent(ev)().(playbackErrMsg)
	if !ok || !errors.Is(msg.err, api.ErrGenerationFailed) {
		t.Errorf("msg = %#v", msg)
	}
}

func TestNextVoice(t *testing.T) {
	voices := api.BuiltinVoices()
	if got := nextVoice(voices[0].Name); got != voices[1].Name {
		t.Errorf("nextVoice(%q) = %q", voices[0].Name, got)
	}
	if got := nextVoice(voices[len(voices)-1].ID); got != voices[0].Name {
		t.Errorf("nextVoice wraps to %q", got)
	}
	if got := nextVoice("Rachel"); got != voices[0].Name {
		t.Errorf("unknown voice gives %q", got)
	}
}
