package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/readaloud/internal/playback"
)

const eventBuffer = 64

type (
	// playbackChangedMsg asks the reader to refresh from the controller's
	// status. It carries no state; the status is always read fresh.
	playbackChangedMsg struct{}

	playbackErrMsg struct{ err error }

	eventsClosedMsg struct{}
)

// Events forwards controller notifications into the Bubble Tea program.
// Notifications arrive on playback goroutines; the program receives them
// through waitForEvent.
type Events struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

// NewEvents returns an open event bridge.
func NewEvents() *Events {
	return &Events{
		ch:   make(chan tea.Msg, eventBuffer),
		done: make(chan struct{}),
	}
}

// Observer returns callbacks suitable for playback.WithObserver.
func (e *Events) Observer() playback.Observer {
	return playback.Observer{
		OnStateChange:    func(playback.State) { e.changed() },
		OnSentenceChange: func(int, int) { e.changed() },
		OnError:          func(err error) { e.send(playbackErrMsg{err}) },
	}
}

// changed never blocks: a dropped refresh is covered by the next one.
func (e *Events) changed() {
	select {
	case e.ch <- playbackChangedMsg{}:
	default:
	}
}

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	case <-e.done:
	}
}

// Close stops delivery. Pending and future notifications are discarded.
func (e *Events) Close() {
	e.once.Do(func() { close(e.done) })
}

func waitForEvent(e *Events) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.done:
			return eventsClosedMsg{}
		}
	}
}
