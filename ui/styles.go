package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	normalDim     = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gray          = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray       = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}
	cream         = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	yellowGreen   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}
	fuchsia       = lipgloss.Color("#EE6FF8")
	dullFuchsia   = lipgloss.AdaptiveColor{Light: "#F793FF", Dark: "#AD58B4"}
	green         = lipgloss.Color("#04B575")
	red           = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	highlightBg   = lipgloss.AdaptiveColor{Light: "#FFF3A3", Dark: "#5C4F00"}
	highlightFg   = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#FFFDF5"}
	semiDimGreen  = lipgloss.AdaptiveColor{Light: "#35D79C", Dark: "#036B46"}
	mintGreen     = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen     = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	statusBarNote = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg   = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}
)

var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})

	dimStyle = lipgloss.NewStyle().Foreground(normalDim)

	selectedStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Bold(true)

	matchStyle = lipgloss.NewStyle().
			Foreground(yellowGreen).
			Underline(true)

	sentenceStyle = lipgloss.NewStyle().
			Foreground(highlightFg).
			Background(highlightBg)

	pageMarkerStyle = lipgloss.NewStyle().Foreground(gray).Italic(true)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(dullFuchsia).
			Padding(0, 1)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(cream).
				Background(semiDimGreen).
				Padding(0, 1)

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNote).
				Background(statusBarBg).
				Render

	statusBarPlaybackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNote).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(cream).
				Background(red).
				Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNote).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

func logoView() string {
	return logoStyle.Render(" Readaloud ")
}

// indent a string n spaces.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
