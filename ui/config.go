package ui

// Config contains TUI-specific configuration.
type Config struct {
	ShowAllFiles    bool
	Gopath          string `env:"GOPATH"`
	HomeDir         string `env:"HOME"`
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	EnableMouse     bool

	// Working directory or PDF path
	Path string

	// Directory where chat transcripts are exported; empty means next to
	// the PDF.
	TranscriptDir string `env:"READALOUD_TRANSCRIPT_DIR"`

	// For debugging the UI
	HighPerformancePager bool `env:"READALOUD_HIGH_PERFORMANCE_PAGER" envDefault:"true"`
	GlamourEnabled       bool `env:"READALOUD_ENABLE_GLAMOUR"         envDefault:"true"`
}
