package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech backend: "remote" (reader server) or "local" (piper)
backend: "remote"
# playback speed, 0.5 to 2.0
speed: 1.0
# volume, 0.0 to 1.0
volume: 1.0
# remote voice name or ElevenLabs voice ID (see "readaloud voices")
voice: "Rachel"
# PDF text extraction: "local" or "remote"
extractor: "local"
# largest PDF accepted, in megabytes
max_file_size_mb: 10
# chat style name or JSON path (default "auto")
style: "auto"
# word-wrap at width
width: 80
# mouse support
mouse: false
# show all files, including hidden and ignored.
all: false
# verbose logging to readaloud.log
debug: false

# Reader server (speech, extraction and chat)
server:
  url: "http://localhost:8000"
  # api_key: ""
  timeout: "30s"
  # elevenlabs or gtts
  provider: "elevenlabs"
  # speech requests per second
  rate: 2

# Local speech with piper
piper:
  binary: "piper"
  # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
  # config: "~/.local/share/piper/en_US-lessac-medium.onnx.json"
  # speaker: "0"
  timeout: "10s"

# Synthesized audio and extracted text cache
cache:
  enabled: true
  # dir: "~/.cache/readaloud"
  size_mb: 100
  ttl: "168h"
  # how long an extracted document is reused
  freshness: "24h"

# Error reporting
sentry:
  # dsn: ""
  environment: "production"

# Prometheus metrics, e.g. "localhost:9090"
metrics:
  addr: ""
`

var configCmd = &cobra.Command{
	Use:               "config",
	Hidden:            false,
	Short:             "Edit the readaloud config file",
	Long:              paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example:           paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:              cobra.NoArgs,
	PersistentPreRunE: skipConfig,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// skipConfig replaces the root pre-run for commands that must work with a
// broken configuration.
func skipConfig(*cobra.Command, []string) error { return nil }

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
