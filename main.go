// Package main provides the entry point for the readaloud CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/config"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/metrics"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/dgnsrekt/readaloud/internal/playback/local"
	"github.com/dgnsrekt/readaloud/internal/playback/remote"
	"github.com/dgnsrekt/readaloud/ui"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	style        string
	width        uint
	showAllFiles bool
	mouse        bool

	// cfg is loaded in PersistentPreRunE and shared by every command.
	cfg config.Config

	flushSentry = func() {}

	rootCmd = &cobra.Command{
		Use:   "readaloud [FILE.pdf|DIR]",
		Short: "Read PDFs aloud in the terminal, and chat about them",
		Long: paragraph(
			fmt.Sprintf("\nRead PDFs aloud %s, then ask questions about them.", keyword("sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"pdf"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		p, err := homedir.Expand(style)
		if err != nil {
			return fmt.Errorf("unable to expand style path: %w", err)
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	showAllFiles = viper.GetBool("all")

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	flushSentry = setupSentry(cfg.Sentry)

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = styles.NoTTYStyle
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		p, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("unable to open %s: %w", args[0], err)
		}
		if !info.IsDir() && !strings.EqualFold(filepath.Ext(p), ".pdf") {
			return fmt.Errorf("%s: %w", args[0], document.ErrNotPDF)
		}
		path = p
	}
	return runTUI(path)
}

func runTUI(path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
		log.Warn("Unable to serve metrics", "addr", cfg.Metrics.Addr, "err", err)
	}

	client := newClient(cfg)

	clips, err := newClipCache(cfg)
	if err != nil {
		log.Warn("Audio cache disabled", "err", err)
	}
	if clips != nil {
		defer clips.Close() //nolint:errcheck
	}

	out, err := audio.NewPlayer(audio.DefaultPlayerConfig())
	if err != nil {
		return fmt.Errorf("unable to open audio output: %w", err)
	}

	backend, err := newBackend(cfg, client, out, clips)
	if err != nil {
		_ = out.Close()
		return err
	}

	events := ui.NewEvents()
	observer := events.Observer()
	onError := observer.OnError
	observer.OnError = func(err error) {
		sentry.CaptureException(err)
		onError(err)
	}

	ctrl := playback.New(out, backend,
		playback.WithObserver(observer),
		playback.WithSpeed(cfg.Speed),
		playback.WithVolume(cfg.Volume),
		playback.WithVoice(cfg.Voice),
	)
	defer func() {
		events.Close()
		if err := ctrl.Close(); err != nil {
			log.Warn("Unable to release playback", "err", err)
		}
	}()

	extractor, store := newExtractor(cfg, client)
	if store != nil {
		defer store.Close() //nolint:errcheck
	}

	// Read environment to get debugging stuff
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or auto if unset
	if err := validateStyle(uiCfg.GlamourStyle); err != nil {
		uiCfg.GlamourStyle = style
	}

	uiCfg.Path = path
	uiCfg.ShowAllFiles = showAllFiles
	uiCfg.GlamourMaxWidth = width
	uiCfg.EnableMouse = mouse

	deps := ui.Deps{
		Controller: ctrl,
		Events:     events,
		Extractor:  extractor,
	}
	if client != nil {
		deps.Chat = client
		deps.Service = client
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(uiCfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

// newClient returns nil when no reader server is configured.
func newClient(cfg config.Config) *api.Client {
	if cfg.Server.URL == "" {
		return nil
	}
	return api.NewClient(api.Config{
		BaseURL: cfg.Server.URL,
		APIKey:  cfg.Server.APIKey,
		Timeout: cfg.Server.Timeout,
	})
}

func newBackend(cfg config.Config, client *api.Client, out audio.Output, clips *cache.ClipCache) (playback.Backend, error) {
	if cfg.Backend == config.BackendLocal {
		engine, err := local.New(local.Config{
			Binary:     cfg.Piper.Binary,
			ModelPath:  cfg.Piper.Model,
			ConfigPath: cfg.Piper.ConfigPath,
			Speaker:    cfg.Piper.Speaker,
			Timeout:    cfg.Piper.Timeout,
		}, out, clips)
		if err != nil {
			return nil, fmt.Errorf("unable to start local speech: %w", err)
		}
		return engine, nil
	}

	if client == nil {
		return nil, errors.New("the remote backend needs server.url")
	}
	return remote.New(client, remote.Config{
		Provider: cfg.Server.Provider,
		Timeout:  cfg.Server.Timeout,
		Rate:     rate.Limit(cfg.Server.Rate),
	}, out, clips), nil
}

func newClipCache(cfg config.Config) (*cache.ClipCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return nil, err
	}
	cc := cache.DefaultConfig()
	cc.DiskPath = filepath.Join(dir, "clips")
	cc.DiskCapacity = int64(cfg.Cache.SizeMB) * 1024 * 1024
	cc.TTL = cfg.Cache.TTL
	return cache.NewClipCache(cc)
}

// newExtractor picks local or server-side extraction and puts the document
// store in front of it. The store is nil when caching is off.
func newExtractor(cfg config.Config, client *api.Client) (document.Extractor, *document.Store) {
	var ex document.Extractor = document.Local{MaxSize: cfg.MaxFileSize}
	if cfg.Extractor == config.BackendRemote && client != nil {
		ex = document.Remote{Service: client, MaxSize: cfg.MaxFileSize}
	}
	if !cfg.Cache.Enabled {
		return ex, nil
	}

	dir, err := cacheDir(cfg)
	if err != nil {
		log.Warn("Document cache disabled", "err", err)
		return ex, nil
	}
	store, err := document.OpenStore(filepath.Join(dir, "documents"), cfg.Cache.Freshness)
	if err != nil {
		log.Warn("Document cache disabled", "err", err)
		return ex, nil
	}
	return document.Cached{Extractor: ex, Store: store}, store
}

func cacheDir(cfg config.Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	dir, err := gap.NewScope(gap.User, "readaloud").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return dir, nil
}

// setupSentry enables error reporting when a DSN is configured. The
// returned func flushes pending events.
func setupSentry(sc config.SentryConfig) func() {
	if sc.DSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sc.DSN,
		Environment: sc.Environment,
		Release:     "readaloud@" + Version,
	})
	if err != nil {
		log.Warn("Sentry init failed", "err", err)
		return func() {}
	}
	log.Debug("Sentry initialized")
	return func() { sentry.Flush(2 * time.Second) }
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		sentry.CaptureException(err)
		flushSentry()
		_ = closer()
		os.Exit(1)
	}
	flushSentry()
	_ = closer()
}

func init() {
	// .env values are visible to viper's AutomaticEnv below.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not load .env", "err", err)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	pf.String("backend", config.BackendRemote, "speech backend: local (piper) or remote")
	pf.String("voice", "", "remote voice name or ID")
	pf.Float64("speed", 0, "playback speed between 0.5 and 2.0")
	pf.String("server", "", "reader server URL")
	pf.String("extractor", config.BackendLocal, "PDF text extraction: local or remote")
	pf.Bool("debug", false, "verbose logging")

	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "chat style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to disable)")
	rootCmd.Flags().BoolVarP(&showAllFiles, "all", "a", false, "show system files and directories")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	rootCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")

	// Config bindings
	_ = viper.BindPFlag("backend", pf.Lookup("backend"))
	_ = viper.BindPFlag("voice", pf.Lookup("voice"))
	_ = viper.BindPFlag("speed", pf.Lookup("speed"))
	_ = viper.BindPFlag("server.url", pf.Lookup("server"))
	_ = viper.BindPFlag("extractor", pf.Lookup("extractor"))
	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("all", rootCmd.Flags().Lookup("all"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.Flags().Lookup("metrics-addr"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
	viper.SetDefault("all", false)
	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, extractCmd, askCmd, voicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
