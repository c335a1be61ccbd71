// Package main provides the CLI entrypoint for overtype.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/overtype/internal/capture"
	"github.com/verte-zerg/overtype/internal/config"
	"github.com/verte-zerg/overtype/internal/engine"
	"github.com/verte-zerg/overtype/internal/messaging"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
	"github.com/verte-zerg/overtype/internal/session"
	"github.com/verte-zerg/overtype/internal/settings"
	"github.com/verte-zerg/overtype/internal/stats"
	"github.com/verte-zerg/overtype/internal/statsui"
	"github.com/verte-zerg/overtype/internal/store"
	"github.com/verte-zerg/overtype/internal/tui"
)

const (
	defaultXPath       = "//body"
	defaultCurveWindow = 20
)

var (
	practiceXPath       string
	practiceStart       int
	practiceEnd         int
	practiceInPlace     bool
	practiceBrowser     bool
	practiceListen      string
	practiceEndOnHidden bool
	practiceMinLength   int
	practiceMaxLength   int
	practiceRaw         bool

	captureXPath   string
	captureStart   int
	captureEnd     int
	captureFormat  string
	captureBrowser bool

	statsSince       string
	statsLast        int
	statsReason      string
	statsCurveWindow int
	statsFormat      string
	statsPlain       bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.DefaultPractice()
	rootCmd := &cobra.Command{
		Use:           "overtype <file|url>",
		Short:         "Typing practice over webpage text",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.ExactArgs(1),
		RunE:          runPracticeCmd,
	}

	rootCmd.Flags().StringVar(&practiceXPath, "xpath", defaultXPath, "element holding the practice text")
	rootCmd.Flags().IntVar(&practiceStart, "start", 0, "first rune of the range inside the element")
	rootCmd.Flags().IntVar(&practiceEnd, "end", 0, "end rune (exclusive) of the range inside the element")
	rootCmd.Flags().BoolVar(&practiceInPlace, "in-place", defaults.InPlace, "type over the original text instead of an overlay")
	rootCmd.Flags().BoolVar(&practiceBrowser, "browser", false, "render remote pages in headless Chrome")
	rootCmd.Flags().StringVar(&practiceListen, "listen", defaults.Listen, "serve the control channel on this address")
	rootCmd.Flags().BoolVar(&practiceEndOnHidden, "end-on-hidden", defaults.EndOnHidden, "end the session when the page is hidden")
	rootCmd.Flags().IntVar(&practiceMinLength, "min-length", defaults.MinLength, "shortest text accepted")
	rootCmd.Flags().IntVar(&practiceMaxLength, "max-length", defaults.MaxLength, "longest text accepted")
	rootCmd.Flags().BoolVar(&practiceRaw, "raw", false, "skip sanitising the page")

	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := fileCfg.Resolve()
	applyBoolConfig(cmd, "in-place", &practiceInPlace, fileCfg.Practice.InPlace)
	applyBoolConfig(cmd, "end-on-hidden", &practiceEndOnHidden, fileCfg.Practice.EndOnHidden)
	applyIntConfig(cmd, "min-length", &practiceMinLength, fileCfg.Practice.MinLength)
	applyIntConfig(cmd, "max-length", &practiceMaxLength, fileCfg.Practice.MaxLength)
	applyStringConfig(cmd, "listen", &practiceListen, fileCfg.Messaging.Listen)

	if err := validateLengths(practiceMinLength, practiceMaxLength); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging()
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc, err := page.Load(ctx, args[0], page.LoadOptions{Sanitize: !practiceRaw, Browser: practiceBrowser})
	if err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	defaults := settings.Values{
		ShowHints:         cfg.ShowHints,
		UpdateFrequencyMs: int(cfg.UpdateFrequency / time.Millisecond),
	}
	set, err := settings.Open(config.DefaultSettingsPath(), settings.Options{Defaults: &defaults, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer func() {
		if cerr := set.Close(); cerr != nil {
			logErrf("failed to close settings: %v\n", cerr)
		}
	}()
	go set.Watch(ctx)

	current, err := set.Values(ctx)
	if err != nil {
		logger.Warn("settings unavailable, using defaults", "error", err)
		current = defaults
	}

	// The program does not exist yet when the first notices can fire.
	// Send blocks until the event loop takes the message, and the loop may
	// itself be waiting on the session that raised the notice.
	var program atomic.Pointer[tea.Program]
	notifier := session.NotifierFunc(func(msg string) {
		if p := program.Load(); p != nil {
			go p.Send(tui.NoticeMsg(msg))
			return
		}
		logErrln(msg)
	})
	unsubscribe := set.Subscribe(func(v settings.Values) {
		if p := program.Load(); p != nil {
			go p.Send(tui.SettingsMsg(v))
		}
	})
	defer unsubscribe()

	mode := model.ModeOverlay
	if practiceInPlace {
		mode = model.ModeInPlace
	}
	eng := engine.New(doc, engine.Options{
		Settings:           set,
		Defaults:           defaults,
		Sink:               st,
		Notifier:           notifier,
		Logger:             logger,
		Capture:            capture.Options{MinLength: practiceMinLength, MaxLength: practiceMaxLength},
		Mode:               mode,
		ValidationInterval: cfg.ValidationInterval,
		EndOnHidden:        practiceEndOnHidden,
		SaveTimeout:        cfg.SaveTimeout,
	})
	defer eng.Close()

	req := selectionRequest(cmd, practiceXPath, practiceStart, practiceEnd, "start", "end")
	req.InPlace = practiceInPlace
	if _, err := eng.ActivateSelectionMode(ctx, req); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if practiceListen != "" {
		srv := &http.Server{
			Addr:              practiceListen,
			Handler:           messaging.HTTPHandler(messaging.NewRouter(eng, logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("control channel stopped", "addr", practiceListen, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("control channel shutdown", "error", err)
			}
		}()
	}

	m := tui.NewModel(tui.Options{
		Engine:      eng,
		Request:     req,
		History:     st,
		UpdateEvery: time.Duration(current.UpdateFrequencyMs) * time.Millisecond,
		ShowHints:   current.ShowHints,
		Logger:      logger,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	program.Store(p)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	program.Store(nil)

	if sum, ok := eng.LastSummary(); ok {
		logErrf("%s: %d WPM, %.1f%% accuracy, %d/%d characters\n",
			sum.Reason, sum.WPM, sum.Accuracy, sum.Position, sum.ContentLength)
	}
	return nil
}

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <file|url>",
		Short: "Print the practice text a selection would produce",
		Args:  cobra.ExactArgs(1),
		RunE:  runCaptureCmd,
	}
	cmd.Flags().StringVar(&captureXPath, "xpath", defaultXPath, "element holding the practice text")
	cmd.Flags().IntVar(&captureStart, "start", 0, "first rune of the range inside the element")
	cmd.Flags().IntVar(&captureEnd, "end", 0, "end rune (exclusive) of the range inside the element")
	cmd.Flags().StringVar(&captureFormat, "format", "text", "output format: text, yaml or markdown")
	cmd.Flags().BoolVar(&captureBrowser, "browser", false, "render remote pages in headless Chrome")
	return cmd
}

type captureOutput struct {
	Source  string `yaml:"source"`
	Length  int    `yaml:"length"`
	Excerpt string `yaml:"excerpt"`
	Skips   []int  `yaml:"skips,omitempty"`
	Nodes   int    `yaml:"format_nodes"`
	Content string `yaml:"content"`
}

func runCaptureCmd(cmd *cobra.Command, args []string) error {
	switch captureFormat {
	case "text", "yaml", "markdown":
	default:
		return fmt.Errorf("--format must be text, yaml or markdown")
	}
	doc, err := page.Load(cmd.Context(), args[0], page.LoadOptions{Sanitize: true, Browser: captureBrowser})
	if err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}
	eng := engine.New(doc, engine.Options{})
	defer eng.Close()

	sel, err := eng.Resolve(selectionRequest(cmd, captureXPath, captureStart, captureEnd, "start", "end"))
	if err != nil {
		return err
	}
	res, err := capture.Capture(sel, capture.Options{})
	if err != nil {
		return fmt.Errorf("failed to capture selection: %w", err)
	}

	out := cmd.OutOrStdout()
	switch captureFormat {
	case "markdown":
		md, err := capture.Markdown(res)
		if err != nil {
			return fmt.Errorf("failed to convert to markdown: %w", err)
		}
		_, err = fmt.Fprintln(out, md)
		return err
	case "yaml":
		frag := res.Fragment
		skips := make([]int, 0, len(frag.SkipPositions))
		for pos := range frag.SkipPositions {
			skips = append(skips, pos)
		}
		sort.Ints(skips)
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(captureOutput{
			Source:  doc.Source(),
			Length:  len([]rune(frag.Content)),
			Excerpt: capture.Excerpt(frag.Content, 80),
			Skips:   skips,
			Nodes:   len(frag.Nodes),
			Content: frag.Content,
		}); err != nil {
			return fmt.Errorf("failed to write yaml: %w", err)
		}
		return enc.Close()
	default:
		_, err = fmt.Fprintln(out, res.Fragment.Content)
		return err
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().StringVar(&statsReason, "reason", "", "only sessions that ended for this reason")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "sessions used for per-character stats")
	cmd.Flags().StringVar(&statsFormat, "format", "text", "output format: text, json or yaml")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print the text report even on a terminal")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	cfg := model.StatsConfig{
		Since:       sinceTime,
		Last:        statsLast,
		Reason:      statsReason,
		CurveWindow: statsCurveWindow,
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	out := cmd.OutOrStdout()
	if statsFormat == "text" && !statsPlain && stats.IsTerminal(out) {
		program := tea.NewProgram(statsui.NewModel(st, cfg), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(cmd.Context(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	return writeReport(out, report, statsFormat)
}

func writeReport(w io.Writer, report stats.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		width := 80
		if stats.IsTerminal(w) {
			width = stats.TerminalWidth()
		}
		return report.Render(w, width)
	default:
		return fmt.Errorf("--format must be text, json or yaml")
	}
}

// selectionRequest builds a request, leaving offsets unset unless their flags were given.
func selectionRequest(cmd *cobra.Command, xpath string, start, end int, startFlag, endFlag string) *engine.SelectionRequest {
	req := &engine.SelectionRequest{XPath: xpath}
	if cmd.Flags().Changed(startFlag) {
		s := start
		req.Start = &s
	}
	if cmd.Flags().Changed(endFlag) {
		e := end
		req.End = &e
	}
	return req
}

func validateLengths(minLen, maxLen int) error {
	if minLen <= 0 {
		return fmt.Errorf("--min-length must be > 0")
	}
	if maxLen < minLen {
		return fmt.Errorf("--max-length must be >= --min-length")
	}
	return nil
}

func setupLogging() (*slog.Logger, func(), error) {
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger, func() {
		if err := f.Close(); err != nil {
			logErrf("failed to close log: %v\n", err)
		}
	}, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
