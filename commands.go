package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type analyzeOptions struct {
	lines  string
	plain  bool
	json   bool
	watch  bool
	noSave bool
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a source file (or a line range of it) and stream the critique",
		Long: `Analyze sends the selection, the headers next to it and a language-specific
system prompt to the local model. Progress is shown live; reasoning between
<think> tags is displayed apart from the answer.

On a terminal the live document is a full-screen view (q to quit). With
--plain, or when output is piped, text is streamed line by line. --json emits
the same events as the editor bridge.

The finished analysis is saved as vantage-analysis-<timestamp>.md in the
source file's directory unless --no-save is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.plain && opts.json {
				return &UserError{Kind: KindValidation, Message: "--plain and --json cannot be combined"}
			}
			return runAnalyze(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.lines, "lines", "l", "", "Line range to analyze, e.g. 10:42 (default whole file)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Stream plain text instead of the full-screen view")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Emit JSON-line events")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-run the analysis whenever the file is saved")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not write the analysis file or history entry")

	return cmd
}

func runAnalyze(ctx context.Context, path string, opts analyzeOptions) error {
	useTUI := !opts.plain && !opts.json && isTerminal(os.Stdout.Fd()) && isTerminal(os.Stdin.Fd())
	mode := LogStderr
	if useTUI {
		mode = LogFileOnly
	}

	a, err := newApp(mode)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// runOnce re-reads the file so watch mode analyzes the saved content
	runOnce := func(ctx context.Context, surface Surface) Outcome {
		selection, err := ReadSelection(path, opts.lines)
		if err != nil {
			userErr := AsUserError(err)
			surface.Notify(userErr)
			return Outcome{Err: userErr}
		}
		return a.analyzer.Run(ctx, AnalysisRequest{
			FilePath:  path,
			Selection: selection,
			Model:     a.cfg.Model,
			NoSave:    opts.noSave,
		}, surface)
	}

	switch {
	case useTUI:
		return analyzeInTUI(ctx, a, path, opts, runOnce)
	case opts.json:
		events := NewEventWriter(os.Stdout, a.logger)
		surface := &eventSurface{w: events}
		return analyzeOn(ctx, a, path, opts, surface, func(ctx context.Context) Outcome {
			out := runOnce(ctx, surface)
			if out.Err == nil {
				sendDone(events, "", out)
			}
			return out
		})
	default:
		surface := NewPlainSurface(os.Stdout, a.cfg.Theme, a.cfg.Model, isTerminal(os.Stdout.Fd()))
		return analyzeOn(ctx, a, path, opts, surface, func(ctx context.Context) Outcome {
			return runOnce(ctx, surface)
		})
	}
}

// analyzeOn drives a line-oriented surface, once or in watch mode
func analyzeOn(ctx context.Context, a *app, path string, opts analyzeOptions, surface Surface, run func(context.Context) Outcome) error {
	defer surface.Close()

	if opts.watch {
		return NewFileWatcher(path, DefaultWatchDebounce, a.logger).Run(ctx, func(ctx context.Context) {
			run(ctx)
		})
	}

	if out := run(ctx); out.Err != nil {
		return errReported
	}
	return nil
}

// analyzeInTUI runs the full-screen view and the pipeline side by side.
// Quitting the view cancels the analysis; the view stays open after the analysis ends.
func analyzeInTUI(ctx context.Context, a *app, path string, opts analyzeOptions, runOnce func(context.Context, Surface) Outcome) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, surface := NewTUI(a.cfg.Theme, a.cfg.Model, cancel)

	var last Outcome
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		program.Quit()
		return nil
	})

	g.Go(func() error {
		if opts.watch {
			return NewFileWatcher(path, DefaultWatchDebounce, a.logger).Run(gctx, func(ctx context.Context) {
				last = runOnce(ctx, surface)
			})
		}
		last = runOnce(gctx, surface)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	// The alternate screen is gone; leave a summary in the scrollback
	if last.Artifact != nil {
		fmt.Printf("%s Analysis saved to %s\n", a.cfg.Theme.Success.Render("✓"), last.Artifact.Path)
	}
	if last.Err != nil && !errors.Is(last.Err, context.Canceled) {
		fmt.Fprint(os.Stderr, FormatUserError(last.Err))
		return errReported
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the editor bridge on stdin/stdout",
		Long: `Serve reads JSON requests, one per line, from stdin and writes JSON events to stdout.

Requests:  {"action":"analyze","request_id":"1","file":"Driver.c","selection":"...","lines":"10:42"}
           {"action":"models"} {"action":"ping"} {"action":"version"}
Events:    started, update, done, error, models, ok, version

Analyses run one at a time; logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(LogStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := NewBridgeServer(a.analyzer, a.client, os.Stdout, a.cfg.MaxPromptChars, a.logger)
			return bridge.Serve(ctx, os.Stdin)
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	var file string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(LogStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.history == nil {
				return &UserError{
					Kind:       KindValidation,
					Message:    "History is disabled",
					Suggestion: "Enable it in ~/.vantage/settings.json or unset VANTAGE_HISTORY_DB.",
				}
			}

			entries, err := a.history.List(cmd.Context(), limit, file)
			if err != nil {
				return err
			}
			total := 0
			if file == "" {
				if total, err = a.history.Count(cmd.Context()); err != nil {
					return err
				}
			}
			printHistory(os.Stdout, entries, total)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&file, "file", "", "Only show analyses of this file")

	return cmd
}

// printHistory writes entries as a table. A total above len(entries) adds a paging hint.
func printHistory(w io.Writer, entries []HistoryEntry, total int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No analyses recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFILE\tMODEL\tANSWER\tDURATION\tARTIFACT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d chars\t%s\t%s\n",
			e.AnalyzedAt.Local().Format("2006-01-02 15:04"),
			e.File,
			shortModelName(e.Model),
			e.AnswerChars,
			e.Duration.Round(100*time.Millisecond),
			e.ArtifactPath)
	}
	_ = tw.Flush()
	if total > len(entries) {
		fmt.Fprintf(w, "Showing %d of %d analyses (use --limit to see more)\n", len(entries), total)
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models installed on the Ollama endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(LogStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.client.ListModels(cmd.Context())
			if err != nil {
				return classifyTransportError(err, a.client.Endpoint(), a.client.ConnectTimeout())
			}
			printModels(os.Stdout, models, a.cfg.Model)
			return nil
		},
	}
}

func printModels(w io.Writer, models []ModelInfo, current string) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models installed. Run 'ollama pull "+DefaultModel+"'.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tSIZE\tPARAMS\tQUANT\tMODIFIED")
	for _, m := range models {
		mark := ""
		if shortModelName(m.Name) == shortModelName(current) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			shortModelName(m.Name),
			humanSize(m.Size),
			m.Details.ParameterSize,
			m.Details.QuantizationLevel,
			m.ModifiedAt.Local().Format("2006-01-02"))
	}
	_ = tw.Flush()
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change persistent settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig()
			if modelFlag != "" {
				cfg.Model = modelFlag
			}
			if endpointFlag != "" {
				cfg.Endpoint = endpointFlag
			}
			printConfig(os.Stdout, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-model <model>",
		Short: "Persist the default model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings()
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			settings.Model.Name = args[0]
			if err := SaveSettings(settings); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
			fmt.Printf("Default model set to %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-theme <name>",
		Short: "Persist the color theme (" + strings.Join(AvailableThemes(), ", ") + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := ThemePresets[args[0]]; !ok {
				return &UserError{
					Kind:       KindValidation,
					Message:    fmt.Sprintf("Unknown theme %q", args[0]),
					Suggestion: "Available themes: " + strings.Join(AvailableThemes(), ", "),
				}
			}
			settings, err := LoadSettings()
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			settings.Theme.Name = args[0]
			if err := SaveSettings(settings); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
			fmt.Printf("Theme set to %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func printConfig(w io.Writer, cfg *Config) {
	history := cfg.HistoryPath
	if history == "" {
		history = "(disabled)"
	}
	settingsPath, err := SettingsPath()
	if err != nil {
		settingsPath = "(unavailable)"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Model:\t%s\n", cfg.Model)
	fmt.Fprintf(tw, "Endpoint:\t%s\n", cfg.Endpoint)
	fmt.Fprintf(tw, "Connect timeout:\t%s\n", cfg.ConnectTimeout)
	fmt.Fprintf(tw, "Render delay:\t%s\n", cfg.RenderDelay)
	fmt.Fprintf(tw, "Prompt ceiling:\t%d characters\n", cfg.MaxPromptChars)
	fmt.Fprintf(tw, "Min context:\t%d characters\n", cfg.MinContextChars)
	fmt.Fprintf(tw, "History:\t%s\n", history)
	fmt.Fprintf(tw, "Theme:\t%s\n", cfg.Settings.Theme.Name)
	fmt.Fprintf(tw, "Settings file:\t%s\n", settingsPath)
	_ = tw.Flush()
}

func versionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintVersion(cmd.Context(), os.Stdout, check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")

	return cmd
}
