package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/shuttle/internal/engine"
	"github.com/bamsammich/shuttle/internal/event"
	"github.com/bamsammich/shuttle/internal/stats"
	"github.com/bamsammich/shuttle/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "shuttle: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "shuttle",
		Short:         "Resumable, verifying copy, move and remove",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "shuttle %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.AddCommand(
		newOpCmd(engine.ModeCopy),
		newOpCmd(engine.ModeMove),
		newOpCmd(engine.ModeRemove),
		newDocsCmd(),
	)
	return rootCmd
}

func newOpCmd(mode engine.Mode) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, mode, opts, args)
		},
	}

	switch mode {
	case engine.ModeCopy:
		cmd.Use = "copy [flags] <source>... <destination>"
		cmd.Aliases = []string{"cp"}
		cmd.Short = "Copy files and directories"
		cmd.Long = `Copy files and directories. With --resume an interrupted copy continues
from the last whole chunk; --strict compares digests instead of trusting
size and modification time. Copies are cloned when the filesystem supports
copy-on-write and --reflink allows it.`
		cmd.Example = `  shuttle cp -r --resume --verify hash photos/ /mnt/backup
  shuttle cp -r --exclude 'glob:*.tmp' --exclude '\.cache/' src/ dst/`
		cmd.Args = cobra.MinimumNArgs(2)
	case engine.ModeMove:
		cmd.Use = "move [flags] <source>... <destination>"
		cmd.Aliases = []string{"mv"}
		cmd.Short = "Move files and directories"
		cmd.Long = `Move files and directories. Within one filesystem entries are renamed;
across filesystems each file is copied, verified by digest and only then
removed from the source.`
		cmd.Example = `  shuttle mv --resume /data/incoming /mnt/archive`
		cmd.Args = cobra.MinimumNArgs(2)
	case engine.ModeRemove:
		cmd.Use = "remove [flags] <path>..."
		cmd.Aliases = []string{"rm"}
		cmd.Short = "Remove files and directories"
		cmd.Long = `Remove files and directories, children before their parent. A directory
needs -r, or -d when it is empty.`
		cmd.Example = `  shuttle rm -r --exclude 'glob:*.keep' build/
  shuttle rm -i old.log notes.txt`
		cmd.Args = cobra.MinimumNArgs(1)
	}
	cmd.Long += "\n\n" + exitStatus

	opts.register(cmd.Flags(), mode)
	return cmd
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every collaborator
func runOp(cmd *cobra.Command, mode engine.Mode, opts *options, args []string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	engineCfg, err := opts.engineConfig(mode, args)
	if err != nil {
		return err
	}

	// Configure logging.
	logLevel := slog.LevelInfo
	switch {
	case opts.verbose:
		logLevel = slog.LevelDebug
	case opts.quiet || opts.json:
		logLevel = slog.LevelWarn
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	var logHandler slog.Handler = textHandler
	if opts.logFile != "" {
		lf, lfErr := os.Create(opts.logFile)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	if src := cfg.Source(); src != "" {
		slog.Debug("loaded config", "path", src)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	// When --log is set, tee events through a logging goroutine that writes
	// structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if opts.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				if ev.Type != event.Progress {
					logEvent(logger, ev)
				}
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	isTTY := ui.IsTTY(os.Stderr.Fd())
	width := 0
	if isTTY {
		width = ui.TermWidth(os.Stderr.Fd())
	}
	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Stats:     collector,
		Op:        mode.String(),
		Width:     width,
		IsTTY:     isTTY,
		Quiet:     opts.quiet,
		JSON:      opts.json,
		Verbose:   opts.verbose,
	})

	if ui.IsTTY(os.Stdin.Fd()) && (opts.interactive || !opts.force) {
		engineCfg.Confirmer = ui.NewTermConfirmer(os.Stdin, os.Stderr, mode.String())
	}
	engineCfg.Events = events
	engineCfg.Stats = collector
	engineCfg.Logger = logger

	slog.Debug("starting "+mode.String(),
		"sources", engineCfg.Sources,
		"dst", engineCfg.Dest,
		"workers", engineCfg.Workers,
		"verify", engineCfg.Verify.String(),
		"reflink", engineCfg.Reflink.String(),
	)

	// Presenter in background, engine in foreground.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := engine.Run(ctx, engineCfg)
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		slog.Warn("presenter failed", "error", presenterErr)
	}

	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "shuttle: %v\n", result.Err)
		return &exitError{code: result.ExitCode()}
	}

	if opts.json {
		fmt.Fprintln(os.Stdout, presenter.Summary())
	} else if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if code := result.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func logEvent(logger *slog.Logger, ev event.Event) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.String("path", ev.Path),
		slog.Int64("size", ev.Size),
		slog.Int("worker", ev.WorkerID),
	}
	if ev.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", ev.Strategy))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	// Debug keeps events out of the stderr handler at default verbosity.
	logger.LogAttrs(context.Background(), slog.LevelDebug, "shuttle.event", attrs...)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
