package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/shuttle/internal/config"
	"github.com/bamsammich/shuttle/internal/engine"
	"github.com/bamsammich/shuttle/internal/filter"
)

// options holds the parsed flags of one operation command.
type options struct {
	recursive   bool
	preserve    bool
	force       bool
	yes         bool
	dryRun      bool
	resume      bool
	strict      bool
	appendMode  bool
	interactive bool
	verbose     bool
	removeDirs  bool
	failFast    bool
	quiet       bool
	json        bool

	workers   int
	verify    string
	reflink   string
	sparse    string
	hash      string
	chunkSize string
	bwLimit   string

	excludes    []string
	excludeFrom string
	logFile     string
	configPath  string
}

func (o *options) register(fs *pflag.FlagSet, mode engine.Mode) {
	fs.BoolVarP(&o.recursive, "recursive", "r", false, "operate on directories recursively")
	fs.BoolVarP(&o.force, "force", "f", false, "overwrite existing destinations; for remove, ignore missing paths")
	fs.BoolVarP(&o.yes, "yes", "y", false, "answer yes to every confirmation")
	fs.BoolVarP(&o.interactive, "interactive", "i", false, "confirm before each overwrite or removal")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "report every entry, including directories and exclusions")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "print errors only")
	fs.BoolVar(&o.json, "json", false, "write one JSON object per event to stdout")
	fs.BoolVar(&o.dryRun, "dry-run", false, "show what would happen without changing anything")
	fs.BoolVar(&o.failFast, "fail-fast", false, "stop dispatching after the first failure")
	fs.IntVarP(&o.workers, "workers", "w", 0, "parallel workers (default: min(NumCPU*2, 16))")
	fs.StringArrayVarP(&o.excludes, "exclude", "x", nil,
		"skip paths matching PATTERN (regex, or glob: prefix; repeatable, comma separated)")
	fs.StringVar(&o.excludeFrom, "exclude-from", "", "read exclusion patterns from FILE")
	fs.StringVar(&o.logFile, "log", "", "write structured JSON log to FILE")
	fs.StringVar(&o.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/shuttle/config.toml)")

	if mode == engine.ModeRemove {
		fs.BoolVarP(&o.removeDirs, "dir", "d", false, "remove empty directories")
		return
	}

	if mode == engine.ModeCopy {
		fs.BoolVarP(&o.preserve, "preserve", "p", false, "preserve mode, ownership and timestamps")
	}
	fs.BoolVar(&o.resume, "resume", false, "continue partial transfers from the last whole chunk")
	fs.BoolVar(&o.strict, "strict", false, "resume by digest comparison and verify strictly")
	fs.BoolVar(&o.appendMode, "append", false, "resume by size only, ignoring modification times")
	fs.StringVar(&o.verify, "verify", "none", "verification: none, size, hash or strict")
	fs.StringVar(&o.reflink, "reflink", "auto", "copy-on-write cloning: auto, force or never")
	fs.StringVar(&o.sparse, "sparse", "auto", "hole handling: auto, always or never")
	fs.StringVar(&o.hash, "hash", "blake3", "verification digest: blake3 or xxh64")
	fs.StringVar(&o.chunkSize, "chunk-size", "", "transfer chunk size (e.g. 64M; default 64M)")
	fs.StringVar(&o.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", config.Path(), err)
	}
	return cfg, nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, o *options) {
	flags := cmd.Flags()
	unset := func(name string) bool {
		return flags.Lookup(name) != nil && !flags.Changed(name)
	}

	if unset("workers") && defaults.Workers != nil {
		o.workers = *defaults.Workers
	}
	if unset("verify") && defaults.Verify != nil {
		o.verify = *defaults.Verify
	}
	if unset("reflink") && defaults.Reflink != nil {
		o.reflink = *defaults.Reflink
	}
	if unset("sparse") && defaults.Sparse != nil {
		o.sparse = *defaults.Sparse
	}
	if unset("hash") && defaults.Hash != nil {
		o.hash = *defaults.Hash
	}
	if unset("chunk-size") && defaults.ChunkSize != nil {
		o.chunkSize = *defaults.ChunkSize
	}
	if unset("bwlimit") && defaults.BWLimit != nil {
		o.bwLimit = *defaults.BWLimit
	}
	if unset("resume") && defaults.Resume != nil {
		o.resume = *defaults.Resume
	}
	if unset("preserve") && defaults.Preserve != nil {
		o.preserve = *defaults.Preserve
	}
}

// engineConfig validates the flags and builds the engine configuration
// for args. Collaborators (events, stats, logger, confirmer) are left unset.
func (o *options) engineConfig(mode engine.Mode, args []string) (engine.Config, error) {
	cfg := engine.Config{
		Mode:            mode,
		Sources:         args,
		Workers:         o.workers,
		Recursive:       o.recursive,
		Preserve:        o.preserve,
		Force:           o.force,
		Yes:             o.yes,
		DryRun:          o.dryRun,
		Resume:          o.resume,
		Strict:          o.strict,
		Append:          o.appendMode,
		Interactive:     o.interactive,
		RemoveEmptyDirs: o.removeDirs,
		Verbose:         o.verbose,
		FailFast:        o.failFast,
	}
	if mode != engine.ModeRemove {
		cfg.Sources = args[:len(args)-1]
		cfg.Dest = args[len(args)-1]
	}
	if o.workers < 0 {
		return cfg, fmt.Errorf("invalid --workers %d", o.workers)
	}
	if o.quiet && o.verbose {
		return cfg, errors.New("--quiet and --verbose are mutually exclusive")
	}

	var err error
	if cfg.Verify, err = engine.ParseVerifyMode(o.verify); err != nil {
		return cfg, fmt.Errorf("invalid --verify: %w", err)
	}
	if cfg.Reflink, err = engine.ParseReflinkMode(o.reflink); err != nil {
		return cfg, fmt.Errorf("invalid --reflink: %w", err)
	}
	if cfg.Sparse, err = engine.ParseSparseMode(o.sparse); err != nil {
		return cfg, fmt.Errorf("invalid --sparse: %w", err)
	}
	if cfg.Hash, err = engine.ParseHashAlgo(o.hash); err != nil {
		return cfg, fmt.Errorf("invalid --hash: %w", err)
	}
	if o.chunkSize != "" {
		if cfg.ChunkSize, err = filter.ParseSize(o.chunkSize); err != nil {
			return cfg, fmt.Errorf("invalid --chunk-size: %w", err)
		}
	}
	if o.bwLimit != "" {
		if cfg.BWLimit, err = filter.ParseSize(o.bwLimit); err != nil {
			return cfg, fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	rules, err := filter.Compile(filter.SplitPatterns(o.excludes))
	if err != nil {
		return cfg, err
	}
	if o.excludeFrom != "" {
		if err := rules.LoadFile(o.excludeFrom); err != nil {
			return cfg, err
		}
	}
	if !rules.Empty() {
		cfg.Exclude = rules
	}
	return cfg, nil
}
