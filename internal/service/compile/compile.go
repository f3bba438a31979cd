package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/repository/fingerprint"
	"github.com/oshokin/arcompile/internal/service/builder"
	"github.com/oshokin/arcompile/internal/service/collector"
	"github.com/oshokin/arcompile/internal/service/common"
	"github.com/oshokin/arcompile/internal/service/detector"
	"github.com/oshokin/arcompile/internal/service/flasher"
)

var (
	// errUnknownArgument is returned for a positional argument that is neither a
	// board nor a partition scheme.
	errUnknownArgument = errors.New("unknown argument")

	// ErrUnreadableSources stops a rebuild when some sketch sources could not
	// be read, since the upload would miss them.
	ErrUnreadableSources = errors.New("some sketch sources are unreadable")
)

// Flasher writes artifacts to a board.
type Flasher interface {
	Flash(ctx context.Context, target *flasher.Target) error
}

// Options are inputs accepted by the compile entry point.
type Options struct {
	// Config overrides loading ConfigPath.
	Config *config.Config
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Dir is the sketch directory (defaults to the working directory).
	Dir string
	// Args are the positional board and partition arguments.
	Args []string
	// Port is an explicit serial port.
	Port string
	// KillMonitors stops serial monitors before flashing.
	KillMonitors bool
	// Flasher overrides the flasher built from the configuration.
	Flasher Flasher
}

// Result summarizes a run.
type Result struct {
	// Board is the resolved target.
	Board sketch.Board
	// Rebuilt is true when the server compiled the sketch.
	Rebuilt bool
	// Reason explains the rebuild decision.
	Reason string
	// Scheme is the partition scheme of the artifacts when rebuilt.
	Scheme sketch.PartitionScheme
	// Artifacts are the files that were flashed.
	Artifacts sketch.ArtifactSet
}

// runner holds the collaborators of a single run.
type runner struct {
	cfg       *config.Config
	layout    *Layout
	board     sketch.Board
	scheme    sketch.PartitionScheme
	repo      fingerprint.Repository
	detector  *detector.Detector
	client    *common.Client
	flasher   Flasher
	port      string
	forcedMin bool
}

// Run builds the sketch when its sources changed and flashes it.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "compile")

	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}

	return r.Run(ctx)
}

// ParseArgs validates positional arguments and resolves the board and scheme.
func ParseArgs(args []string, fallbackFQBN string) (sketch.Board, sketch.PartitionScheme, error) {
	for _, arg := range args {
		if !sketch.IsBoardArg(arg) && !sketch.IsPartitionArg(arg) {
			return sketch.Board{}, "", fmt.Errorf("%q (boards: %s, or fqbn=..., or %s): %w",
				arg, strings.Join(sketch.BoardAliases(), ", "), sketch.PartitionMinSPIFFS, errUnknownArgument)
		}
	}

	board, err := sketch.ResolveBoard(args, fallbackFQBN)
	if err != nil {
		return sketch.Board{}, "", err
	}

	scheme := sketch.SchemeFromArgs(args)
	if !board.SupportsPartitions() {
		scheme = sketch.PartitionDefault
	}

	return board, scheme, nil
}

// NewFlasher builds the OS-backed flasher described by cfg.
func NewFlasher(cfg *config.Config, killMonitors bool) Flasher {
	return flasher.New(flasher.Options{
		Baud:         cfg.Baud,
		ESPTool:      cfg.FlashTool,
		ArduinoCLI:   cfg.ArduinoCLI,
		KillMonitors: killMonitors,
	})
}

func newRunner(opts *Options) (*runner, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error

		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	board, scheme, err := ParseArgs(opts.Args, cfg.FQBN)
	if err != nil {
		return nil, err
	}

	layout, err := ResolveLayout(opts.Dir, cfg)
	if err != nil {
		return nil, err
	}

	if err = layout.EnsureSketch(); err != nil {
		return nil, err
	}

	repo := fingerprint.NewFileRepository(layout.HashFile)

	detectorOptions := []detector.Option{detector.WithOutputDir(layout.OutputDir)}
	if rel := layout.relative(layout.OutputDir); rel != "" {
		detectorOptions = append(detectorOptions, detector.WithSkipDirs(rel))
	}

	if rel := layout.relative(layout.ReleasesDir); rel != "" {
		detectorOptions = append(detectorOptions, detector.WithSkipDirs(rel))
	}

	actor, err := common.DetectActor()
	if err != nil {
		return nil, err
	}

	client, err := common.NewClient(cfg.ServerURL,
		common.WithCallTimeout(cfg.Timeout),
		common.WithActor(actor),
	)
	if err != nil {
		return nil, err
	}

	flash := opts.Flasher
	if flash == nil {
		flash = NewFlasher(cfg, opts.KillMonitors)
	}

	return &runner{
		cfg:       cfg,
		layout:    layout,
		board:     board,
		scheme:    scheme,
		repo:      repo,
		detector:  detector.New(layout.Root, repo, detectorOptions...),
		client:    client,
		flasher:   flash,
		port:      opts.Port,
		forcedMin: scheme == sketch.PartitionMinSPIFFS,
	}, nil
}

// Run executes the workflow:
// 1) Decide whether to rebuild.
// 2) Build and collect, or reuse the existing artifacts.
// 3) Flash.
func (r *runner) Run(ctx context.Context) (*Result, error) {
	ctx = logger.WithKV(ctx, "sketch", r.layout.Name)
	logger.InfoKV(ctx, "Preparing sketch", "fqbn", r.board.FQBN)

	decision, err := r.detector.Check(ctx, r.board, r.forcedMin)
	if err != nil {
		return nil, fmt.Errorf("check sources: %w", err)
	}

	result := &Result{Board: r.board, Reason: decision.Reason}

	var artifacts sketch.ArtifactSet

	if !decision.Rebuild {
		artifacts, err = collector.Existing(r.layout.OutputDir, r.layout.Name)
		if err != nil {
			return nil, err
		}

		if !artifacts.HasApplication(r.board.Family) {
			decision.Rebuild, result.Reason = true, detector.ReasonNoArtifacts
		} else {
			logger.InfoKV(ctx, "No changes detected, reusing artifacts", "dir", r.layout.OutputDir)
		}
	}

	if decision.Rebuild {
		logger.InfoKV(ctx, "Rebuild required", "reason", result.Reason)

		if readErr := decision.Current.ReadErr; readErr != nil {
			logger.ErrorKV(ctx, "Sketch sources cannot be read, nothing was uploaded", "error", readErr)
			return nil, fmt.Errorf("%w: %w", ErrUnreadableSources, readErr)
		}

		if artifacts, result.Scheme, err = r.rebuild(ctx, decision.Current); err != nil {
			return nil, err
		}

		result.Rebuilt = true
	}

	result.Artifacts = artifacts

	err = r.flasher.Flash(ctx, &flasher.Target{
		Board:     r.board,
		Artifacts: artifacts,
		InputDir:  r.layout.OutputDir,
		SketchDir: r.layout.Root,
		Port:      r.port,
	})
	if err != nil {
		return result, fmt.Errorf("flash: %w", err)
	}

	return result, nil
}

// rebuild compiles remotely, replaces the artifacts and records the fingerprint.
func (r *runner) rebuild(
	ctx context.Context,
	snap detector.Snapshot,
) (sketch.ArtifactSet, sketch.PartitionScheme, error) {
	build, err := builder.New(r.client, r.layout.Root, r.layout.LogFile).Build(ctx, &builder.Request{
		Board:  r.board,
		Scheme: r.scheme,
		Files:  snap.Files,
		Lines:  snap.Lines,
	})
	if err != nil {
		return nil, "", err
	}

	artifacts, err := collector.New(r.client, r.layout.OutputDir).
		Collect(ctx, build.BuildResponse, r.board.Family, r.layout.Name)
	if err != nil {
		return nil, "", fmt.Errorf("collect artifacts: %w", err)
	}

	record := &fingerprint.Record{
		Fingerprint: snap.Fingerprint,
		FQBN:        r.board.FQBN,
		Scheme:      build.Scheme,
		BuiltAt:     time.Now().UTC(),
	}

	if err = r.repo.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Unable to save the build record, the next run will rebuild", "error", err)
	}

	return artifacts, build.Scheme, nil
}
