package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/domain/sketch"
	"github.com/oshokin/arcompile/internal/logger"
	"github.com/oshokin/arcompile/internal/repository/fingerprint"
	store "github.com/oshokin/arcompile/internal/repository/release"
	"github.com/oshokin/arcompile/internal/service/collector"
	"github.com/oshokin/arcompile/internal/service/compile"
	"github.com/oshokin/arcompile/internal/service/flasher"
)

// errUnknownBoard is returned when a release does not say which AVR board it targets.
var errUnknownBoard = errors.New("release does not record its board")

// Options are shared by the release commands.
type Options struct {
	// Config overrides loading ConfigPath.
	Config *config.Config
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Dir is the sketch directory (defaults to the working directory).
	Dir string
	// Port is an explicit serial port for Flash.
	Port string
	// KillMonitors stops serial monitors before flashing.
	KillMonitors bool
	// Flasher overrides the flasher built from the configuration.
	Flasher compile.Flasher
}

type service struct {
	cfg      *config.Config
	layout   *compile.Layout
	releases *store.Store
}

func newService(opts *Options) (*service, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error

		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	layout, err := compile.ResolveLayout(opts.Dir, cfg)
	if err != nil {
		return nil, err
	}

	return &service{
		cfg:      cfg,
		layout:   layout,
		releases: store.NewStore(layout.ReleasesDir),
	}, nil
}

// Save copies the current artifacts into releases/<name>.
func Save(ctx context.Context, opts *Options, name string) (*store.Release, error) {
	ctx = logger.WithName(ctx, "release")

	svc, err := newService(opts)
	if err != nil {
		return nil, err
	}

	set, err := collector.Existing(svc.layout.OutputDir, svc.layout.Name)
	if err != nil {
		return nil, err
	}

	meta := store.Meta{
		Name:       name,
		Family:     set.Family(),
		SketchName: svc.layout.Name,
	}

	record, err := fingerprint.NewFileRepository(svc.layout.HashFile).Load(ctx)

	switch {
	case err == nil && record.FQBN != "":
		meta.FQBN = record.FQBN
		meta.Family = sketch.FamilyFromFQBN(record.FQBN)
	case err != nil && !errors.Is(err, fingerprint.ErrNotFound):
		logger.WarnKV(ctx, "Build record unreadable, inferring the board from the artifacts", "error", err)
	}

	if !set.HasApplication(meta.Family) {
		return nil, fmt.Errorf("%s: %w", svc.layout.OutputDir, store.ErrNoArtifacts)
	}

	saved, err := svc.releases.Save(set, meta)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Release saved", "name", name, "dir", saved.Dir, "fqbn", meta.FQBN, "files", len(saved.Artifacts))

	return saved, nil
}

// Flash writes a saved release to the board without rebuilding.
func Flash(ctx context.Context, opts *Options, name string) error {
	ctx = logger.WithName(ctx, "release")

	svc, err := newService(opts)
	if err != nil {
		return err
	}

	rel, err := svc.releases.Load(name)
	if err != nil {
		return err
	}

	board, err := svc.boardFor(rel.Meta)
	if err != nil {
		return err
	}

	flash := opts.Flasher
	if flash == nil {
		flash = compile.NewFlasher(svc.cfg, opts.KillMonitors)
	}

	logger.InfoKV(ctx, "Flashing release", "name", name, "fqbn", board.FQBN, "date", rel.Meta.Date)

	return flash.Flash(ctx, &flasher.Target{
		Board:     board,
		Artifacts: rel.Artifacts,
		InputDir:  rel.Dir,
		SketchDir: svc.layout.Root,
		Port:      opts.Port,
	})
}

// List returns the saved release names.
func List(opts *Options) ([]string, error) {
	svc, err := newService(opts)
	if err != nil {
		return nil, err
	}

	return svc.releases.List()
}

// boardFor picks the board a release was built for. Without a recorded FQBN
// the configured board is used when it is flashed by the same tool.
func (s *service) boardFor(meta store.Meta) (sketch.Board, error) {
	if meta.FQBN != "" {
		return sketch.NewBoard(meta.FQBN)
	}

	configured, err := sketch.NewBoard(s.cfg.FQBN)
	if err == nil && configured.Family.IsESP32() == meta.Family.IsESP32() {
		return configured, nil
	}

	if meta.Family == sketch.FamilyAVR {
		return sketch.Board{}, fmt.Errorf("%s: %w", meta.Name, errUnknownBoard)
	}

	return sketch.NewBoard(config.DefaultFQBN)
}
