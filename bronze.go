// Package bronze derives output image variants from source images according
// to a declarative set of named transforms, re-running only what actually
// changed between runs.
package bronze

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sepsten/bronze/adapters/imaging"
	"github.com/sepsten/bronze/config"
	"github.com/sepsten/bronze/core"
	"github.com/sepsten/bronze/runner"
)

// Result re-exports the run outcome for convenience.
type Result = runner.Result

// Builder is the primary entry point: one Builder per configuration,
// Run once per build invocation.
type Builder struct {
	cfg      config.Config
	engine   core.Engine
	reporter core.ProgressReporter
	logger   zerolog.Logger
}

// Option customises a Builder.
type Option func(*Builder)

// WithEngine swaps the pixel engine (e.g. the libvips backend from
// adapters/vips). The default is the pure-Go engine.
func WithEngine(e core.Engine) Option { return func(b *Builder) { b.engine = e } }

// WithReporter attaches a progress reporter for the run.
func WithReporter(r core.ProgressReporter) Option { return func(b *Builder) { b.reporter = r } }

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(b *Builder) { b.logger = l } }

// New validates cfg and creates a fully wired Builder.
func New(cfg config.Config, opts ...Option) (*Builder, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:      cfg,
		reporter: core.NopReporter{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.engine == nil {
		b.engine = imaging.New()
	}
	return b, nil
}

// Run executes one build: plan, execute, persist the snapshot. In dry mode
// the returned Result only describes the planned operations.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	return runner.New(b.cfg, b.engine, b.reporter, b.logger).Run(ctx)
}
