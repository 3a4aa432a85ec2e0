// Package runner drives one build run end-to-end: source expansion,
// reconciliation, bounded-concurrency execution, and snapshot persistence.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/sepsten/bronze/config"
	"github.com/sepsten/bronze/core"
	apperrors "github.com/sepsten/bronze/errors"
	"github.com/sepsten/bronze/utils"
)

// OperationError reports one failed operation without aborting the batch.
type OperationError struct {
	Kind core.OpKind
	Path string
	Err  error
}

func (e OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

// Result is what a run yields: per-profile serialized registries, planned
// operation counts by kind, and the failures that occurred.
type Result struct {
	Dry      bool
	Planned  map[core.OpKind]int
	Profiles map[string]*core.Registry
	Errors   []OperationError
}

// Runner plans and executes one run across all configured profiles.
type Runner struct {
	cfg      config.Config
	engine   core.Engine
	reporter core.ProgressReporter
	logger   zerolog.Logger
}

// New creates a Runner. A nil reporter is replaced with a no-op one.
func New(cfg config.Config, engine core.Engine, reporter core.ProgressReporter, logger zerolog.Logger) *Runner {
	if reporter == nil {
		reporter = core.NopReporter{}
	}
	return &Runner{cfg: cfg, engine: engine, reporter: reporter, logger: logger}
}

type queuedOp struct {
	op  *core.Operation
	img *core.Image
}

// Run loads the prior snapshot, reconciles every profile against it and the
// filesystem, executes the resulting operations, and persists the updated
// snapshot exactly once after all operations have settled. In dry mode it
// short-circuits before execution and only reports the plan.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	prior := core.LoadSnapshotFile(r.cfg.InfoFile, r.logger)

	profiles := make(map[string]*core.Registry, len(r.cfg.Profiles))
	var queued []queuedOp

	for _, name := range sortedProfileNames(r.cfg.Profiles) {
		profile := r.cfg.Profiles[name]
		logger := r.logger.With().Str("profile", name).Logger()

		ops, reg, err := r.plan(profile, prior[name], logger)
		if err != nil {
			return nil, err
		}
		profiles[name] = reg
		queued = append(queued, ops...)
	}

	planned := map[core.OpKind]int{}
	for _, q := range queued {
		planned[q.op.Kind]++
	}

	result := &Result{Planned: planned, Profiles: profiles}
	if r.cfg.Dry {
		result.Dry = true
		return result, nil
	}

	result.Errors = r.execute(ctx, queued)

	if flusher, ok := r.engine.(interface{ Flush() }); ok {
		flusher.Flush()
	}
	if err := core.SaveSnapshotFile(r.cfg.InfoFile, profiles); err != nil {
		return result, err
	}
	return result, nil
}

// plan expands one profile's sources and reconciles every image against the
// declared transform set, draining each image's queued operations.
func (r *Runner) plan(profile config.ProfileConfig, prior []byte, logger zerolog.Logger) ([]queuedOp, *core.Registry, error) {
	basepath, _ := doublestar.SplitPattern(filepath.ToSlash(profile.Src))

	sources, err := doublestar.FilepathGlob(profile.Src)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CategoryPlan, "glob "+profile.Src, err)
	}
	sort.Strings(sources)

	var reg *core.Registry
	if prior != nil {
		reg, err = core.RegistryFromSnapshot(prior, basepath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("rejecting prior snapshot for profile")
			reg = nil
		}
	}
	if reg == nil {
		reg = core.NewRegistry(basepath, logger)
	}

	transformNames := make([]string, 0, len(profile.Transforms))
	for tname := range profile.Transforms {
		transformNames = append(transformNames, tname)
	}
	sort.Strings(transformNames)

	var queued []queuedOp
	for i, src := range sources {
		img := reg.Resolve(src)

		for _, tname := range transformNames {
			transform := profile.Transforms[tname]
			formats := transform.EffectiveFormats(profile.Formats)

			formatNames := make([]string, 0, len(formats))
			for fname := range formats {
				formatNames = append(formatNames, fname)
			}
			sort.Strings(formatNames)

			for _, fname := range formatNames {
				format, ok := core.ParseFormat(fname)
				if !ok {
					logger.Debug().Str("format", fname).Msg("ignoring unknown format")
					continue
				}
				spec := core.TransformSpec{
					Transform: tname,
					Format:    format,
					Options:   formats[fname],
					Resize:    declaredResize(transform.Resize),
				}
				dest := destPath(profile, transform, basepath, src, tname, i, format)
				img.Reconcile(spec, dest)
			}
		}

		if profile.MeasureBrightness {
			img.QueueBrightness()
		}
		for _, op := range img.Flush() {
			queued = append(queued, queuedOp{op: op, img: img})
		}
	}
	return queued, reg, nil
}

// execute runs all queued operations with bounded concurrency. Dependencies
// are awaited before an execution slot is claimed, so ordering edges can
// never deadlock the semaphore. One operation's failure never cancels or
// blocks unrelated operations.
func (r *Runner) execute(ctx context.Context, queued []queuedOp) []OperationError {
	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	r.reporter.Start(len(queued))
	sem := make(chan struct{}, concurrency)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opErrs []OperationError
	)
	for _, q := range queued {
		wg.Add(1)
		go func(q queuedOp) {
			defer wg.Done()

			var res core.OpResult
			if err := q.op.AwaitDeps(ctx); err != nil {
				res = q.op.Fail(err)
			} else {
				sem <- struct{}{}
				res = q.op.Execute(ctx, r.engine)
				<-sem
			}
			q.img.Apply(q.op, res)

			path := q.op.Path
			if path == "" {
				path = q.op.SrcPath
			}
			var size int64
			if res.Err == nil && q.op.Kind == core.OpGenerate {
				if fi, err := os.Stat(q.op.Path); err == nil {
					size = fi.Size()
				}
			}
			r.reporter.Operation(q.op.Kind, path, size, res.Err)

			if res.Err != nil {
				mu.Lock()
				opErrs = append(opErrs, OperationError{Kind: q.op.Kind, Path: path, Err: res.Err})
				mu.Unlock()
			}
		}(q)
	}
	wg.Wait()
	r.reporter.Finish()
	return opErrs
}

// destPath renders the declared destination for one (source, transform,
// format) combination under the profile's destFolder.
func destPath(profile config.ProfileConfig, transform config.TransformConfig, basepath, src, tname string, index int, format core.Format) string {
	rel, err := filepath.Rel(basepath, src)
	if err != nil {
		rel = filepath.Base(src)
	}
	folder := filepath.Dir(rel)
	if folder == "." {
		folder = ""
	}
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	rendered := utils.RenderDest(transform.Dest, utils.DestVars{
		Name:      name,
		Folder:    folder,
		Transform: tname,
		Index:     index,
	})
	return filepath.Join(profile.DestFolder, rendered+format.Ext())
}

func declaredResize(r *config.ResizeConfig) *core.Resize {
	if r == nil {
		return nil
	}
	return &core.Resize{Width: r.Width, Height: r.Height}
}

func sortedProfileNames(profiles map[string]config.ProfileConfig) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
