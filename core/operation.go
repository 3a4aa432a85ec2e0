package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	apperrors "github.com/sepsten/bronze/errors"
)

// OpKind identifies the unit of work an Operation performs.
type OpKind string

const (
	OpGenerate          OpKind = "generate"
	OpDelete            OpKind = "delete"
	OpRename            OpKind = "rename"
	OpRetrieveSize      OpKind = "retrieve-size"
	OpMeasureBrightness OpKind = "measure-brightness"
)

// OpState is the operation lifecycle state.
type OpState int32

const (
	OpPending OpState = iota
	OpRunning
	OpSuccess
	OpFailure
)

func (s OpState) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpRunning:
		return "running"
	case OpSuccess:
		return "success"
	case OpFailure:
		return "failure"
	}
	return "unknown"
}

// OpResult carries the outcome of an operation. Only the fields relevant to
// the operation's kind are populated.
type OpResult struct {
	Width      int
	Height     int
	Brightness int
	Dominant   string
	Err        error
}

// ── Future ────────────────────────────────────────────────────────────────────

// Future is a one-shot result holder resolved exactly once, safely awaitable
// by zero or more dependents. Every Operation is bound to one at creation so
// dependents can be handed the future before the operation begins executing.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result OpResult
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(r OpResult) {
	f.once.Do(func() {
		f.result = r
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx is cancelled.
func (f *Future) Await(ctx context.Context) OpResult {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return OpResult{Err: ctx.Err()}
	}
}

// ── Operation ─────────────────────────────────────────────────────────────────

type dependency struct {
	future *Future
	// required failures propagate; non-required dependencies only order.
	required bool
}

// Operation is a unit of work against one image version. It is run-scoped:
// created during planning, executed once during the run phase, and discarded
// afterwards. Only its side effects persist.
//
// The ImageID relation back to the owning Image is non-owning; the Image owns
// its queued Operations, never the other way around.
type Operation struct {
	Kind      OpKind
	ImageID   string
	VersionID string
	SrcPath   string         // source image (generate, retrieve-size)
	Path      string         // target artifact path
	OldPath   string         // previous path (rename)
	Spec      *TransformSpec // generate payload

	future *Future
	deps   []dependency
	state  int32
}

// NewOperation creates an Operation already bound to an unresolved Future.
func NewOperation(kind OpKind, imageID string) *Operation {
	return &Operation{Kind: kind, ImageID: imageID, future: NewFuture()}
}

// Future returns the operation's completion future.
func (o *Operation) Future() *Future { return o.future }

// State returns the current lifecycle state.
func (o *Operation) State() OpState { return OpState(atomic.LoadInt32(&o.state)) }

// After orders o behind f: o waits for f to settle but runs regardless of
// f's outcome.
func (o *Operation) After(f *Future) {
	o.deps = append(o.deps, dependency{future: f})
}

// Requires orders o behind f and fails o when f fails.
func (o *Operation) Requires(f *Future) {
	o.deps = append(o.deps, dependency{future: f, required: true})
}

// AwaitDeps blocks until every dependency future has settled. It returns a
// non-nil error when a required dependency failed or ctx was cancelled.
// Callers must await dependencies before claiming an execution slot so a
// bounded executor cannot deadlock on its own ordering edges.
func (o *Operation) AwaitDeps(ctx context.Context) error {
	for _, dep := range o.deps {
		res := dep.future.Await(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if dep.required && res.Err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrDependencyFailed, res.Err)
		}
	}
	return nil
}

// Fail resolves the operation as failed without executing it.
func (o *Operation) Fail(err error) OpResult {
	atomic.StoreInt32(&o.state, int32(OpFailure))
	res := OpResult{Err: err}
	o.future.resolve(res)
	return res
}

// Execute runs the operation against eng and resolves its future exactly
// once. A second call does not re-execute; it waits for the first outcome.
func (o *Operation) Execute(ctx context.Context, eng Engine) OpResult {
	if !atomic.CompareAndSwapInt32(&o.state, int32(OpPending), int32(OpRunning)) {
		return o.future.Await(ctx)
	}

	res := o.run(ctx, eng)
	if res.Err != nil {
		atomic.StoreInt32(&o.state, int32(OpFailure))
	} else {
		atomic.StoreInt32(&o.state, int32(OpSuccess))
	}
	o.future.resolve(res)
	return res
}

func (o *Operation) run(ctx context.Context, eng Engine) OpResult {
	if err := ctx.Err(); err != nil {
		return OpResult{Err: apperrors.Wrap(apperrors.CategoryPlan, string(o.Kind), err)}
	}

	switch o.Kind {
	case OpGenerate:
		if o.Spec == nil {
			return OpResult{Err: apperrors.New(apperrors.CategoryPlan, "generate",
				fmt.Errorf("operation for %q has no transform payload", o.VersionID))}
		}
		w, h, err := eng.Generate(ctx, o.SrcPath, o.Path, *o.Spec)
		return OpResult{Width: w, Height: h, Err: err}

	case OpDelete:
		if err := os.Remove(o.Path); err != nil {
			return OpResult{Err: apperrors.Wrap(apperrors.CategoryFilesystem, "delete", err)}
		}
		return OpResult{}

	case OpRename:
		if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
			return OpResult{Err: apperrors.Wrap(apperrors.CategoryFilesystem, "rename.mkdir", err)}
		}
		if err := os.Rename(o.OldPath, o.Path); err != nil {
			return OpResult{Err: apperrors.Wrap(apperrors.CategoryFilesystem, "rename", err)}
		}
		return OpResult{}

	case OpRetrieveSize:
		w, h, err := eng.Probe(ctx, o.SrcPath)
		return OpResult{Width: w, Height: h, Err: err}

	case OpMeasureBrightness:
		brightness, dominant, err := eng.Analyze(ctx, o.Path)
		return OpResult{Brightness: brightness, Dominant: dominant, Err: err}
	}

	return OpResult{Err: apperrors.New(apperrors.CategoryPlan, "execute",
		fmt.Errorf("unknown operation kind %q", o.Kind))}
}
