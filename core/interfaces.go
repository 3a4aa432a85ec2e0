package core

import "context"

// Engine performs the actual pixel work: metadata probing, variant
// generation, and pixel statistics. Implementations live in adapters/ and
// must be safe for concurrent use across goroutines.
type Engine interface {
	// Probe reads only the source image's metadata without decoding pixel
	// data, returning its width and height.
	Probe(ctx context.Context, srcPath string) (width, height int, err error)

	// Generate reads the source image, applies the spec's resize step (if
	// any), encodes to the spec's format, and writes the artifact to
	// destPath, creating parent directories as needed. On success it reports
	// the output dimensions.
	Generate(ctx context.Context, srcPath, destPath string, spec TransformSpec) (width, height int, err error)

	// Analyze computes an average-lightness score (0-100) and a dominant
	// colour descriptor ("#rrggbb") by sampling the artifact at path.
	Analyze(ctx context.Context, path string) (brightness int, dominant string, err error)
}

// ProgressReporter receives execution progress for one run. Implementations
// are scoped to a single run invocation, never process-wide.
type ProgressReporter interface {
	Start(total int)
	Operation(kind OpKind, path string, size int64, err error)
	Finish()
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) Start(int)                              {}
func (NopReporter) Operation(OpKind, string, int64, error) {}
func (NopReporter) Finish()                                {}
