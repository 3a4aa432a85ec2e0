// Package vips is a libvips-powered pixel engine for large batches where
// shrink-on-load and SIMD decoding matter.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/sepsten/bronze/adapters/imaging"
	"github.com/sepsten/bronze/core"
	apperrors "github.com/sepsten/bronze/errors"
	"github.com/sepsten/bronze/utils"
)

// EngineConfig configures the libvips backend.
type EngineConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Engine implements core.Engine on libvips. Safe for concurrent use.
type Engine struct {
	cfg EngineConfig
}

// NewEngine initialises libvips and returns a ready Engine.
// Call Shutdown() when the process exits.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Engine{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (e *Engine) Shutdown() {
	govips.Shutdown()
}

func (e *Engine) Probe(ctx context.Context, srcPath string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.probe", err)
	}
	ref, err := govips.NewImageFromFile(srcPath)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.probe", err)
	}
	defer ref.Close()
	return ref.Width(), ref.Height(), nil
}

func (e *Engine) Generate(ctx context.Context, srcPath, destPath string, spec core.TransformSpec) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.generate", err)
	}
	ref, err := govips.NewImageFromFile(srcPath)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "vips.generate.load", err)
	}
	defer ref.Close()

	if r := spec.Resize; r != nil && (r.Width > 0 || r.Height > 0) {
		dstW, dstH := utils.ScaleDimensions(ref.Width(), ref.Height(), r.Width, r.Height)
		if dstW <= 0 || dstH <= 0 {
			return 0, 0, apperrors.New(apperrors.CategoryEncode, "vips.resize", apperrors.ErrInvalidDimensions)
		}
		if dstW != ref.Width() {
			scale := float64(dstW) / float64(ref.Width())
			if err := ref.Resize(scale, govips.KernelLanczos3); err != nil {
				return 0, 0, apperrors.Wrap(apperrors.CategoryEncode, "vips.resize", err)
			}
		}
	}

	data, err := e.export(ref, spec)
	if err != nil {
		return 0, 0, err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryFilesystem, "vips.generate.mkdir", err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		// Never leave a partial artifact: it would pass the next run's
		// existence check.
		os.Remove(destPath)
		return 0, 0, apperrors.Wrap(apperrors.CategoryEncode, "vips.generate.write", err)
	}
	return ref.Width(), ref.Height(), nil
}

func (e *Engine) export(ref *govips.ImageRef, spec core.TransformSpec) ([]byte, error) {
	quality := e.cfg.DefaultQuality
	if q, ok := spec.Options["quality"]; ok {
		switch n := q.(type) {
		case int:
			quality = n
		case int64:
			quality = int(n)
		case float64:
			quality = int(n)
		}
	}
	lossless, _ := spec.Options["lossless"].(bool)

	switch spec.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		buf, _, err := ref.ExportJpeg(ep)
		return buf, apperrors.Wrap(apperrors.CategoryEncode, "vips.export.jpeg", err)

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		buf, _, err := ref.ExportPng(ep)
		return buf, apperrors.Wrap(apperrors.CategoryEncode, "vips.export.png", err)

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = lossless
		buf, _, err := ref.ExportWebp(ep)
		return buf, apperrors.Wrap(apperrors.CategoryEncode, "vips.export.webp", err)
	}
	return nil, apperrors.New(apperrors.CategoryEncode, "vips.export",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, spec.Format))
}

// Analyze exports a lossless buffer and reuses the shared pixel statistics.
func (e *Engine) Analyze(ctx context.Context, path string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "vips.analyze", err)
	}
	ref, err := govips.NewImageFromFile(path)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "vips.analyze.load", err)
	}
	defer ref.Close()

	data, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "vips.analyze.export", err)
	}
	m, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "vips.analyze.decode", err)
	}
	brightness, dominant := imaging.Measure(m)
	return brightness, dominant, nil
}

var _ core.Engine = (*Engine)(nil)
