// Package imaging is the pure-Go pixel engine: stdlib codecs, x/image
// scaling and WebP decode, chai2010/webp encode.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers WebP with image.Decode

	"github.com/sepsten/bronze/core"
	apperrors "github.com/sepsten/bronze/errors"
	"github.com/sepsten/bronze/utils"
)

// Engine implements core.Engine on the standard library image stack. Safe
// for concurrent use. Decoded sources are cached for the duration of a run
// so concurrent variants of one source decode once; call Flush when done.
type Engine struct {
	DefaultQuality int // 1-100; used when encode options carry no quality

	mu      sync.Mutex
	sources map[string]*sourceEntry
}

type sourceEntry struct {
	once sync.Once
	img  image.Image
	err  error
}

// New returns an Engine with default settings.
func New() *Engine {
	return &Engine{DefaultQuality: 85, sources: map[string]*sourceEntry{}}
}

// Probe reads only the image header, never the pixel data.
func (e *Engine) Probe(ctx context.Context, srcPath string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "probe", err)
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "probe.open", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryDecode, "probe.decode", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Generate decodes the source (once per run per path), applies the resize
// step if declared, and encodes to destPath in the spec's format.
func (e *Engine) Generate(ctx context.Context, srcPath, destPath string, spec core.TransformSpec) (int, int, error) {
	src, err := e.decodeSource(ctx, srcPath)
	if err != nil {
		return 0, 0, err
	}

	out, err := resize(src, spec.Resize)
	if err != nil {
		return 0, 0, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryFilesystem, "generate.mkdir", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.CategoryEncode, "generate.create", err)
	}

	quality := optInt(spec.Options, "quality", e.DefaultQuality)
	switch spec.Format {
	case core.FormatJPEG:
		err = jpeg.Encode(f, out, &jpeg.Options{Quality: quality})
	case core.FormatPNG:
		err = png.Encode(f, out)
	case core.FormatWebP:
		err = webp.Encode(f, out, &webp.Options{
			Lossless: optBool(spec.Options, "lossless", false),
			Quality:  float32(quality),
		})
	default:
		err = fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, spec.Format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A partial artifact would pass the next run's existence check even
		// though its content is garbage; a failed write must leave nothing.
		os.Remove(destPath)
		return 0, 0, apperrors.Wrap(apperrors.CategoryEncode, "generate.encode", err)
	}

	bounds := out.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// Analyze decodes the artifact at path and measures its pixel statistics.
func (e *Engine) Analyze(ctx context.Context, path string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "analyze", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "analyze.open", err)
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.CategoryDecode, "analyze.decode", err)
	}
	brightness, dominant := Measure(m)
	return brightness, dominant, nil
}

// Flush drops the decoded-source cache. Call after a run settles.
func (e *Engine) Flush() {
	e.mu.Lock()
	e.sources = map[string]*sourceEntry{}
	e.mu.Unlock()
}

// decodeSource decodes srcPath at most once per run; concurrent callers for
// the same path share the result.
func (e *Engine) decodeSource(ctx context.Context, srcPath string) (image.Image, error) {
	e.mu.Lock()
	entry, ok := e.sources[srcPath]
	if !ok {
		entry = &sourceEntry{}
		e.sources[srcPath] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		f, err := os.Open(srcPath)
		if err != nil {
			entry.err = apperrors.Wrap(apperrors.CategoryDecode, "decode.open", err)
			return
		}
		defer f.Close()

		buf, err := utils.DrainReader(ctx, f, 32*1024)
		if err != nil {
			entry.err = apperrors.Wrap(apperrors.CategoryDecode, "decode.read", err)
			return
		}
		raw := utils.CloneBytes(buf.Bytes())
		utils.ReleaseBuffer(buf)

		m, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			entry.err = apperrors.Wrap(apperrors.CategoryDecode, "decode", err)
			return
		}
		entry.img = m
	})
	return entry.img, entry.err
}

// resize scales src per the declared constraints. Returns src unchanged when
// no resizing applies.
func resize(src image.Image, r *core.Resize) (image.Image, error) {
	if r == nil || (r.Width == 0 && r.Height == 0) {
		return src, nil
	}
	bounds := src.Bounds()
	dstW, dstH := utils.ScaleDimensions(bounds.Dx(), bounds.Dy(), r.Width, r.Height)
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, "resize", apperrors.ErrInvalidDimensions)
	}
	if dstW == bounds.Dx() && dstH == bounds.Dy() {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst, nil
}

// optInt reads an integer encode option, tolerating the numeric types YAML
// and JSON decoding produce.
func optInt(opts map[string]interface{}, key string, fallback int) int {
	v, ok := opts[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

func optBool(opts map[string]interface{}, key string, fallback bool) bool {
	if v, ok := opts[key].(bool); ok {
		return v
	}
	return fallback
}

var _ core.Engine = (*Engine)(nil)
