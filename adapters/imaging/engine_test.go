package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sepsten/bronze/core"
	apperrors "github.com/sepsten/bronze/errors"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetRGBA(x, y, c)
		}
	}
	return m
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, solidImage(w, h, color.RGBA{R: 200, G: 120, B: 40, A: 255}), nil); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, solidImage(w, h, c)); err != nil {
		t.Fatal(err)
	}
}

func destDims(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg.Width, cfg.Height
}

func TestProbe(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.jpg")
	writeJPEG(t, src, 320, 200)

	w, h, err := New().Probe(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if w != 320 || h != 200 {
		t.Errorf("probe = %dx%d, want 320x200", w, h)
	}
}

func TestProbe_MissingFile(t *testing.T) {
	_, _, err := New().Probe(context.Background(), filepath.Join(t.TempDir(), "absent.jpg"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("error %v lacks decode category", err)
	}
}

func TestGenerate_Resize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 800, 600)
	dest := filepath.Join(dir, "out", "src-thumb.jpeg")

	w, h, err := New().Generate(context.Background(), src, dest, core.TransformSpec{
		Transform: "thumb",
		Format:    core.FormatJPEG,
		Resize:    &core.Resize{Width: 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	if w != 200 || h != 150 {
		t.Errorf("reported dims = %dx%d, want 200x150", w, h)
	}
	if gotW, gotH := destDims(t, dest); gotW != 200 || gotH != 150 {
		t.Errorf("artifact dims = %dx%d, want 200x150", gotW, gotH)
	}
}

func TestGenerate_NoResizeKeepsSourceSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 320, 200)
	dest := filepath.Join(dir, "src-copy.png")

	w, h, err := New().Generate(context.Background(), src, dest, core.TransformSpec{
		Transform: "copy",
		Format:    core.FormatPNG,
	})
	if err != nil {
		t.Fatal(err)
	}
	if w != 320 || h != 200 {
		t.Errorf("reported dims = %dx%d, want 320x200", w, h)
	}
}

func TestGenerate_AllFormats(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 64, 48)

	for _, format := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		dest := filepath.Join(dir, "out"+format.Ext())
		_, _, err := New().Generate(context.Background(), src, dest, core.TransformSpec{
			Transform: "full",
			Format:    format,
			Options:   map[string]interface{}{"quality": 90},
		})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		// Every artifact decodes back through the registered codecs.
		if w, h := destDims(t, dest); w != 64 || h != 48 {
			t.Errorf("%s artifact dims = %dx%d, want 64x48", format, w, h)
		}
	}
}

func TestGenerate_FailureLeavesNoPartialArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 64, 48)
	dest := filepath.Join(dir, "out.gif")

	_, _, err := New().Generate(context.Background(), src, dest, core.TransformSpec{
		Transform: "thumb",
		Format:    core.Format("gif"),
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
	if !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want unsupported format sentinel", err)
	}
	// The created-then-failed destination must not survive: an existing
	// file with a matching fingerprint would never be regenerated.
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("failed generate left a partial artifact behind")
	}
}

func TestGenerate_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, _, err := New().Generate(context.Background(),
		filepath.Join(dir, "absent.jpg"), filepath.Join(dir, "out.jpeg"),
		core.TransformSpec{Transform: "thumb", Format: core.FormatJPEG})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("error %v lacks decode category", err)
	}
}

func TestGenerate_SourceDecodedOncePerRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeJPEG(t, src, 64, 48)

	eng := New()
	for i, format := range []core.Format{core.FormatJPEG, core.FormatPNG} {
		dest := filepath.Join(dir, "out"+format.Ext())
		if _, _, err := eng.Generate(context.Background(), src, dest, core.TransformSpec{
			Transform: "full", Format: format,
		}); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}

	// Removing the source mid-run must not break further variants: the
	// decoded pixels are cached until Flush.
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	if _, _, err := eng.Generate(context.Background(), src, filepath.Join(dir, "late.webp"),
		core.TransformSpec{Transform: "full", Format: core.FormatWebP}); err != nil {
		t.Fatalf("cached source not reused: %v", err)
	}

	eng.Flush()
	if _, _, err := eng.Generate(context.Background(), src, filepath.Join(dir, "next-run.png"),
		core.TransformSpec{Transform: "full", Format: core.FormatPNG}); err == nil {
		t.Fatal("flush did not drop the decoded-source cache")
	}
}

func TestMeasure(t *testing.T) {
	cases := []struct {
		name           string
		c              color.RGBA
		wantBrightness int
		wantDominant   string
	}{
		{"white", color.RGBA{255, 255, 255, 255}, 100, "#ffffff"},
		{"black", color.RGBA{0, 0, 0, 255}, 0, "#000000"},
		{"red", color.RGBA{255, 0, 0, 255}, 29, "#ff0000"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			brightness, dominant := Measure(solidImage(32, 32, c.c))
			if brightness != c.wantBrightness {
				t.Errorf("brightness = %d, want %d", brightness, c.wantBrightness)
			}
			if dominant != c.wantDominant {
				t.Errorf("dominant = %s, want %s", dominant, c.wantDominant)
			}
		})
	}
}

func TestMeasure_DominantByArea(t *testing.T) {
	// Two thirds blue, one third white: blue wins.
	m := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if x < 20 {
				m.SetRGBA(x, y, color.RGBA{0, 0, 255, 255})
			} else {
				m.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	if _, dominant := Measure(m); dominant != "#0000ff" {
		t.Errorf("dominant = %s, want #0000ff", dominant)
	}
}

func TestAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solid.png")
	writePNG(t, path, 40, 40, color.RGBA{255, 255, 255, 255})

	brightness, dominant, err := New().Analyze(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if brightness != 100 || dominant != "#ffffff" {
		t.Errorf("analyze = (%d, %s), want (100, #ffffff)", brightness, dominant)
	}
}
