package core

import (
	"math"
	"os"
	"sync"
)

// Version is one concrete (transform, format) output artifact for one source
// image. At most one Version exists per pair per Image.
type Version struct {
	ID        string `json:"id"`
	Transform string `json:"transform"`
	Format    Format `json:"format"`
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`

	// pending is the future of the in-flight operation that will place this
	// version's artifact (a generate or a rename), if any. Never serialised;
	// it exists so sibling operations can order behind it. pendingPath is
	// where that operation will leave the artifact.
	pending     *Future
	pendingPath string

	// declaredWidth is the resize width requested by the current
	// configuration, used to pick the smallest variant for sampling.
	declaredWidth int
}

// Image is one source image's known versions, metadata, and the operation
// queue it accumulates during a planning pass.
type Image struct {
	ID     string `json:"id"`
	Src    string `json:"src"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`

	// Brightness (0-100) and Dominant are optional until measured; once
	// measured they are cached and not re-measured unless missing.
	Brightness *int   `json:"brightness,omitempty"`
	Dominant   string `json:"dominant,omitempty"`

	Versions map[string]*Version `json:"versions"`

	mu    sync.Mutex
	queue []*Operation
}

// NewImage constructs an empty Image for the given ID and source path.
func NewImage(id, src string) *Image {
	return &Image{ID: id, Src: src, Versions: map[string]*Version{}}
}

// QueueRetrieveSize schedules a metadata probe of the source. Called once
// per newly-discovered Image (or when dimensions were never measured).
func (img *Image) QueueRetrieveSize() *Operation {
	op := NewOperation(OpRetrieveSize, img.ID)
	op.SrcPath = img.Src
	img.queue = append(img.queue, op)
	return op
}

// Reconcile compares the declared (transform, format) configuration against
// the stored Version and the filesystem, queueing at most one action per
// version per run: no-op, GENERATE, DELETE+GENERATE, or RENAME.
func (img *Image) Reconcile(spec TransformSpec, destPath string) {
	vid := VersionIDFor(spec.Transform, spec.Format)
	hash := Fingerprint(spec)

	declaredWidth := 0
	if spec.Resize != nil {
		declaredWidth = spec.Resize.Width
	}

	v, known := img.Versions[vid]
	if !known {
		v = &Version{
			ID:            vid,
			Transform:     spec.Transform,
			Format:        spec.Format,
			Path:          destPath,
			Hash:          hash,
			declaredWidth: declaredWidth,
		}
		img.Versions[vid] = v
		img.queueGenerate(v, spec)
		return
	}
	v.declaredWidth = declaredWidth

	_, statErr := os.Stat(v.Path)
	exists := statErr == nil

	switch {
	case !exists:
		// The artifact vanished between runs: regenerate at the declared
		// path with the current fingerprint.
		v.Path = destPath
		v.Hash = hash
		img.queueGenerate(v, spec)

	case v.Hash != hash:
		// Stale artifact: remove it, then generate at the declared path.
		del := NewOperation(OpDelete, img.ID)
		del.VersionID = vid
		del.Path = v.Path
		img.queue = append(img.queue, del)

		v.Path = destPath
		v.Hash = hash
		v.Width = 0
		v.Height = 0
		gen := img.queueGenerate(v, spec)
		// The old and new paths may coincide; the generate must not race
		// the delete of the stale artifact.
		gen.After(del.Future())

	case v.Path != destPath:
		// Only the destination naming changed: move without re-encoding.
		ren := NewOperation(OpRename, img.ID)
		ren.VersionID = vid
		ren.OldPath = v.Path
		ren.Path = destPath
		v.pending = ren.Future()
		v.pendingPath = destPath
		img.queue = append(img.queue, ren)

	default:
		// Already satisfied.
	}
}

func (img *Image) queueGenerate(v *Version, spec TransformSpec) *Operation {
	op := NewOperation(OpGenerate, img.ID)
	op.VersionID = v.ID
	op.SrcPath = img.Src
	op.Path = v.Path
	specCopy := spec
	op.Spec = &specCopy
	v.pending = op.Future()
	v.pendingPath = v.Path
	img.queue = append(img.queue, op)
	return op
}

// QueueBrightness schedules a brightness/dominant-colour measurement sampled
// from the smallest-width version. Call only after all version
// reconciliation for this image has been decided, so the smallest-version
// determination sees the final target set. Skipped when already cached or
// when the image has no versions to sample.
func (img *Image) QueueBrightness() *Operation {
	if img.Brightness != nil && img.Dominant != "" {
		return nil
	}
	v := img.smallestVersion()
	if v == nil {
		return nil
	}
	op := NewOperation(OpMeasureBrightness, img.ID)
	op.VersionID = v.ID
	op.Path = v.Path
	if v.pending != nil {
		// Sample where the in-flight generate or rename will leave the
		// artifact, and never before it has settled; a failed dependency
		// must fail the measurement, not be sampled around.
		op.Path = v.pendingPath
		op.Requires(v.pending)
	}
	img.queue = append(img.queue, op)
	return op
}

// smallestVersion picks the version with the smallest effective output
// width: the declared resize width when configured, the measured width
// otherwise. Versions with no resize constraint rank at source size.
func (img *Image) smallestVersion() *Version {
	var best *Version
	bestWidth := math.MaxInt
	for _, v := range img.Versions {
		w := v.declaredWidth
		if w == 0 {
			w = v.Width
		}
		if w == 0 {
			w = math.MaxInt - 1
		}
		if w < bestWidth || (w == bestWidth && best != nil && v.ID < best.ID) {
			best = v
			bestWidth = w
		}
	}
	return best
}

// Flush drains and returns the operations queued during the planning pass.
func (img *Image) Flush() []*Operation {
	ops := img.queue
	img.queue = nil
	return ops
}

// Apply writes an operation's outcome back into the image. Mutation happens
// here as an explicit post-condition, never inside Operation execution.
// Safe for concurrent use: operations of one image may settle concurrently.
func (img *Image) Apply(op *Operation, res OpResult) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if res.Err != nil {
		// A failed generate forgets the version record entirely; with the
		// engine removing partial artifacts on failure, the next run plans
		// the version as new again and retries.
		if op.Kind == OpGenerate {
			delete(img.Versions, op.VersionID)
		}
		return
	}

	switch op.Kind {
	case OpGenerate:
		if v, ok := img.Versions[op.VersionID]; ok {
			v.Width = res.Width
			v.Height = res.Height
			v.pending = nil
			v.pendingPath = ""
		}
	case OpRename:
		if v, ok := img.Versions[op.VersionID]; ok {
			v.Path = op.Path
			v.pending = nil
			v.pendingPath = ""
		}
	case OpRetrieveSize:
		img.Width = res.Width
		img.Height = res.Height
	case OpMeasureBrightness:
		brightness := res.Brightness
		img.Brightness = &brightness
		img.Dominant = res.Dominant
	}
}
