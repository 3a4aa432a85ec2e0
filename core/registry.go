package core

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	apperrors "github.com/sepsten/bronze/errors"
)

// Registry is the full collection of Images for one profile, indexed by a
// stable ID. It is the unit of persistence: loaded once at the start of a
// run, mutated in place while Images reconcile and operations complete, and
// serialised once at the end.
type Registry struct {
	Basepath string            `json:"basepath"`
	Images   map[string]*Image `json:"images"`

	logger zerolog.Logger
}

// NewRegistry returns an empty Registry computing IDs against basepath.
func NewRegistry(basepath string, logger zerolog.Logger) *Registry {
	return &Registry{
		Basepath: basepath,
		Images:   map[string]*Image{},
		logger:   logger,
	}
}

// ImageIDFor computes the stable ID for a source path: the path relative to
// basepath, slash-normalised, with its extension stripped. Stable across
// extension changes.
func ImageIDFor(basepath, srcPath string) string {
	rel, err := filepath.Rel(basepath, srcPath)
	if err != nil {
		rel = filepath.Clean(srcPath)
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// Resolve returns the Image for a source path, creating it when unknown. A
// known image whose source extension changed is flagged with a warning, not
// treated as a new entity. Images with unknown dimensions self-queue a
// RETRIEVE_SIZE operation.
func (r *Registry) Resolve(srcPath string) *Image {
	id := ImageIDFor(r.Basepath, srcPath)

	img, ok := r.Images[id]
	if ok {
		if oldExt, newExt := filepath.Ext(img.Src), filepath.Ext(srcPath); oldExt != newExt {
			r.logger.Warn().
				Str("image", id).
				Str("old_ext", oldExt).
				Str("new_ext", newExt).
				Msg("source extension changed for known image")
		}
		img.Src = srcPath
	} else {
		img = NewImage(id, srcPath)
		r.Images[id] = img
	}

	if img.Width == 0 || img.Height == 0 {
		img.QueueRetrieveSize()
	}
	return img
}

// ── snapshot (de)serialisation ────────────────────────────────────────────────

// RegistryFromSnapshot rebuilds a Registry from one profile's snapshot
// entry. It rejects snapshots missing basepath or images, and skips (with a
// warning, without failing the load) any image entry whose shape does not
// conform: a partially-corrupt snapshot degrades to "image not yet known"
// for the bad entries.
//
// basepath is the currently-configured base directory; it wins over the
// stored value, which only serves schema validation.
func RegistryFromSnapshot(data []byte, basepath string, logger zerolog.Logger) (*Registry, error) {
	var raw struct {
		Basepath *string                    `json:"basepath"`
		Images   map[string]json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CategorySnapshot, "registry.decode", err)
	}
	if raw.Basepath == nil || raw.Images == nil {
		return nil, apperrors.New(apperrors.CategorySnapshot, "registry.decode", apperrors.ErrSnapshotShape)
	}
	if *raw.Basepath != basepath {
		logger.Warn().
			Str("stored", *raw.Basepath).
			Str("configured", basepath).
			Msg("snapshot basepath differs from configuration")
	}

	reg := NewRegistry(basepath, logger)
	for id, entry := range raw.Images {
		var img Image
		if err := json.Unmarshal(entry, &img); err != nil {
			logger.Warn().Str("image", id).Err(err).Msg("skipping malformed snapshot entry")
			continue
		}
		if !conforms(&img) {
			logger.Warn().Str("image", id).Msg("skipping snapshot entry with missing fields")
			continue
		}
		if img.Versions == nil {
			img.Versions = map[string]*Version{}
		}
		reg.Images[id] = &img
	}
	return reg, nil
}

// conforms checks the expected snapshot shape: id and src on the image, and
// id/transform/format/path/hash on every version entry.
func conforms(img *Image) bool {
	if img.ID == "" || img.Src == "" {
		return false
	}
	for _, v := range img.Versions {
		if v == nil || v.ID == "" || v.Transform == "" || v.Format == "" || v.Path == "" || v.Hash == "" {
			return false
		}
	}
	return true
}
