package core

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	apperrors "github.com/sepsten/bronze/errors"
)

// LoadSnapshotFile reads the persisted snapshot, keyed by profile name. A
// missing file yields an empty map. An unparsable file degrades the run to
// "no prior state" with a warning rather than aborting.
func LoadSnapshotFile(path string, logger zerolog.Logger) map[string]json.RawMessage {
	profiles := map[string]json.RawMessage{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("file", path).Err(err).Msg("cannot read snapshot, starting fresh")
		}
		return profiles
	}
	if err := json.Unmarshal(data, &profiles); err != nil {
		logger.Warn().Str("file", path).Err(err).Msg("corrupt snapshot, starting fresh")
		return map[string]json.RawMessage{}
	}
	return profiles
}

// SaveSnapshotFile serialises every profile's Registry into the snapshot
// file. Written once per run, after all operations have settled. The write
// goes through a temp file and rename so readers never observe a
// partially-written snapshot.
func SaveSnapshotFile(path string, profiles map[string]*Registry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.mkdir", err)
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.marshal", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.tmp", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.close", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Wrap(apperrors.CategorySnapshot, "save.rename", err)
	}
	return nil
}
