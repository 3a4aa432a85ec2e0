package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint derives a stable digest of a transform's effective
// configuration. Two deeply-equal configurations produce the same digest
// regardless of option key insertion order; any change to the format, encode
// options, or resize options changes it.
//
// encoding/json serialises map keys in sorted order, which gives us the
// canonical representation for free.
func Fingerprint(spec TransformSpec) string {
	payload := map[string]interface{}{
		"format":  spec.Format,
		"options": spec.Options,
		"resize":  spec.Resize,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Options come from YAML/JSON decoding and are always marshalable;
		// an unmarshalable value still must not produce hash collisions.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
