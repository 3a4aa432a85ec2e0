package core

import "testing"

func specFixture() TransformSpec {
	return TransformSpec{
		Transform: "thumb",
		Format:    FormatJPEG,
		Options:   map[string]interface{}{"quality": 80, "progressive": true},
		Resize:    &Resize{Width: 200},
	}
}

func TestFingerprint_Stability(t *testing.T) {
	a := specFixture()

	// Same configuration assembled in a different key order.
	b := specFixture()
	b.Options = map[string]interface{}{}
	b.Options["progressive"] = true
	b.Options["quality"] = 80

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("deeply-equal configs must produce the same fingerprint")
	}
	if Fingerprint(a) != Fingerprint(a) {
		t.Error("fingerprint must be deterministic")
	}
}

func TestFingerprint_TransformNameIrrelevant(t *testing.T) {
	a := specFixture()
	b := specFixture()
	b.Transform = "other"
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fingerprint covers effective configuration, not the transform name")
	}
}

func TestFingerprint_Sensitivity(t *testing.T) {
	base := Fingerprint(specFixture())

	tests := []struct {
		name   string
		mutate func(*TransformSpec)
	}{
		{"format", func(s *TransformSpec) { s.Format = FormatWebP }},
		{"encode option value", func(s *TransformSpec) { s.Options["quality"] = 90 }},
		{"encode option added", func(s *TransformSpec) { s.Options["lossless"] = true }},
		{"encode option removed", func(s *TransformSpec) { delete(s.Options, "progressive") }},
		{"resize width", func(s *TransformSpec) { s.Resize.Width = 300 }},
		{"resize removed", func(s *TransformSpec) { s.Resize = nil }},
	}
	for _, tc := range tests {
		spec := specFixture()
		tc.mutate(&spec)
		if Fingerprint(spec) == base {
			t.Errorf("changing %s must change the fingerprint", tc.name)
		}
	}
}
