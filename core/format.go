package core

// Format identifies an output image codec.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// formatExtensions is the fixed extension mapping for allowed output formats.
var formatExtensions = map[Format]string{
	FormatJPEG: ".jpeg",
	FormatPNG:  ".png",
	FormatWebP: ".webp",
}

// ParseFormat resolves a configured format name to a Format. Names outside
// the allowed set return ok=false and are ignored during planning.
func ParseFormat(name string) (Format, bool) {
	switch name {
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	}
	return "", false
}

// Ext returns the file extension for f, including the leading dot.
func (f Format) Ext() string { return formatExtensions[f] }

// Resize holds declared resize constraints. A zero axis means "derive from
// the other axis, preserving aspect ratio"; both zero means no resizing.
type Resize struct {
	Width  int `json:"width,omitempty" yaml:"width"`
	Height int `json:"height,omitempty" yaml:"height"`
}

// TransformSpec is the effective configuration for one (transform, format)
// pair: everything that influences the produced artifact's pixel content.
type TransformSpec struct {
	Transform string
	Format    Format
	Options   map[string]interface{} // format-specific encode options
	Resize    *Resize                // nil = keep source dimensions
}

// VersionIDFor builds the stable version identifier for a transform/format
// pair. At most one Version exists per pair per Image.
func VersionIDFor(transform string, format Format) string {
	return transform + "-" + string(format)
}
