package utils

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDestTemplate names artifacts "<source name>-<transform name>".
const DefaultDestTemplate = "[name]-[transform]"

// DestVars are the variables recognised by destination path templates.
type DestVars struct {
	Name      string // source file name, no extension
	Folder    string // source subfolder relative to the basepath
	Transform string
	Index     int // positional source index
}

// RenderDest expands a destination path template. An empty template falls
// back to DefaultDestTemplate.
func RenderDest(template string, vars DestVars) string {
	if template == "" {
		template = DefaultDestTemplate
	}
	r := strings.NewReplacer(
		"[name]", vars.Name,
		"[folder]", filepath.ToSlash(vars.Folder),
		"[transform]", vars.Transform,
		"[index]", strconv.Itoa(vars.Index),
	)
	return filepath.FromSlash(r.Replace(template))
}
