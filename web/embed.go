// Package web embeds the console's HTML templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed all:static
var staticFS embed.FS

// Templates returns the page templates with templates/ as the root.
func Templates() (fs.FS, error) {
	return fs.Sub(templateFS, "templates")
}

// Static returns the stylesheet and script assets with static/ as the root,
// so files are accessed directly (e.g., "console.css").
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
