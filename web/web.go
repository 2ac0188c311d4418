// Package web embeds the HTML templates of the dashboard.
package web

import "embed"

//go:embed templates/*.html
var TemplateFiles embed.FS
