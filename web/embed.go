// Package web holds the embedded browser UI served at the site root.
package web

import "embed"

//go:embed static
var Assets embed.FS
