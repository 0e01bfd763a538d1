// Package web holds the browser client served at the server root.
package web

import "embed"

//go:embed dist
var Assets embed.FS
