// Package web holds the dashboard pages served by the collector.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var content embed.FS

// Static is the dashboard tree rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
