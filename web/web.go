// Package web holds the browser shell's templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var content embed.FS

// Templates is rooted at templates/; pages at the top, fragments in partials/.
func Templates() fs.FS {
	sub, err := fs.Sub(content, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func Static() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
