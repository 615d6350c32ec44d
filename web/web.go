// Package web embeds the HTML templates and static assets served by cmd/server.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html static/*
var files embed.FS

// Templates returns the template tree, rooted so paths start with "templates/".
func Templates() fs.FS {
	return files
}

// Static returns the static assets with the "static/" prefix stripped.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
