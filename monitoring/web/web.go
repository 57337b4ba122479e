// Package web holds the monitoring page.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
)

//go:embed dist/*
var dist embed.FS

// Assets returns the files of the monitoring page. An empty dir selects the
// page built into the binary; otherwise the files are read from dir on every
// request, so the page can be edited while a run is being monitored.
func Assets(dir string) http.FileSystem {
	if dir != "" {
		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		log.Panicf("monitoring page: %v", err)
	}

	return http.FS(sub)
}
