package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SPAHandler serves the built frontend. Paths that do not name a file get
// index.html so client-side routes survive a reload.
type SPAHandler struct {
	dir string
	fs  http.Handler
}

// NewSPAHandler serves files from dir
func NewSPAHandler(dir string) *SPAHandler {
	return &SPAHandler{dir: dir, fs: http.FileServer(http.Dir(dir))}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		sendError(w, "Not found", http.StatusNotFound)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if clean != "/" {
		info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(clean)))
		if err == nil && !info.IsDir() {
			h.fs.ServeHTTP(w, r)
			return
		}
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		sendError(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}
