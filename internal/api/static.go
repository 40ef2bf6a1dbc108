package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/stacklok/catalog-aggregator/internal/api/common"
)

// staticHandler serves files from dir. Unknown GET paths get index.html so
// client-side routes of the front-end resolve.
func staticHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			common.WriteErrorResponse(w, "Not found", http.StatusNotFound)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}

		serveIndex(w, r, index)
	}
}

// serveIndex writes the index page regardless of the request path
func serveIndex(w http.ResponseWriter, r *http.Request, index string) {
	f, err := os.Open(index) //nolint:gosec // path is fixed at startup
	if err != nil {
		common.WriteErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		common.WriteErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}

// notFoundHandler is used when no static directory is configured
func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteErrorResponse(w, "Not found", http.StatusNotFound)
}
