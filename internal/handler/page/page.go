// Package page serves the embedded interview web page.
package page

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed static
var static embed.FS

// RegisterRoutes 注册页面路由
func RegisterRoutes(r chi.Router) {
	assets, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(assets))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFileFS(w, req, assets, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
}
