// Package server hosts the static map viewer: the frontend bundle, the
// asset manifest, and the processed raster and overlay trees.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/model"
)

// Server serves the viewer over plain HTTP. All routes are read-only.
type Server struct {
	paths config.PathsConfig
	port  int
}

// New creates a Server from the loaded configuration.
func New(cfg *config.Config) *Server {
	return &Server{paths: cfg.Paths, port: cfg.Server.Port}
}

// contentTypes covers the file kinds the viewer requests. ServeFile keeps
// a Content-Type that is already set.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "application/javascript",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".tiff": "image/tiff",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

func setContentType(w http.ResponseWriter, path string) {
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
}

func serveFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setContentType(w, path)
		http.ServeFile(w, r, path)
	}
}

func serveDir(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := chi.URLParam(r, "*")
		if rel == "" || strings.Contains(rel, "..") {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		setContentType(w, path)
		http.ServeFile(w, r, path)
	}
}

// Router builds the viewer's route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	index := filepath.Join(s.paths.FrontendDir, "index.html")
	r.Get("/", serveFile(index))
	r.Get("/index.html", serveFile(index))
	r.Get("/favicon.ico", serveFile(filepath.Join(s.paths.FrontendDir, "favicon.ico")))
	r.Get("/assets.json", serveFile(s.paths.Manifest))
	r.Get("/frontend/*", serveDir(s.paths.FrontendDir))
	r.Get("/processed/*", serveDir(s.paths.ProcessedDir))
	r.Get("/overlays/*", serveDir(s.paths.OverlaysDir))
	r.Get("/raw_data/*", serveDir(s.paths.RawDataDir))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	return r
}

// checkDataDir verifies the manifest and frontend exist and logs what the
// server is about to expose.
func (s *Server) checkDataDir() error {
	buf, err := os.ReadFile(s.paths.Manifest)
	if err != nil {
		return eris.Wrapf(err, "server: read manifest %s", s.paths.Manifest)
	}
	var m model.Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return eris.Wrapf(err, "server: parse manifest %s", s.paths.Manifest)
	}
	if _, err := os.Stat(filepath.Join(s.paths.FrontendDir, "index.html")); err != nil {
		return eris.Wrapf(err, "server: frontend missing in %s", s.paths.FrontendDir)
	}

	zap.L().Info("serving viewer",
		zap.Int("port", s.port),
		zap.Int("assets", m.Metadata.TotalAssets),
		zap.Strings("countries", m.Metadata.Countries),
		zap.String("data_version", m.Metadata.DataVersion),
	)
	return nil
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.checkDataDir(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	}
}
