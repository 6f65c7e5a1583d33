package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/model"
)

func testServer(t *testing.T) (*Server, config.PathsConfig) {
	t.Helper()
	dir := t.TempDir()
	paths := config.PathsConfig{
		ProcessedDir: filepath.Join(dir, "processed"),
		OverlaysDir:  filepath.Join(dir, "overlays"),
		RawDataDir:   filepath.Join(dir, "raw_data"),
		FrontendDir:  filepath.Join(dir, "frontend"),
		Manifest:     filepath.Join(dir, "assets.json"),
	}

	writeFile := func(path, body string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	writeFile(filepath.Join(paths.FrontendDir, "index.html"), "<html>viewer</html>")
	writeFile(filepath.Join(paths.FrontendDir, "app.js"), "console.log(1)")
	writeFile(filepath.Join(paths.OverlaysDir, "THA_a1_overlay.png"), "png-bytes")
	writeFile(filepath.Join(paths.RawDataDir, "THA_a1_raw.json"), `{"asset_id":"a1"}`)
	writeFile(filepath.Join(paths.ProcessedDir, "THA", "a1-exposure-v2.tiff"), "tiff-bytes")

	m := model.NewManifest(nil, time.Now())
	buf, err := json.Marshal(m)
	require.NoError(t, err)
	writeFile(paths.Manifest, string(buf))

	cfg := &config.Config{Paths: paths, Server: config.ServerConfig{Port: 8000}}
	return New(cfg), paths
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()

	tests := []struct {
		path        string
		contentType string
		body        string
	}{
		{path: "/", contentType: "text/html; charset=utf-8", body: "<html>viewer</html>"},
		{path: "/index.html", contentType: "text/html; charset=utf-8", body: "<html>viewer</html>"},
		{path: "/assets.json", contentType: "application/json"},
		{path: "/frontend/app.js", contentType: "application/javascript", body: "console.log(1)"},
		{path: "/overlays/THA_a1_overlay.png", contentType: "image/png", body: "png-bytes"},
		{path: "/raw_data/THA_a1_raw.json", contentType: "application/json"},
		{path: "/processed/THA/a1-exposure-v2.tiff", contentType: "image/tiff", body: "tiff-bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRouter_Health(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s.Router(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CORS(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/assets.json", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/overlays/absent.png").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestRouter_RejectsTraversal(t *testing.T) {
	s, paths := testServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(paths.FrontendDir), "secret.txt"), []byte("x"), 0o644))

	rec := get(t, s.Router(), "/frontend/../secret.txt")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestCheckDataDir(t *testing.T) {
	s, paths := testServer(t)
	require.NoError(t, s.checkDataDir())

	require.NoError(t, os.Remove(paths.Manifest))
	assert.Error(t, s.checkDataDir())
}
