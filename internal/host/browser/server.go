package browser

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:embed assets/page.html assets/dub.js
var assets embed.FS

// mediaServer serves the export page and the registered source files to the
// browser over loopback.
type mediaServer struct {
	srv      *http.Server
	listener net.Listener

	mu    sync.Mutex
	files map[string]string
}

func startMediaServer() (*mediaServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s := &mediaServer{listener: listener, files: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.serveAsset("assets/page.html", "text/html; charset=utf-8"))
	mux.HandleFunc("GET /dub.js", s.serveAsset("assets/dub.js", "text/javascript; charset=utf-8"))
	mux.HandleFunc("GET /media/{token}", s.serveMedia)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = s.srv.Serve(listener)
	}()
	return s, nil
}

func (s *mediaServer) baseURL() string {
	return "http://" + s.listener.Addr().String()
}

// register exposes path under an unguessable URL.
func (s *mediaServer) register(path string) (token string, url string) {
	token = uuid.NewString()
	s.mu.Lock()
	s.files[token] = path
	s.mu.Unlock()
	return token, s.baseURL() + "/media/" + token
}

func (s *mediaServer) unregister(token string) {
	s.mu.Lock()
	delete(s.files, token)
	s.mu.Unlock()
}

func (s *mediaServer) serveAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		data, err := assets.ReadFile(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}

// serveMedia supports range requests, which media elements rely on for seeking
// and metadata reads.
func (s *mediaServer) serveMedia(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	path, ok := s.files[r.PathValue("token")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *mediaServer) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
