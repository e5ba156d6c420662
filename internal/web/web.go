package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"epdfast/internal/cog"
	"epdfast/internal/config"
	"epdfast/internal/frame"
	appLog "epdfast/internal/log"
	"epdfast/internal/render"
	"epdfast/internal/runner"
)

// maxUpload bounds POST /api/image bodies.
const maxUpload = 16 << 20

// Server exposes the panel over HTTP.
//
//	GET  /health                 liveness, never authenticated
//	GET  /api/status             runner.Status as JSON
//	POST /api/flush?mode=        flush the current frame
//	POST /api/regenerate         black/white ghost-reduction cycle
//	POST /api/clear?colour=      fill and flush
//	POST /api/image?mode=        draw a PNG/JPEG body and flush
//	POST /api/text?mode=         draw the text/plain body as a card and flush
//	GET  /preview.png            the frame as PNG
type Server struct {
	cfg *config.Config
	run *runner.Runner
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, run *runner.Runner) *Server {
	s := &Server{
		cfg: cfg,
		run: run,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured with both
// a username and a password.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdfast", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/flush", s.handleFlush)
	s.mux.HandleFunc("POST /api/regenerate", s.handleRegenerate)
	s.mux.HandleFunc("POST /api/clear", s.handleClear)
	s.mux.HandleFunc("POST /api/image", s.handleImage)
	s.mux.HandleFunc("POST /api/text", s.handleText)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.run.Status())
}

// flushResponse is the JSON response shape of every panel update.
type flushResponse struct {
	Requested cog.UpdateMode `json:"requested"`
	Mode      cog.UpdateMode `json:"mode"`
}

// modeParam reads ?mode=, falling back to the runner default.
func (s *Server) modeParam(r *http.Request) (cog.UpdateMode, error) {
	v := r.URL.Query().Get("mode")
	if v == "" {
		return s.run.DefaultMode(), nil
	}
	return cog.ParseUpdateMode(v)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	mode, err := s.modeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	used, err := s.run.Flush(mode)
	s.writeUpdate(w, "flush", mode, used, err)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, _ *http.Request) {
	if err := s.run.Regenerate(); err != nil {
		appLog.Error("api regenerate failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	c, err := frame.ParseColour(r.URL.Query().Get("colour"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := s.modeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	used, err := s.run.Clear(c, mode)
	s.writeUpdate(w, "clear", mode, used, err)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	mode, err := s.modeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := render.Decode(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	used, err := s.run.Draw(img, mode)
	s.writeUpdate(w, "image", mode, used, err)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	mode, err := s.modeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := s.run.Status()
	img, err := render.Text(string(body), st.Width, st.Height, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	used, err := s.run.Draw(img, mode)
	s.writeUpdate(w, "text", mode, used, err)
}

func (s *Server) writeUpdate(w http.ResponseWriter, op string, requested, used cog.UpdateMode, err error) {
	if err != nil {
		appLog.Error("api update failed", err, "op", op, "mode", requested)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{Requested: requested, Mode: used})
}

// handlePreview renders the frame held in memory, so it always matches what
// the next flush sends.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.run.Snapshot(w); err != nil {
		appLog.Error("preview encode failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
