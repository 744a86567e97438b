// Package web provides an HTTP status server for the thermo-calibrator daemon.
package web

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/thermo-calibrator/internal/metrics"
	"github.com/sweeney/thermo-calibrator/internal/status"
)

// Server serves the status page, per-location JSON and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker. Requests are
// logged to accessLog in Apache common log format when it is non-nil. A nil
// m disables /metrics.
func New(addr string, tracker *status.Tracker, m *metrics.Metrics, accessLog io.Writer) *Server {
	s := &Server{tracker: tracker}

	r := mux.NewRouter()
	r.Handle("/", m.WrapHandler("/", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.html", m.WrapHandler("/index.html", http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	r.Handle("/index.json", m.WrapHandler("/index.json", http.HandlerFunc(s.handleJSON))).Methods(http.MethodGet)
	r.Handle("/locations/{location}", m.WrapHandler("/locations/{location}", http.HandlerFunc(s.handleLocation))).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, r)
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["location"]
	loc, ok := s.tracker.Snapshot().Location(name)
	if !ok {
		http.Error(w, "unknown location "+name, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatLocationJSON(loc))
}
