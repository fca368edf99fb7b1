// Package web provides an HTTP status page for a running log session.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sweeney/gatewayctl/internal/logstore"
	"github.com/sweeney/gatewayctl/internal/status"
)

// DefaultTail is the number of archived entries returned by /log.json when
// no limit is given.
const DefaultTail = 50

// Archive is the read side of the log archive.
type Archive interface {
	Recent(ctx context.Context, kind logstore.Kind, limit int) ([]logstore.Entry, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	archive    Archive
}

// New creates a Server that reads state from the given tracker. archive may
// be nil, in which case /log.json is not served.
func New(addr string, tracker *status.Tracker, archive Archive) *Server {
	s := &Server{tracker: tracker, archive: archive}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if archive != nil {
		r.HandleFunc("/log.json", s.handleLog).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
	data := pageData{Snapshot: s.tracker.Snapshot()}
	if s.archive != nil {
		entries, err := s.archive.Recent(r.Context(), "", 20)
		if err == nil {
			data.Recent = entries
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, data)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// LogEntryJSON is one archived entry in /log.json.
type LogEntryJSON struct {
	ID   string `json:"id"`
	Time string `json:"time"`
	Host string `json:"host"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := DefaultTail
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	kind := logstore.Kind(r.URL.Query().Get("kind"))
	if kind != "" && kind != logstore.KindLine && kind != logstore.KindStatus {
		http.Error(w, "invalid kind", http.StatusBadRequest)
		return
	}

	entries, err := s.archive.Recent(r.Context(), kind, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]LogEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntryJSON{
			ID:   e.ID.String(),
			Time: e.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Host: e.Host,
			Kind: string(e.Kind),
			Text: e.Text,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
