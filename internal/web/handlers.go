package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/clock"
	"github.com/gosuda/oasis/internal/profile"
	"github.com/gosuda/oasis/internal/views"
)

type pageData struct {
	Profile profile.Profile
	Links   []profile.Link
	Bio     template.HTML
	Clock   clock.Reading
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ensureProfile(w, r)
	data := pageData{
		Profile: s.opts.Profile,
		Links:   s.opts.Profile.Links(),
		Bio:     s.opts.Profile.BioHTML(),
		Clock:   clock.Format(s.opts.Now()),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("[web] render page")
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	p := s.opts.Profile
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       p.Name,
		"role":       p.Role,
		"location":   p.Location,
		"bio":        string(p.BioHTML()),
		"avatar":     p.Avatar,
		"background": p.Background,
		"links":      p.Links(),
	})
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, clock.Format(s.viewerNow(r)()))
}

// handleClockStream pushes one reading per second as server-sent events.
func (s *Server) handleClockStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := mergeDone(r.Context(), s.ctx)
	defer cancel()
	clock.Run(ctx, time.Second, s.viewerNow(r), func(reading clock.Reading) {
		b, _ := json.Marshal(reading)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	})
}

// handleViews mounts the view counter once per page load.
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	id := ensureProfile(w, r)
	n := views.NewCounter(s.profileStore(id), nil).Mount(s.opts.Now())
	writeJSON(w, http.StatusOK, map[string]int{"views": n})
}

func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request) {
	link, ok := s.opts.Profile.Link(chi.URLParam(r, "network"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown network")
		return
	}
	http.Redirect(w, r, link.URL, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
