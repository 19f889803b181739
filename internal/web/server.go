// Package web serves the landing page and the per-tab websocket transport
// for the chat and assistant widgets.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gosuda/oasis/internal/ai"
	"github.com/gosuda/oasis/internal/broadcast"
	"github.com/gosuda/oasis/internal/chat"
	"github.com/gosuda/oasis/internal/kv"
	"github.com/gosuda/oasis/internal/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	// ScopeProfile gives every browser profile its own chat channel, like a
	// browser-local broadcast channel. ScopeGlobal puts every visitor in one room.
	ScopeProfile = "profile"
	ScopeGlobal  = "global"
)

type Options struct {
	Profile   profile.Profile
	Store     kv.Store
	Hub       broadcast.Hub
	Responder *ai.Responder
	// Trigger defaults to chat.GreetingTrigger(chat.DefaultReplyProbability, nil).
	Trigger        chat.Trigger
	ChatScope      string
	OnlineJitter   time.Duration
	AllowedOrigins []string
	Now            func() time.Time
}

type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	tabs   map[*tab]struct{}
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = kv.NewMemory()
	}
	if opts.Hub == nil {
		opts.Hub = broadcast.NewLocal()
	}
	if opts.Responder == nil {
		opts.Responder = ai.NewResponder(nil, 0)
	}
	if opts.ChatScope == "" {
		opts.ChatScope = ScopeProfile
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		tabs:   map[*tab]struct{}{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Router exposes the handler used for both relay listeners and the optional
// local server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/profile", s.handleProfile)
		r.Get("/clock", s.handleClock)
		r.Get("/clock/stream", s.handleClockStream)
		r.Post("/views", s.handleViews)
	})
	r.Get("/go/{network}", s.handleSocial)

	r.Get("/ws/chat", s.handleChat)
	r.Get("/ws/assistant", s.handleAssistant)

	return r
}

// track registers a live connection. It returns false once the server is
// shutting down.
func (s *Server) track(t *tab) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tabs[t] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(t *tab) {
	t.close()
	s.mu.Lock()
	delete(s.tabs, t)
	s.mu.Unlock()
	s.wg.Done()
}

// Close sends a going-away frame to every open connection and waits for
// their handlers to unmount.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tabs := make([]*tab, 0, len(s.tabs))
	for t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.mu.Unlock()

	s.cancel()
	for _, t := range tabs {
		t.goAway()
	}
	s.wg.Wait()
}

// channel names the broadcast channel a profile's tabs share.
func (s *Server) channel(profileID string) string {
	if s.opts.ChatScope == ScopeGlobal {
		return chat.DefaultChannel
	}
	return chat.DefaultChannel + ":" + profileID
}

// profileStore is the persistent storage visible to one browser profile.
func (s *Server) profileStore(profileID string) kv.Store {
	return kv.Scope(s.opts.Store, "profile:"+profileID+":")
}
