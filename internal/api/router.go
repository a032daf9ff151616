// Package api serves the REST history endpoints of the chat server under
// /api/chatroom. Live traffic goes over the WebSocket; these endpoints read
// the message store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/logger"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// Prefix is where the router is mounted.
const Prefix = "/api/chatroom"

// Presence lists users currently online.
type Presence interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Options wires the router.
type Options struct {
	Messages       store.MessageStore
	Presence       Presence
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates the HTTP router for the history API.
func NewRouter(opts Options) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := NewHandler(opts.Messages, opts.Presence, opts.Logger)

	r.Route(Prefix, func(r chi.Router) {
		r.Get("/history", h.History)
		r.Get("/group/{roomId}", h.GroupHistory)
		r.Get("/contacts", h.Contacts)
		r.Get("/online-contacts", h.OnlineContacts)
		r.Get("/saved/{userId}", h.Saved)
		r.Post("/{id}/save", h.ToggleSaved)
		r.Delete("/{id}", h.Delete)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())))
		})
	}
}
