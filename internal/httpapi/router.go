package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/config"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/mistral"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/store"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/usage"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP surface. db may be nil, in which case every
// turn is treated as an unpersisted session.
func NewRouter(cfg config.Config, db *sql.DB, logger *zap.Logger) http.Handler {
	var durable *store.Store
	if db != nil {
		durable = store.NewStore(db)
	}
	tracker := usage.NewTracker(durable, usage.Limits{
		AuthDaily:  cfg.AuthDailyMessageLimit,
		GuestDaily: cfg.GuestDailyMessageLimit,
	})
	h := NewHandler(cfg, durable, tracker, mistral.NewClient(cfg, nil), logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Type", "X-Vercel-AI-Data-Stream"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Post("/api/chat", h.Chat)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/chat", h.Chat)
		if cfg.HistoryAPIEnabled {
			v1.Get("/chats/{chatID}/messages", h.ListChatMessages)
		}
	})

	return r
}
