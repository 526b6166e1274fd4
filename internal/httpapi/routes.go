package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roulette-backend/internal/game"
	"github.com/DoyleJ11/roulette-backend/internal/hub"
	"github.com/DoyleJ11/roulette-backend/internal/ws"
)

func SetupRoutes(svc *game.Service, h *hub.Hub, d Defaults, logger *zap.Logger) http.Handler {
	logger = logger.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(svc, h, logger))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(logger))

		r.Route("/rooms/{room}", func(r chi.Router) {
			r.Post("/sessions", CreateSession(svc, d))
			r.Get("/sessions", JoinableSessions(svc))
			r.Get("/session", ActiveSession(svc))
			r.Post("/join", JoinRoom(svc))
		})
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", GetSession(svc))
			r.Post("/join", Join(svc))
			r.Post("/start", Start(svc))
			r.Post("/draw", Draw(svc))
			r.Post("/close", Close(svc))
		})
		r.Get("/accounts/{id}/balance", Balance(svc))
	})
	return r
}

// requestLogger logs every request once it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}
