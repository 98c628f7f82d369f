package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/lanchat/lanchat/internal/config"
	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/server"
)

type LanChatApp struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	cs             *server.ChatServer
	verifier       server.TokenVerifier
	signingKey     []byte
	allowedOrigins []string
}

func NewLanChatApp(logger *log.Logger, cs *server.ChatServer, db database.Repository, verifier server.TokenVerifier, cfg *config.Config, statsMux *http.ServeMux) *LanChatApp {
	s := &LanChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		verifier:       verifier,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("GET /api/me", s.authMiddleware(s.me))
	mux.HandleFunc("POST /api/change-password", s.authMiddleware(s.changePassword))
	mux.HandleFunc("POST /api/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createGroupRoom))
	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /api/unread", s.authMiddleware(s.getUnread))
	mux.HandleFunc("GET /api/online", s.authMiddleware(s.getOnlineUsers))
	mux.HandleFunc("POST /api/admin/ban", s.authMiddleware(s.banAccount))
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.serveWs)
	if statsMux != nil {
		mux.Handle("GET /debug/vars", statsMux)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *LanChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *LanChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *LanChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}
