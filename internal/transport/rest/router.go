package rest

import (
	"classplay/internal/service"
	"classplay/internal/transport/rest/handler"
	"classplay/internal/transport/rest/middleware"
	"classplay/internal/transport/ws"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService     *service.AuthService
	SessionService  *service.SessionService
	TurnCoordinator *service.TurnCoordinator
	MoveLog         *service.MoveLog
	WSHub           *ws.Hub
	AllowedOrigins  []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.SessionService)
	turnHandler := handler.NewTurnHandler(c.AuthService, c.SessionService, c.TurnCoordinator, c.MoveLog)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.SessionService, c.AllowedOrigins)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))
	r.Use(middleware.LogRequests)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/token", authHandler.Token).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")
	v1.HandleFunc("/ws/classes/{classId}", wsHandler.ClassWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Participant routes (require participant auth)
	participant := v1.NewRoute().Subrouter()
	participant.Use(authMW.RequireParticipant)

	participant.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/leave", sessionHandler.Leave).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/finish", sessionHandler.Finish).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/turns", turnHandler.Advance).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/turns/retry", turnHandler.RetryMove).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/turn", turnHandler.SetField).Methods("PATCH", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/moves", turnHandler.AppendMove).Methods("POST", "OPTIONS")
	participant.HandleFunc("/sessions/{id}/moves", turnHandler.ListMoves).Methods("GET", "OPTIONS")
	participant.HandleFunc("/classes/{classId}/history", sessionHandler.History).Methods("GET", "OPTIONS")
	participant.HandleFunc("/classes/{classId}/history/{id}", sessionHandler.Archived).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := allowOrigin(allowed, r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if origin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "Authorization", handler.PortalKeyHeader}, ", "))

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return ""
}
