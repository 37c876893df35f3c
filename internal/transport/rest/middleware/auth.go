package middleware

import (
	"classplay/internal/model"
	"classplay/internal/service"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const participantKey contextKey = "participant"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireParticipant validates a participant JWT from the Authorization header
func (m *AuthMiddleware) RequireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateParticipantToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := WithParticipant(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithParticipant stores claims in ctx
func WithParticipant(ctx context.Context, claims *model.ParticipantClaims) context.Context {
	return context.WithValue(ctx, participantKey, claims)
}

// GetParticipant extracts the participant claims from context
func GetParticipant(ctx context.Context) *model.ParticipantClaims {
	if v, ok := ctx.Value(participantKey).(*model.ParticipantClaims); ok {
		return v
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
