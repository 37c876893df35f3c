package service

import (
	"classplay/internal/model"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidPortalKey = errors.New("invalid portal key")
	ErrInvalidToken     = errors.New("invalid or expired token")
)

// DefaultTokenTTL is how long a participant token stays valid
const DefaultTokenTTL = 12 * time.Hour

// RetryTokenTTL bounds how long a pending move can be retried
const RetryTokenTTL = 10 * time.Minute

const retryAudience = "move-retry"

// AuthService issues and checks participant tokens. Identities come from
// the school portal, which proves itself with the shared portal key.
type AuthService struct {
	jwtSecret []byte
	portalKey []byte
	ttl       time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(secret, portalKey string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		portalKey: []byte(portalKey),
		ttl:       ttl,
	}
}

// CheckPortalKey compares key against the configured portal key
func (s *AuthService) CheckPortalKey(key string) bool {
	if len(s.portalKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), s.portalKey) == 1
}

// IssueParticipantToken signs a token for a portal user
func (s *AuthService) IssueParticipantToken(portalKey string, req model.TokenRequest) (*model.TokenResponse, error) {
	if !s.CheckPortalKey(portalKey) {
		return nil, ErrInvalidPortalKey
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now()
	expires := now.Add(s.ttl)
	claims := &model.ParticipantClaims{
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		ClassID:       req.ClassID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.ParticipantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		Token:         tokenString,
		ParticipantID: req.ParticipantID,
		ExpiresAt:     expires.UnixMilli(),
	}, nil
}

// ValidateParticipantToken validates a participant JWT and returns claims
func (s *AuthService) ValidateParticipantToken(tokenString string) (*model.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ParticipantClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueRetryToken signs the pending move of a partial write for its author
func (s *AuthService) IssueRetryToken(perr *PartialWriteError) (string, error) {
	if perr == nil || perr.Move == nil {
		return "", errInvalidInput
	}
	now := time.Now()
	claims := &model.RetryClaims{
		SessionID: perr.SessionID,
		Move:      perr.Move,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   perr.Move.PlayerID,
			Audience:  jwt.ClaimStrings{retryAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RetryTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ValidateRetryToken returns the signed move when the token was issued for
// this session and player
func (s *AuthService) ValidateRetryToken(tokenString, sessionID, playerID string) (*model.Move, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.RetryClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(retryAudience), jwt.WithSubject(playerID))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.RetryClaims)
	if !ok || !token.Valid || claims.Move == nil || claims.SessionID != sessionID {
		return nil, ErrInvalidToken
	}
	return claims.Move, nil
}
