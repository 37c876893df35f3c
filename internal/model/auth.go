package model

import "github.com/golang-jwt/jwt/v5"

// ParticipantClaims are JWT claims identifying a portal user
type ParticipantClaims struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	ClassID       string `json:"classId"`
	jwt.RegisteredClaims
}

// TokenRequest is the request body for issuing a participant token
type TokenRequest struct {
	ParticipantID string `json:"participantId" validate:"required"`
	Name          string `json:"name" validate:"required"`
	ClassID       string `json:"classId" validate:"required"`
}

// TokenResponse is returned after a token was issued
type TokenResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participantId"`
	ExpiresAt     int64  `json:"expiresAt"`
}

// RetryClaims carry a move whose append failed after its turn was
// published. The move is signed so a retry cannot alter it.
type RetryClaims struct {
	SessionID string `json:"sessionId"`
	Move      *Move  `json:"move"`
	jwt.RegisteredClaims
}
