package service

import (
	"classplay/internal/store"
	"strings"
)

const sessionsRoot = "sessions"

func sessionPath(id string) string {
	return store.Join(sessionsRoot, id)
}

func playerPath(sessionID, playerID string) string {
	return store.Join(sessionsRoot, sessionID, "players", playerID)
}

func currentTurnPath(sessionID string) string {
	return store.Join(sessionsRoot, sessionID, "currentTurn")
}

func movesPath(sessionID string) string {
	return store.Join(sessionsRoot, sessionID, "moves")
}

func nextNumberPath(sessionID string) string {
	return store.Join(sessionsRoot, sessionID, "nextNumber")
}

func seatsPath(sessionID string) string {
	return store.Join(sessionsRoot, sessionID, "seats")
}

func statusPath(sessionID string) string {
	return store.Join(sessionsRoot, sessionID, "status")
}

// validID reports whether id can be used as a single path segment
func validID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}
