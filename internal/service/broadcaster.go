package service

// Lifecycle events pushed to websocket clients
const (
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventSessionStarted  = "session_started"
	EventSessionFinished = "session_finished"
	EventTurnAdvanced    = "turn_advanced"
	EventYourTurn        = "your_turn"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToSession(sessionID string, msgType string, payload interface{})
	BroadcastToPlayer(sessionID, playerID string, msgType string, payload interface{})
}
