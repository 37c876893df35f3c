package handler

import (
	"classplay/internal/service"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writePartialWrite reports a turn that was published without its move
func writePartialWrite(w http.ResponseWriter, perr *service.PartialWriteError, retryToken string) {
	body := map[string]interface{}{
		"error":       perr.Error(),
		"turn":        perr.Turn,
		"pendingMove": perr.Move,
	}
	if retryToken != "" {
		body["retryToken"] = retryToken
	}
	writeJSON(w, http.StatusBadGateway, body)
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var perr *service.PartialWriteError

	switch {
	case errors.As(err, &perr):
		writePartialWrite(w, perr, "")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionFull),
		errors.Is(err, service.ErrInsufficientPlayers),
		errors.Is(err, service.ErrSessionFinished),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNoActiveTurn):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPlayerNotInSession):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidPortalKey),
		errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
