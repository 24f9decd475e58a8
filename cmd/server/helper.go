package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/auth"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/degradation"
)

// authorize extracts and verifies the bearer token, then checks the role.
// On failure it writes the error response and returns ok=false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, role string) (*auth.Claims, bool) {
	claims, err := s.auth.FromRequest(r)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if err := auth.RequireRole(claims, role); err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return claims, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}

// writeError maps an error's kind to an HTTP status and writes a JSON
// error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	s.writeJSON(w, statusFor(kind), map[string]string{
		"error": apperrors.MessageOf(err),
		"kind":  string(kind),
	})
}

// statusFor translates error kinds into HTTP status codes.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindUnsupportedChain:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindAuthentication:
		return http.StatusUnauthorized
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindRateLimit:
		return http.StatusTooManyRequests
	case apperrors.KindBlockchain, apperrors.KindAPI:
		return http.StatusBadGateway
	case apperrors.KindDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// intQuery parses a positive integer query parameter with a fallback.
func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseLevel converts a degradation level name into a Level value.
func parseLevel(name string) (degradation.Level, error) {
	switch name {
	case "normal":
		return degradation.LevelNormal, nil
	case "read_only":
		return degradation.LevelReadOnly, nil
	case "limited":
		return degradation.LevelLimited, nil
	case "emergency":
		return degradation.LevelEmergency, nil
	default:
		return degradation.LevelNormal, apperrors.Validation("unknown degradation level " + name)
	}
}
