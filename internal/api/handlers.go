package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/indicator"
	"github.com/bambubeacon/bambubeacon-server/internal/models"
	"github.com/bambubeacon/bambubeacon-server/internal/settings"
	"github.com/bambubeacon/bambubeacon-server/pkg/crypto"
)

// ========== Auth handlers ==========

// HandleLogin handles admin login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	admin := s.settings.Current().Admin
	if admin.User == "" {
		s.respondError(w, http.StatusConflict, "no admin user configured")
		return
	}

	// Verify credentials
	if req.Username != admin.User || !s.auth.VerifyPassword(req.Password, admin.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Generate tokens
	accessToken, refreshToken, err := s.auth.GenerateTokenPair(admin.User)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate tokens")
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The token must still name the current admin user, so changing
	// the admin in settings revokes old sessions.
	subject, err := s.auth.Subject(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	admin := s.settings.Current().Admin
	if admin.User == "" || subject != admin.User {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// Refresh token
	accessToken, refreshToken, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== Printer state handlers ==========

// HandleStatus returns the current printer state
func (s *RESTServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.statusPayload())
}

// HandleAlerts lists active health alerts
func (s *RESTServer) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}
	if limit <= 0 {
		limit = s.monitor.AlertCapacity()
	}

	alerts := s.monitor.ActiveAlerts(limit)
	if alerts == nil {
		alerts = []models.AlertEvent{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  s.monitor.CountActiveTotal(),
	})
}

// ========== Settings handlers ==========

// HandleGetConfig returns the settings with secrets redacted
func (s *RESTServer) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.configPayload())
}

// HandleUpdateConfig replaces the settings. The access code and admin
// password keep their stored values when omitted, everything else is
// stored as sent.
func (s *RESTServer) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address       string   `json:"address" validate:"required"`
		Serial        string   `json:"serial" validate:"required,min=8"`
		AccessCode    string   `json:"accessCode"`
		IgnoredCodes  []string `json:"ignoredCodes"`
		AdminUser     string   `json:"adminUser"`
		AdminPassword string   `json:"adminPassword"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	next := s.settings.Current()
	next.Printer.Address = req.Address
	next.Printer.Serial = req.Serial
	if req.AccessCode != "" {
		next.Printer.AccessCode = req.AccessCode
	}
	if next.Printer.AccessCode == "" {
		s.respondError(w, http.StatusBadRequest, "access code is required")
		return
	}

	next.IgnoredCodes = req.IgnoredCodes

	if req.AdminUser == "" {
		// Clearing the admin user turns authentication off
		next.Admin = settings.AdminSettings{}
	} else {
		next.Admin.User = req.AdminUser
		if req.AdminPassword != "" {
			hash, err := crypto.HashPassword(req.AdminPassword)
			if err != nil {
				log.Error().Err(err).Msg("Failed to hash admin password")
				s.respondError(w, http.StatusInternalServerError, "failed to hash password")
				return
			}
			next.Admin.PasswordHash = hash
		} else if next.Admin.PasswordHash == "" {
			s.respondError(w, http.StatusBadRequest, "admin password is required")
			return
		}
	}

	if err := s.settings.Save(next); err != nil {
		log.Error().Err(err).Msg("Failed to save settings")
		s.respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	ready := s.monitor.ReloadFromSettings()

	log.Info().Str("serial", req.Serial).Msg("Printer settings updated")

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"config": s.configPayload(),
		"ready":  ready,
	})
}

// ========== Printer request handlers ==========

// HandlePublishRequest forwards a raw JSON command to the printer
func (s *RESTServer) HandlePublishRequest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload) == 0 {
		s.respondError(w, http.StatusBadRequest, "empty request body")
		return
	}
	if !json.Valid(payload) {
		s.respondError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	retain := r.URL.Query().Get("retain") == "true"

	if !s.monitor.PublishRequest(payload, retain) {
		s.respondError(w, http.StatusServiceUnavailable, "printer not connected")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"published": true,
	})
}

// ========== Helper methods ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/healthz",
	})
}

func (s *RESTServer) statusPayload() map[string]interface{} {
	ready := s.monitor.Ready()
	connected := s.monitor.Connected()
	top := s.monitor.TopSeverity()

	return map[string]interface{}{
		"serial":      s.monitor.Serial(),
		"ready":       ready,
		"connected":   connected,
		"status":      s.monitor.Status(),
		"topSeverity": top,
		"hasProblem":  s.monitor.HasProblem(),
		"alerts": map[string]interface{}{
			"total":   s.monitor.CountActiveTotal(),
			"fatal":   s.monitor.CountActive(models.SeverityFatal),
			"error":   s.monitor.CountActive(models.SeverityError),
			"warning": s.monitor.CountActive(models.SeverityWarning),
			"info":    s.monitor.CountActive(models.SeverityInfo),
		},
		"indicator": indicator.Derive(ready, connected, top),
	}
}

func (s *RESTServer) configPayload() map[string]interface{} {
	cur := s.settings.Current()

	return map[string]interface{}{
		"printer": map[string]interface{}{
			"address":       cur.Printer.Address,
			"serial":        cur.Printer.Serial,
			"accessCodeSet": cur.Printer.AccessCode != "",
		},
		"ignoredCodes": cur.IgnoredCodes,
		"admin": map[string]interface{}{
			"user":        cur.Admin.User,
			"passwordSet": cur.Admin.PasswordHash != "",
		},
	}
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
