package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
	"github.com/Zanooda/sunshine-homeassistant/pkg/homeassistant"
)

type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	LastUpdateSuccess bool   `json:"last_update_success"`
	LastUpdate        string `json:"last_update,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	Scooters          int    `json:"scooters"`
	Entities          int    `json:"entities"`
}

type EntityView struct {
	UniqueID   string         `json:"unique_id"`
	Platform   string         `json:"platform"`
	ScooterID  string         `json:"scooter_id"`
	Name       string         `json:"name"`
	Icon       string         `json:"icon,omitempty"`
	Available  bool           `json:"available"`
	State      *string        `json:"state,omitempty"`
	Options    []string       `json:"options,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type CommandRequest struct {
	Payload string `json:"payload"`
}

type CommandResponse struct {
	UniqueID string `json:"unique_id"`
	Payload  string `json:"payload"`
	Status   string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:            "ok",
		Version:           s.version,
		LastUpdateSuccess: s.fleet.LastUpdateSuccess(),
		Scooters:          len(s.fleet.Data()),
		Entities:          s.registry.Len(),
	}
	if updated := s.fleet.LastUpdated(); !updated.IsZero() {
		resp.LastUpdate = updated.Format(time.RFC3339)
	}
	if err := s.fleet.LastError(); err != nil {
		resp.LastError = err.Error()
	}

	status := http.StatusOK
	if !resp.LastUpdateSuccess {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	jsonResponse(w, s.logger, status, resp)
}

func (s *Server) handleScooters(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.logger, http.StatusOK, s.fleet.Data())
}

func (s *Server) handleScooter(w http.ResponseWriter, r *http.Request) {
	scooterID := chi.URLParam(r, "scooterID")

	scooter, ok := s.fleet.Data()[scooterID]
	if !ok {
		errorResponse(w, s.logger, http.StatusNotFound, "unknown scooter "+scooterID)
		return
	}

	jsonResponse(w, s.logger, http.StatusOK, scooter)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.commandContext(r.Context())
	defer cancel()

	if err := s.fleet.Refresh(ctx); err != nil {
		errorResponse(w, s.logger, http.StatusBadGateway, err.Error())
		return
	}

	jsonResponse(w, s.logger, http.StatusOK, s.fleet.Data())
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.registry.All()
	views := make([]EntityView, 0, len(entities))
	for _, e := range entities {
		views = append(views, newEntityView(e))
	}

	jsonResponse(w, s.logger, http.StatusOK, views)
}

func newEntityView(e entity.Entity) EntityView {
	view := EntityView{
		UniqueID:  e.UniqueID(),
		Platform:  string(e.Platform()),
		ScooterID: e.ScooterID(),
		Name:      e.Name(),
		Icon:      e.Icon(),
		Available: e.Available(),
	}

	if state, ok := homeassistant.EntityState(e); ok {
		view.State = &state
	}

	switch target := e.(type) {
	case *entity.Select:
		view.Options = target.Options()
	case *entity.DeviceTracker:
		view.Attributes = target.Attributes()
	}

	return view
}

// handleCommand drives the same dispatch as the MQTT command topics
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueID")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := s.commandContext(r.Context())
	defer cancel()

	logger := s.logger.WithFields(logrus.Fields{
		"entity":  uniqueID,
		"payload": req.Payload,
	})

	if err := s.registry.Dispatch(ctx, uniqueID, req.Payload); err != nil {
		status := commandErrorStatus(err)
		if status == http.StatusBadGateway {
			logger.WithError(err).Debug("Command failed")
		} else {
			logger.WithError(err).Warn("Rejected command")
		}
		errorResponse(w, s.logger, status, err.Error())
		return
	}

	logger.Info("Command executed")
	jsonResponse(w, s.logger, http.StatusOK, CommandResponse{
		UniqueID: uniqueID,
		Payload:  req.Payload,
		Status:   "ok",
	})
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrUnknownEntity):
		return http.StatusNotFound
	case homeassistant.IsRejectedCommand(err):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.commandTimeout > 0 {
		return context.WithTimeout(parent, s.commandTimeout)
	}
	return context.WithCancel(parent)
}
