// Package api exposes the engine's administrative operations as a thin
// JSON surface for the surrounding admin backend. Every handler returns
// a structured outcome with a success flag, never a raw error.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/routewise/telemetry-engine/internal/devices"
	"github.com/routewise/telemetry-engine/internal/diagnostics"
	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/routewise/telemetry-engine/internal/reconciler"
	"github.com/routewise/telemetry-engine/internal/services"
	"github.com/routewise/telemetry-engine/internal/store"
	"github.com/routewise/telemetry-engine/pkg/geocode"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Server wires the administrative handlers to the engine components.
type Server struct {
	registry    *devices.Registry
	reconciler  *reconciler.Reconciler
	smsService  *services.SMSService
	tcpListener *services.TCPListenerService
	udpListener *services.UDPListenerService
	cloudSync   *services.CloudSyncService
	geocoder    geocode.Resolver
	diag        *diagnostics.Collector
	logger      zerolog.Logger
}

// NewServer creates the administrative API server.
func NewServer(registry *devices.Registry, rec *reconciler.Reconciler, smsService *services.SMSService,
	tcpListener *services.TCPListenerService, udpListener *services.UDPListenerService,
	cloudSync *services.CloudSyncService, geocoder geocode.Resolver, logger zerolog.Logger) *Server {
	return &Server{
		registry:    registry,
		reconciler:  rec,
		smsService:  smsService,
		tcpListener: tcpListener,
		udpListener: udpListener,
		cloudSync:   cloudSync,
		geocoder:    geocoder,
		diag:        diagnostics.NewCollector(logger),
		logger:      logger.With().Str("component", "admin-api").Logger(),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/devices", s.registerDevice)
		r.Get("/devices", s.listDevices)
		r.Post("/devices/{deviceID}/activate", s.activateDevice)
		r.Post("/devices/{deviceID}/deactivate", s.deactivateDevice)
		r.Post("/devices/{deviceID}/assign", s.assignDevice)
		r.Post("/devices/{deviceID}/sharing", s.setSharing)

		r.Post("/devices/{deviceID}/locate", s.locateDevice)
		r.Post("/devices/{deviceID}/realtime", s.enableRealtime)
		r.Post("/devices/{deviceID}/direct-connect", s.directConnect)

		r.Get("/devices/{deviceID}/location", s.currentLocation)
		r.Get("/devices/{deviceID}/history", s.history)

		r.Post("/listeners/start", s.startListeners)
		r.Post("/listeners/stop", s.stopListeners)
		r.Get("/listeners/status", s.listenerStatus)

		r.Get("/cloud/test", s.testCloud)
		r.Post("/cloud/sync", s.manualSync)
		r.Post("/cloud/auto", s.toggleAutoSync)
	})

	return router
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeOutcome(w http.ResponseWriter, err error, data any) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, response{Success: true, Data: data})
	case errors.Is(err, models.ErrDuplicateDevice):
		s.writeJSON(w, http.StatusConflict, response{Success: false, Message: err.Error()})
	case errors.Is(err, models.ErrDeviceNotFound):
		s.writeJSON(w, http.StatusNotFound, response{Success: false, Message: err.Error()})
	case errors.Is(err, models.ErrSyncInProgress):
		s.writeJSON(w, http.StatusConflict, response{Success: false, Message: err.Error()})
	default:
		s.writeJSON(w, http.StatusInternalServerError, response{Success: false, Message: err.Error()})
	}
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID   string `json:"device_id"`
		DeviceName string `json:"device_name"`
		Model      string `json:"model"`
		SIMNumber  string `json:"sim_number"`
		IMEI       string `json:"imei"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "device_id is required"})
		return
	}

	device, err := s.registry.Register(req.DeviceID, req.DeviceName, req.Model, req.SIMNumber, req.IMEI)
	s.writeOutcome(w, err, device)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.GPSDevice
		err  error
	)
	if r.URL.Query().Get("sim") == "true" {
		list, err = s.registry.ListWithSIM()
	} else {
		list, err = s.registry.List()
	}
	s.writeOutcome(w, err, list)
}

func (s *Server) activateDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.registry.Activate(chi.URLParam(r, "deviceID"))
	s.writeOutcome(w, err, device)
}

func (s *Server) deactivateDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.registry.Deactivate(chi.URLParam(r, "deviceID"))
	s.writeOutcome(w, err, device)
}

func (s *Server) assignDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID string `json:"vehicle_id"`
		DriverID  string `json:"driver_id"`
		RouteID   string `json:"route_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
		return
	}
	err := s.registry.Assign(chi.URLParam(r, "deviceID"), req.VehicleID, req.DriverID, req.RouteID)
	s.writeOutcome(w, err, nil)
}

func (s *Server) setSharing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
		return
	}
	err := s.registry.SetSharing(chi.URLParam(r, "deviceID"), req.Enabled)
	s.writeOutcome(w, err, nil)
}

func (s *Server) locateDevice(w http.ResponseWriter, r *http.Request) {
	result := s.smsService.RequestLocation(r.Context(), chi.URLParam(r, "deviceID"))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) enableRealtime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalSeconds int `json:"interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
		return
	}
	result := s.smsService.EnableRealtime(r.Context(), chi.URLParam(r, "deviceID"), req.IntervalSeconds)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) directConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP   string `json:"ip"`
		Port int    `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
		return
	}
	ok := s.smsService.ConfigureDirect(r.Context(), chi.URLParam(r, "deviceID"), req.IP, req.Port)
	s.writeJSON(w, http.StatusOK, response{Success: ok})
}

func (s *Server) currentLocation(w http.ResponseWriter, r *http.Request) {
	current, err := s.reconciler.Current(chi.URLParam(r, "deviceID"))
	if err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	if current.Latitude != nil && current.Longitude != nil {
		current.Address = s.geocoder.Resolve(*current.Latitude, *current.Longitude)
	}
	s.writeOutcome(w, nil, current)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	filter := store.HistoryFilter{RouteID: r.URL.Query().Get("route")}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	samples, err := s.reconciler.History(chi.URLParam(r, "deviceID"), filter)
	s.writeOutcome(w, err, samples)
}

func (s *Server) startListeners(w http.ResponseWriter, r *http.Request) {
	if err := s.tcpListener.Start(); err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	if err := s.udpListener.Start(); err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	s.writeOutcome(w, nil, nil)
}

func (s *Server) stopListeners(w http.ResponseWriter, r *http.Request) {
	if err := s.tcpListener.Stop(); err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	if err := s.udpListener.Stop(); err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	s.writeOutcome(w, nil, nil)
}

func (s *Server) listenerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeOutcome(w, nil, map[string]any{
		"tcp":  s.tcpListener.Status(),
		"udp":  s.udpListener.Status(),
		"host": s.diag.Collect(),
	})
}

func (s *Server) testCloud(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cloudSync.TestConnection(r.Context()))
}

func (s *Server) manualSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.cloudSync.TriggerManual()
	if err != nil {
		s.writeOutcome(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) toggleAutoSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
		return
	}
	s.cloudSync.SetAutoEnabled(req.Enabled)
	s.writeOutcome(w, nil, map[string]bool{"auto_enabled": s.cloudSync.AutoEnabled()})
}
