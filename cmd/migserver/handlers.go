package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"migdash/internal/jobmanager"
	"migdash/internal/store"
	"migdash/internal/sysinfo"
)

type apiError struct {
	Error string `json:"error"`
}

type actionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status        store.JobStatus `json:"status"`
	SystemMetrics sysinfo.Metrics `json:"system_metrics"`
	Timestamp     string          `json:"timestamp"`
}

type metricsResponse struct {
	Historical  map[string]any  `json:"historical"`
	Predictions map[string]any  `json:"predictions"`
	Current     sysinfo.Metrics `json:"current"`
}

type transfersResponse struct {
	Transfers   []store.Transfer `json:"transfers"`
	TotalCount  int              `json:"total_count"`
	SuccessRate float64          `json:"success_rate"`
}

type startRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, apiError{Error: msg})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Read()
	if err != nil {
		// Absent or unreadable status degrades to the idle default.
		s.logger.Warn("read status document", "err", err)
	}

	metrics, err := sysinfo.Collect(r.Context())
	if err != nil {
		s.logger.Warn("collect system metrics", "err", err)
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:        status,
		SystemMetrics: metrics,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	historical, err := s.docs.Load(store.HistoricalDocument)
	if err != nil {
		s.logger.Warn("read historical metrics", "err", err)
	}

	predictions, err := s.docs.Load(store.PredictionsDocument)
	if err != nil {
		s.logger.Warn("read predictions", "err", err)
	}

	current, err := sysinfo.Collect(r.Context())
	if err != nil {
		s.logger.Warn("collect system metrics", "err", err)
	}

	s.writeJSON(w, http.StatusOK, metricsResponse{
		Historical:  historical,
		Predictions: predictions,
		Current:     current,
	})
}

func (s *server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	metrics, err := store.LoadTransferMetrics(s.docs)
	if err != nil {
		s.logger.Warn("read historical metrics", "err", err)
	}

	s.writeJSON(w, http.StatusOK, transfersResponse{
		Transfers:   metrics.Transfers,
		TotalCount:  len(metrics.Transfers),
		SuccessRate: metrics.SuccessRate(),
	})
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	config, err := s.docs.Load(store.ConfigDocument)
	if err != nil {
		s.logger.Warn("read config document", "err", err)
	}

	s.writeJSON(w, http.StatusOK, config)
}

func (s *server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var config map[string]any

	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")

		return
	}

	if err := s.docs.Save(store.ConfigDocument, config); err != nil {
		s.logger.Error("save config document", "err", err)
		s.writeError(
			w,
			http.StatusInternalServerError,
			"failed to save configuration",
		)

		return
	}

	s.writeJSON(w, http.StatusOK, actionResponse{
		Status:  "success",
		Message: "Configuration updated",
	})
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")

		return
	}

	if req.Source == "" || req.Target == "" {
		s.writeError(
			w,
			http.StatusBadRequest,
			"source and target are required",
		)

		return
	}

	switch err := s.manager.Start(req.Source, req.Target); {
	case errors.Is(err, jobmanager.ErrJobActive):
		s.writeError(w, http.StatusConflict, err.Error())

		return
	case errors.Is(err, jobmanager.ErrMissingEndpoint):
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	case err != nil:
		s.logger.Error("start migration", "err", err)
		s.writeError(
			w,
			http.StatusInternalServerError,
			"failed to start migration",
		)

		return
	}

	s.writeJSON(w, http.StatusOK, actionResponse{
		Status:  "started",
		Message: "Migration started",
	})
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(); err != nil {
		s.logger.Error("stop migration", "err", err)
		s.writeError(
			w,
			http.StatusInternalServerError,
			"failed to stop migration",
		)

		return
	}

	s.writeJSON(w, http.StatusOK, actionResponse{
		Status:  "stopping",
		Message: "Migration is being stopped",
	})
}
