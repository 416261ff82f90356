package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/runner"
)

// handleStartConversion starts a run. Request body fields override the
// configured defaults; an empty body converts the configured input
// directory with the configured settings.
func (s *Server) handleStartConversion(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config
	req := runner.Request{
		SourceDir: cfg.InputDir,
		DestDir:   cfg.OutputDir,
		Format:    cfg.Format,
		Quality:   cfg.Quality,
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
	}

	if r.Body != nil && r.ContentLength != 0 {
		var body runner.Request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if body.SourceDir != "" {
			req.SourceDir = body.SourceDir
		}
		if body.DestDir != "" {
			req.DestDir = body.DestDir
		}
		if body.Format != "" {
			req.Format = body.Format
		}
		if body.Quality != 0 {
			req.Quality = body.Quality
		}
		if body.Workers != 0 {
			req.Workers = body.Workers
		}
		if body.BatchSize != 0 {
			req.BatchSize = body.BatchSize
		}
	}

	if err := s.app.Controller.Start(req); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			RespondWithError(w, http.StatusConflict, err.Error())
			return
		}
		// Validation failure: the run never started.
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCancelConversion(w http.ResponseWriter, r *http.Request) {
	s.app.Controller.Cancel()
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleGetStatus reports the controller state, the live snapshot while
// a run is active and the last terminal summary.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"state": s.app.Controller.State(),
	}
	if snap, ok := s.app.Controller.Progress(); ok {
		payload["progress"] = snap
	}
	if summary := s.app.Controller.Summary(); summary != nil {
		payload["summary"] = summary
	}
	RespondWithJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Could not list runs")
		return
	}
	RespondWithJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}
	run, err := s.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			RespondWithError(w, http.StatusNotFound, "Run not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Could not load run")
		return
	}
	RespondWithJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunResults(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}
	results, err := s.store.GetRunResults(runID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Could not load run results")
		return
	}
	RespondWithJSON(w, http.StatusOK, results)
}

func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	type formatInfo struct {
		Name        string `json:"name"`
		Extension   string `json:"extension"`
		UsesQuality bool   `json:"uses_quality"`
	}
	var formats []formatInfo
	for _, f := range codec.Formats() {
		formats = append(formats, formatInfo{
			Name:        string(f),
			Extension:   f.Ext(),
			UsesQuality: f.UsesQuality(),
		})
	}
	RespondWithJSON(w, http.StatusOK, formats)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config
	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"input_dir":  cfg.InputDir,
		"output_dir": cfg.OutputDir,
		"format":     cfg.Format,
		"quality":    cfg.Quality,
		"workers":    cfg.Workers,
		"batch_size": cfg.BatchSize,
	})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}
