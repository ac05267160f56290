package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// OverrideRequest is the body of PUT /override.
type OverrideRequest struct {
	Speed string `json:"speed"`
}

// Health is the body of GET /health.
type Health struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, err := s.backend.Ready(r.Context())
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, Health{Status: "healthy", Ready: ready})
}

func (s *Server) handleListFans(w http.ResponseWriter, r *http.Request) {
	fans, err := s.backend.Fans(r.Context())
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, fans)
}

func (s *Server) handleInsertFan(w http.ResponseWriter, r *http.Request) {
	var rec fan.Record
	if err := decode(w, r, &rec); err != nil {
		s.Error(w, r, err)
		return
	}

	if err := s.backend.InsertFan(r.Context(), rec); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusCreated, rec)
}

func (s *Server) handleFanHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.Error(w, r, metrics.ErrHistoryDisabled)
		return
	}

	limit := defaultHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.Error(w, r, errors.New().WithData(errors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	samples, err := s.opts.History.History(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, samples)
}

func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	ov, err := s.backend.CurrentOverride(r.Context())
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, ov)
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := decode(w, r, &req); err != nil {
		s.Error(w, r, err)
		return
	}

	tier, err := s.backend.SetOverride(r.Context(), req.Speed)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, fan.Override{Active: true, Speed: tier})
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearOverride(r.Context()); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, fan.Override{})
}

func (s *Server) handleSubsystems(w http.ResponseWriter, r *http.Request) {
	subs, err := s.backend.Subsystems(r.Context())
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, subs)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	s.Success(w, http.StatusOK, s.backend.Dump())
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New().Wrap(errors.ErrValidation, err)
	}
	return nil
}
