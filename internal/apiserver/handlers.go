package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/rollout"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
)

func (s *Server) listRouters(w http.ResponseWriter, r *http.Request) {
	routers, err := s.store.GetAllRouters()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routers)
}

func (s *Server) routerStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) deleteAllRouters(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAllRouters(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scanRequest struct {
	RouterIDs []uuid.UUID `json:"routerIds,omitempty"`
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, rferrors.ErrValidation)
			return
		}
	}
	go func() {
		if err := s.scanner.Run(r.Context(), req.RouterIDs); err != nil {
			s.log.WithError(err).Error("apiserver: scan failed")
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) getCredentials(w http.ResponseWriter, r *http.Request) {
	user, _, err := s.store.GetGlobalCredentials()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsBody{Username: user})
}

func (s *Server) setCredentials(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeError(w, rferrors.ErrValidation)
		return
	}
	if err := s.store.SetGlobalCredentials(body.Username, body.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchWaitBody struct {
	Minutes int `json:"minutes"`
}

func (s *Server) getBatchWaitMinutes(w http.ResponseWriter, r *http.Request) {
	minutes, err := s.store.GetBatchWaitMinutes()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchWaitBody{Minutes: minutes})
}

func (s *Server) setBatchWaitMinutes(w http.ResponseWriter, r *http.Request) {
	var body batchWaitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Minutes < 0 {
		writeError(w, rferrors.ErrValidation)
		return
	}
	if err := s.store.SetBatchWaitMinutes(body.Minutes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFirmwareVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.GetAllFirmwareVersions()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

type firmwareVersionBody struct {
	LatestVersion string `json:"latestVersion"`
}

func (s *Server) upsertFirmwareVersion(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	var body firmwareVersionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, rferrors.ErrValidation)
		return
	}
	if err := store.ValidateFirmwareVersionWrite(prefix, body.LatestVersion); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.UpsertFirmwareVersion(prefix, body.LatestVersion); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFirmwareVersion(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	if err := s.store.DeleteFirmwareVersion(prefix); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startRolloutBody struct {
	RouterIDs     []uuid.UUID `json:"routerIds,omitempty"`
	BatchSize     int         `json:"batchSize"`
	IncludeErrors bool        `json:"includeErrors"`
}

func (s *Server) startRollout(w http.ResponseWriter, r *http.Request) {
	var body startRolloutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, rferrors.ErrValidation)
		return
	}
	job, err := s.rollout.Start(rollout.StartRequest{
		RouterIDs:     body.RouterIDs,
		BatchSize:     body.BatchSize,
		IncludeErrors: body.IncludeErrors,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) listRollouts(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.GetAllJobs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getRollout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := s.store.GetJobByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelRollout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := s.rollout.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	if raw := r.URL.Query().Get("routerId"); raw != "" {
		id, ok := parseUUID(w, raw)
		if !ok {
			return
		}
		records, err := s.store.GetHistoryByRouter(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	records, err := s.store.GetRecentHistory(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
