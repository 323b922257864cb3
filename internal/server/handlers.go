package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/fileid"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Storage.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "status: stats failed", err)
		return
	}
	resp := map[string]interface{}{
		"stats": stats,
		"model": map[string]interface{}{
			"version":     s.deps.Model.ModelVersion(),
			"num_classes": len(s.deps.Model.Labels()),
			"backend":     s.cfg.Model.Backend,
			"input_size":  s.cfg.Model.InputSize,
		},
		"knowledge": map[string]interface{}{
			"classes":   len(s.deps.Knowledge.Classes()),
			"generator": s.cfg.Advisor.Generator,
		},
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.cfg.Storage.DatabasePath,
		s.cfg.Storage.DatabasePath+"-wal",
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// topKParam reads ?k=, falling back to def. Negative values are rejected.
func topKParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadBody, name)
	}
	return k, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	k, err := topKParam(r, "k", s.cfg.Analysis.TopK)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(body) == 0 {
		s.respondError(w, http.StatusBadRequest, "request body must be an image")
		return
	}
	s.logger.Debug("analyze request", zap.Int("bytes", len(body)), zap.Int("k", k))

	result, err := s.deps.Analyzer.Analyze(r.Context(), imageprep.BytesSource{Name: "upload", Data: body}, k)
	if err != nil {
		s.fail(w, r, "analyze failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var input models.FieldInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, "create field: bad request", err)
		return
	}
	f := &models.Field{ID: uuid.NewString(), Name: input.Name, Notes: input.Notes}
	if err := s.deps.Storage.CreateField(r.Context(), f); err != nil {
		s.fail(w, r, "create field failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.deps.Storage.ListFields(r.Context())
	if err != nil {
		s.fail(w, r, "list fields failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Storage.GetField(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get field failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Storage.DeleteField(r.Context(), id); err != nil {
		s.fail(w, r, "delete field failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var input models.CaptureInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, "create capture: bad request", err)
		return
	}
	uri, err := fileid.NormalizeURI(input.URI)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid uri")
		return
	}
	c := &models.Capture{ID: uuid.NewString(), URI: uri, FieldID: input.FieldID}
	// The hash is filled in on first analysis when the file is not readable yet.
	if hash, err := fileid.HashFile(uri); err == nil {
		c.ContentHash = hash
	}
	if err := s.deps.Storage.CreateCapture(r.Context(), c); err != nil {
		s.fail(w, r, "create capture failed", err)
		return
	}
	metrics.CapturesImported.WithLabelValues("api").Inc()
	s.respondJSON(w, http.StatusCreated, c)
}

// captureFilter builds a filter from ?field_id=&class=&analyzed=&offset=&limit=.
func captureFilter(r *http.Request) (storage.CaptureFilter, error) {
	q := r.URL.Query()
	f := storage.CaptureFilter{FieldID: q.Get("field_id"), Class: q.Get("class")}
	if raw := q.Get("analyzed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: analyzed must be true or false", errBadBody)
		}
		f.Analyzed = &v
	}
	var err error
	if f.Offset, err = topKParam(r, "offset", 0); err != nil {
		return f, err
	}
	if f.Limit, err = topKParam(r, "limit", 0); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	filter, err := captureFilter(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	captures, err := s.deps.Storage.ListCaptures(r.Context(), filter)
	if err != nil {
		s.fail(w, r, "list captures failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"captures": captures})
}

func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Storage.GetCapture(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get capture failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Storage.DeleteCapture(r.Context(), id); err != nil {
		s.fail(w, r, "delete capture failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleAnalyzeCapture(w http.ResponseWriter, r *http.Request) {
	k, err := topKParam(r, "k", s.cfg.Analysis.TopK)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, result, err := s.deps.Analyzer.AnalyzeCapture(r.Context(), chi.URLParam(r, "id"), k)
	if err != nil {
		s.fail(w, r, "analyze capture failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"capture": c, "result": result})
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	var req models.AdviceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "advice: bad request", err)
		return
	}
	start := time.Now()
	session, err := s.deps.Advisor.Advise(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		s.fail(w, r, "advice failed", err)
		return
	}
	metrics.ObserveStage("advice", start)
	s.respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleAdviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sessions, err := s.deps.Advisor.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, "advice history failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"capture_id": id, "advice": sessions})
}
