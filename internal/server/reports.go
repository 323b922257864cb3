package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperjump/fieldscout/internal/report"
	"github.com/hyperjump/fieldscout/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportCaptures(w http.ResponseWriter, r *http.Request) {
	filter, err := captureFilter(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	captures, err := s.deps.Storage.ListCaptures(ctx, filter)
	if err != nil {
		s.fail(w, r, "export: list captures failed", err)
		return
	}
	fieldNames, err := fieldNameMap(r, s.deps.Storage)
	if err != nil {
		s.fail(w, r, "export: list fields failed", err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCapturesWorkbook(&buf, captures, fieldNames); err != nil {
		s.fail(w, r, "export: workbook failed", err)
		return
	}
	writeFile(w, xlsxContentType, "captures.xlsx", buf.Bytes())
}

func fieldNameMap(r *http.Request, st storage.Storage) (map[string]string, error) {
	fields, err := st.ListFields(r.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(fields))
	for _, f := range fields {
		names[f.ID] = f.Name
	}
	return names, nil
}

func (s *Server) handleAdviceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	advice, err := s.deps.Storage.GetAdvice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "report: get advice failed", err)
		return
	}
	capture, err := s.deps.Storage.GetCapture(ctx, advice.CaptureID)
	if err != nil {
		s.fail(w, r, "report: get capture failed", err)
		return
	}
	sources := make(map[string]string, len(advice.SourceDocIDs))
	for _, id := range advice.SourceDocIDs {
		sources[id] = s.deps.Knowledge.TitleOf(id)
	}
	var buf bytes.Buffer
	err = report.WriteAdvicePDF(&buf, report.AdviceReport{Capture: capture, Advice: advice, Sources: sources})
	if err != nil {
		s.fail(w, r, "report: pdf failed", err)
		return
	}
	writeFile(w, "application/pdf", fmt.Sprintf("advice-%s.pdf", advice.ID), buf.Bytes())
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
