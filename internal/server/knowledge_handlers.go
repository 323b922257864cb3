package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxSearchLimit = 50

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := topKParam(r, "limit", 10)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(limit, maxSearchLimit)

	hits, err := s.deps.Knowledge.Search(r.Context(), q, limit)
	if err != nil {
		s.fail(w, r, "knowledge search failed", err)
		return
	}
	resp := map[string]interface{}{"query": q, "hits": hits}
	if len(hits) == 0 {
		if sug := s.deps.Knowledge.Suggest(q); sug != "" && !strings.EqualFold(sug, q) {
			resp["suggestion"] = sug
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKnowledgeGet(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.deps.Knowledge.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "knowledge entry not found")
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleKnowledgeClasses(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"classes": s.deps.Knowledge.Classes()})
}

func (s *Server) handleKnowledgeForClass(w http.ResponseWriter, r *http.Request) {
	k, err := topKParam(r, "k", s.cfg.Advisor.TopKDocs)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	class := chi.URLParam(r, "class")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"class":   class,
		"entries": s.deps.Knowledge.ForClass(class, k),
	})
}
