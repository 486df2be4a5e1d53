package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/analytics"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/store"
)

// Query defaults.
const (
	defaultSuspectLimit = 10
	defaultHandoffLimit = 10
	defaultEntityLimit  = 50
	defaultSimilarLimit = 5
	caseSuspectLimit    = 20
	defaultHops         = 2
	maxHops             = 3
	defaultMinWeight    = 0.1
	maxLimit            = 1000
)

// listResponse wraps every list endpoint.
type listResponse struct {
	RunID string `json:"run_id"`
	Count int    `json:"count"`
	Items any    `json:"items"`
}

// EvidenceCardRequest is the body of POST /v1/evidence-card.
type EvidenceCardRequest struct {
	Entities []string `json:"entities"`
	CaseIDs  []string `json:"case_ids"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listCells(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	minCount, err := intQuery(r, "min_devices", 1, 0, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	cells := filterCells(v.snap.CellCounts, q.Get("bucket"), q.Get("city"), minCount)
	writeList(w, v, cells, len(cells))
}

func (s *Server) listBuckets(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	buckets := bucketSummaries(v.snap.CellCounts, r.URL.Query().Get("city"))
	writeList(w, v, buckets, len(buckets))
}

func (s *Server) cellEntities(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultEntityLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entities := cellEntities(v, chi.URLParam(r, "cell"), chi.URLParam(r, "bucket"), limit)
	writeList(w, v, entities, len(entities))
}

func (s *Server) topSuspects(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultSuspectLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	suspects := limitSlice(v.snap.Rankings, limit)
	writeList(w, v, suspects, len(suspects))
}

func (s *Server) listHandoffs(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultHandoffLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handoffs := filterHandoffs(v.snap.Handoffs, r.URL.Query().Get("entity"), limit)
	writeList(w, v, handoffs, len(handoffs))
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	cases := sortedCases(v.in.Cases)
	writeList(w, v, cases, len(cases))
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	c, found := findCase(v.in.Cases, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) caseSuspects(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, found := findCase(v.in.Cases, id); !found {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	suspects := caseSuspects(v.snap, id, caseSuspectLimit)
	writeList(w, v, suspects, len(suspects))
}

func (s *Server) similarCases(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultSimilarLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	similar := analytics.SimilarCases(v.in.Cases, chi.URLParam(r, "id"), limit)
	if similar == nil {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	writeList(w, v, similar, len(similar))
}

func (s *Server) disappearance(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	after := r.URL.Query().Get("after")
	if _, err := model.ParseBucket(after); err != nil {
		writeError(w, http.StatusBadRequest, "after must be a time bucket like 2006-01-02T15:04")
		return
	}
	writeJSON(w, http.StatusOK, analytics.DetectDisappearance(v.in.Events, chi.URLParam(r, "id"), after))
}

func (s *Server) expandGraph(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	seeds := listQuery(r, "entity")
	if len(seeds) == 0 {
		writeError(w, http.StatusBadRequest, "at least one entity is required")
		return
	}
	hops, err := intQuery(r, "hops", defaultHops, 1, maxHops)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minWeight, err := floatQuery(r, "min_weight", defaultMinWeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analytics.ExpandGraph(v.snap.CoPresenceEdges, v.snap.Rankings, seeds, hops, minWeight))
}

func (s *Server) copresence(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	edges := analytics.EdgesBetween(v.snap.CoPresenceEdges, chi.URLParam(r, "a"), chi.URLParam(r, "b"))
	writeList(w, v, edges, len(edges))
}

func (s *Server) evidenceCard(w http.ResponseWriter, r *http.Request) {
	var req EvidenceCardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entities) == 0 || len(req.CaseIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entities and case_ids are required")
		return
	}
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.GenerateEvidenceCard(req.Entities, req.CaseIDs, v.snap.CaseOverlaps, v.in.Cases, v.in.SocialEdges))
}

// view loads the current view or writes the error response.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*view, bool) {
	v, err := s.cache.get(r.Context())
	if err == nil {
		return v, true
	}
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "no snapshot has been published")
		return nil, false
	}
	zap.L().Error("api: load snapshot", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load snapshot")
	return nil, false
}

func writeList(w http.ResponseWriter, v *view, items any, n int) {
	writeJSON(w, http.StatusOK, listResponse{RunID: v.snap.RunID, Count: n, Items: items})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intQuery parses an integer query parameter within [lo, hi].
func intQuery(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, eris.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

func floatQuery(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, eris.Errorf("%s must be a non-negative number", name)
	}
	return f, nil
}

// listQuery accepts repeated and comma-separated values.
func listQuery(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
