package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
	"github.com/fireflyframework/genai-data/agent/lineage"
	"github.com/fireflyframework/genai-data/agent/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const maxRunBodyBytes = 1 << 20

// Option customizes the handler.
type Option func(*Server)

// WithPipeline serves p under POST /pipelines/{name}/runs.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(s *Server) {
		if p != nil {
			s.pipelines[p.Name()] = p
		}
	}
}

// Server exposes the lineage log over HTTP.
type Server struct {
	recorder  *lineage.Recorder
	gatherer  prometheus.Gatherer
	pipelines map[string]*pipeline.Pipeline
}

// NewHandler builds the router. A nil gatherer disables /metrics.
func NewHandler(rec *lineage.Recorder, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	s := &Server{
		recorder:  rec,
		gatherer:  gatherer,
		pipelines: make(map[string]*pipeline.Pipeline),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	r.Route("/lineage/records", func(r chi.Router) {
		r.Get("/", s.listRecords)
		r.Get("/{lineageID}", s.getRecord)
	})
	r.Post("/pipelines/{name}/runs", s.runPipeline)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
}

type recordsResponse struct {
	Records []lineage.Record `json:"records"`
	Total   int              `json:"total"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Records: s.recorder.Len()})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agent := strings.TrimSpace(q.Get("agent"))
	method := strings.TrimSpace(q.Get("method"))

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	all := s.recorder.Records()
	out := make([]lineage.Record, 0, len(all))
	for _, rec := range all {
		if agent != "" && rec.AgentName != agent {
			continue
		}
		if method != "" && rec.Method != method {
			continue
		}
		out = append(out, rec)
	}
	total := len(out)
	// newest records win when limited
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	writeJSON(w, http.StatusOK, recordsResponse{Records: out, Total: total})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "lineageID")
	for _, rec := range s.recorder.Records() {
		if rec.LineageID != "" && rec.LineageID == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	http.Error(w, "lineage record not found", http.StatusNotFound)
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.pipelines[name]
	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}

	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		log.Warn().Err(err).Str("pipeline", name).Msg("invalid pipeline run body")
		return
	}

	resp, err := p.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contractx.ErrValidation) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		log.Error().Err(err).Str("pipeline", name).Msg("pipeline run failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}
