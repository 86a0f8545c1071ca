package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/metrics"
	"github.com/loomhq/loom/internal/retrieval"
	"github.com/loomhq/loom/internal/router"
	"github.com/loomhq/loom/internal/syncer"
)

// SyncService is the sync surface the server exposes. *syncer.Syncer
// satisfies it.
type SyncService interface {
	FullSync(ctx context.Context) (*syncer.Summary, error)
	IncrementalSync(ctx context.Context, since time.Time) (*syncer.IncrementalResult, error)
	SyncDatabase(ctx context.Context, databaseID string) (*syncer.DatabaseReport, error)
}

// SearchService is the retrieval surface. *retrieval.Engine satisfies it.
type SearchService interface {
	Search(ctx context.Context, query, persona string, limit int) (*retrieval.Result, error)
}

// Pinger is the health-check dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the JSON API.
type Server struct {
	sync   SyncService
	search SearchService
	db     Pinger
	cache  *cache.Cache
	models *router.Metrics
	logger log.Logger
}

func NewServer(sync SyncService, search SearchService, db Pinger, c *cache.Cache, models *router.Metrics, logger log.Logger) *Server {
	return &Server{
		sync:   sync,
		search: search,
		db:     db,
		cache:  c,
		models: models,
		logger: logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sync", s.handleSync)
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withRequestID(mux)
}

type syncRequest struct {
	Mode     string `json:"mode"`
	Since    string `json:"since,omitempty"`
	Database string `json:"database,omitempty"`
}

var tracer = otel.Tracer("loom/api")

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, span := tracer.Start(r.Context(), "api.sync")
	span.SetAttributes(attribute.String("sync.mode", req.Mode))
	defer span.End()
	r = r.WithContext(ctx)

	switch req.Mode {
	case "", "full":
		summary, err := s.sync.FullSync(r.Context())
		s.recordSync("full", summary, err)
		if err != nil && summary == nil {
			s.writeSyncError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, summary)

	case "incremental":
		var since time.Time
		if req.Since != "" {
			parsed, err := time.Parse(time.RFC3339, req.Since)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
				return
			}
			since = parsed
		}
		result, err := s.sync.IncrementalSync(r.Context(), since)
		if err != nil {
			metrics.SyncRuns.WithLabelValues("incremental", syncer.StatusFailed).Inc()
			s.writeSyncError(w, err)
			return
		}
		status := syncer.StatusSuccess
		if result.Errors > 0 {
			status = syncer.StatusPartial
		}
		metrics.SyncRuns.WithLabelValues("incremental", status).Inc()
		s.writeJSON(w, http.StatusOK, result)

	case "database":
		if req.Database == "" {
			s.writeError(w, http.StatusBadRequest, "database is required for mode=database")
			return
		}
		report, err := s.sync.SyncDatabase(r.Context(), req.Database)
		if err != nil {
			metrics.SyncRuns.WithLabelValues("database", syncer.StatusFailed).Inc()
			s.writeSyncError(w, err)
			return
		}
		metrics.SyncRuns.WithLabelValues("database", string(report.Stage)).Inc()
		metrics.SyncRecords.WithLabelValues(report.Database, "upserted").Add(float64(report.Upserted))
		metrics.SyncRecords.WithLabelValues(report.Database, "failed").Add(float64(report.Failed))
		s.writeJSON(w, http.StatusOK, report)

	default:
		s.writeError(w, http.StatusBadRequest, "mode must be full, incremental or database")
	}
}

func (s *Server) recordSync(mode string, summary *syncer.Summary, err error) {
	status := syncer.StatusFailed
	if summary != nil && summary.Status != "" {
		status = summary.Status
	}
	metrics.SyncRuns.WithLabelValues(mode, status).Inc()
	if summary == nil {
		return
	}
	for _, rep := range summary.Reports {
		metrics.SyncRecords.WithLabelValues(rep.Database, "upserted").Add(float64(rep.Upserted))
		metrics.SyncRecords.WithLabelValues(rep.Database, "failed").Add(float64(rep.Failed))
	}
	if err != nil {
		s.logger.Error("sync finished with error", "mode", mode, "error", err)
	}
}

func (s *Server) writeSyncError(w http.ResponseWriter, err error) {
	var verr *syncer.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusServiceUnavailable, verr.Error())
	case errors.Is(err, syncer.ErrUnknownDatabase):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type searchRequest struct {
	Query   string `json:"query"`
	Persona string `json:"persona"`
	Limit   int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	persona := req.Persona
	if persona == "" {
		persona = "public"
	}

	ctx, span := tracer.Start(r.Context(), "api.search")
	span.SetAttributes(attribute.String("search.persona", persona))
	defer span.End()

	start := time.Now()
	result, err := s.search.Search(ctx, req.Query, persona, req.Limit)
	elapsed := time.Since(start)
	metrics.SearchDuration.WithLabelValues(persona).Observe(elapsed.Seconds())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats := s.cache.Stats()
	metrics.CacheHitRate.Set(stats.HitRate)
	metrics.CacheSize.Set(float64(stats.Size))

	s.writeJSON(w, http.StatusOK, searchResponse{
		Result:       result,
		ResponseTime: elapsed.String(),
	})
}

type searchResponse struct {
	*retrieval.Result
	ResponseTime string `json:"responseTime"`
}

type healthResponse struct {
	Status    string                       `json:"status"`
	Database  string                       `json:"database"`
	Cache     cache.Stats                  `json:"cache"`
	Models    map[string]router.ModelStats `json:"models,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Database:  "ok",
		Cache:     s.cache.Stats(),
		Timestamp: time.Now().UTC(),
	}
	if s.models != nil {
		resp.Models = s.models.Snapshot()
	}
	status := http.StatusOK

	if err := s.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}
