package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/source"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/transform"
	"github.com/loomhq/loom/internal/vector"
)

// Stage tracks where a database sync currently is.
type Stage string

const (
	StagePending      Stage = "pending"
	StageExtracting   Stage = "extracting"
	StageTransforming Stage = "transforming"
	StageLoading      Stage = "loading"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Summary status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// defaultIncrementalWindow is how far back an incremental sync looks
// when no explicit since time is given.
const defaultIncrementalWindow = 15 * time.Minute

var ErrUnknownDatabase = errors.New("syncer: unknown database")

// DatabaseConfig binds one source database to a target table and the
// property mapping that shapes its rows.
type DatabaseConfig struct {
	ID      string
	Name    string
	Table   store.Table
	Mapping transform.Mapping
}

// Extractor pulls all records from one source database.
// *source.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, databaseID string, filter *source.Filter) ([]source.Record, error)
}

// Sink writes transformed rows to the configured stores. *Loader
// satisfies it.
type Sink interface {
	Load(ctx context.Context, rows []store.Row) (LoadResult, error)
}

// ProgressEntry is one step of a database sync, in the order the steps
// ran. The log lives only in the run's report.
type ProgressEntry struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Progress entry statuses.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// DatabaseReport records the outcome of syncing one database.
type DatabaseReport struct {
	Database  string          `json:"database"`
	Name      string          `json:"name"`
	Table     store.Table     `json:"table"`
	Stage     Stage           `json:"stage"`
	Extracted int             `json:"extracted"`
	Upserted  int             `json:"upserted"`
	Objects   int             `json:"objects"`
	Embedded  int             `json:"embedded"`
	Failed    int             `json:"failed"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Progress  []ProgressEntry `json:"progress,omitempty"`
}

// Summary is the result of a full sync across all databases.
type Summary struct {
	Status    string           `json:"status"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
	Reports   []DatabaseReport `json:"reports"`
}

// IncrementalResult is the result of an incremental sync: overall
// totals plus the per-database reports they were summed from.
type IncrementalResult struct {
	Since     time.Time        `json:"since"`
	Processed int              `json:"processed"`
	Updated   int              `json:"updated"`
	Errors    int              `json:"errors"`
	Duration  time.Duration    `json:"duration"`
	Reports   []DatabaseReport `json:"reports"`
}

// ValidationError reports which pre-flight checks failed.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return "syncer: validation failed: " + strings.Join(e.Failures, "; ")
}

// Syncer orchestrates the extract, transform, load pipeline across
// the configured databases.
type Syncer struct {
	src       source.Source
	extractor Extractor
	sink      Sink
	db        Relational
	databases []DatabaseConfig
	logger    log.Logger

	now func() time.Time
}

func New(src source.Source, extractor Extractor, sink Sink, db Relational, databases []DatabaseConfig, logger log.Logger) *Syncer {
	return &Syncer{
		src:       src,
		extractor: extractor,
		sink:      sink,
		db:        db,
		databases: databases,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate runs the pre-flight checks: the relational store and the
// content source must both be reachable before a sync starts.
func (s *Syncer) Validate(ctx context.Context) error {
	var failures []string
	if err := s.db.Ping(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("database: %v", err))
	}
	if err := s.src.Ping(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("source: %v", err))
	}
	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}
	return nil
}

// FullSync syncs every configured database from scratch. A database
// that fails is reported and the rest continue, except for credential
// failures on the vector index which abort the remaining databases.
func (s *Syncer) FullSync(ctx context.Context) (*Summary, error) {
	return s.syncAll(ctx, nil, true)
}

// IncrementalSync syncs records modified since the given time. A zero
// since defaults to a recent window. Pre-flight failures are logged
// but do not abort: the call runs on a frequent schedule and a
// transiently unreachable dependency surfaces as per-database errors
// in the result rather than a failed run.
func (s *Syncer) IncrementalSync(ctx context.Context, since time.Time) (*IncrementalResult, error) {
	if since.IsZero() {
		since = s.now().Add(-defaultIncrementalWindow)
	}

	summary, err := s.syncAll(ctx, &source.Filter{ModifiedAfter: since}, false)
	result := &IncrementalResult{Since: since}
	if summary != nil {
		result.Duration = summary.Duration
		result.Reports = summary.Reports
		for _, r := range summary.Reports {
			result.Processed += r.Extracted
			result.Updated += r.Upserted
			result.Errors += r.Failed
			if r.Stage == StageFailed {
				result.Errors++
			}
		}
	}
	return result, err
}

// SyncDatabase syncs a single database by its source identifier.
func (s *Syncer) SyncDatabase(ctx context.Context, databaseID string) (*DatabaseReport, error) {
	for _, cfg := range s.databases {
		if cfg.ID == databaseID {
			if err := s.Validate(ctx); err != nil {
				return nil, err
			}
			report, _ := s.syncOne(ctx, cfg, nil)
			return &report, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, databaseID)
}

func (s *Syncer) syncAll(ctx context.Context, filter *source.Filter, preflight bool) (*Summary, error) {
	started := s.now()
	summary := &Summary{StartedAt: started}

	if err := s.Validate(ctx); err != nil {
		if preflight {
			summary.Status = StatusFailed
			summary.Duration = s.now().Sub(started)
			return summary, err
		}
		s.logger.Warn("pre-flight check failed, continuing degraded", "error", err)
	}

	var abort error
	for _, cfg := range s.databases {
		if abort != nil {
			summary.Reports = append(summary.Reports, DatabaseReport{
				Database: cfg.ID, Name: cfg.Name, Table: cfg.Table,
				Stage: StageFailed, Error: "aborted: " + abort.Error(),
			})
			continue
		}

		report, err := s.syncOne(ctx, cfg, filter)
		summary.Reports = append(summary.Reports, report)

		if errors.Is(err, vector.ErrBadCredentials) {
			abort = vector.ErrBadCredentials
		}
		if ctx.Err() != nil {
			abort = ctx.Err()
		}
	}

	summary.Duration = s.now().Sub(started)
	summary.Status = summaryStatus(summary.Reports)

	var err error
	if abort != nil {
		err = abort
	}
	return summary, err
}

// syncOne walks one database through the pipeline stages, recording
// progress in the report as it goes. The returned error is the stage
// failure, if any; it is already reflected in the report.
func (s *Syncer) syncOne(ctx context.Context, cfg DatabaseConfig, filter *source.Filter) (report DatabaseReport, err error) {
	started := s.now()
	report = DatabaseReport{
		Database: cfg.ID,
		Name:     cfg.Name,
		Table:    cfg.Table,
		Stage:    StagePending,
	}
	defer func() {
		report.Duration = s.now().Sub(started)
	}()
	step := func(name, status, details string) {
		report.Progress = append(report.Progress, ProgressEntry{
			Step:      name,
			Status:    status,
			Timestamp: s.now(),
			Details:   details,
		})
	}

	s.logger.Info("syncing database", "database", cfg.Name, "table", cfg.Table)

	report.Stage = StageExtracting
	records, err := s.extractor.Extract(ctx, cfg.ID, filter)
	if err != nil {
		report.Stage = StageFailed
		report.Error = err.Error()
		step("extract", StepFailed, err.Error())
		s.logger.Error("extraction failed", "database", cfg.Name, "error", err)
		return report, err
	}
	report.Extracted = len(records)
	step("extract", StepCompleted, fmt.Sprintf("%d records", len(records)))

	report.Stage = StageTransforming
	rows := make([]store.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, transform.Transform(rec, cfg.Table, cfg.Mapping))
	}
	step("transform", StepCompleted, fmt.Sprintf("%d rows", len(rows)))

	report.Stage = StageLoading
	loaded, err := s.sink.Load(ctx, rows)
	report.Upserted = loaded.Upserted
	report.Objects = loaded.Objects
	report.Embedded = loaded.Embedded
	report.Failed = loaded.Failed
	if err != nil {
		report.Stage = StageFailed
		report.Error = err.Error()
		step("load", StepFailed, err.Error())
		s.logger.Error("load failed", "database", cfg.Name, "error", err)
		return report, err
	}
	step("load", StepCompleted, fmt.Sprintf("%d upserted, %d failed", loaded.Upserted, loaded.Failed))

	report.Stage = StageCompleted
	s.logger.Info("database synced",
		"database", cfg.Name,
		"extracted", report.Extracted,
		"upserted", report.Upserted,
		"failed", report.Failed)
	return report, nil
}

// summaryStatus derives the run status from database outcomes alone.
// Record-level failures are tallied in the reports but do not demote a
// run whose databases all completed.
func summaryStatus(reports []DatabaseReport) string {
	completed := 0
	for _, r := range reports {
		if r.Stage == StageCompleted {
			completed++
		}
	}
	switch {
	case len(reports) == 0 || completed == 0:
		return StatusFailed
	case completed == len(reports):
		return StatusSuccess
	default:
		return StatusPartial
	}
}
