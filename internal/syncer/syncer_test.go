package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/source"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/vector"
)

type fakeSource struct {
	pingErr error
}

func (f *fakeSource) Query(ctx context.Context, databaseID, cursor string, filter *source.Filter) (*source.Page, error) {
	return &source.Page{}, nil
}

func (f *fakeSource) Ping(ctx context.Context) error { return f.pingErr }

type fakeExtract struct {
	records map[string][]source.Record
	errs    map[string]error
	filters []*source.Filter
}

func (f *fakeExtract) Extract(ctx context.Context, databaseID string, filter *source.Filter) ([]source.Record, error) {
	f.filters = append(f.filters, filter)
	if err := f.errs[databaseID]; err != nil {
		return nil, err
	}
	return f.records[databaseID], nil
}

type fakeSink struct {
	rows   []store.Row
	failed int
	err    error
}

func (f *fakeSink) Load(ctx context.Context, rows []store.Row) (LoadResult, error) {
	f.rows = append(f.rows, rows...)
	if f.err != nil {
		return LoadResult{}, f.err
	}
	return LoadResult{Upserted: len(rows), Failed: f.failed}, nil
}

func record(id string, edited time.Time) source.Record {
	return source.Record{
		ID:             id,
		CreatedTime:    edited.Add(-time.Hour),
		LastEditedTime: edited,
	}
}

var testDatabases = []DatabaseConfig{
	{ID: "db-a", Name: "catalog", Table: store.TableCatalog, Mapping: map[string]string{}},
	{ID: "db-b", Name: "finance", Table: store.TableFinance, Mapping: map[string]string{}},
}

func newTestSyncer(src *fakeSource, ext *fakeExtract, sink *fakeSink, rel *fakeRelational) *Syncer {
	s := New(src, ext, sink, rel, testDatabases, log.NewNop())
	s.now = func() time.Time { return time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestFullSyncSuccess(t *testing.T) {
	edited := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-a": {record("r1", edited), record("r2", edited)},
		"db-b": {record("r3", edited)},
	}}
	sink := &fakeSink{}

	s := newTestSyncer(&fakeSource{}, ext, sink, &fakeRelational{})
	summary, err := s.FullSync(context.Background())
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	if summary.Status != StatusSuccess {
		t.Errorf("status = %q", summary.Status)
	}
	if len(summary.Reports) != 2 {
		t.Fatalf("reports = %d", len(summary.Reports))
	}
	for _, r := range summary.Reports {
		if r.Stage != StageCompleted {
			t.Errorf("%s stage = %q", r.Database, r.Stage)
		}
	}
	if summary.Reports[0].Extracted != 2 || summary.Reports[0].Upserted != 2 {
		t.Errorf("db-a report = %+v", summary.Reports[0])
	}
	if len(sink.rows) != 3 {
		t.Errorf("sink got %d rows", len(sink.rows))
	}
	if sink.rows[0].Table != store.TableCatalog || sink.rows[0].SourceID() != "r1" {
		t.Errorf("first row = %+v", sink.rows[0])
	}
}

func TestFullSyncPartial(t *testing.T) {
	ext := &fakeExtract{
		records: map[string][]source.Record{"db-b": {record("r1", time.Now())}},
		errs:    map[string]error{"db-a": errors.New("database unavailable")},
	}

	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})
	summary, err := s.FullSync(context.Background())
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	if summary.Status != StatusPartial {
		t.Errorf("status = %q", summary.Status)
	}
	if summary.Reports[0].Stage != StageFailed || summary.Reports[0].Error == "" {
		t.Errorf("db-a report = %+v", summary.Reports[0])
	}
	if summary.Reports[1].Stage != StageCompleted {
		t.Errorf("db-b report = %+v", summary.Reports[1])
	}
}

func TestFullSyncRecordFailuresStaySuccess(t *testing.T) {
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-a": {record("r1", time.Now())},
		"db-b": {record("r2", time.Now())},
	}}
	sink := &fakeSink{failed: 1}

	s := newTestSyncer(&fakeSource{}, ext, sink, &fakeRelational{})
	summary, _ := s.FullSync(context.Background())

	// Record-level failures are tallied per database but the run status
	// tracks database outcomes only.
	if summary.Status != StatusSuccess {
		t.Errorf("status = %q", summary.Status)
	}
	if summary.Reports[0].Failed != 1 {
		t.Errorf("db-a failed = %d", summary.Reports[0].Failed)
	}
}

func TestFullSyncProgressLog(t *testing.T) {
	ext := &fakeExtract{
		records: map[string][]source.Record{"db-a": {record("r1", time.Now())}},
		errs:    map[string]error{"db-b": errors.New("database unavailable")},
	}

	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})
	summary, err := s.FullSync(context.Background())
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}

	var steps []string
	for _, p := range summary.Reports[0].Progress {
		steps = append(steps, p.Step+":"+p.Status)
		if p.Timestamp.IsZero() {
			t.Errorf("entry %q missing timestamp", p.Step)
		}
	}
	want := []string{"extract:completed", "transform:completed", "load:completed"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, steps[i], want[i])
		}
	}

	failed := summary.Reports[1].Progress
	if len(failed) != 1 || failed[0].Step != "extract" || failed[0].Status != StepFailed {
		t.Errorf("db-b progress = %+v", failed)
	}
}

func TestFullSyncValidation(t *testing.T) {
	rel := &fakeRelational{pingErr: errors.New("connection refused")}
	s := newTestSyncer(&fakeSource{}, &fakeExtract{}, &fakeSink{}, rel)

	summary, err := s.FullSync(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if summary.Status != StatusFailed {
		t.Errorf("status = %q", summary.Status)
	}
	if len(verr.Failures) != 1 {
		t.Errorf("failures = %v", verr.Failures)
	}
}

func TestFullSyncBadCredentialsAborts(t *testing.T) {
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-a": {record("r1", time.Now())},
		"db-b": {record("r2", time.Now())},
	}}
	sink := &fakeSink{err: vector.ErrBadCredentials}

	s := newTestSyncer(&fakeSource{}, ext, sink, &fakeRelational{})
	summary, err := s.FullSync(context.Background())
	if !errors.Is(err, vector.ErrBadCredentials) {
		t.Fatalf("err = %v", err)
	}
	if summary.Reports[1].Error == "" {
		t.Errorf("db-b should be marked aborted: %+v", summary.Reports[1])
	}
	// Only db-a reached the extractor.
	if len(ext.filters) != 1 {
		t.Errorf("extractor called %d times", len(ext.filters))
	}
}

func TestIncrementalSync(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-a": {record("r1", since.Add(time.Hour))},
	}}

	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})
	result, err := s.IncrementalSync(context.Background(), since)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}

	if result.Processed != 1 || result.Updated != 1 || result.Errors != 0 {
		t.Errorf("result = %+v", result)
	}
	if !result.Since.Equal(since) {
		t.Errorf("since = %v", result.Since)
	}
	for _, f := range ext.filters {
		if f == nil || !f.ModifiedAfter.Equal(since) {
			t.Errorf("filter = %+v", f)
		}
	}
}

func TestIncrementalSyncToleratesBadEnvironment(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-a": {record("r1", since.Add(time.Hour))},
	}}

	// The source ping fails, but the scheduled path degrades instead of
	// aborting: extraction is still attempted per database.
	s := newTestSyncer(&fakeSource{pingErr: errors.New("401 unauthorized")}, ext, &fakeSink{}, &fakeRelational{})
	result, err := s.IncrementalSync(context.Background(), since)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}
	if result.Processed != 1 || result.Updated != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(ext.filters) != len(testDatabases) {
		t.Errorf("extractor called %d times", len(ext.filters))
	}
}

func TestIncrementalSyncCountsFailedDatabases(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ext := &fakeExtract{
		records: map[string][]source.Record{"db-b": {record("r1", since.Add(time.Hour))}},
		errs:    map[string]error{"db-a": errors.New("rate limited")},
	}

	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})
	result, err := s.IncrementalSync(context.Background(), since)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}

	if result.Errors != 1 {
		t.Errorf("errors = %d", result.Errors)
	}
	if len(result.Reports) != 2 {
		t.Fatalf("reports = %d", len(result.Reports))
	}
	if result.Reports[0].Stage != StageFailed || result.Reports[0].Error == "" {
		t.Errorf("db-a report = %+v", result.Reports[0])
	}
	if result.Reports[1].Upserted != 1 {
		t.Errorf("db-b report = %+v", result.Reports[1])
	}
}

func TestIncrementalSyncDefaultWindow(t *testing.T) {
	ext := &fakeExtract{}
	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})

	result, err := s.IncrementalSync(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}

	want := s.now().Add(-defaultIncrementalWindow)
	if !result.Since.Equal(want) {
		t.Errorf("since = %v, want %v", result.Since, want)
	}
}

func TestSyncDatabase(t *testing.T) {
	ext := &fakeExtract{records: map[string][]source.Record{
		"db-b": {record("r1", time.Now())},
	}}
	s := newTestSyncer(&fakeSource{}, ext, &fakeSink{}, &fakeRelational{})

	report, err := s.SyncDatabase(context.Background(), "db-b")
	if err != nil {
		t.Fatalf("SyncDatabase: %v", err)
	}
	if report.Stage != StageCompleted || report.Table != store.TableFinance {
		t.Errorf("report = %+v", report)
	}

	if _, err := s.SyncDatabase(context.Background(), "nope"); !errors.Is(err, ErrUnknownDatabase) {
		t.Errorf("err = %v, want ErrUnknownDatabase", err)
	}
}
