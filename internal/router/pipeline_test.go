package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/fpang/annotation-router/internal/classes"
	"github.com/fpang/annotation-router/internal/objstore"
	"github.com/fpang/annotation-router/internal/tracking"
)

// exportJSON builds a Label Studio export record with a single choices result.
func exportJSON(image, label string) []byte {
	return []byte(fmt.Sprintf(
		`{"task":{"data":{"image":%q}},"result":[{"type":"choices","value":{"choices":[%q]}}]}`,
		image, label))
}

// newFixture returns a store holding one production image and its export file.
func newFixture(label string) *objstore.MemStore {
	store := objstore.NewMemStore()
	store.Put("production/img001.jpg", []byte("jpeg"))
	store.Put("labelstudio/output/randomsampled/1", exportJSON("http://localhost:9000/production/img001.jpg", label))
	return store
}

func trackedIDs(t *testing.T, store objstore.Store, source string) []string {
	t.Helper()
	return tracking.Load(context.Background(), store, tracking.DefaultDir, source).IDs()
}

func TestRouteScenarioDairyProduct(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Dairy product")

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if report.Routed() != 1 {
		t.Fatalf("expected 1 routed, got %d", report.Routed())
	}

	d := report.Decisions[0]
	if d.Source != "production/img001.jpg" {
		t.Errorf("source path = %q", d.Source)
	}
	if d.Destination != "cleanproduction/class_01/img001.jpg" {
		t.Errorf("destination = %q", d.Destination)
	}
	data, err := store.Read(ctx, "cleanproduction/class_01/img001.jpg")
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("destination object = %q, %v", data, err)
	}
	if ok, _ := store.Exists(ctx, "cleanproduction/class_01"); !ok {
		t.Error("destination directory not created")
	}

	if ids := trackedIDs(t, store, "randomsampled"); !reflect.DeepEqual(ids, []string{"labelstudio/output/randomsampled/1"}) {
		t.Errorf("tracking record = %v", ids)
	}
}

func TestRouteScenarioUnknownLabel(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Unknown Food")

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if report.Routed() != 0 || report.Count(OutcomeUnknownLabel) != 1 {
		t.Fatalf("unexpected counts: %v", report.Counts)
	}
	if store.Copies() != 0 {
		t.Errorf("expected no copies, got %d", store.Copies())
	}
	if store.Writes() != 0 {
		t.Errorf("expected no tracking write, got %d writes", store.Writes())
	}
	if ok, _ := store.Exists(ctx, "cleanproduction"); ok {
		t.Error("no destination directory should be created")
	}
	if ok, _ := store.Exists(ctx, "tracking/processed_randomsampled.json"); ok {
		t.Error("tracking record should not exist")
	}
}

func TestRouteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Egg")
	p := New(store, Options{})

	first, err := p.Route(ctx, "randomsampled", "cleanproduction")
	if err != nil || first.Routed() != 1 {
		t.Fatalf("first pass: routed=%d err=%v", first.Routed(), err)
	}
	before := trackedIDs(t, store, "randomsampled")
	copies, writes := store.Copies(), store.Writes()

	second, err := p.Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Routed() != 0 {
		t.Errorf("second pass routed %d", second.Routed())
	}
	if second.Count(OutcomeAlreadyTracked) != 1 {
		t.Errorf("expected 1 already tracked, got %d", second.Count(OutcomeAlreadyTracked))
	}
	if store.Copies() != copies || store.Writes() != writes {
		t.Errorf("second pass touched storage: copies %d->%d writes %d->%d", copies, store.Copies(), writes, store.Writes())
	}
	if after := trackedIDs(t, store, "randomsampled"); !reflect.DeepEqual(before, after) {
		t.Errorf("tracking record changed: %v -> %v", before, after)
	}
}

func TestTrackedFilesAreNeverReparsed(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Egg")
	// The file is tracked but its content is now garbage; it must not be read.
	store.Put("labelstudio/output/randomsampled/1", []byte("{not json"))
	store.Put("tracking/processed_randomsampled.json", []byte(`["labelstudio/output/randomsampled/1"]`))

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeMalformed) != 0 || report.Count(OutcomeAlreadyTracked) != 1 {
		t.Errorf("unexpected counts: %v", report.Counts)
	}
}

func TestUnknownLabelRetriedAfterTableFix(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Unknown Food")

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil || report.Routed() != 0 {
		t.Fatalf("first pass: routed=%d err=%v", report.Routed(), err)
	}
	if ids := trackedIDs(t, store, "randomsampled"); len(ids) != 0 {
		t.Fatalf("unknown label was tracked: %v", ids)
	}

	fixed, err := classes.NewTable(append(classes.Default().Labels(), "Unknown Food")...)
	if err != nil {
		t.Fatal(err)
	}
	report, err = New(store, Options{Classes: fixed}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Routed() != 1 {
		t.Fatalf("expected retry to route 1, got %d", report.Routed())
	}
	if _, err := store.Read(ctx, "cleanproduction/class_11/img001.jpg"); err != nil {
		t.Errorf("retried image not copied: %v", err)
	}
}

func TestMalformedRecordIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	const n = 5
	for i := 0; i < n; i++ {
		img := fmt.Sprintf("production/img%03d.jpg", i)
		store.Put(img, []byte(img))
		id := fmt.Sprintf("labelstudio/output/lowconfidence/%d", i)
		if i == 2 {
			store.Put(id, []byte(`{"task": {"data": `))
			continue
		}
		store.Put(id, exportJSON("http://localhost:9000/"+img, "Rice"))
	}

	report, err := New(store, Options{}).Route(ctx, "lowconfidence", "lowconfidence")
	if err != nil {
		t.Fatal(err)
	}
	if report.Routed() != n-1 {
		t.Errorf("expected %d routed, got %d", n-1, report.Routed())
	}
	if report.Count(OutcomeMalformed) != 1 {
		t.Errorf("expected 1 malformed, got %d", report.Count(OutcomeMalformed))
	}
	ids := trackedIDs(t, store, "lowconfidence")
	if len(ids) != n-1 {
		t.Fatalf("expected %d tracked, got %v", n-1, ids)
	}
	for _, id := range ids {
		if strings.HasSuffix(id, "/2") {
			t.Errorf("malformed file %s was tracked", id)
		}
	}
}

func TestCorruptTrackingRecordTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Soup")
	store.Put("tracking/processed_randomsampled.json", []byte("[\"labelstudio/output/rand"))

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Routed() != 1 {
		t.Fatalf("expected 1 routed, got %d", report.Routed())
	}
	raw, err := store.Read(ctx, "tracking/processed_randomsampled.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `["labelstudio/output/randomsampled/1"]` {
		t.Errorf("tracking record not rewritten cleanly: %s", raw)
	}
}

func TestSkipReasons(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Outcome
	}{
		{"no image", `{"task":{"data":{}},"result":[{"type":"choices","value":{"choices":["Egg"]}}]}`, OutcomeNoImage},
		{"no results", `{"task":{"data":{"image":"http://localhost:9000/production/img001.jpg"}},"result":[]}`, OutcomeNoResults},
		{"no choices result", `{"task":{"data":{"image":"http://localhost:9000/production/img001.jpg"}},"result":[{"type":"labels","value":{}}]}`, OutcomeNoChoice},
		{"foreign image", `{"task":{"data":{"image":"https://example.com/production/img001.jpg"}},"result":[{"type":"choices","value":{"choices":["Egg"]}}]}`, OutcomeBadImageRef},
		{"malformed", `nope`, OutcomeMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFixture("Egg")
			store.Put("labelstudio/output/randomsampled/1", []byte(tt.raw))
			report, err := New(store, Options{}).Route(context.Background(), "randomsampled", "cleanproduction")
			if err != nil {
				t.Fatal(err)
			}
			if report.Count(tt.want) != 1 {
				t.Errorf("expected outcome %s, got %v", tt.want, report.Counts)
			}
			if report.Skipped() != 1 {
				t.Errorf("expected 1 skipped, got %d", report.Skipped())
			}
			if len(trackedIDs(t, store, "randomsampled")) != 0 {
				t.Error("skipped file was tracked")
			}
		})
	}
}

func TestCopyFailureNotTracked(t *testing.T) {
	ctx := context.Background()
	store := newFixture("Meat")
	store.Put("production/img002.jpg", []byte("jpeg2"))
	store.Put("labelstudio/output/randomsampled/2", exportJSON("http://localhost:9000/production/img002.jpg", "Meat"))
	store.CopyHook = func(src, dst string) error {
		if strings.HasSuffix(src, "img001.jpg") {
			return errors.New("connection reset")
		}
		return nil
	}

	report, err := New(store, Options{}).Route(ctx, "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeCopyFailed) != 1 || report.Routed() != 1 {
		t.Fatalf("unexpected counts: %v", report.Counts)
	}
	if ids := trackedIDs(t, store, "randomsampled"); !reflect.DeepEqual(ids, []string{"labelstudio/output/randomsampled/2"}) {
		t.Errorf("tracking record = %v", ids)
	}
}

func TestMissingSourceImageIsCopyFailure(t *testing.T) {
	store := objstore.NewMemStore()
	store.Put("labelstudio/output/randomsampled/1", exportJSON("http://localhost:9000/production/gone.jpg", "Egg"))

	report, err := New(store, Options{}).Route(context.Background(), "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeCopyFailed) != 1 {
		t.Errorf("expected copy failure, got %v", report.Counts)
	}
}

func TestMissingOutputDirectory(t *testing.T) {
	store := objstore.NewMemStore()
	report, err := New(store, Options{}).Route(context.Background(), "userfeedback", "userfeedback")
	if err != nil {
		t.Fatal(err)
	}
	if report.Listed != 0 || report.Routed() != 0 {
		t.Errorf("unexpected report: listed=%d routed=%d", report.Listed, report.Routed())
	}
	if store.Writes() != 0 {
		t.Error("no tracking record should be written")
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	store := newFixture("Bread")
	report, err := New(store, Options{DryRun: true}).Route(context.Background(), "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatal(err)
	}
	if report.Routed() != 1 || report.Decisions[0].Destination != "cleanproduction/class_00/img001.jpg" {
		t.Errorf("unexpected dry-run report: %+v", report.Decisions)
	}
	if store.Copies() != 0 || store.Writes() != 0 {
		t.Errorf("dry run wrote to storage: copies=%d writes=%d", store.Copies(), store.Writes())
	}
}

func TestRouteAllIsolatesTrackingFailures(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemStore()
	for _, src := range []string{"randomsampled", "lowconfidence"} {
		img := "production/" + src + ".jpg"
		store.Put(img, []byte(src))
		store.Put("labelstudio/output/"+src+"/1", exportJSON("http://localhost:9000/"+img, "Dessert"))
	}
	boom := errors.New("tracking bucket read-only")
	store.WriteHook = func(path string) error {
		if strings.Contains(path, "processed_randomsampled") {
			return boom
		}
		return nil
	}

	rules := []Rule{
		{Source: "randomsampled", Bucket: "cleanproduction"},
		{Source: "lowconfidence", Bucket: "lowconfidence"},
	}
	reports, err := New(store, Options{}).RouteAll(ctx, rules)
	if !errors.Is(err, boom) {
		t.Fatalf("expected tracking failure in joined error, got %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Err == nil {
		t.Error("first report should carry the failure")
	}
	if reports[1].Err != nil || reports[1].Routed() != 1 {
		t.Errorf("second source affected: err=%v routed=%d", reports[1].Err, reports[1].Routed())
	}
	if ids := trackedIDs(t, store, "lowconfidence"); len(ids) != 1 {
		t.Errorf("lowconfidence tracking = %v", ids)
	}
	if reports[0].RunID != reports[1].RunID {
		t.Error("reports from one run should share a run ID")
	}
}

type recordingSink struct {
	reports []*Report
	err     error
}

func (s *recordingSink) Record(_ context.Context, r *Report) error {
	s.reports = append(s.reports, r)
	return s.err
}

func TestSinksReceiveReports(t *testing.T) {
	failing := &recordingSink{err: errors.New("unavailable")}
	ok := &recordingSink{}
	store := newFixture("Seafood")

	report, err := New(store, Options{Sinks: []ReportSink{failing, ok}}).Route(context.Background(), "randomsampled", "cleanproduction")
	if err != nil {
		t.Fatalf("sink failure leaked into routing: %v", err)
	}
	if len(ok.reports) != 1 || ok.reports[0] != report {
		t.Errorf("sink did not receive the report")
	}
	if report.Routed() != 1 {
		t.Errorf("expected 1 routed, got %d", report.Routed())
	}
}

func TestRouteAllRejectsBadRules(t *testing.T) {
	_, err := New(objstore.NewMemStore(), Options{}).RouteAll(context.Background(), []Rule{
		{Source: "a", Bucket: "x"},
		{Source: "a", Bucket: "y"},
	})
	if err == nil {
		t.Fatal("expected duplicate source error")
	}
}

func TestRouteAllStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports, err := New(newFixture("Egg"), Options{}).RouteAll(ctx, DefaultRules)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("expected no passes, got %d", len(reports))
	}
}
