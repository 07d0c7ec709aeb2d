package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/simdash/internal/accumulate"
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/results"
	"github.com/nvandessel/simdash/internal/selection"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/simcache"
	"github.com/nvandessel/simdash/internal/simulation"
)

// fixtureResult is a three-cell stack with a five-node channel.
func fixtureResult() *results.Result {
	tree := results.NewTree()
	tree.Set("Channel Location", results.NewVector([]float64{0, 1, 2, 3, 4}, "m"))
	tree.Set("Cells", results.NewVector([]float64{1, 2, 3}, "-"))
	tree.Set("Cell Voltage", results.NewVector([]float64{0.7, 0.69, 0.68}, "V"))
	tree.Set("Current Density", results.NewMatrix([][]float64{
		{10, 11, 12, 13},
		{20, 21, 22, 23},
		{30, 31, 32, 33},
	}, "A/m²"))
	temp := results.NewBranch()
	temp.Set("Membrane", results.NewMatrix([][]float64{{1, 1, 1, 1}, {2, 2, 2, 2}, {3, 3, 3, 3}}, "K"))
	temp.Set("Coolant", results.NewMatrix([][]float64{{4, 4, 4, 4}, {5, 5, 5, 5}, {6, 6, 6, 6}}, "K"))
	tree.Set("Temperature", temp)

	return &results.Result{
		Global: results.Globals{
			{Name: "Average Cell Voltage", Value: 0.6912345, Units: "V"},
			{Name: "Stack Power", Value: 1234.5678, Units: "W"},
		},
		Local: tree,
	}
}

type harness struct {
	calls atomic.Int64
	fail  atomic.Bool
	cache *simcache.Cache
}

func newHarness() *harness {
	h := &harness{}
	h.cache = simcache.New(simulation.Func(func(ctx context.Context, fp simulation.Fingerprint) (*results.Result, error) {
		h.calls.Add(1)
		if h.fail.Load() {
			return nil, errors.New("solver diverged")
		}
		return fixtureResult(), nil
	}))
	return h
}

func newTestSession(t *testing.T) (*Session, *harness) {
	t.Helper()
	h := newHarness()
	return New("test", h.cache, DefaultConfig(), nil, nil), h
}

func runSession(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.Run(context.Background(), map[string]any{"stack-cell_number": 3}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func traceVisibility(p selection.Projection) map[string]constants.Visibility {
	out := make(map[string]constants.Visibility, len(p.Traces))
	for _, tr := range p.Traces {
		out[tr.Name] = tr.Visibility
	}
	return out
}

func TestSession_NoDataBeforeRun(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.Globals(ctx); !errors.Is(err, ErrNoData) {
		t.Errorf("Globals() error = %v, want ErrNoData", err)
	}
	if _, err := s.SeriesOptions(ctx); !errors.Is(err, ErrNoData) {
		t.Errorf("SeriesOptions() error = %v, want ErrNoData", err)
	}
	if _, err := s.Select(ctx, series.Selection{Primary: "Current Density"}); !errors.Is(err, ErrNoData) {
		t.Errorf("Select() error = %v, want ErrNoData", err)
	}
	if _, err := s.ExportTable(); !errors.Is(err, ErrNoData) {
		t.Errorf("ExportTable() error = %v, want ErrNoData", err)
	}
	res, err := s.AppendTable()
	if err != nil || res.Applied {
		t.Errorf("AppendTable() = %+v, %v, want not applied", res, err)
	}
	if p := s.Projection(); len(p.Traces) != 0 {
		t.Errorf("Projection() has %d traces before run", len(p.Traces))
	}
}

func TestSession_RunSelectsDefault(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	globals, err := s.Run(ctx, map[string]any{"stack-cell_number": 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(globals) != 2 {
		t.Errorf("Run() returned %d globals, want 2", len(globals))
	}

	if got := s.Selection(); got != (series.Selection{Primary: "Current Density"}) {
		t.Errorf("Selection() = %+v, want Current Density", got)
	}
	p := s.Projection()
	if diff := cmp.Diff([]string{"Cell 1", "Cell 2", "Cell 3"}, p.Value); diff != "" {
		t.Errorf("Projection().Value mismatch (-want +got):\n%s", diff)
	}
	if p.YTitle != "Current Density / A/m²" {
		t.Errorf("YTitle = %q", p.YTitle)
	}
	if s.Fingerprint().IsZero() {
		t.Error("Fingerprint() is zero after run")
	}
}

func TestSession_Options(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)
	ctx := context.Background()

	opts, err := s.SeriesOptions(ctx)
	if err != nil {
		t.Fatalf("SeriesOptions() error = %v", err)
	}
	want := Options{Options: []string{"Cell Voltage", "Current Density", "Temperature"}, Default: "Current Density"}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("SeriesOptions() mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		key     string
		want    Options
		wantErr error
	}{
		{"Temperature", Options{Options: []string{"Membrane", "Coolant"}, Default: "Membrane"}, nil},
		{"Current Density", Options{Options: []string{}}, nil},
		{"Voltage", Options{}, results.ErrKeyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := s.SubOptions(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SubOptions() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SubOptions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_DefaultFallsBackToFirstOption(t *testing.T) {
	h := newHarness()
	cfg := DefaultConfig()
	cfg.DefaultKey = "Missing"
	s := New("test", h.cache, cfg, nil, nil)
	runSession(t, s)

	if got := s.Selection().Primary; got != "Cell Voltage" {
		t.Errorf("Selection().Primary = %q, want Cell Voltage", got)
	}
}

func TestSession_SelectMissingKeyLeavesStateUnchanged(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)
	before := s.State()

	_, err := s.Select(context.Background(), series.Selection{Primary: "Voltage"})
	if !errors.Is(err, results.ErrKeyNotFound) {
		t.Fatalf("Select() error = %v, want ErrKeyNotFound", err)
	}
	if diff := cmp.Diff(before, s.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
}

func TestSession_HiddenMemoryAcrossEvents(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	if _, err := s.ApplyRestyle([]byte(`[{"visible": ["legendonly"]}, [1]]`)); err != nil {
		t.Fatalf("ApplyRestyle() error = %v", err)
	}
	p, err := s.Apply(selection.Checklist{Value: []string{"Cell 1", "Cell 2", "Cell 3"}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Cell 1", "Cell 3"}, p.Value); diff != "" {
		t.Errorf("Value mismatch (-want +got):\n%s", diff)
	}
	want := map[string]constants.Visibility{
		"Cell 1": constants.VisibilityShown,
		"Cell 2": constants.VisibilityLegendOnly,
		"Cell 3": constants.VisibilityShown,
	}
	if diff := cmp.Diff(want, traceVisibility(p)); diff != "" {
		t.Errorf("trace visibility mismatch (-want +got):\n%s", diff)
	}

	// A new series keeps Cell 2 hidden.
	p, err = s.Select(context.Background(), series.Selection{Primary: "Temperature", Secondary: "Coolant"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Cell 1", "Cell 3"}, p.Value); diff != "" {
		t.Errorf("Value after Select mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Clear(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	p, err := s.Apply(selection.Clear{})
	if err != nil {
		t.Fatalf("Apply(Clear) error = %v", err)
	}
	if len(p.Traces) != 0 || len(p.Value) != 0 || len(p.Options) != 0 {
		t.Errorf("projection after Clear = %+v, want empty", p)
	}
	if _, err := s.ExportTable(); !errors.Is(err, ErrNoData) {
		t.Errorf("ExportTable() after Clear error = %v, want ErrNoData", err)
	}

	// Selecting again re-seeds.
	p, err = s.Select(context.Background(), series.Selection{Primary: "Current Density"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(p.Traces) != 3 {
		t.Errorf("len(Traces) after reselect = %d, want 3", len(p.Traces))
	}
}

func tableIDs(tbl *accumulate.Table) []string {
	var ids []string
	for _, c := range tbl.Columns() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestSession_ExportAppend(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	if _, err := s.Apply(selection.Checklist{Value: []string{"Cell 1"}}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	tbl, err := s.ExportTable()
	if err != nil {
		t.Fatalf("ExportTable() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Channel Location", "Cell 1"}, tableIDs(tbl)); diff != "" {
		t.Errorf("export columns mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i <= 2; i++ {
		res, err := s.AppendTable()
		if err != nil {
			t.Fatalf("AppendTable() error = %v", err)
		}
		if !res.Applied || res.Batch != i {
			t.Errorf("AppendTable() #%d = %+v", i, res)
		}
	}

	tbl = s.Table()
	if diff := cmp.Diff([]string{"Channel Location", "Cell 1", "Cell 1-1", "Cell 1-2"}, tableIDs(tbl)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if tbl.Len() != 4 {
		t.Errorf("Len() = %d, want 4 (no row duplication)", tbl.Len())
	}
	if got := tbl.Records()[1]; got[0] != "0.5" || got[1] != "10" || got[3] != "10" {
		t.Errorf("first record = %v", got)
	}
}

func TestSession_AppendRequiresChosen(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)
	if _, err := s.ExportTable(); err != nil {
		t.Fatalf("ExportTable() error = %v", err)
	}
	if _, err := s.Apply(selection.Checklist{Value: nil}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	res, err := s.AppendTable()
	if err != nil {
		t.Fatalf("AppendTable() error = %v", err)
	}
	if res.Applied || s.Table().Counter() != 0 {
		t.Errorf("AppendTable() = %+v, counter %d, want ignored", res, s.Table().Counter())
	}
}

func TestSession_AppendIgnoredWhenAllChosenHidden(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)
	before, err := s.ExportTable()
	if err != nil {
		t.Fatalf("ExportTable() error = %v", err)
	}
	if _, err := s.Apply(selection.LegendSnapshot{Hidden: []bool{true, true, true}}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if st := s.State(); len(st.Reconciler.Chosen) != 3 || len(st.Reconciler.Visible) != 0 {
		t.Fatalf("reconciler = %+v, want all chosen and none visible", st.Reconciler)
	}

	res, err := s.AppendTable()
	if err != nil {
		t.Fatalf("AppendTable() error = %v", err)
	}
	if res.Applied || res.Batch != 0 {
		t.Errorf("AppendTable() = applied %v batch %d, want ignored", res.Applied, res.Batch)
	}
	after := s.Table()
	if after.Counter() != 0 {
		t.Errorf("Counter() = %d, want 0", after.Counter())
	}
	if diff := cmp.Diff(before.Records(), after.Records()); diff != "" {
		t.Errorf("table changed (-before +after):\n%s", diff)
	}

	// Showing a cell again makes the next append the first batch.
	if _, err := s.Apply(selection.LegendToggle{TraceIndex: 1, Hidden: false}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	res, err = s.AppendTable()
	if err != nil || !res.Applied || res.Batch != 1 {
		t.Errorf("AppendTable() = %+v, %v, want batch 1", res, err)
	}
}

func TestSession_CounterSurvivesTableClearButNotReset(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	s.ExportTable()
	s.AppendTable()
	if tbl := s.ClearTable(); tbl.Len() != 0 {
		t.Fatalf("ClearTable() left %d rows", tbl.Len())
	}
	s.ExportTable()
	res, _ := s.AppendTable()
	if res.Batch != 2 {
		t.Errorf("batch after table clear = %d, want 2", res.Batch)
	}

	s.Reset()
	if st := s.State(); st.AppendCount != 0 || st.Fingerprint != "" || st.TableRows != 0 {
		t.Errorf("State() after Reset = %+v", st)
	}
	if _, err := s.Globals(context.Background()); !errors.Is(err, ErrNoData) {
		t.Errorf("Globals() after Reset error = %v, want ErrNoData", err)
	}

	runSession(t, s)
	s.ExportTable()
	res, _ = s.AppendTable()
	if res.Batch != 1 {
		t.Errorf("batch after Reset = %d, want 1", res.Batch)
	}
}

func TestSession_FailedRunKeepsPreviousResult(t *testing.T) {
	s, h := newTestSession(t)
	runSession(t, s)
	before := s.Fingerprint()

	h.fail.Store(true)
	_, err := s.Run(context.Background(), map[string]any{"stack-cell_number": 4})
	if !simulation.IsComputationError(err) {
		t.Fatalf("Run() error = %v, want ComputationError", err)
	}
	if s.Fingerprint().Key() != before.Key() {
		t.Error("failed run replaced the current fingerprint")
	}
	if _, err := s.Globals(context.Background()); err != nil {
		t.Errorf("Globals() after failed run error = %v", err)
	}
}

func TestSession_GlobalTable(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	rows, err := s.GlobalTable(context.Background())
	if err != nil {
		t.Fatalf("GlobalTable() error = %v", err)
	}
	want := []export.GlobalRow{
		{Quantity: "Average Cell Voltage", Value: "0.69123", Units: "V"},
		{Quantity: "Stack Power", Value: "1234.6", Units: "W"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("GlobalTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Heatmap(t *testing.T) {
	s, _ := newTestSession(t)
	runSession(t, s)

	h, err := s.Heatmap(context.Background(), series.Selection{})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if len(h.Z) != 3 || h.ZTitle != "Current Density / A/m²" {
		t.Errorf("Heatmap() = %+v", h)
	}
}

func TestSession_ExpiredResultRecomputesWithoutBlocking(t *testing.T) {
	var clock atomic.Int64
	var calls atomic.Int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	cache := simcache.New(simulation.Func(func(ctx context.Context, fp simulation.Fingerprint) (*results.Result, error) {
		if calls.Add(1) > 1 {
			started <- struct{}{}
			<-release
		}
		return fixtureResult(), nil
	}), simcache.WithClock(func() time.Time { return time.Unix(0, clock.Load()) }))
	s := New("test", cache, DefaultConfig(), nil, nil)
	runSession(t, s)

	clock.Store(int64(2 * constants.DefaultCacheTTL))

	done := make(chan error, 1)
	go func() {
		_, err := s.Select(context.Background(), series.Selection{Primary: "Cell Voltage"})
		done <- err
	}()
	<-started

	proj := make(chan selection.Projection, 1)
	go func() { proj <- s.Projection() }()
	select {
	case p := <-proj:
		if len(p.Traces) != 3 {
			t.Errorf("Projection() has %d traces, want 3", len(p.Traces))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Projection() blocked while the result was recomputing")
	}

	unblock()
	if err := <-done; err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := s.Selection().Primary; got != "Cell Voltage" {
		t.Errorf("Selection().Primary = %q, want Cell Voltage", got)
	}
	if calls.Load() != 2 {
		t.Errorf("simulation calls = %d, want 2", calls.Load())
	}
}
