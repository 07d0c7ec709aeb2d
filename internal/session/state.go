// Package session composes the engine for one dashboard user: the current
// input fingerprint, the series selection, the selection reconciler and the
// accumulation table.
//
// All public methods are safe for concurrent use; calls on one session are
// serialized. The simulation result itself lives in the shared cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nvandessel/simdash/internal/accumulate"
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/logging"
	"github.com/nvandessel/simdash/internal/results"
	"github.com/nvandessel/simdash/internal/selection"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/simcache"
	"github.com/nvandessel/simdash/internal/simulation"
)

// ErrNoData is returned by views when no successful run is available.
var ErrNoData = errors.New("no simulation data available")

// Config holds session configuration.
type Config struct {
	// Series names the axis and cell series of the result tree.
	Series series.Options

	// ExcludedKeys are never offered as selectable series.
	ExcludedKeys []string

	// DefaultKey is preselected after a run when present.
	DefaultKey string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Series:       series.DefaultOptions(),
		ExcludedKeys: constants.DefaultExcludedKeys(),
		DefaultKey:   constants.DefaultSeriesKey,
	}
}

// Options is the content of a series dropdown.
type Options struct {
	Options []string `json:"options"`

	// Default is the preselected option, "" when there are none.
	Default string `json:"default"`
}

// Snapshot summarizes a session for listing and debugging.
type Snapshot struct {
	ID          string           `json:"id"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Selection   series.Selection `json:"selection"`
	Reconciler  selection.State  `json:"reconciler"`
	TableRows   int              `json:"table_rows"`
	AppendCount int              `json:"append_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AppendResult reports the outcome of AppendTable. Applied is false when the
// append precondition was not met; that is not an error.
type AppendResult struct {
	Applied bool              `json:"applied"`
	Batch   int               `json:"batch,omitempty"`
	Table   *accumulate.Table `json:"table"`
}

// Session is the engine state of one dashboard user.
type Session struct {
	mu sync.Mutex

	id     string
	cfg    Config
	cache  *simcache.Cache
	logger *slog.Logger
	events *logging.EventLogger
	now    func() time.Time

	fp      simulation.Fingerprint
	sel     series.Selection
	current *series.Series
	rec     *selection.Reconciler
	table   *accumulate.Table

	createdAt time.Time
	updatedAt time.Time
}

// New creates a session reading results through cache. logger and events
// may be nil.
func New(id string, cache *simcache.Cache, cfg Config, logger *slog.Logger, events *logging.EventLogger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	now := time.Now()
	return &Session{
		id:        id,
		cfg:       cfg,
		cache:     cache,
		logger:    logger.With("session", id),
		events:    events,
		now:       time.Now,
		rec:       selection.New(),
		table:     accumulate.New(),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Run submits dashboard inputs, keyed by "-"-joined setting path, and makes
// the result current. See RunFingerprint.
func (s *Session) Run(ctx context.Context, inputs map[string]any) (results.Globals, error) {
	fp, err := simulation.FingerprintFromInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs: %w", err)
	}
	return s.RunFingerprint(ctx, fp)
}

// RunFingerprint computes (or reuses) the result for fp and makes it current.
// The current selection is rematerialized against the new result; when
// nothing is selected yet, the default series is selected. A failed run
// leaves the session unchanged and returns *simulation.ComputationError.
func (s *Session) RunFingerprint(ctx context.Context, fp simulation.Fingerprint) (results.Globals, error) {
	// The computation may take minutes; other calls on this session proceed
	// against the previous result meanwhile.
	res, err := s.cache.Compute(ctx, fp)
	if err != nil {
		s.logger.Warn("run failed", "fingerprint", fp.String(), "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fp = fp
	s.touch()

	sel := s.sel
	if sel.IsZero() || !validSelection(res.Local, sel) {
		sel = s.defaultSelection(res.Local)
	}
	if err := s.materializeLocked(res.Local, sel); err != nil {
		// The result lacks the axis series; views stay empty until a
		// selection succeeds.
		s.logger.Warn("cannot materialize selection", "selection", sel.Label(), "error", err)
		s.sel, s.current = sel, nil
		s.rec.Reseed(nil)
	}

	s.events.Log("run", map[string]any{
		"session":     s.id,
		"fingerprint": fp.Key(),
		"selection":   s.sel.Label(),
	})
	return slices.Clone(res.Global), nil
}

// Fingerprint returns the current fingerprint; IsZero before the first run.
func (s *Session) Fingerprint() simulation.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fp
}

// Globals returns the global results of the current run.
func (s *Session) Globals(ctx context.Context) (results.Globals, error) {
	res, err := s.lockResult(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.Global), nil
}

// GlobalTable returns the global results formatted for display.
func (s *Session) GlobalTable(ctx context.Context) ([]export.GlobalRow, error) {
	g, err := s.Globals(ctx)
	if err != nil {
		return nil, err
	}
	return export.GlobalRows(g), nil
}

// SeriesOptions lists the selectable series in result order.
func (s *Session) SeriesOptions(ctx context.Context) (Options, error) {
	res, err := s.lockResult(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return Options{}, err
	}
	return s.seriesOptions(res.Local), nil
}

// SubOptions lists the sub-series of key. A leaf has none, meaning no second
// selector is needed.
func (s *Session) SubOptions(ctx context.Context, key string) (Options, error) {
	res, err := s.lockResult(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return Options{}, err
	}
	return subOptions(res.Local, key)
}

// Select materializes a new series selection and reseeds the reconciler. On
// error the session is unchanged.
func (s *Session) Select(ctx context.Context, sel series.Selection) (selection.Projection, error) {
	res, err := s.lockResult(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return selection.Projection{}, err
	}
	if err := s.materializeLocked(res.Local, sel); err != nil {
		return selection.Projection{}, err
	}
	s.touch()

	s.events.Log("select", map[string]any{
		"session": s.id,
		"primary": sel.Primary,
		"sub":     sel.Secondary,
		"cells":   len(s.current.Cells),
	})
	return s.projectionLocked(), nil
}

// Selection returns the current series selection.
func (s *Session) Selection() series.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Apply runs a selection event. Clear also discards the materialized series
// until the next Select or run.
func (s *Session) Apply(ev selection.Event) (selection.Projection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rec.Apply(ev); err != nil {
		return selection.Projection{}, err
	}
	if _, ok := ev.(selection.Clear); ok {
		s.current = nil
	}
	s.touch()

	st := s.rec.State()
	s.events.Log(selection.EventName(ev), map[string]any{
		"session": s.id,
		"chosen":  st.Chosen,
		"visible": st.Visible,
		"hidden":  st.Hidden,
	})
	return s.projectionLocked(), nil
}

// ApplyRestyle decodes a chart restyle payload and applies it.
func (s *Session) ApplyRestyle(payload []byte) (selection.Projection, error) {
	ev, err := selection.DecodeRestyle(payload)
	if err != nil {
		return selection.Projection{}, err
	}
	s.logger.Log(context.Background(), logging.LevelTrace, "restyle", "payload", string(payload), "event", selection.EventName(ev))
	return s.Apply(ev)
}

// Projection returns the current chart projection.
func (s *Session) Projection() selection.Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectionLocked()
}

// Heatmap builds the heatmap for sel, or for the current selection when sel
// is zero. It does not change the session.
func (s *Session) Heatmap(ctx context.Context, sel series.Selection) (*series.Heatmap, error) {
	res, err := s.lockResult(ctx)
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if sel.IsZero() {
		sel = s.sel
	}
	return series.BuildHeatmap(res.Local, sel, s.cfg.Series)
}

// ExportTable replaces the table with the visible cells of the current series.
func (s *Session) ExportTable() (*accumulate.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNoData
	}
	s.table.Export(s.snapshotLocked())
	s.stampBatchesLocked()
	s.touch()

	s.events.Log("table_export", map[string]any{
		"session": s.id,
		"rows":    s.table.Len(),
		"columns": len(s.table.Columns()),
	})
	return s.table.Clone(), nil
}

// AppendTable appends the visible cells as a new batch. An unmet
// precondition is reported as Applied=false with the table unchanged.
func (s *Session) AppendTable() (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return AppendResult{Table: s.table.Clone()}, nil
	}

	batch, err := s.table.Append(s.snapshotLocked())
	if errors.Is(err, accumulate.ErrPreconditionNotMet) {
		s.logger.Debug("append ignored", "reason", err)
		return AppendResult{Table: s.table.Clone()}, nil
	}
	if err != nil {
		return AppendResult{}, err
	}
	s.stampBatchesLocked()
	s.touch()

	s.events.Log("table_append", map[string]any{
		"session": s.id,
		"batch":   batch,
		"rows":    s.table.Len(),
	})
	return AppendResult{Applied: true, Batch: batch, Table: s.table.Clone()}, nil
}

// ClearTable empties the table. Append numbering continues.
func (s *Session) ClearTable() *accumulate.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.Clear()
	s.stampBatchesLocked()
	s.touch()
	s.events.Log("table_clear", map[string]any{"session": s.id, "counter": s.table.Counter()})
	return s.table.Clone()
}

// Table returns a copy of the accumulation table.
func (s *Session) Table() *accumulate.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone()
}

// Reset is the full session clear: selection, table, append numbering and
// current fingerprint. Cached results are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fp = simulation.Fingerprint{}
	s.sel = series.Selection{}
	s.current = nil
	s.rec = selection.New()
	s.table.Reset()
	s.touch()
	s.events.Log("reset", map[string]any{"session": s.id})
}

// State returns a summary of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Selection:   s.sel,
		Reconciler:  s.rec.State(),
		TableRows:   s.table.Len(),
		AppendCount: s.table.Counter(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
	if !s.fp.IsZero() {
		snap.Fingerprint = s.fp.Key()
	}
	return snap
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}

// lockResult fetches the current result through the cache and returns with
// s.mu held, on success and on error. The cache is consulted unlocked, so an
// expired result recomputes while other calls on the session proceed. Any
// failure, including a missing run, is ErrNoData.
func (s *Session) lockResult(ctx context.Context) (*results.Result, error) {
	s.mu.Lock()
	for {
		fp := s.fp
		if fp.IsZero() {
			return nil, ErrNoData
		}
		s.mu.Unlock()
		res, ok := s.cache.TryCompute(ctx, fp)
		s.mu.Lock()
		if !ok {
			return nil, ErrNoData
		}
		if s.fp.Key() == fp.Key() {
			return res, nil
		}
		// A run replaced the fingerprint meanwhile; fetch the new one.
	}
}

func (s *Session) materializeLocked(tree *results.Tree, sel series.Selection) error {
	ser, err := series.Materialize(tree, sel, s.cfg.Series)
	if err != nil {
		return err
	}
	s.sel = ser.Selection
	s.current = ser
	s.rec.Reseed(ser.Names())
	s.stampBatchesLocked()
	return nil
}

// stampBatchesLocked records on each materialized cell the table batch it
// was last appended in.
func (s *Session) stampBatchesLocked() {
	if s.current == nil {
		return
	}
	for i := range s.current.Cells {
		s.current.Cells[i].Batch = s.table.BatchOf(s.current.Cells[i].Name)
	}
}

func (s *Session) projectionLocked() selection.Projection {
	return selection.Project(s.rec, s.current)
}

func (s *Session) snapshotLocked() accumulate.Snapshot {
	snap := accumulate.Snapshot{
		IndexName: s.current.XLabel,
		Index:     s.current.Xs,
		Chosen:    s.rec.Chosen(),
	}
	for _, c := range selection.VisibleCells(s.rec, s.current) {
		snap.Cells = append(snap.Cells, accumulate.SeriesColumn{Name: c.Name, Values: c.Ys})
	}
	return snap
}

func (s *Session) seriesOptions(tree *results.Tree) Options {
	opts := Options{Options: []string{}}
	for _, k := range tree.Keys() {
		if !slices.Contains(s.cfg.ExcludedKeys, k) {
			opts.Options = append(opts.Options, k)
		}
	}
	switch {
	case slices.Contains(opts.Options, s.cfg.DefaultKey):
		opts.Default = s.cfg.DefaultKey
	case len(opts.Options) > 0:
		opts.Default = opts.Options[0]
	}
	return opts
}

func (s *Session) defaultSelection(tree *results.Tree) series.Selection {
	sel := series.Selection{Primary: s.seriesOptions(tree).Default}
	if sub, err := subOptions(tree, sel.Primary); err == nil {
		sel.Secondary = sub.Default
	}
	return sel
}

func subOptions(tree *results.Tree, key string) (Options, error) {
	keys, err := results.SubKeys(tree, key)
	if err != nil {
		return Options{}, err
	}
	opts := Options{Options: []string{}}
	if len(keys) > 0 {
		opts.Options = keys
		opts.Default = keys[0]
	}
	return opts, nil
}

// validSelection reports whether sel still addresses something in tree.
func validSelection(tree *results.Tree, sel series.Selection) bool {
	if sel.IsZero() {
		return true
	}
	if !results.IsBranch(tree, sel.Primary) {
		_, err := results.LeafAt(tree, sel.Primary)
		return err == nil
	}
	if sel.Secondary == "" {
		return true
	}
	_, err := results.SubLeaf(tree, sel.Primary, sel.Secondary)
	return err == nil
}
