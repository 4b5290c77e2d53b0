// Package engine runs a floor filter session against a host map: it loads the
// level catalog and layer index, tracks the active facility and level, and
// pushes expressions to the host whenever the selection changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"floorfilter/internal/apply"
	"floorfilter/internal/expression"
	"floorfilter/internal/facilities"
	"floorfilter/internal/fields"
	"floorfilter/internal/layers"
	"floorfilter/internal/levels"
	"floorfilter/internal/metrics"
)

var (
	ErrNotLoaded       = errors.New("floor filter not loaded")
	ErrNoLevels        = errors.New("no levels were found")
	ErrUnknownFacility = errors.New("unknown facility")
	ErrAlreadyLoaded   = errors.New("floor filter already loaded")
)

// Host is the map the engine filters.
type Host interface {
	apply.Target
	WaitReady(ctx context.Context) error
	Layers(ctx context.Context) ([]layers.Handle, error)
}

// Source provides the indoor dataset tables.
type Source interface {
	LevelRows(ctx context.Context) ([]levels.Row, error)
	// FacilityRows may return no rows when the dataset has no facilities table.
	FacilityRows(ctx context.Context) ([]map[string]any, []fields.Field, error)
}

type Options struct {
	Is3D                 bool
	ToggleFacilityShells bool
	ShowAllFloorPlans2D  bool
	ActiveFacilityID     string
	ActiveLevelID        string
	Identifiers          layers.Identifiers
	Mappings             []layers.Mapping
	Metrics              *metrics.Metrics
}

type Engine struct {
	host    Host
	source  Source
	log     zerolog.Logger
	opts    Options
	metrics *metrics.Metrics

	classifier *layers.Classifier
	builder    *expression.Builder
	applier    *apply.Applier

	mu         sync.RWMutex
	loaded     bool
	index      *layers.Index
	catalog    *levels.Catalog
	facilities *facilities.Cache
	active     expression.Selection
	last       *expression.Result
}

func New(host Host, source Source, log zerolog.Logger, opts Options) *Engine {
	return &Engine{
		host:       host,
		source:     source,
		log:        log,
		opts:       opts,
		metrics:    opts.Metrics,
		classifier: layers.NewClassifier(log, opts.Identifiers, opts.Mappings),
		builder:    expression.NewBuilder(log),
		applier:    apply.New(host, log),
	}
}

func (e *Engine) mode() expression.Mode {
	return expression.Mode{
		Is3D:                 e.opts.Is3D,
		ShowAllFloorPlans2D:  e.opts.ShowAllFloorPlans2D,
		ToggleFacilityShells: e.opts.ToggleFacilityShells,
	}
}

// Load waits for the host, then builds the level catalog and classifies the
// host's layers in parallel, and finally applies the initial selection.
// Original layer expressions are captured here, so Load runs once per engine;
// use Reload to refresh the catalog.
func (e *Engine) Load(ctx context.Context) error {
	if e.Loaded() {
		return ErrAlreadyLoaded
	}
	if err := e.host.WaitReady(ctx); err != nil {
		return fmt.Errorf("wait for host: %w", err)
	}

	var (
		index   *layers.Index
		catalog *levels.Catalog
		cache   *facilities.Cache
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		handles, err := e.host.Layers(gctx)
		if err != nil {
			return fmt.Errorf("list layers: %w", err)
		}
		index = e.classifier.Classify(handles)
		return nil
	})
	g.Go(func() error {
		var err error
		catalog, cache, err = e.readCatalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return ErrAlreadyLoaded
	}
	e.index = index
	e.catalog = catalog
	e.facilities = cache
	e.loaded = true
	e.metrics.SetClassifiedLayers(index.Len())
	e.metrics.SetCatalogFacilities(len(catalog.Facilities))

	e.log.Info().
		Int("layers", index.Len()).
		Int("facilities", len(catalog.Facilities)).
		Bool("is_3d", e.opts.Is3D).
		Msg("floor filter loaded")

	sel := expression.Selection{FacilityID: e.opts.ActiveFacilityID, LevelID: e.opts.ActiveLevelID}
	_, err := e.applyLocked(ctx, sel)
	return err
}

// readCatalog reads the level and facility tables concurrently.
func (e *Engine) readCatalog(ctx context.Context) (*levels.Catalog, *facilities.Cache, error) {
	var (
		levelRows []levels.Row
		facRows   []map[string]any
		facSchema []fields.Field
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		levelRows, err = e.source.LevelRows(gctx)
		if err != nil {
			return fmt.Errorf("read levels: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		facRows, facSchema, err = e.source.FacilityRows(gctx)
		if err != nil {
			return fmt.Errorf("read facilities: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	catalog := levels.Build(levelRows, e.log)
	if !catalog.HasData() {
		return nil, nil, ErrNoLevels
	}
	return catalog, facilities.NewCache(facRows, facSchema, e.log), nil
}

// Select activates a facility and level. Unknown facilities clear the
// selection; in 2D an unknown or empty level falls back to the facility's base
// level. The returned selection is the one that was applied.
func (e *Engine) Select(ctx context.Context, facilityID, levelID string) (expression.Selection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return expression.Selection{}, ErrNotLoaded
	}
	return e.applyLocked(ctx, expression.Selection{FacilityID: facilityID, LevelID: levelID})
}

// SelectByObjectID activates the facility whose feature has the given object
// id, at its base level.
func (e *Engine) SelectByObjectID(ctx context.Context, objectID int64) (expression.Selection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return expression.Selection{}, ErrNotLoaded
	}
	feature, ok := e.facilities.FindByObjectID(objectID)
	if !ok {
		return expression.Selection{}, fmt.Errorf("%w: object id %d", ErrUnknownFacility, objectID)
	}
	facilityID := feature.FacilityID()
	if _, ok := e.catalog.Facility(facilityID); !ok {
		return expression.Selection{}, fmt.Errorf("%w: %q has no levels", ErrUnknownFacility, facilityID)
	}
	levelID, _ := e.catalog.BaseLevelID(facilityID)
	return e.applyLocked(ctx, expression.Selection{FacilityID: facilityID, LevelID: levelID})
}

func (e *Engine) Clear(ctx context.Context) error {
	_, err := e.Select(ctx, "", "")
	return err
}

// Reload rebuilds the level catalog and facility cache from the source and
// re-applies the active selection against it. The previous catalog stays in
// place when the reload fails.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}

	catalog, cache, err := e.readCatalog(ctx)
	if err != nil {
		e.metrics.IncCatalogReload("error")
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog = catalog
	e.facilities = cache
	e.metrics.SetCatalogFacilities(len(catalog.Facilities))

	if _, err := e.applyLocked(ctx, e.active); err != nil {
		e.metrics.IncCatalogReload("error")
		return err
	}
	e.metrics.IncCatalogReload("ok")
	return nil
}

// Restore puts every classified layer back to its original expression.
func (e *Engine) Restore() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	return e.applier.Restore(e.index)
}

func (e *Engine) applyLocked(ctx context.Context, sel expression.Selection) (expression.Selection, error) {
	if err := ctx.Err(); err != nil {
		return e.active, err
	}
	start := time.Now()
	res := e.builder.Build(e.index, e.catalog, sel, e.mode())
	err := e.applier.ApplyResult(res)
	e.metrics.ObserveExpressionBuild(time.Since(start))
	if err != nil {
		e.metrics.IncSelectionChange("error")
		e.log.Error().Err(err).
			Str("facility_id", sel.FacilityID).
			Str("level_id", sel.LevelID).
			Msg("apply expressions failed")
		return e.active, fmt.Errorf("apply selection: %w", err)
	}

	e.active = res.Selection
	e.last = res
	if res.Selection.IsCleared() {
		e.metrics.IncSelectionChange("cleared")
	} else {
		e.metrics.IncSelectionChange("applied")
	}
	e.log.Debug().
		Str("facility_id", res.Selection.FacilityID).
		Str("level_id", res.Selection.LevelID).
		Msg("selection applied")
	return res.Selection, nil
}

func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

func (e *Engine) Active() expression.Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

func (e *Engine) Mode() expression.Mode {
	return e.mode()
}

func (e *Engine) Index() *layers.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

func (e *Engine) Catalog() *levels.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog
}

func (e *Engine) Facilities() *facilities.Cache {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.facilities
}

// Expressions returns the result of the last successful apply.
func (e *Engine) Expressions() *expression.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}
