// Package pipeline orchestrates the load: extract -> transform -> dimension
// load -> fact load -> commit, aggregating statistics into a LoadReport.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loamworks/starload/internal/dimension"
	"github.com/loamworks/starload/internal/fact"
	"github.com/loamworks/starload/internal/model"
	"github.com/loamworks/starload/internal/normalize"
	"github.com/loamworks/starload/internal/source"
	"github.com/loamworks/starload/internal/state"
	"github.com/loamworks/starload/internal/transform"
	"github.com/loamworks/starload/internal/warehouse"
)

// Sources names the four input extracts.
type Sources struct {
	Transactions string `koanf:"transactions"`
	Customers    string `koanf:"customers"`
	Products     string `koanf:"products"`
	Regions      string `koanf:"regions"`
}

// Config holds pipeline configuration.
type Config struct {
	// Sources are the paths to the raw extracts.
	Sources Sources
	// Warehouse configures the storage backend.
	Warehouse warehouse.Config
	// StatePath is the path to the SQLite run-history database.
	StatePath string
	// Environment tags the run in history (dev, staging, prod).
	Environment string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Pipeline is the batch loader. A Pipeline runs once; the warehouse
// connection is acquired at the start of Run and committed and released at
// the end. On failure the connection is closed without commit, leaving the
// warehouse in whatever state the per-row writes produced — there is no
// automatic rollback across a partial load.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	wh     warehouse.Adapter
	store  state.Store
}

// New creates a pipeline, opening the run-history store and creating (but
// not connecting) the warehouse adapter.
func New(cfg Config) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	wh, err := warehouse.New(cfg.Warehouse, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}

	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		wh:     wh,
		store:  store,
	}, nil
}

// Close releases the warehouse connection and the state store.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.wh.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing pipeline: %v", errs)
	}
	return nil
}

// Warehouse exposes the adapter, mainly for schema bootstrap and tests.
func (p *Pipeline) Warehouse() warehouse.Adapter { return p.wh }

// Store exposes the run-history store.
func (p *Pipeline) Store() state.Store { return p.store }

// Run executes one load. Fatal failures (unreachable warehouse, missing
// mandatory source columns) mark the run failed and propagate; row-scoped
// failures during fact loading are counted, not raised.
func (p *Pipeline) Run(ctx context.Context) (*model.LoadReport, error) {
	start := time.Now()
	p.logger.Info("starting load", "environment", p.cfg.Environment)

	run, err := p.store.CreateRun(p.cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	report, err := p.run(ctx, run.ID)
	if err != nil {
		p.logger.Error("load failed", "run_id", run.ID, "error", err)
		_ = p.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return nil, err
	}

	report.Elapsed = time.Since(start)
	_ = p.store.CompleteRun(run.ID, state.RunStatusCompleted, "")

	p.logger.Info("load completed",
		"run_id", run.ID,
		"facts_admitted", report.FactsAdmitted,
		"facts_rejected", report.FactsRejected,
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, runID string) (*model.LoadReport, error) {
	// Connect and smoke-test the warehouse before any extraction.
	if err := p.wh.Connect(ctx, p.cfg.Warehouse); err != nil {
		return nil, fmt.Errorf("warehouse unreachable: %w", err)
	}
	if err := p.wh.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Extraction.
	transactions, err := source.ReadTransactions(p.cfg.Sources.Transactions, p.logger)
	if err != nil {
		return nil, err
	}
	customers, err := source.ReadCustomers(p.cfg.Sources.Customers, p.logger)
	if err != nil {
		return nil, err
	}
	products, err := source.ReadProducts(p.cfg.Sources.Products, p.logger)
	if err != nil {
		return nil, err
	}
	regions, err := source.ReadRegions(p.cfg.Sources.Regions, p.logger)
	if err != nil {
		return nil, err
	}

	// The normalizer is built from the reference data and threaded
	// explicitly to fact loading.
	canonical := make([]string, 0, len(regions))
	seenRegion := make(map[string]bool, len(regions))
	for _, r := range regions {
		if !seenRegion[r.RegionName] {
			seenRegion[r.RegionName] = true
			canonical = append(canonical, r.RegionName)
		}
	}
	normalizer := normalize.New(canonical, p.logger)

	// Transformation.
	transactions = transform.Transactions(transactions)
	customers = transform.DedupCustomers(customers)
	dates := transform.DateDimension(transactions)

	// Loading: all writes inside a single transaction, committed together.
	if err := p.wh.BeginLoad(ctx); err != nil {
		return nil, err
	}

	dims := dimensions{
		product:  dimension.Product(p.wh, p.logger),
		date:     dimension.Date(p.wh, p.logger),
		customer: dimension.Customer(p.wh, p.logger),
		region:   dimension.Region(p.wh, p.logger),
	}

	if err := p.loadDimensions(ctx, dims, products, dates, customers, regions); err != nil {
		return nil, err
	}

	validProducts := make([]string, len(products))
	for i, prod := range products {
		validProducts[i] = prod.ProductID
	}

	loader := fact.New(fact.Config{
		DB:            p.wh,
		Product:       dims.product,
		Date:          dims.date,
		Customer:      dims.customer,
		Region:        dims.region,
		Normalizer:    normalizer,
		ValidProducts: validProducts,
		Logger:        p.logger,
	})
	stats := loader.LoadBatch(ctx, transactions)

	if err := p.wh.Commit(); err != nil {
		return nil, err
	}

	return p.buildReport(runID, dims, stats), nil
}

type dimensions struct {
	product  *dimension.Dimension
	date     *dimension.Dimension
	customer *dimension.Dimension
	region   *dimension.Dimension
}

func (d dimensions) all() []*dimension.Dimension {
	return []*dimension.Dimension{d.product, d.date, d.customer, d.region}
}

// loadDimensions upserts every dimension row. Dimensions are fully loaded
// before fact loading begins; fact resolution only reads them.
func (p *Pipeline) loadDimensions(
	ctx context.Context,
	dims dimensions,
	products []model.Product,
	dates []model.DateAttributes,
	customers []model.Customer,
	regions []model.RegionRef,
) error {
	for _, prod := range products {
		if _, err := dims.product.Ensure(ctx, map[string]any{
			"product_id":   prod.ProductID,
			"product_name": prod.Name,
			"category":     prod.Category,
			"subcategory":  prod.Subcategory,
			"unit_price":   prod.UnitPrice,
		}); err != nil {
			return err
		}
	}

	for _, d := range dates {
		if _, err := dims.date.Ensure(ctx, map[string]any{
			"full_date":   d.FullDate,
			"day":         d.Day,
			"month":       d.Month,
			"year":        d.Year,
			"quarter":     d.Quarter,
			"day_of_week": d.DayOfWeek,
			"is_weekend":  d.IsWeekend,
		}); err != nil {
			return err
		}
	}

	for _, c := range customers {
		if _, err := dims.customer.Ensure(ctx, map[string]any{
			"customer_id":   c.CustomerID,
			"customer_name": c.Name,
			"segment":       c.Segment,
			"country":       c.Country,
			"city":          c.City,
		}); err != nil {
			return err
		}
	}

	// The reference data has one row per (region, country); the dimension
	// keeps the first row per region name.
	for _, r := range regions {
		if _, err := dims.region.Ensure(ctx, map[string]any{
			"region_name": r.RegionName,
			"country":     r.Country,
			"continent":   r.Continent,
		}); err != nil {
			return err
		}
	}

	for _, d := range dims.all() {
		seen, created := d.Stats()
		p.logger.Debug("dimension loaded", "dimension", d.Name(), "seen", seen, "created", created)
	}
	return nil
}

func (p *Pipeline) buildReport(runID string, dims dimensions, stats fact.Stats) *model.LoadReport {
	report := &model.LoadReport{
		FactsAdmitted:  stats.Admitted,
		FactsRejected:  stats.Rejected,
		RejectsByCause: stats.ByReason,
	}

	for _, d := range dims.all() {
		seen, created := d.Stats()
		report.Dimensions = append(report.Dimensions, model.DimensionLoad{
			Dimension:   d.Name(),
			RowsSeen:    seen,
			RowsCreated: created,
		})
		_ = p.store.RecordDimensionLoad(&state.DimensionLoad{
			RunID:       runID,
			Dimension:   d.Name(),
			RowsSeen:    seen,
			RowsCreated: created,
		})
	}

	_ = p.store.RecordFactStats(runID,
		stats.Admitted, stats.Rejected,
		stats.ByReason[model.ReasonInvalidProduct],
		stats.ByReason[model.ReasonUnresolvedReference],
		stats.ByReason[model.ReasonRowError])

	return report
}
