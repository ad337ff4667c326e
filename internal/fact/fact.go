// Package fact implements fact-table loading: each incoming transaction is
// joined against all dimensions and admitted only when every surrogate-key
// reference resolves. Fact loading never creates dimension rows.
//
// Re-running a load against the same warehouse MAY duplicate fact rows; the
// fact table enforces no uniqueness. Dimension idempotence is guaranteed,
// fact idempotence is not.
package fact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loamworks/starload/internal/dimension"
	"github.com/loamworks/starload/internal/model"
	"github.com/loamworks/starload/internal/normalize"
	"github.com/loamworks/starload/internal/transform"
)

// insertSQL is written with ? placeholders and rebound per adapter.
const insertSQL = `INSERT INTO fact_sales
	(product_key, date_key, customer_key, region_key, quantity, unit_price, discount, total_amount)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Result is the per-row outcome of fact loading.
type Result struct {
	Admitted bool
	Reason   model.RejectReason
	Row      model.FactRow
}

// Stats aggregates per-row results over a batch.
type Stats struct {
	Admitted int
	Rejected int
	ByReason map[model.RejectReason]int
}

func (s *Stats) record(r Result) {
	if r.Admitted {
		s.Admitted++
		return
	}
	s.Rejected++
	if s.ByReason == nil {
		s.ByReason = make(map[model.RejectReason]int)
	}
	s.ByReason[r.Reason]++
}

// Loader admits or rejects transactions against the loaded dimensions.
// It reads the dimension caches and writes fact rows; it holds no per-row
// state beyond the aggregate counts.
type Loader struct {
	db         dimension.Querier
	product    *dimension.Dimension
	date       *dimension.Dimension
	customer   *dimension.Dimension
	region     *dimension.Dimension
	normalizer *normalize.Normalizer

	// validProducts is the set of product natural keys loaded this run,
	// checked before any dimension lookup.
	validProducts map[string]bool

	logger *slog.Logger
}

// Config collects the loader's collaborators.
type Config struct {
	DB            dimension.Querier
	Product       *dimension.Dimension
	Date          *dimension.Dimension
	Customer      *dimension.Dimension
	Region        *dimension.Dimension
	Normalizer    *normalize.Normalizer
	ValidProducts []string
	Logger        *slog.Logger
}

// New creates a fact loader.
func New(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	valid := make(map[string]bool, len(cfg.ValidProducts))
	for _, id := range cfg.ValidProducts {
		valid[id] = true
	}
	return &Loader{
		db:            cfg.DB,
		product:       cfg.Product,
		date:          cfg.Date,
		customer:      cfg.Customer,
		region:        cfg.Region,
		normalizer:    cfg.Normalizer,
		validProducts: valid,
		logger:        logger,
	}
}

// Load admits or rejects a single transaction. It never returns an error:
// unexpected failures are converted into a rejection so one malformed row
// cannot abort the batch.
func (l *Loader) Load(ctx context.Context, tx model.Transaction) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("unexpected error loading fact row", "order_id", tx.OrderID, "error", fmt.Sprint(r))
			result = Result{Reason: model.ReasonRowError}
		}
	}()

	// Fast pre-check before touching any dimension cache.
	if !l.validProducts[tx.ProductID] {
		l.logger.Debug("rejecting transaction, unknown product", "order_id", tx.OrderID, "product_id", tx.ProductID)
		return Result{Reason: model.ReasonInvalidProduct}
	}

	region := l.normalizer.Normalize(tx.Region)

	productKey, productOK, err := l.product.Lookup(ctx, map[string]any{"product_id": tx.ProductID})
	if err != nil {
		return l.rowError(tx, err)
	}
	dateKey, dateOK, err := l.date.Lookup(ctx, map[string]any{"full_date": transform.DateOnly(tx.OrderDate)})
	if err != nil {
		return l.rowError(tx, err)
	}
	customerKey, customerOK, err := l.customer.Lookup(ctx, map[string]any{"customer_id": tx.CustomerID})
	if err != nil {
		return l.rowError(tx, err)
	}
	regionKey, regionOK, err := l.region.Lookup(ctx, map[string]any{"region_name": region})
	if err != nil {
		return l.rowError(tx, err)
	}

	if !productOK || !dateOK || !customerOK || !regionOK {
		l.logger.Debug("rejecting transaction, unresolved reference",
			"order_id", tx.OrderID,
			"product", productOK, "date", dateOK, "customer", customerOK, "region", regionOK)
		return Result{Reason: model.ReasonUnresolvedReference}
	}

	row := model.FactRow{
		ProductKey:  productKey,
		DateKey:     dateKey,
		CustomerKey: customerKey,
		RegionKey:   regionKey,
		Quantity:    tx.Quantity,
		UnitPrice:   tx.UnitPrice,
		Discount:    tx.Discount,
		TotalAmount: tx.TotalAmount,
	}

	query := l.db.Rebind(insertSQL)
	if err := l.db.Exec(ctx, query,
		row.ProductKey, row.DateKey, row.CustomerKey, row.RegionKey,
		row.Quantity, row.UnitPrice, row.Discount, row.TotalAmount,
	); err != nil {
		return l.rowError(tx, err)
	}

	return Result{Admitted: true, Row: row}
}

// LoadBatch processes every transaction, aggregating per-row results.
// Row-scoped failures are counted and skipped, never propagated.
func (l *Loader) LoadBatch(ctx context.Context, txs []model.Transaction) Stats {
	var stats Stats
	for _, tx := range txs {
		stats.record(l.Load(ctx, tx))
	}
	l.logger.Info("fact load finished", "admitted", stats.Admitted, "rejected", stats.Rejected)
	return stats
}

func (l *Loader) rowError(tx model.Transaction, err error) Result {
	l.logger.Warn("failed to load fact row", "order_id", tx.OrderID, "error", err)
	return Result{Reason: model.ReasonRowError}
}
