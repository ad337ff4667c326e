// Package dimension implements cached dimension tables: an in-memory mirror
// of natural-key to surrogate-key mappings backed by a persistence delegate,
// with at-most-once inserts per natural key.
package dimension

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Querier is the persistence delegate a dimension reads and writes through.
// warehouse.Adapter satisfies it.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Rebind(query string) string
}

// Dimension maintains the cache for one dimension table and resolves natural
// keys to surrogate keys. The cache records both hits and confirmed misses,
// so each distinct natural key costs at most one warehouse round-trip.
//
// Not safe for concurrent use; the pipeline is single-threaded by design.
type Dimension struct {
	name       string
	keyCol     string
	naturalKey []string
	attributes []string

	db     Querier
	logger *slog.Logger

	cache  map[string]int64
	misses map[string]bool

	nextKey int64
	seeded  bool

	seen    int
	created int
}

// New creates a dimension over the given table.
// naturalKey names the lookup column(s); attributes names all descriptive
// columns persisted on insert (including the natural key columns).
func New(name, keyCol string, naturalKey, attributes []string, db Querier, logger *slog.Logger) *Dimension {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dimension{
		name:       name,
		keyCol:     keyCol,
		naturalKey: naturalKey,
		attributes: attributes,
		db:         db,
		logger:     logger,
		cache:      make(map[string]int64),
		misses:     make(map[string]bool),
	}
}

// Product returns the product dimension (natural key: product_id).
func Product(db Querier, logger *slog.Logger) *Dimension {
	return New("dim_product", "product_key",
		[]string{"product_id"},
		[]string{"product_id", "product_name", "category", "subcategory", "unit_price"},
		db, logger)
}

// Date returns the date dimension (natural key: full_date).
func Date(db Querier, logger *slog.Logger) *Dimension {
	return New("dim_date", "date_key",
		[]string{"full_date"},
		[]string{"full_date", "day", "month", "year", "quarter", "day_of_week", "is_weekend"},
		db, logger)
}

// Customer returns the customer dimension (natural key: customer_id).
func Customer(db Querier, logger *slog.Logger) *Dimension {
	return New("dim_customer", "customer_key",
		[]string{"customer_id"},
		[]string{"customer_id", "customer_name", "segment", "country", "city"},
		db, logger)
}

// Region returns the region dimension (natural key: canonical region_name).
func Region(db Querier, logger *slog.Logger) *Dimension {
	return New("dim_region", "region_key",
		[]string{"region_name"},
		[]string{"region_name", "country", "continent"},
		db, logger)
}

// Name returns the dimension table name.
func (d *Dimension) Name() string { return d.name }

// Stats returns how many rows were processed through Ensure and how many
// dimension rows were created this run.
func (d *Dimension) Stats() (seen, created int) { return d.seen, d.created }

// Lookup resolves the natural key in row to a surrogate key.
// Returns (0, false, nil) when the key is absent from the dimension or the
// row's natural-key values are missing or empty — callers treat that as
// "not found", never as an error.
func (d *Dimension) Lookup(ctx context.Context, row map[string]any) (int64, bool, error) {
	cacheKey, ok := d.cacheKey(row)
	if !ok {
		return 0, false, nil
	}

	if key, hit := d.cache[cacheKey]; hit {
		return key, true, nil
	}
	if d.misses[cacheKey] {
		return 0, false, nil
	}

	query := d.db.Rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s",
		d.keyCol, d.name, d.wherePredicate(),
	))

	var key int64
	err := d.db.QueryRow(ctx, query, d.naturalValues(row)...).Scan(&key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d.misses[cacheKey] = true
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to look up %s: %w", d.name, err)
	}

	d.cache[cacheKey] = key
	return key, true, nil
}

// Ensure resolves the natural key in row, inserting the row with a freshly
// assigned surrogate key if it is not present. Lookup always runs first, so
// repeated calls with the same natural key return the same surrogate key and
// insert exactly once.
func (d *Dimension) Ensure(ctx context.Context, row map[string]any) (int64, error) {
	d.seen++

	key, found, err := d.Lookup(ctx, row)
	if err != nil {
		return 0, err
	}
	if found {
		return key, nil
	}

	cacheKey, ok := d.cacheKey(row)
	if !ok {
		return 0, fmt.Errorf("%s: row is missing natural key %v", d.name, d.naturalKey)
	}

	if !d.seeded {
		if err := d.seedNextKey(ctx); err != nil {
			return 0, err
		}
	}

	d.nextKey++
	key = d.nextKey

	cols := append([]string{d.keyCol}, d.attributes...)
	args := make([]any, 0, len(cols))
	args = append(args, key)
	for _, col := range d.attributes {
		args = append(args, row[col])
	}

	query := d.db.Rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.name, strings.Join(cols, ", "), placeholders(len(cols)),
	))
	if err := d.db.Exec(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", d.name, err)
	}

	d.cache[cacheKey] = key
	delete(d.misses, cacheKey)
	d.created++

	d.logger.Debug("dimension row created", "dimension", d.name, "key", key)
	return key, nil
}

// seedNextKey initializes surrogate-key assignment from the persisted table,
// so re-runs append after existing keys instead of reusing them.
func (d *Dimension) seedNextKey(ctx context.Context) error {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", d.keyCol, d.name)
	if err := d.db.QueryRow(ctx, query).Scan(&d.nextKey); err != nil {
		return fmt.Errorf("failed to seed surrogate keys for %s: %w", d.name, err)
	}
	d.seeded = true
	return nil
}

// cacheKey canonicalizes the row's natural-key values into a cache key.
// Returns false when any value is missing, nil, or blank.
func (d *Dimension) cacheKey(row map[string]any) (string, bool) {
	parts := make([]string, 0, len(d.naturalKey))
	for _, col := range d.naturalKey {
		v, ok := row[col]
		if !ok || v == nil {
			return "", false
		}
		s := formatKeyValue(v)
		if s == "" {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\x1f"), true
}

func (d *Dimension) naturalValues(row map[string]any) []any {
	vals := make([]any, len(d.naturalKey))
	for i, col := range d.naturalKey {
		vals[i] = row[col]
	}
	return vals
}

func (d *Dimension) wherePredicate() string {
	preds := make([]string, len(d.naturalKey))
	for i, col := range d.naturalKey {
		preds[i] = col + " = ?"
	}
	return strings.Join(preds, " AND ")
}

// formatKeyValue renders a natural-key value canonically. Dates collapse to
// calendar-day granularity so dimension-build and fact-resolution sides
// always produce the same key.
func formatKeyValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
