package dimension

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamworks/starload/internal/warehouse"
)

func newMockQuerier(t *testing.T) (Querier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &warehouse.BaseSQLAdapter{DB: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestEnsure_IdempotentPerNaturalKey(t *testing.T) {
	db, mock := newMockQuerier(t)
	dim := Product(db, nil)
	ctx := context.Background()

	row := map[string]any{
		"product_id":   "P1",
		"product_name": "Widget",
		"category":     "Tools",
		"subcategory":  "Hand Tools",
		"unit_price":   9.99,
	}

	// First Ensure: lookup miss, key seeding, exactly one insert.
	mock.ExpectQuery("SELECT product_key FROM dim_product").
		WithArgs("P1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(0)))
	mock.ExpectExec("INSERT INTO dim_product").
		WithArgs(int64(1), "P1", "Widget", "Tools", "Hand Tools", 9.99).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key1, err := dim.Ensure(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, int64(1), key1)

	// Second Ensure with the same natural key: cache hit, no SQL at all.
	key2, err := dim.Ensure(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	require.NoError(t, mock.ExpectationsWereMet())

	seen, created := dim.Stats()
	assert.Equal(t, 2, seen)
	assert.Equal(t, 1, created)
}

func TestEnsure_SeedsKeysFromExistingRows(t *testing.T) {
	db, mock := newMockQuerier(t)
	dim := Region(db, nil)
	ctx := context.Background()

	// Existing dimension with max key 7: next assigned key must be 8.
	mock.ExpectQuery("SELECT region_key FROM dim_region").
		WithArgs("Europe East").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO dim_region").
		WithArgs(int64(8), "Europe East", "Germany", "Europe").
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := dim.Ensure(ctx, map[string]any{
		"region_name": "Europe East",
		"country":     "Germany",
		"continent":   "Europe",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup_HitPopulatesCache(t *testing.T) {
	db, mock := newMockQuerier(t)
	dim := Customer(db, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT customer_key FROM dim_customer").
		WithArgs("C42").
		WillReturnRows(sqlmock.NewRows([]string{"customer_key"}).AddRow(int64(42)))

	row := map[string]any{"customer_id": "C42"}

	key, found, err := dim.Lookup(ctx, row)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), key)

	// Second lookup is served from the cache; one SELECT total.
	key, found, err = dim.Lookup(ctx, row)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), key)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup_MissIsMemoized(t *testing.T) {
	db, mock := newMockQuerier(t)
	dim := Customer(db, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT customer_key FROM dim_customer").
		WithArgs("C404").
		WillReturnError(sql.ErrNoRows)

	row := map[string]any{"customer_id": "C404"}

	for i := 0; i < 3; i++ {
		_, found, err := dim.Lookup(ctx, row)
		require.NoError(t, err)
		assert.False(t, found)
	}

	// The explicit miss was cached: exactly one round-trip.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup_MalformedKeyReturnsNotFound(t *testing.T) {
	db, mock := newMockQuerier(t)
	dim := Product(db, nil)
	ctx := context.Background()

	tests := []map[string]any{
		{},                          // key column absent
		{"product_id": nil},         // nil value
		{"product_id": ""},          // blank value
		{"product_id": "   "},       // whitespace only
		{"wrong_column": "P1"},      // different column
	}

	for _, row := range tests {
		key, found, err := dim.Lookup(ctx, row)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, key)
	}

	// Malformed keys never reach the warehouse.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDateKeyGranularity(t *testing.T) {
	// Timestamps on the same calendar day must collapse to one cache key.
	morning := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 15, 22, 5, 0, 0, time.UTC)

	assert.Equal(t, formatKeyValue(morning), formatKeyValue(evening))
	assert.Equal(t, "2024-03-15", formatKeyValue(morning))
}
