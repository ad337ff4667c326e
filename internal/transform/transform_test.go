package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamworks/starload/internal/model"
)

func TestTransactions_DerivesTotalAmount(t *testing.T) {
	txs := Transactions([]model.Transaction{
		{OrderID: "O1", Quantity: 3, UnitPrice: 19.995},
		{OrderID: "O2", Quantity: 2, UnitPrice: 10.00},
	})

	// Unit price rounds first, then the total.
	assert.Equal(t, 20.0, txs[0].UnitPrice)
	assert.Equal(t, 60.0, txs[0].TotalAmount)
	assert.Equal(t, 20.0, txs[1].TotalAmount)
}

func TestTransactions_TruncatesOrderDates(t *testing.T) {
	ts := time.Date(2024, 7, 4, 16, 45, 12, 0, time.UTC)
	txs := Transactions([]model.Transaction{{OrderDate: ts}})

	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), txs[0].OrderDate)
}

func TestDedupCustomers_FirstOccurrenceWins(t *testing.T) {
	customers := DedupCustomers([]model.Customer{
		{CustomerID: "C1", Name: "Ada", City: "Paris"},
		{CustomerID: "C2", Name: "Grace"},
		{CustomerID: "C1", Name: "Ada L.", City: "Lyon"}, // near-duplicate
	})

	require.Len(t, customers, 2)
	assert.Equal(t, "C1", customers[0].CustomerID)
	assert.Equal(t, "Ada", customers[0].Name)
	assert.Equal(t, "Paris", customers[0].City)
	assert.Equal(t, "C2", customers[1].CustomerID)
}

func TestDateDimension_DistinctSortedDates(t *testing.T) {
	txs := []model.Transaction{
		{OrderDate: time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)},
		{OrderDate: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)},
		{OrderDate: time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)}, // same day, later time
	}

	dates := DateDimension(txs)
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), dates[0].FullDate)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), dates[1].FullDate)
}

func TestDateAttributesFor(t *testing.T) {
	tests := []struct {
		date      time.Time
		quarter   int
		dayOfWeek string
		weekend   bool
	}{
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1, "Monday", false},
		{time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), 1, "Saturday", true},
		{time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), 2, "Sunday", true},
		{time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), 4, "Tuesday", false},
		{time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 4, "Tuesday", false},
	}

	for _, tt := range tests {
		attrs := DateAttributesFor(tt.date)
		assert.Equal(t, tt.quarter, attrs.Quarter, "quarter for %s", tt.date)
		assert.Equal(t, tt.dayOfWeek, attrs.DayOfWeek, "weekday for %s", tt.date)
		assert.Equal(t, tt.weekend, attrs.IsWeekend, "weekend flag for %s", tt.date)
		assert.Equal(t, tt.date.Day(), attrs.Day)
		assert.Equal(t, tt.date.Year(), attrs.Year)
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2345))
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, -1.23, Round2(-1.2349))
	assert.Equal(t, 0.0, Round2(0))
}
