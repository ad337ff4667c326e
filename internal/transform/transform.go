// Package transform implements the transformation phase: derived measures,
// customer deduplication, and derivation of the date dimension from the
// dates present in the transaction data.
package transform

import (
	"math"
	"sort"
	"time"

	"github.com/loamworks/starload/internal/model"
)

// Round2 rounds to 2 decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// DateOnly truncates t to calendar-day granularity in UTC. Both the
// dimension-build side and the fact-resolution side go through this, so
// date lookups always agree.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Transactions normalizes the transactional extract in place: order dates
// truncated to calendar days, unit price rounded, and total amount computed
// as quantity * unit price rounded to 2 decimals.
func Transactions(txs []model.Transaction) []model.Transaction {
	for i := range txs {
		txs[i].OrderDate = DateOnly(txs[i].OrderDate)
		txs[i].UnitPrice = Round2(txs[i].UnitPrice)
		txs[i].TotalAmount = Round2(float64(txs[i].Quantity) * txs[i].UnitPrice)
	}
	return txs
}

// DedupCustomers removes duplicate customers by customer_id, keeping the
// first occurrence in source order.
func DedupCustomers(customers []model.Customer) []model.Customer {
	seen := make(map[string]bool, len(customers))
	out := customers[:0]
	for _, c := range customers {
		if seen[c.CustomerID] {
			continue
		}
		seen[c.CustomerID] = true
		out = append(out, c)
	}
	return out
}

// DateDimension derives date dimension rows from the distinct order dates
// present in the transactions, in ascending date order.
func DateDimension(txs []model.Transaction) []model.DateAttributes {
	distinct := make(map[time.Time]bool, len(txs))
	for _, tx := range txs {
		distinct[DateOnly(tx.OrderDate)] = true
	}

	dates := make([]time.Time, 0, len(distinct))
	for d := range distinct {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]model.DateAttributes, len(dates))
	for i, d := range dates {
		out[i] = DateAttributesFor(d)
	}
	return out
}

// DateAttributesFor derives all date dimension attributes from a calendar day.
func DateAttributesFor(t time.Time) model.DateAttributes {
	d := DateOnly(t)
	wd := d.Weekday()
	return model.DateAttributes{
		FullDate:  d,
		Day:       d.Day(),
		Month:     int(d.Month()),
		Year:      d.Year(),
		Quarter:   (int(d.Month())-1)/3 + 1,
		DayOfWeek: wd.String(),
		IsWeekend: wd == time.Saturday || wd == time.Sunday,
	}
}
