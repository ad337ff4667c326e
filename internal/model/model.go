// Package model defines the row types flowing through the warehouse loader:
// source extracts, conformed dimension attributes, fact rows, and the
// end-of-run load report.
package model

import "time"

// Transaction is one sales record from the transactional extract.
// TotalAmount is derived during transformation (quantity * unit price,
// rounded to 2 decimals); it is zero until then.
type Transaction struct {
	OrderID     string
	ProductID   string
	CustomerID  string
	OrderDate   time.Time
	Quantity    int
	UnitPrice   float64
	Discount    float64
	Region      string // raw free-text region, normalized during fact loading
	TotalAmount float64
}

// Customer is one row from the customer reference extract.
type Customer struct {
	CustomerID string
	Name       string
	Segment    string
	Country    string
	City       string
}

// Product is one row from the product reference extract.
type Product struct {
	ProductID   string
	Name        string
	Category    string
	Subcategory string
	UnitPrice   float64
}

// RegionRef is one row from the region reference extract.
// A region name may repeat across countries; the region dimension keeps
// the first row per canonical name.
type RegionRef struct {
	RegionName string
	Country    string
	Continent  string
}

// DateAttributes holds the date dimension attributes, all derived
// deterministically from FullDate at calendar-day granularity.
type DateAttributes struct {
	FullDate  time.Time
	Day       int
	Month     int
	Year      int
	Quarter   int
	DayOfWeek string
	IsWeekend bool
}

// FactRow is a sales fact ready for persistence: four surrogate-key
// references plus four measures.
type FactRow struct {
	ProductKey  int64
	DateKey     int64
	CustomerKey int64
	RegionKey   int64
	Quantity    int
	UnitPrice   float64
	Discount    float64
	TotalAmount float64
}

// RejectReason classifies why a transaction was not admitted as a fact.
type RejectReason string

const (
	// ReasonInvalidProduct means the transaction references a product that
	// was not part of the product set loaded this run.
	ReasonInvalidProduct RejectReason = "invalid_product"

	// ReasonUnresolvedReference means at least one dimension lookup
	// returned no surrogate key.
	ReasonUnresolvedReference RejectReason = "unresolved_reference"

	// ReasonRowError means an unexpected error occurred while processing
	// the row; the row was skipped and the batch continued.
	ReasonRowError RejectReason = "row_error"
)

// DimensionLoad summarizes one dimension's load: how many source rows were
// processed and how many new dimension rows were created.
type DimensionLoad struct {
	Dimension   string
	RowsSeen    int
	RowsCreated int
}

// LoadReport aggregates the observable outcome of one pipeline run.
type LoadReport struct {
	Dimensions     []DimensionLoad
	FactsAdmitted  int
	FactsRejected  int
	RejectsByCause map[RejectReason]int
	Elapsed        time.Duration
}
