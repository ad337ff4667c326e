// Package source reads the raw extracts feeding the loader: transactions and
// products from CSV, customers from JSON, regions from CSV. Each reader
// validates its mandatory columns up front; a missing column is fatal for
// the run.
package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/loamworks/starload/internal/model"
)

// dateLayouts are tried in order when parsing order dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

type transactionRecord struct {
	OrderID    string   `csv:"order_id"`
	ProductID  string   `csv:"product_id"`
	CustomerID string   `csv:"customer_id"`
	OrderDate  string   `csv:"order_date"`
	Quantity   int      `csv:"quantity"`
	UnitPrice  float64  `csv:"unit_price"`
	Discount   *float64 `csv:"discount"`
	Region     string   `csv:"region"`
}

type productRecord struct {
	ProductID   string  `csv:"product_id"`
	ProductName string  `csv:"product_name"`
	Category    string  `csv:"category"`
	Subcategory string  `csv:"subcategory"`
	UnitPrice   float64 `csv:"unit_price"`
}

type regionRecord struct {
	RegionName string `csv:"region_name"`
	Country    string `csv:"country"`
	Continent  string `csv:"continent"`
}

type customerRecord struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Segment      string `json:"segment"`
	Country      string `json:"country"`
	City         string `json:"city"`
}

// ReadTransactions reads the sales extract. A "sale_id" header is accepted
// as an alias for "order_id". A null discount defaults to 0 on read.
func ReadTransactions(path string, logger *slog.Logger) ([]model.Transaction, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transactions file: %w", err)
	}
	defer f.Close()

	renames := map[string]string{"sale_id": "order_id"}
	dec, err := newCSVDecoder(f, renames,
		"order_id", "product_id", "customer_id", "order_date",
		"quantity", "unit_price", "discount", "region")
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}

	var out []model.Transaction
	for row := 1; ; row++ {
		var rec transactionRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("transactions row %d: %w", row, err)
		}

		orderDate, err := parseDate(rec.OrderDate)
		if err != nil {
			return nil, fmt.Errorf("transactions row %d: %w", row, err)
		}

		discount := 0.0
		if rec.Discount != nil {
			discount = *rec.Discount
		}

		out = append(out, model.Transaction{
			OrderID:    rec.OrderID,
			ProductID:  rec.ProductID,
			CustomerID: rec.CustomerID,
			OrderDate:  orderDate,
			Quantity:   rec.Quantity,
			UnitPrice:  rec.UnitPrice,
			Discount:   discount,
			Region:     rec.Region,
		})
	}

	logger.Info("transactions extracted", "path", path, "rows", len(out))
	return out, nil
}

// ReadProducts reads the product reference extract.
func ReadProducts(path string, logger *slog.Logger) ([]model.Product, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open products file: %w", err)
	}
	defer f.Close()

	dec, err := newCSVDecoder(f, nil,
		"product_id", "product_name", "category", "subcategory", "unit_price")
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}

	var out []model.Product
	for row := 1; ; row++ {
		var rec productRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("products row %d: %w", row, err)
		}
		out = append(out, model.Product{
			ProductID:   rec.ProductID,
			Name:        rec.ProductName,
			Category:    rec.Category,
			Subcategory: rec.Subcategory,
			UnitPrice:   rec.UnitPrice,
		})
	}

	logger.Info("products extracted", "path", path, "rows", len(out))
	return out, nil
}

// ReadRegions reads the region reference extract. A "region" header is
// accepted as an alias for "region_name". Region names are trimmed.
func ReadRegions(path string, logger *slog.Logger) ([]model.RegionRef, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open regions file: %w", err)
	}
	defer f.Close()

	renames := map[string]string{"region": "region_name"}
	dec, err := newCSVDecoder(f, renames, "region_name", "country", "continent")
	if err != nil {
		return nil, fmt.Errorf("regions: %w", err)
	}

	var out []model.RegionRef
	for row := 1; ; row++ {
		var rec regionRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("regions row %d: %w", row, err)
		}
		out = append(out, model.RegionRef{
			RegionName: strings.TrimSpace(rec.RegionName),
			Country:    rec.Country,
			Continent:  rec.Continent,
		})
	}

	logger.Info("regions extracted", "path", path, "rows", len(out))
	return out, nil
}

// ReadCustomers reads the customer reference extract (a JSON array).
func ReadCustomers(path string, logger *slog.Logger) ([]model.Customer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read customers file: %w", err)
	}

	var records []customerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse customers JSON: %w", err)
	}

	out := make([]model.Customer, len(records))
	for i, rec := range records {
		out[i] = model.Customer{
			CustomerID: rec.CustomerID,
			Name:       rec.CustomerName,
			Segment:    rec.Segment,
			Country:    rec.Country,
			City:       rec.City,
		}
	}

	logger.Info("customers extracted", "path", path, "rows", len(out))
	return out, nil
}

// newCSVDecoder reads and normalizes the header row, validates that every
// required column is present, and returns a decoder over the remaining rows.
func newCSVDecoder(r io.Reader, renames map[string]string, required ...string) (*csvutil.Decoder, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if alias, ok := renames[col]; ok {
			col = alias
		}
		header[i] = col
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing mandatory columns: %s", strings.Join(missing, ", "))
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}
	return dec, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable order date %q", s)
}
