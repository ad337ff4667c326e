package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamworks/starload/internal/cli/config"
)

const (
	testTransactionsCSV = `order_id,product_id,customer_id,order_date,quantity,unit_price,discount,region
O-1,P1,C1,2024-03-01,2,10.00,0,Europe East
O-2,P9,C1,2024-03-02,1,5.00,0,Europe East
`
	testProductsCSV = `product_id,product_name,category,subcategory,unit_price
P1,Widget,Hardware,Tools,10.00
`
	testRegionsCSV = `region_name,country,continent
Europe East,Germany,Europe
`
	testCustomersJSON = `[{"customer_id": "C1", "customer_name": "Acme", "segment": "SMB", "country": "DE", "city": "Berlin"}]`
)

// setupProject writes a working starload project into a temp directory,
// chdirs into it, and loads its configuration.
func setupProject(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	files := map[string]string{
		"transactions.csv": testTransactionsCSV,
		"products.csv":     testProductsCSV,
		"regions.csv":      testRegionsCSV,
		"customers.json":   testCustomersJSON,
		"starload.yaml": `
sources:
  transactions: transactions.csv
  customers: customers.json
  products: products.csv
  regions: regions.csv
state_path: state.db
warehouse:
  type: duckdb
  path: warehouse.duckdb
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	_, err := config.Load("", nil)
	require.NoError(t, err)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, NewVersionCommand("1.2.3"))
	assert.Contains(t, out, "starload v1.2.3")
}

func TestLoadCommand_JSON(t *testing.T) {
	setupProject(t)

	out := execute(t, NewLoadCommand(), "--json")

	var report struct {
		FactsAdmitted int `json:"facts_admitted"`
		FactsRejected int `json:"facts_rejected"`
		Dimensions    []struct {
			Dimension   string `json:"Dimension"`
			RowsCreated int    `json:"RowsCreated"`
		} `json:"dimensions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	assert.Equal(t, 1, report.FactsAdmitted)
	assert.Equal(t, 1, report.FactsRejected) // P9 is not a known product
	assert.Len(t, report.Dimensions, 4)
}

func TestLoadCommand_MissingSource(t *testing.T) {
	setupProject(t)
	require.NoError(t, os.Remove("regions.csv"))

	cmd := NewLoadCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regions source does not exist")
}

func TestInitCommand(t *testing.T) {
	setupProject(t)

	out := execute(t, NewInitCommand())
	assert.Contains(t, out, "Warehouse schema ready (duckdb)")
	assert.Contains(t, out, "Run history ready (state.db)")

	_, err := os.Stat("warehouse.duckdb")
	assert.NoError(t, err)
	_, err = os.Stat("state.db")
	assert.NoError(t, err)

	// Bootstrap is idempotent.
	execute(t, NewInitCommand())
}

func TestRunsCommand_Empty(t *testing.T) {
	setupProject(t)

	out := execute(t, NewRunsCommand())
	assert.Contains(t, out, "No runs recorded yet")
}

func TestRunsCommand_AfterLoad(t *testing.T) {
	setupProject(t)

	execute(t, NewLoadCommand(), "--json")

	out := execute(t, NewRunsCommand())
	assert.Contains(t, out, "completed")

	var runs []struct {
		ID     string `json:"ID"`
		Status string `json:"Status"`
	}
	jsonOut := execute(t, NewRunsCommand(), "--json")
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &runs))
	require.Len(t, runs, 1)

	detail := execute(t, NewRunsCommand(), runs[0].ID)
	assert.Contains(t, detail, runs[0].ID)
	assert.Contains(t, detail, "dim_product")
}
