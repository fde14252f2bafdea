package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

func exportFields() []database.ExportField {
	return []database.ExportField{
		{Name: "Reference", TechnicalName: "default_code", Sequence: 10, Enabled: true},
		{Name: "Name", TechnicalName: "name", Header: "Product Name", Sequence: 20, Enabled: true},
		{Name: "Sales Price", TechnicalName: "list_price", Sequence: 30, Enabled: true},
		{Name: "Category", TechnicalName: "categ_id", Sequence: 40, Enabled: true},
	}
}

func exportProducts() []*catalog.Product {
	return []*catalog.Product{
		{ID: 1, Name: "Widget Pro", DefaultCode: "WID-001", ListPrice: 99.9, CategoryName: "Electronics"},
		{ID: 2, Name: "Gadget", DefaultCode: "GAD-001", ListPrice: 10, CategoryName: ""},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFields(), exportProducts()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// explicit header overrides the display name
	assert.Equal(t, []string{"Reference", "Product Name", "Sales Price", "Category"}, records[0])
	assert.Equal(t, []string{"WID-001", "Widget Pro", "99.90", "Electronics"}, records[1])
	assert.Equal(t, []string{"GAD-001", "Gadget", "10.00", ""}, records[2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, exportFields(), exportProducts()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Reference", rows[0][0])
	assert.Equal(t, "Widget Pro", rows[1][1])
	assert.Equal(t, "GAD-001", rows[2][0])
}

func TestValueUnknownFieldIsEmpty(t *testing.T) {
	assert.Empty(t, value(&catalog.Product{Name: "x"}, "no_such_field"))
}
