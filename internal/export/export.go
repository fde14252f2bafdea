// Package export renders a client's selected catalog to CSV or XLSX using
// the configured export column set.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

// value extracts one column value by technical name.
func value(p *catalog.Product, technicalName string) string {
	switch technicalName {
	case "default_code":
		return p.DefaultCode
	case "name":
		return p.Name
	case "barcode":
		return p.Barcode
	case "categ_id":
		return p.CategoryName
	case "list_price":
		return strconv.FormatFloat(p.ListPrice, 'f', 2, 64)
	case "standard_price":
		return strconv.FormatFloat(p.StandardPrice, 'f', 2, 64)
	case "weight":
		return strconv.FormatFloat(p.Weight, 'f', -1, 64)
	case "volume":
		return strconv.FormatFloat(p.Volume, 'f', -1, 64)
	case "description_sale":
		return p.DescriptionSale
	case "description_purchase":
		return p.DescriptionPurchase
	default:
		return ""
	}
}

// WriteCSV writes the enabled columns for every product, header row first.
func WriteCSV(w io.Writer, fields []database.ExportField, products []*catalog.Product) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(fields))
	for i := range fields {
		header[i] = fields[i].ExportHeader()
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(fields))
	for _, p := range products {
		for i := range fields {
			row[i] = value(p, fields[i].TechnicalName)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

const xlsxSheet = "Catalog"

// WriteXLSX writes the same table as a single-sheet workbook.
func WriteXLSX(w io.Writer, fields []database.ExportField, products []*catalog.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for col := range fields {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(xlsxSheet, cell, fields[col].ExportHeader()); err != nil {
			return err
		}
	}

	for rowIdx, p := range products {
		for col := range fields {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return err
			}
			name := fields[col].TechnicalName
			var cellValue interface{}
			switch name {
			case "list_price":
				cellValue = p.ListPrice
			case "standard_price":
				cellValue = p.StandardPrice
			case "weight":
				cellValue = p.Weight
			case "volume":
				cellValue = p.Volume
			default:
				cellValue = value(p, name)
			}
			if err := f.SetCellValue(xlsxSheet, cell, cellValue); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
