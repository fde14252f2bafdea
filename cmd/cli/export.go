package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <connection-id>",
	Short: "Export the client's selected catalog to CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "csv" && exportFormat != "xlsx" {
			return fmt.Errorf("format must be csv or xlsx")
		}

		ctx := cmd.Context()
		connRepo := database.NewConnectionRepo(database.Pool())
		conn, err := connRepo.Get(ctx, args[0])
		if err != nil {
			return err
		}

		store := catalog.NewPGStore(database.Pool())
		ids, err := store.SelectedProductIDs(ctx, conn.SupplierClientID)
		if err != nil {
			return err
		}
		products, err := store.Products(ctx, ids)
		if err != nil {
			return err
		}

		fieldRepo := database.NewExportFieldRepo(database.Pool())
		if _, err := fieldRepo.InstallDefaults(ctx); err != nil {
			return err
		}
		fields, err := fieldRepo.Enabled(ctx)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("no export fields are enabled")
		}

		out := os.Stdout
		if exportOut != "" {
			out, err = os.Create(exportOut)
			if err != nil {
				return err
			}
			defer out.Close()
		}

		if exportFormat == "xlsx" {
			if exportOut == "" {
				return fmt.Errorf("xlsx export requires --out")
			}
			err = export.WriteXLSX(out, fields, products)
		} else {
			err = export.WriteCSV(out, fields, products)
		}
		if err != nil {
			return err
		}

		if exportOut != "" {
			fmt.Fprintf(os.Stderr, "Exported %d products to %s\n", len(products), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout for csv)")
	rootCmd.AddCommand(exportCmd)
}
