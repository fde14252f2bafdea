package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/taskqueue"
	"github.com/supplyline/catalog-service/internal/workers"
)

var syncProducts []int64

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Generate and execute sync previews",
}

var syncPreviewCmd = &cobra.Command{
	Use:   "preview <connection-id>",
	Short: "Analyze products against the remote and build a preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := catalog.NewPGStore(database.Pool())

		connRepo := database.NewConnectionRepo(database.Pool())
		conn, err := connRepo.Get(ctx, args[0])
		if err != nil {
			return err
		}

		productIDs := syncProducts
		if len(productIDs) == 0 {
			productIDs, err = store.SelectedProductIDs(ctx, conn.SupplierClientID)
			if err != nil {
				return err
			}
		}
		if len(productIDs) == 0 {
			return fmt.Errorf("no products selected for client %d", conn.SupplierClientID)
		}

		previewRepo := database.NewPreviewRepo(database.Pool())
		preview := &database.SyncPreview{
			ConnectionID: conn.ID,
			ProductIDs:   productIDs,
			SyncTotal:    len(productIDs),
			TriggeredBy:  "cli",
		}
		if err := previewRepo.Create(ctx, preview); err != nil {
			return err
		}

		payload, err := json.Marshal(taskqueue.AnalyzePayload{PreviewID: preview.ID})
		if err != nil {
			return err
		}
		handlers := workers.NewSyncHandlers(database.Pool(), store)
		if err := handlers.HandleAnalyze(ctx, payload); err != nil {
			return err
		}

		changes, err := previewRepo.Changes(ctx, preview.ID)
		if err != nil {
			return err
		}

		var creates, updates, skips int
		for _, ch := range changes {
			switch ch.ChangeType {
			case database.ChangeCreate:
				creates++
			case database.ChangeUpdate:
				updates++
			default:
				skips++
			}
		}
		fmt.Printf("Preview %s ready: %d to create, %d to update, %d unchanged\n",
			preview.ID, creates, updates, skips)
		for _, ch := range changes {
			if ch.HasWarning && ch.WarningMessage != nil {
				fmt.Printf("  warning %s: %s\n", ch.ProductName, *ch.WarningMessage)
			}
		}
		return nil
	},
}

var syncExecuteCmd = &cobra.Command{
	Use:   "execute <preview-id>",
	Short: "Execute a ready preview against the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		previewRepo := database.NewPreviewRepo(database.Pool())
		preview, err := previewRepo.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if preview.State != database.PreviewStateReady {
			return fmt.Errorf("preview is %s, expected %s", preview.State, database.PreviewStateReady)
		}

		payload, err := json.Marshal(taskqueue.ExecutePayload{PreviewID: preview.ID, TriggeredBy: "cli"})
		if err != nil {
			return err
		}
		handlers := workers.NewSyncHandlers(database.Pool(), catalog.NewPGStore(database.Pool()))
		if err := handlers.HandleExecute(ctx, payload); err != nil {
			return err
		}

		preview, err = previewRepo.Get(ctx, preview.ID)
		if err != nil {
			return err
		}
		if preview.HistoryID == nil {
			return fmt.Errorf("execution finished without a history entry")
		}

		historyRepo := database.NewHistoryRepo(database.Pool())
		entry, err := historyRepo.Get(ctx, *preview.HistoryID)
		if err != nil {
			return err
		}
		fmt.Printf("Sync %s: %d created, %d updated, %d skipped, %d errored (%.1fs)\n",
			entry.Status, entry.ProductsCreated, entry.ProductsUpdated,
			entry.ProductsSkipped, entry.ProductsErrored, float64(entry.DurationMS)/1000)
		if entry.ErrorLog != nil {
			fmt.Println(*entry.ErrorLog)
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status <preview-id>",
	Short: "Show the state and progress of a preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		previewRepo := database.NewPreviewRepo(database.Pool())
		preview, err := previewRepo.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("State:    %s\n", preview.State)
		fmt.Printf("Progress: %d%% (%d/%d)\n", preview.SyncProgress, preview.SyncCurrent, preview.SyncTotal)
		if preview.SyncMessage != "" {
			fmt.Printf("Message:  %s\n", preview.SyncMessage)
		}
		if preview.ErrorMessage != nil {
			fmt.Printf("Error:    %s\n", *preview.ErrorMessage)
		}
		if preview.HistoryID != nil {
			fmt.Printf("History:  %s\n", *preview.HistoryID)
		}
		return nil
	},
}

func init() {
	syncPreviewCmd.Flags().Int64SliceVar(&syncProducts, "products", nil, "product ids to analyze (default: the client's selection)")
	syncCmd.AddCommand(syncPreviewCmd)
	syncCmd.AddCommand(syncExecuteCmd)
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
