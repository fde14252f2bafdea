package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/remote"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Inspect and test supplier connections",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := database.NewConnectionRepo(database.Pool())
		conns, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(conns) == 0 {
			fmt.Println("No connections configured")
			return nil
		}

		fmt.Printf("%-28s %-10s %-24s %-10s %-8s\n", "ID", "CLIENT", "NAME", "STATUS", "ACTIVE")
		for _, conn := range conns {
			fmt.Printf("%-28s %-10d %-24s %-10s %-8t\n",
				conn.ID, conn.SupplierClientID, conn.Name, conn.ConnectionStatus, conn.IsActive)
		}
		return nil
	},
}

var connectionsTestCmd = &cobra.Command{
	Use:   "test <connection-id>",
	Short: "Authenticate against the remote and record the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo := database.NewConnectionRepo(database.Pool())
		conn, err := repo.Get(ctx, args[0])
		if err != nil {
			return err
		}

		var result remote.TestResult
		client, err := remote.NewClient(remote.Config{
			URL:       conn.RemoteURL,
			Database:  conn.Database,
			APIKey:    conn.APIKey,
			Username:  conn.Username,
			VerifySSL: conn.VerifySSL,
			Timeout:   time.Duration(conn.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			result = remote.TestResult{Status: database.ConnStatusError, Error: err.Error(), TestedAt: time.Now().UTC()}
		} else {
			defer client.Close()
			result = client.TestConnection(ctx)
		}

		var testErr *string
		if result.Error != "" {
			testErr = &result.Error
		}
		if err := repo.SetTestResult(ctx, conn.ID, result.Status, testErr, result.TestedAt); err != nil {
			return err
		}

		if result.Status == database.ConnStatusOK {
			fmt.Printf("Connection %s: OK\n", conn.Name)
			return nil
		}
		return fmt.Errorf("connection %s failed: %s", conn.Name, result.Error)
	},
}

func init() {
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsTestCmd)
	rootCmd.AddCommand(connectionsCmd)
}
