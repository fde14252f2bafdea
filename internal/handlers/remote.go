package handlers

import (
	"context"
	"time"

	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/remote"
)

// dial builds a remote client for a stored connection.
func dial(conn *database.Connection) (*remote.Client, error) {
	return remote.NewClient(remote.Config{
		URL:       conn.RemoteURL,
		Database:  conn.Database,
		APIKey:    conn.APIKey,
		Username:  conn.Username,
		VerifySSL: conn.VerifySSL,
		Timeout:   time.Duration(conn.TimeoutSeconds) * time.Second,
	})
}

// dialSession builds a client and authenticates in one step.
func dialSession(ctx context.Context, conn *database.Connection) (*remote.Client, remote.Session, error) {
	client, err := dial(conn)
	if err != nil {
		return nil, nil, err
	}
	session, err := client.Authenticate(ctx)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, session, nil
}
