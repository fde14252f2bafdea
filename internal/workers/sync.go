package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
	"github.com/supplyline/catalog-service/internal/executor"
	"github.com/supplyline/catalog-service/internal/preview"
	"github.com/supplyline/catalog-service/internal/reconcile"
	"github.com/supplyline/catalog-service/internal/remote"
	"github.com/supplyline/catalog-service/internal/taskqueue"
)

// SyncHandlers wires the analyze and execute task types to the sync engine.
// Each task dials its own remote session so a dead connection never poisons
// another task.
type SyncHandlers struct {
	connections *database.ConnectionRepo
	mappings    *database.MappingRepo
	previews    *database.PreviewRepo
	history     *database.HistoryRepo
	catalog     catalog.Store
}

func NewSyncHandlers(pool *pgxpool.Pool, store catalog.Store) *SyncHandlers {
	return &SyncHandlers{
		connections: database.NewConnectionRepo(pool),
		mappings:    database.NewMappingRepo(pool),
		previews:    database.NewPreviewRepo(pool),
		history:     database.NewHistoryRepo(pool),
		catalog:     store,
	}
}

// Register attaches both handlers to a worker.
func (h *SyncHandlers) Register(w *Worker) {
	w.RegisterHandler(taskqueue.TaskTypeAnalyze, h.HandleAnalyze)
	w.RegisterHandler(taskqueue.TaskTypeExecute, h.HandleExecute)
}

// dial builds an authenticated session for the preview's connection.
func (h *SyncHandlers) dial(ctx context.Context, previewID string) (*database.Connection, *remote.Client, remote.Session, error) {
	p, err := h.previews.Get(ctx, previewID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading preview %s: %w", previewID, err)
	}
	conn, err := h.connections.Get(ctx, p.ConnectionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading connection %s: %w", p.ConnectionID, err)
	}

	client, err := remote.NewClient(remote.Config{
		URL:       conn.RemoteURL,
		Database:  conn.Database,
		APIKey:    conn.APIKey,
		Username:  conn.Username,
		VerifySSL: conn.VerifySSL,
		Timeout:   time.Duration(conn.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	session, err := client.Authenticate(ctx)
	if err != nil {
		client.Close()
		return nil, nil, nil, err
	}
	return conn, client, session, nil
}

// HandleAnalyze runs preview analysis for a draft preview.
func (h *SyncHandlers) HandleAnalyze(ctx context.Context, payload []byte) error {
	var req taskqueue.AnalyzePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding analyze payload: %w", err)
	}

	conn, client, session, err := h.dial(ctx, req.PreviewID)
	if err != nil {
		if failErr := h.previews.Fail(context.WithoutCancel(ctx), req.PreviewID,
			database.PreviewStateDraft, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("preview_id", req.PreviewID).Msg("recording dial failure")
		}
		return err
	}
	defer client.Close()

	fieldMappings, err := h.mappings.FieldMappings(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("loading field mappings: %w", err)
	}

	generator := preview.NewGenerator(h.catalog, session, conn, fieldMappings)
	runner := preview.NewRunner(h.previews, generator)
	return runner.Run(ctx, req.PreviewID)
}

// HandleExecute runs a ready preview against the remote.
func (h *SyncHandlers) HandleExecute(ctx context.Context, payload []byte) error {
	var req taskqueue.ExecutePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding execute payload: %w", err)
	}

	conn, client, session, err := h.dial(ctx, req.PreviewID)
	if err != nil {
		if failErr := h.previews.Fail(context.WithoutCancel(ctx), req.PreviewID,
			database.PreviewStateReady, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("preview_id", req.PreviewID).Msg("recording dial failure")
		}
		return err
	}
	defer client.Close()

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "worker"
	}

	reconciler := reconcile.New(h.mappings, session, conn)
	exec := executor.New(h.catalog, session, conn, reconciler)
	runner := executor.NewRunner(h.previews, h.history, h.connections, exec, conn, triggeredBy)

	_, err = runner.Run(ctx, req.PreviewID)
	return err
}
