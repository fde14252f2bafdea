package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplyline/catalog-service/internal/catalog"
	"github.com/supplyline/catalog-service/internal/database"
)

type fakePreviewStore struct {
	state       string
	changes     []database.SyncChange
	cancelAfter int // flip state to cancelled on the Nth poll, 0 = never
	getCalls    int

	progress    []int
	completedID string
	historyID   string
	failedMsg   string
	failedState string
}

func (s *fakePreviewStore) Get(_ context.Context, id string) (*database.SyncPreview, error) {
	s.getCalls++
	if s.cancelAfter > 0 && s.getCalls >= s.cancelAfter {
		s.state = database.PreviewStateCancelled
	}
	return &database.SyncPreview{ID: id, State: s.state}, nil
}

func (s *fakePreviewStore) Changes(_ context.Context, _ string) ([]database.SyncChange, error) {
	return s.changes, nil
}

func (s *fakePreviewStore) Transition(_ context.Context, _, from, to string) error {
	if s.state != from {
		return database.ErrStateConflict
	}
	s.state = to
	return nil
}

func (s *fakePreviewStore) SetProgress(_ context.Context, _ string, current, _ int, _ string) error {
	s.progress = append(s.progress, current)
	return nil
}

func (s *fakePreviewStore) Fail(_ context.Context, _, state, message string) error {
	s.failedState = state
	s.failedMsg = message
	s.state = state
	return nil
}

func (s *fakePreviewStore) Complete(_ context.Context, id string, historyID string) error {
	s.completedID = id
	s.historyID = historyID
	s.state = database.PreviewStateDone
	return nil
}

type fakeHistoryStore struct {
	inserted *database.SyncHistory
}

func (s *fakeHistoryStore) Insert(_ context.Context, h *database.SyncHistory) error {
	h.ID = "hist-1"
	s.inserted = h
	return nil
}

type fakeConnStore struct {
	touched []string
}

func (s *fakeConnStore) TouchLastSync(_ context.Context, id string) error {
	s.touched = append(s.touched, id)
	return nil
}

func runnerFixture(t *testing.T, session *fakeSession, changes []database.SyncChange) (*Runner, *fakePreviewStore, *fakeHistoryStore, *fakeConnStore) {
	t.Helper()
	conn := execConn()
	store := &fakeStore{products: map[int64]*catalog.Product{
		101: execProduct(),
		102: {ID: 102, Name: "Gadget", DefaultCode: "GAD-001", ListPrice: 50},
		103: {ID: 103, Name: "Gizmo", DefaultCode: "GIZ-001", ListPrice: 25},
	}}
	exec := newExecutor(session, conn, store)

	previews := &fakePreviewStore{state: database.PreviewStateReady, changes: changes}
	history := &fakeHistoryStore{}
	conns := &fakeConnStore{}
	return NewRunner(previews, history, conns, exec, conn, "api"), previews, history, conns
}

func createChange(productID int64, name string) database.SyncChange {
	return database.SyncChange{
		ProductID:   productID,
		ProductName: name,
		ChangeType:  database.ChangeCreate,
	}
}

func TestRunAllCreatedIsSuccess(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(700), nil
			}
			return []interface{}{}, nil
		},
	}
	r, previews, history, conns := runnerFixture(t, session, []database.SyncChange{
		createChange(101, "Widget Pro"),
		createChange(102, "Gadget"),
	})

	h, err := r.Run(context.Background(), "prev-1")
	require.NoError(t, err)

	assert.Equal(t, database.HistoryStatusSuccess, h.Status)
	assert.Equal(t, 2, h.ProductsCreated)
	assert.Zero(t, h.ProductsErrored)
	assert.Equal(t, "hist-1", h.ID)
	assert.Equal(t, "hist-1", previews.historyID)
	assert.Equal(t, database.PreviewStateDone, previews.state)
	assert.Equal(t, []string{"conn-1"}, conns.touched)
	require.NotNil(t, history.inserted)
	assert.Equal(t, "api", history.inserted.TriggeredBy)
	assert.NotEmpty(t, history.inserted.Details)
}

func TestRunProductFailureIsIsolated(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, args []interface{}) (interface{}, error) {
			if method == "create" {
				vals := args[0].(map[string]interface{})
				if vals["name"] == "Gadget" {
					return nil, assert.AnError
				}
				return int64(700), nil
			}
			return []interface{}{}, nil
		},
	}
	r, _, _, _ := runnerFixture(t, session, []database.SyncChange{
		createChange(101, "Widget Pro"),
		createChange(102, "Gadget"),
		createChange(103, "Gizmo"),
	})

	h, err := r.Run(context.Background(), "prev-1")
	require.NoError(t, err)

	assert.Equal(t, database.HistoryStatusPartial, h.Status)
	assert.Equal(t, 2, h.ProductsCreated)
	assert.Equal(t, 1, h.ProductsErrored)
	require.NotNil(t, h.ErrorLog)
	assert.Contains(t, *h.ErrorLog, "Gadget")
}

func TestRunAllFailedIsError(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return nil, assert.AnError
			}
			return []interface{}{}, nil
		},
	}
	r, _, _, conns := runnerFixture(t, session, []database.SyncChange{
		createChange(101, "Widget Pro"),
	})

	h, err := r.Run(context.Background(), "prev-1")
	require.NoError(t, err)
	assert.Equal(t, database.HistoryStatusError, h.Status)
	assert.Empty(t, conns.touched)
}

func TestRunHonorsCancellation(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(700), nil
			}
			return []interface{}{}, nil
		},
	}
	r, previews, _, _ := runnerFixture(t, session, []database.SyncChange{
		createChange(101, "Widget Pro"),
		createChange(102, "Gadget"),
		createChange(103, "Gizmo"),
	})
	previews.cancelAfter = 2 // cancel arrives before the second product

	h, err := r.Run(context.Background(), "prev-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.ProductsCreated)
	assert.Equal(t, database.HistoryStatusPartial, h.Status)
	require.NotNil(t, h.ErrorLog)
	assert.Contains(t, *h.ErrorLog, "cancelled after 1 of 3")
	// the cancelled run still lands in done with its history attached
	assert.Equal(t, database.PreviewStateDone, previews.state)
	assert.Equal(t, "hist-1", previews.historyID)
}

func TestRunCancelledBeforeFirstProductIsError(t *testing.T) {
	session := &fakeSession{
		handler: func(model, method string, _ []interface{}) (interface{}, error) {
			if method == "create" {
				return int64(700), nil
			}
			return []interface{}{}, nil
		},
	}
	r, previews, _, conns := runnerFixture(t, session, []database.SyncChange{
		createChange(101, "Widget Pro"),
		createChange(102, "Gadget"),
	})
	previews.cancelAfter = 1 // cancel arrives before anything runs

	h, err := r.Run(context.Background(), "prev-1")
	require.NoError(t, err)

	assert.Zero(t, h.ProductsCreated)
	assert.Equal(t, database.HistoryStatusError, h.Status)
	require.NotNil(t, h.ErrorLog)
	assert.Contains(t, *h.ErrorLog, "cancelled after 0 of 2")
	assert.Empty(t, conns.touched)
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name                               string
		created, updated, skipped, errored int
		cancelled                          bool
		want                               string
	}{
		{"clean run", 2, 1, 1, 0, false, database.HistoryStatusSuccess},
		{"all skipped", 0, 0, 3, 0, false, database.HistoryStatusSuccess},
		{"errors alongside successes", 1, 0, 0, 2, false, database.HistoryStatusPartial},
		{"only skips and errors", 0, 0, 2, 1, false, database.HistoryStatusError},
		{"everything failed", 0, 0, 0, 3, false, database.HistoryStatusError},
		{"cancelled with progress", 1, 0, 0, 0, true, database.HistoryStatusPartial},
		{"cancelled before any success", 0, 0, 1, 0, true, database.HistoryStatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &database.SyncHistory{
				ProductsCreated: tt.created,
				ProductsUpdated: tt.updated,
				ProductsSkipped: tt.skipped,
				ProductsErrored: tt.errored,
			}
			assert.Equal(t, tt.want, aggregateStatus(h, tt.cancelled))
		})
	}
}

func TestRunRequiresReadyState(t *testing.T) {
	session := &fakeSession{}
	r, previews, _, _ := runnerFixture(t, session, nil)
	previews.state = database.PreviewStateDraft

	_, err := r.Run(context.Background(), "prev-1")
	assert.ErrorIs(t, err, database.ErrStateConflict)
}
