package memory

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlu-memory-assistant/internal/common/database"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
)

const storedDocument = `{"user_id":"u1","summary":"returning customer","context":{"tier":"gold"},` +
	`"nlu_analyses":[{"content":"งบ 40000","intents":[{"name":"purchase_intent","confidence":0.8}]}]}`

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(database.NewPostgresFromDB(db), "", logger.NewTestLogger(t))
	require.NoError(t, err)
	return store, mock
}

// ==========================
// Postgres backend
// ==========================

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS long_term_memory")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newPostgresStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT document FROM long_term_memory WHERE user_id = $1")

	mock.ExpectQuery(query).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(storedDocument)))

	mem, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "returning customer", mem.Summary)
	assert.Equal(t, "gold", mem.Context["tier"])
	require.Len(t, mem.NLUAnalyses, 1)

	mock.ExpectQuery(query).WithArgs("u2").WillReturnError(sql.ErrNoRows)
	_, err = store.Load(ctx, "u2")
	assert.True(t, errors.Is(err, ErrMemoryNotFound))

	mock.ExpectQuery(query).WithArgs("u3").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"user_id":""}`)))
	_, err = store.Load(ctx, "u3")
	assert.True(t, errors.Is(err, ErrLongTermStoreFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveUpserts(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs("u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), models.NewLongTermMemory("u1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddAnalysis(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{
			name: "existing document",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("u1").
					WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte(storedDocument)))
			},
		},
		{
			name: "first analysis",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("u1").WillReturnError(sql.ErrNoRows)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newPostgresStore(t)

			mock.ExpectBegin()
			tt.setup(mock)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO long_term_memory")).
				WithArgs("u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			err := store.AddAnalysis(context.Background(), "u1", sampleAnalysis("ซื้อเลย", "purchase_intent", 0.9))
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_AddAnalysisRollsBack(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("u1").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO long_term_memory")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.AddAnalysis(context.Background(), "u1", sampleAnalysis("ซื้อ", "purchase_intent", 0.9))
	assert.True(t, errors.Is(err, ErrLongTermStoreFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAndExists(t *testing.T) {
	store, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := store.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM long_term_memory WHERE user_id = $1")).WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(ctx, "u1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_RejectsBadTable(t *testing.T) {
	_, err := NewPostgresStore(nil, "memory; DROP TABLE users", logger.NewNoOpLogger())
	assert.True(t, errors.Is(err, ErrLongTermStoreFailed))
}
