package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newOperationStoreMock(t *testing.T) (*GormOperationStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormOperationStore(gormDB), mock
}

func operationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "room_id", "user_id", "operation_type", "operation_data", "sequence_number", "created_at",
	})
}

func TestGormOperationStoreAppend(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "operations"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		op := &Operation{
			RoomID:         1,
			UserID:         2,
			OperationType:  "stroke",
			OperationData:  "{}",
			SequenceNumber: 3,
			CreatedAt:      time.Now().UTC(),
		}
		require.NoError(t, store.Append(context.Background(), op))
		assert.Equal(t, uint64(7), op.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateSequenceRollsBack", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "operations"`).
			WillReturnError(errors.New("duplicate key value violates unique constraint \"idx_room_sequence\""))
		mock.ExpectRollback()

		err := store.Append(context.Background(), &Operation{RoomID: 1, SequenceNumber: 3})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormOperationStoreLastSequence(t *testing.T) {
	t.Run("ReturnsHighest", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectQuery(`SELECT \* FROM "operations"`).
			WithArgs(uint64(1), 1).
			WillReturnRows(operationRows().AddRow(9, 1, 2, "stroke", "{}", 42, time.Now()))

		last, err := store.LastSequence(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(42), last)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyRoomIsZero", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectQuery(`SELECT \* FROM "operations"`).
			WithArgs(uint64(1), 1).
			WillReturnRows(operationRows())

		last, err := store.LastSequence(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), last)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormOperationStoreListSince(t *testing.T) {
	t.Run("FiltersBySequence", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectQuery(`SELECT \* FROM "operations"`).
			WithArgs(uint64(1), int64(2)).
			WillReturnRows(operationRows().
				AddRow(3, 1, 2, "stroke", "{}", 3, time.Now()).
				AddRow(4, 1, 2, "stroke", "{}", 4, time.Now()))

		ops, err := store.ListSince(context.Background(), 1, 2)
		require.NoError(t, err)
		require.Len(t, ops, 2)
		assert.Equal(t, int64(3), ops[0].SequenceNumber)
		assert.Equal(t, int64(4), ops[1].SequenceNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ZeroCursorReturnsFullLog", func(t *testing.T) {
		store, mock := newOperationStoreMock(t)

		mock.ExpectQuery(`SELECT \* FROM "operations"`).
			WithArgs(uint64(1)).
			WillReturnRows(operationRows().AddRow(1, 1, 2, "stroke", "{}", 1, time.Now()))

		ops, err := store.ListSince(context.Background(), 1, 0)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
