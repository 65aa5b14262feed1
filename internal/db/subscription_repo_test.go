package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scribepay/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- SubscriptionRepository Tests ---

func TestSubscriptionRepository_UpsertActiveByToken_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		// id, user_id, token, status, amount, payment_id, payload
		return len(args) == 7 &&
			args[1] == "user-1" &&
			args[2] == "tok-abc" &&
			args[3] == types.SubStatusActive &&
			args[4] == "99.00" &&
			args[5] == "pf-100"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.UpsertActiveByToken(context.Background(), "user-1", "tok-abc", "99.00", "pf-100", "raw")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_UpsertActiveByToken_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.UpsertActiveByToken(context.Background(), "user-1", "tok-abc", "99.00", "pf-100", "raw")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepository_MarkCancelledByToken_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	cancelledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 5 &&
			args[0] == types.SubStatusCancelled &&
			args[1] == cancelledAt &&
			args[2] == "gateway_notification" &&
			args[4] == "tok-abc"
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	found, err := repo.MarkCancelledByToken(context.Background(), "tok-abc", "gateway_notification", "raw", cancelledAt)
	require.NoError(t, err)
	assert.True(t, found)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_MarkCancelledByToken_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	found, err := repo.MarkCancelledByToken(context.Background(), "tok-unknown", "gateway_notification", "raw", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSubscriptionRepository_MarkPastDueByToken_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 4 &&
			args[0] == types.SubStatusPastDue &&
			args[1] == "pf-200" &&
			args[3] == "tok-abc"
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	found, err := repo.MarkPastDueByToken(context.Background(), "tok-abc", "pf-200", "raw")
	require.NoError(t, err)
	assert.True(t, found)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_MarkPastDueByToken_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection reset"))

	_, err := repo.MarkPastDueByToken(context.Background(), "tok-abc", "pf-200", "raw")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepository_GetByOwnerAndToken_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sub-1"
			*dest[1].(*string) = "user-1"
			*dest[2].(*string) = "tok-abc"
			*dest[3].(*types.SubscriptionStatus) = types.SubStatusActive
			*dest[4].(*string) = "99.00"
			*dest[5].(*string) = "pf-100"
			*dest[6].(*string) = "raw"
			*dest[7].(**time.Time) = nil
			*dest[8].(*string) = ""
			*dest[9].(*time.Time) = now
			*dest[10].(*time.Time) = now
			return nil
		},
	}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 2 && args[0] == "user-1" && args[1] == "tok-abc"
	})).Return(row)

	sub, err := repo.GetByOwnerAndToken(context.Background(), "user-1", "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, types.SubStatusActive, sub.Status)
	assert.Nil(t, sub.CancelledAt)
}

func TestSubscriptionRepository_GetByOwnerAndToken_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByOwnerAndToken(context.Background(), "user-1", "tok-unknown")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepository_MarkCancelledByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 4 && args[0] == types.SubStatusCancelled && args[3] == "sub-1"
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkCancelledByID(context.Background(), "sub-1", "user_requested", time.Now())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_MarkCancelledByID_ZeroRowsIsError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkCancelledByID(context.Background(), "sub-gone", "user_requested", time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}
