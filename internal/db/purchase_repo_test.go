package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scribepay/internal/types"
)

func anonymousPurchase() *types.AnonymousPurchase {
	return &types.AnonymousPurchase{
		Email:        "buyer@example.com",
		PaymentID:    "pf-100",
		AmountGross:  "99.00",
		PurchaseKind: "subscription_purchase",
		PaidAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RawPayload:   "raw",
	}
}

func TestPurchaseRepository_InsertAnonymous_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPurchaseRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		// id, email, payment_id, amount_gross, purchase_kind, paid_at, raw_payload
		return len(args) == 7 &&
			args[0] != "" &&
			args[1] == "buyer@example.com" &&
			args[2] == "pf-100"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.InsertAnonymous(context.Background(), anonymousPurchase())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPurchaseRepository_InsertAnonymous_DuplicateIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPurchaseRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := repo.InsertAnonymous(context.Background(), anonymousPurchase())
	require.NoError(t, err)
}

func TestPurchaseRepository_InsertAnonymous_KeepsProvidedID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPurchaseRepository(db, nil)

	p := anonymousPurchase()
	p.ID = "pur-fixed"

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 7 && args[0] == "pur-fixed"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.InsertAnonymous(context.Background(), p)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestPurchaseRepository_InsertAnonymous_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPurchaseRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.InsertAnonymous(context.Background(), anonymousPurchase())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
