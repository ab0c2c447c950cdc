package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Ramsey-B/fern/internal/repositories/repotest"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerID  = "0f7e2a9c-6b1d-4e55-8a0b-2f3c4d5e6f70"
	listingA = "4b1c7a43-0d36-4c1f-9a63-3c6a8b2f1e10"
	listingB = "9d0a51f4-5a8e-4b7c-8f51-0f0c9e3d2b77"
)

var sentAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock := repotest.NewDB(t)
	return NewRepository(db, repotest.Logger()), mock
}

func TestRepository_ListForBuyer(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT buyer_id, listing_id, notified_at, send_count, created_at FROM notification_records WHERE buyer_id = \$1 AND listing_id IN \(\$2, \$3\)`).
		WithArgs(buyerID, listingA, listingB).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(buyerID, listingA, sentAt, 2, sentAt))

	records, err := repo.ListForBuyer(context.Background(), buyerID, []string{listingA, listingB})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, listingA, records[0].ListingID)
	assert.Equal(t, 2, records[0].SendCount)
}

func TestRepository_ListForBuyerEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)

	records, err := repo.ListForBuyer(context.Background(), buyerID, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRepository_Upsert(t *testing.T) {
	returned := append(append([]string{}, recordColumns...), "inserted")

	tests := []struct {
		name        string
		sendCount   int
		inserted    bool
		wantCreated bool
	}{
		{name: "first send", sendCount: 1, inserted: true, wantCreated: true},
		{name: "resend", sendCount: 3, inserted: false, wantCreated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)

			mock.ExpectQuery(`INSERT INTO notification_records .* ON CONFLICT \(buyer_id, listing_id\) DO UPDATE SET notified_at = GREATEST\(notification_records\.notified_at, EXCLUDED\.notified_at\), send_count = notification_records\.send_count \+ 1 RETURNING .*\(xmax = 0\) AS inserted`).
				WithArgs(buyerID, listingA, sentAt, 1, sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows(returned).AddRow(buyerID, listingA, sentAt, tt.sendCount, sentAt, tt.inserted))

			rec, created, err := repo.Upsert(context.Background(), buyerID, listingA, sentAt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.Equal(t, tt.sendCount, rec.SendCount)
			assert.Equal(t, sentAt, rec.NotifiedAt)
		})
	}
}

func TestRepository_UpsertErrors(t *testing.T) {
	t.Run("unknown listing", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`INSERT INTO notification_records`).WillReturnError(&pq.Error{Code: "23503", Constraint: "fk_notification_records_listing"})

		_, _, err := repo.Upsert(context.Background(), buyerID, listingA, sentAt)
		assert.ErrorIs(t, err, models.ErrListingNotFound)
	})

	t.Run("unknown buyer", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`INSERT INTO notification_records`).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "fk_notification_records_buyer"})

		_, _, err := repo.Upsert(context.Background(), buyerID, listingA, sentAt)
		assert.ErrorIs(t, err, models.ErrClientNotFound)
		assert.NotErrorIs(t, err, models.ErrListingNotFound)
	})

	t.Run("database failure", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`INSERT INTO notification_records`).WillReturnError(errors.New("broken pipe"))

		_, _, err := repo.Upsert(context.Background(), buyerID, listingA, sentAt)
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrListingNotFound)
	})
}
