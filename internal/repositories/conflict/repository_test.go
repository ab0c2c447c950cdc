package conflict

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Ramsey-B/fern/internal/repositories/repotest"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conflictID = "6c0e7f3a-2b4d-4a1e-9f8c-7d6e5f4a3b21"

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock := repotest.NewDB(t)
	return NewRepository(db, repotest.Logger()), mock
}

func TestRepository_Create(t *testing.T) {
	repo, mock := newTestRepository(t)
	conflict := &models.DuplicateConflict{
		ChosenListingID:     "b",
		CandidateListingIDs: pq.StringArray{"a", "b"},
		RawAddress:          "Via Roma 10",
		City:                "Milano",
		PortalSource:        models.SourceScraperIdealista,
	}

	mock.ExpectExec(`INSERT INTO duplicate_conflicts \(id, chosen_listing_id, candidate_listing_ids, .*\) VALUES`).
		WithArgs(sqlmock.AnyArg(), "b", "{\"a\",\"b\"}", "Via Roma 10", "Milano", "scraper-idealista",
			nil, "open", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), conflict))
	assert.NotEmpty(t, conflict.ID)
	assert.Equal(t, models.ConflictStatusOpen, conflict.Status)
}

func TestRepository_List(t *testing.T) {
	repo, mock := newTestRepository(t)
	open := models.ConflictStatusOpen
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM duplicate_conflicts WHERE status = \$1 ORDER BY created_at DESC, id DESC`).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows(conflictColumns).
			AddRow(conflictID, "b", "{a,b}", "Via Roma 10", "Milano", "scraper-idealista", nil, "open", now, nil))

	conflicts, err := repo.List(context.Background(), &open)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"a", "b"}, []string(conflicts[0].CandidateListingIDs))
	assert.Nil(t, conflicts[0].ResolvedAt)
}

func TestRepository_Resolve(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		now := time.Now().UTC()

		mock.ExpectQuery(`UPDATE duplicate_conflicts SET status = \$1, resolved_at = COALESCE\(resolved_at, \$2\) WHERE id = \$3 RETURNING id, `).
			WithArgs("resolved", sqlmock.AnyArg(), conflictID).
			WillReturnRows(sqlmock.NewRows(conflictColumns).
				AddRow(conflictID, "b", "{a,b}", "Via Roma 10", "Milano", "scraper-idealista", nil, "resolved", now, now))

		conflict, err := repo.Resolve(context.Background(), conflictID)
		require.NoError(t, err)
		assert.Equal(t, models.ConflictStatusResolved, conflict.Status)
		assert.NotNil(t, conflict.ResolvedAt)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(`UPDATE duplicate_conflicts`).WillReturnError(sql.ErrNoRows)

		_, err := repo.Resolve(context.Background(), conflictID)
		assert.ErrorIs(t, err, models.ErrConflictNotFound)
	})
}
