package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/model"
)

// TestPostgresRepo_BulkCreateMatches_EmptyList tests that an empty fan-out
// touches the database not at all.
func TestPostgresRepo_BulkCreateMatches_EmptyList(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()

	err := repo.BulkCreateMatches(ctx, nil)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_BulkCreateMatches_Inserts tests the allocator fan-out insert.
func TestPostgresRepo_BulkCreateMatches_Inserts(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()

	matches := []model.Match{
		*model.NewMatch(&model.Match{LeadID: "lead-1", FirmID: "firm-1", Score: 0.9}),
		*model.NewMatch(&model.Match{LeadID: "lead-1", FirmID: "firm-2", Score: 0.7}),
	}

	mock.ExpectExec(`INSERT INTO "matches"`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.BulkCreateMatches(ctx, matches)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_FindPendingMatchesByLeadID tests loading pending matches.
func TestPostgresRepo_FindPendingMatchesByLeadID(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	cols := []string{"id", "lead_id", "firm_id", "score", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE lead_id = \$1 AND status = \$2`).
		WithArgs("lead-1", model.MatchStatusPending).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("match-1", "lead-1", "firm-1", 0.9, model.MatchStatusPending, now, now))

	matches, err := repo.FindPendingMatchesByLeadID(ctx, "lead-1")

	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "firm-1", matches[0].FirmID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_AcceptMatch_MissingMatchTolerated tests that accepting a
// match that was never created does not fail the claim.
func TestPostgresRepo_AcceptMatch_MissingMatchTolerated(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE lead_id = \$\d+ AND firm_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AcceptMatch(ctx, "lead-1", "firm-unmatched")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_ExpireOtherMatches_ReturnsLosers tests that the losing
// firms' matches are expired and returned for notification fan-out.
func TestPostgresRepo_ExpireOtherMatches_ReturnsLosers(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	cols := []string{"id", "lead_id", "firm_id", "score", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE lead_id = \$1 AND firm_id <> \$2 AND status = \$3`).
		WithArgs("lead-1", "firm-winner", model.MatchStatusPending).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("match-2", "lead-1", "firm-loser-1", 0.6, model.MatchStatusPending, now, now).
			AddRow("match-3", "lead-1", "firm-loser-2", 0.5, model.MatchStatusPending, now, now))
	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE id IN .+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	expired, err := repo.ExpireOtherMatches(ctx, "lead-1", "firm-winner")

	assert.NoError(t, err)
	assert.Len(t, expired, 2)
	assert.Equal(t, "firm-loser-1", expired[0].FirmID)
	assert.Equal(t, "firm-loser-2", expired[1].FirmID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_ExpireOtherMatches_NoLosers tests the single-candidate case.
func TestPostgresRepo_ExpireOtherMatches_NoLosers(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE lead_id = \$1 AND firm_id <> \$2 AND status = \$3`).
		WithArgs("lead-1", "firm-only", model.MatchStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lead_id", "firm_id", "status"}))

	expired, err := repo.ExpireOtherMatches(ctx, "lead-1", "firm-only")

	assert.NoError(t, err)
	assert.Empty(t, expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_ExpireMatchesOlderThan_BadLimit tests the guard on the sweep size.
func TestPostgresRepo_ExpireMatchesOlderThan_BadLimit(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.ExpireMatchesOlderThan(ctx, time.Now(), 0)

	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRepo_ExpireMatchesOlderThan_Sweeps tests the TTL sweep.
func TestPostgresRepo_ExpireMatchesOlderThan_Sweeps(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()
	cutoff := time.Now().Add(-24 * time.Hour)
	created := cutoff.Add(-time.Hour)

	cols := []string{"id", "lead_id", "firm_id", "score", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM "matches" WHERE status = \$1 AND created_at < \$2`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("match-old", "lead-9", "firm-9", 0.4, model.MatchStatusPending, created, created))
	mock.ExpectExec(`UPDATE "matches" SET .+ WHERE id IN .+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	expired, err := repo.ExpireMatchesOlderThan(ctx, cutoff, 500)

	assert.NoError(t, err)
	assert.Len(t, expired, 1)
	assert.Equal(t, "match-old", expired[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
