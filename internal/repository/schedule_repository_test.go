package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRepoFixture(t *testing.T) (*ScheduleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewScheduleRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func entryRows(entries ...models.ScheduleEntry) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "section_id", "semester", "day_of_week", "start_minute",
		"end_minute", "room_id", "faculty_id", "created_at", "updated_at",
	})
	for _, e := range entries {
		var room, faculty interface{}
		if e.RoomID.Valid {
			room = e.RoomID.ID
		}
		if e.FacultyID.Valid {
			faculty = e.FacultyID.ID
		}
		rows.AddRow(e.ID, e.SectionID, e.Semester, e.DayOfWeek, int(e.StartMinute),
			int(e.EndMinute), room, faculty, e.CreatedAt, e.UpdatedAt)
	}
	return rows
}

func storedEntry(id string) models.ScheduleEntry {
	return models.ScheduleEntry{
		ID:          id,
		SectionID:   "S1",
		Semester:    "2024-Fall",
		DayOfWeek:   3,
		StartMinute: 540,
		EndMinute:   600,
		RoomID:      models.Assigned("R1"),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestFindCandidates(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`SELECT (.+) FROM schedule_entries WHERE semester = \$1 AND day_of_week = \$2 ORDER BY start_minute ASC, id ASC`).
		WithArgs("2024-Fall", 3).
		WillReturnRows(entryRows(storedEntry("e1")))

	entries, err := repo.FindCandidates(context.Background(), nil, "2024-Fall", 3, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID)
	assert.True(t, entries[0].RoomID.Valid)
	assert.False(t, entries[0].FacultyID.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCandidatesExcludesID(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`SELECT (.+) FROM schedule_entries WHERE semester = \$1 AND day_of_week = \$2 AND id <> \$3 ORDER BY start_minute ASC, id ASC`).
		WithArgs("2024-Fall", 3, "self").
		WillReturnRows(entryRows())

	entries, err := repo.FindCandidates(context.Background(), nil, "2024-Fall", 3, "self")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockResourcesTakesAllSlotLocks(t *testing.T) {
	repo, mock := newRepoFixture(t)

	entry := storedEntry("e1")
	entry.FacultyID = models.Assigned("F1")

	// section + room + faculty
	for i := 0; i < 3; i++ {
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, repo.LockResources(context.Background(), nil, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockResourcesSkipsUnassigned(t *testing.T) {
	repo, mock := newRepoFixture(t)

	entry := storedEntry("e1")
	entry.RoomID = models.Ref{}

	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockResources(context.Background(), nil, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesFilters(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`SELECT (.+) FROM schedule_entries WHERE 1=1 AND semester = \$1 AND day_of_week = \$2 AND section_id = \$3 ORDER BY day_of_week ASC, start_minute ASC`).
		WithArgs("2024-Fall", 3, "S1").
		WillReturnRows(entryRows(storedEntry("e1")))

	entries, err := repo.List(context.Background(), models.ScheduleEntryFilter{
		Semester:  "2024-Fall",
		DayOfWeek: 3,
		SectionID: "S1",
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`SELECT (.+) FROM schedule_entries WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(entryRows(storedEntry("e1")))

	entry, err := repo.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`SELECT (.+) FROM schedule_entries WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectExec(`INSERT INTO schedule_entries`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := storedEntry("")
	entry.ID = ""
	entry.CreatedAt = time.Time{}
	entry.UpdatedAt = time.Time{}

	require.NoError(t, repo.Create(context.Background(), nil, &entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.False(t, entry.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTouchesUpdatedAt(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectExec(`UPDATE schedule_entries SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := storedEntry("e1")
	before := entry.UpdatedAt

	require.NoError(t, repo.Update(context.Background(), nil, &entry))
	assert.False(t, entry.UpdatedAt.Before(before))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectExec(`DELETE FROM schedule_entries WHERE id = \$1`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "e1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSlotTaken(t *testing.T) {
	assert.True(t, IsSlotTaken(&pq.Error{Code: "23P01"}))
	assert.True(t, IsSlotTaken(&pq.Error{Code: "23505"}))
	assert.False(t, IsSlotTaken(&pq.Error{Code: "23503"}))
	assert.False(t, IsSlotTaken(errors.New("plain")))
	assert.False(t, IsSlotTaken(nil))
}
