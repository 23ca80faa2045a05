package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timeslot"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func minutes(v int) timeslot.Minutes { return timeslot.Minutes(v) }

type scheduleRepoStub struct {
	db *sqlx.DB

	candidateSets [][]models.ScheduleEntry
	candidatesErr error

	findCandidatesCalls int
	lastSemester        string
	lastDay             int
	lastExclude         string
	lockCalls           int

	existing    *models.ScheduleEntry
	findByIDErr error

	createErr error
	created   *models.ScheduleEntry
	updateErr error
	updated   *models.ScheduleEntry
	deleted   []string
}

func (s *scheduleRepoStub) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

func (s *scheduleRepoStub) LockResources(ctx context.Context, exec sqlx.ExtContext, entry models.ScheduleEntry) error {
	s.lockCalls++
	return nil
}

func (s *scheduleRepoStub) FindCandidates(ctx context.Context, exec sqlx.ExtContext, semester string, dayOfWeek int, excludeID string) ([]models.ScheduleEntry, error) {
	s.findCandidatesCalls++
	s.lastSemester = semester
	s.lastDay = dayOfWeek
	s.lastExclude = excludeID
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	if len(s.candidateSets) == 0 {
		return nil, nil
	}
	set := s.candidateSets[0]
	if len(s.candidateSets) > 1 {
		s.candidateSets = s.candidateSets[1:]
	}
	var out []models.ScheduleEntry
	for _, entry := range set {
		if excludeID != "" && entry.ID == excludeID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleEntryFilter) ([]models.ScheduleEntry, error) {
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	if len(s.candidateSets) == 0 {
		return nil, nil
	}
	return s.candidateSets[0], nil
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	if s.findByIDErr != nil {
		return nil, s.findByIDErr
	}
	if s.existing == nil {
		return nil, sql.ErrNoRows
	}
	return s.existing, nil
}

func (s *scheduleRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = entry
	return nil
}

func (s *scheduleRepoStub) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = entry
	return nil
}

func (s *scheduleRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func newScheduleServiceFixture(t *testing.T) (*ScheduleService, *scheduleRepoStub, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stub := &scheduleRepoStub{db: sqlx.NewDb(db, "sqlmock")}
	svc := NewScheduleService(stub, nil, validator.New(), zap.NewNop(), nil, 0)
	return svc, stub, mock
}

func persisted(id, section, semester string, day int, start, end int, room, faculty string) models.ScheduleEntry {
	entry := models.ScheduleEntry{
		ID:          id,
		SectionID:   section,
		Semester:    semester,
		DayOfWeek:   day,
		StartMinute: minutes(start),
		EndMinute:   minutes(end),
	}
	if room != "" {
		entry.RoomID = models.Assigned(room)
	}
	if faculty != "" {
		entry.FacultyID = models.Assigned(faculty)
	}
	return entry
}

func strPtr(v string) *string { return &v }

func createReq(section, semester string, day int, start, end, room, faculty string) dto.CreateScheduleEntryRequest {
	req := dto.CreateScheduleEntryRequest{
		SectionID: section,
		Semester:  semester,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
	}
	if room != "" {
		req.RoomID = strPtr(room)
	}
	if faculty != "" {
		req.FacultyID = strPtr(faculty)
	}
	return req
}

func TestScheduleServiceCreateStructuralRejectionSkipsStore(t *testing.T) {
	svc, stub, _ := newScheduleServiceFixture(t)

	cases := []dto.CreateScheduleEntryRequest{
		createReq("S1", "2024-Fall", 8, "09:00", "10:00", "", ""),
		createReq("S1", "2024-Fall", 3, "10:00", "09:00", "", ""),
		createReq("S1", "2024-Fall", 3, "10:00", "10:00", "", ""),
		createReq("S1", "2024-Fall", 3, "morning", "10:00", "", ""),
		createReq("", "2024-Fall", 3, "09:00", "10:00", "", ""),
		createReq("S1", "", 3, "09:00", "10:00", "", ""),
	}

	for _, req := range cases {
		_, err := svc.Create(context.Background(), req)
		require.Error(t, err, "payload %+v", req)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code, "payload %+v", req)
	}

	assert.Zero(t, stub.findCandidatesCalls, "structural failures must not query the store")
	assert.Zero(t, stub.lockCalls)
}

func TestScheduleServiceCreateRoomConflict(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidateSets = [][]models.ScheduleEntry{{
		persisted("e1", "S2", "2024-Fall", 3, 540, 600, "R1", ""),
	}}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 3, "09:30", "10:30", "R1", ""))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	report, ok := appErr.Details.(models.ConflictReport)
	require.True(t, ok, "conflict error must carry the report")
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, models.ConflictRoom, report.Reasons[0].Type)
	assert.Equal(t, "e1", report.Reasons[0].ConflictingEntryID)

	assert.Nil(t, stub.created, "rejected proposals must not be written")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceCreateAdjacentSucceeds(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidateSets = [][]models.ScheduleEntry{{
		persisted("e1", "S2", "2024-Fall", 2, 540, 600, "R2", ""),
	}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 2, "10:00", "11:00", "R2", ""))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, stub.created, entry)
	assert.Equal(t, 1, stub.lockCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceCreateFacultyConflictAcrossRooms(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidateSets = [][]models.ScheduleEntry{{
		persisted("e1", "S2", "2024-Fall", 5, 840, 900, "R1", "F1"),
	}}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 5, "14:30", "15:30", "R2", "F1"))
	require.Error(t, err)

	report := appErrors.FromError(err).Details.(models.ConflictReport)
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, models.ConflictFaculty, report.Reasons[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceCreateMultiReasonOrder(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidateSets = [][]models.ScheduleEntry{{
		persisted("e1", "S2", "2024-Fall", 3, 540, 600, "R1", "F1"),
	}}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 3, "09:30", "10:30", "R1", "F1"))
	require.Error(t, err)

	report := appErrors.FromError(err).Details.(models.ConflictReport)
	require.Len(t, report.Reasons, 2)
	assert.Equal(t, models.ConflictRoom, report.Reasons[0].Type)
	assert.Equal(t, models.ConflictFaculty, report.Reasons[1].Type)
}

func TestScheduleServiceValidateQueriesProposedScope(t *testing.T) {
	svc, stub, _ := newScheduleServiceFixture(t)

	proposed := persisted("", "S1", "2025-Spring", 4, 540, 600, "R1", "")
	report, err := svc.Validate(context.Background(), proposed, "")
	require.NoError(t, err)
	assert.True(t, report.Empty())

	// Candidate scoping is the query's job: semester and day travel verbatim.
	assert.Equal(t, "2025-Spring", stub.lastSemester)
	assert.Equal(t, 4, stub.lastDay)
	assert.Empty(t, stub.lastExclude)
}

func TestScheduleServiceValidateIdempotentRejection(t *testing.T) {
	svc, stub, _ := newScheduleServiceFixture(t)
	conflicting := []models.ScheduleEntry{
		persisted("e1", "S2", "2024-Fall", 3, 540, 600, "R1", "F1"),
	}
	stub.candidateSets = [][]models.ScheduleEntry{conflicting, conflicting}

	proposed := persisted("", "S1", "2024-Fall", 3, 570, 630, "R1", "")
	first, err := svc.Validate(context.Background(), proposed, "")
	require.NoError(t, err)
	second, err := svc.Validate(context.Background(), proposed, "")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same proposal against unchanged state must yield identical reports")
	require.Len(t, first.Reasons, 1)
	assert.Equal(t, models.ConflictRoom, first.Reasons[0].Type)
}

func TestScheduleServiceUpdateExcludesSelf(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	existing := persisted("e1", "S1", "2024-Fall", 3, 540, 600, "R1", "F1")
	stub.existing = &existing
	stub.candidateSets = [][]models.ScheduleEntry{{existing}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	// No-op update: same fields, must not conflict with its own prior version.
	entry, err := svc.Update(context.Background(), "e1", dto.UpdateScheduleEntryRequest{})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "e1", stub.lastExclude)
	assert.Equal(t, existing.StartMinute, entry.StartMinute)
	assert.Equal(t, existing.RoomID, entry.RoomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceUpdateMergesPartialPayload(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	existing := persisted("e1", "S1", "2024-Fall", 3, 540, 600, "R1", "F1")
	stub.existing = &existing

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Update(context.Background(), "e1", dto.UpdateScheduleEntryRequest{
		StartTime: strPtr("11:00"),
		EndTime:   strPtr("12:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, minutes(660), entry.StartMinute)
	assert.Equal(t, minutes(720), entry.EndMinute)
	assert.Equal(t, existing.SectionID, entry.SectionID)
	assert.Equal(t, existing.RoomID, entry.RoomID, "omitted room keeps stored value")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceUpdateClearsRoomWithEmptyString(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	existing := persisted("e1", "S1", "2024-Fall", 3, 540, 600, "R1", "")
	stub.existing = &existing

	mock.ExpectBegin()
	mock.ExpectCommit()

	entry, err := svc.Update(context.Background(), "e1", dto.UpdateScheduleEntryRequest{RoomID: strPtr("")})
	require.NoError(t, err)
	assert.False(t, entry.RoomID.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleServiceUpdateNotFound(t *testing.T) {
	svc, _, _ := newScheduleServiceFixture(t)

	_, err := svc.Update(context.Background(), "missing", dto.UpdateScheduleEntryRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceCreateRaceLossReclassifies(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	// First (in-tx) read sees no conflicts; the storage backstop then rejects
	// the insert and the post-race re-query finds the winning entry.
	stub.candidateSets = [][]models.ScheduleEntry{
		nil,
		{persisted("winner", "S2", "2024-Fall", 3, 540, 600, "R1", "")},
	}
	stub.createErr = &pq.Error{Code: "23P01"}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 3, "09:30", "10:30", "R1", ""))
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code, "race loss must surface as a conflict, not a storage error")
	report, ok := appErr.Details.(models.ConflictReport)
	require.True(t, ok)
	require.Len(t, report.Reasons, 1)
	assert.Equal(t, "winner", report.Reasons[0].ConflictingEntryID)
	assert.Equal(t, 2, stub.findCandidatesCalls)
}

func TestScheduleServiceCreateStoreUnavailable(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidatesErr = errors.New("connection refused")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 3, "09:00", "10:00", "R1", ""))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code,
		"store failure must not read as a conflict")
}

func TestScheduleServiceCreateStoreTimeout(t *testing.T) {
	svc, stub, mock := newScheduleServiceFixture(t)
	stub.candidatesErr = context.DeadlineExceeded

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), createReq("S1", "2024-Fall", 3, "09:00", "10:00", "R1", ""))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTimeout.Code, appErrors.FromError(err).Code)
}

type refsStub struct{}

func (refsStub) RoomName(ctx context.Context, id string) (string, error) {
	return "Physics Lab", nil
}

func (refsStub) FacultyName(ctx context.Context, id string) (string, error) {
	return "Dr. Sari", nil
}

func (refsStub) SectionCode(ctx context.Context, id string) (string, error) {
	return "PHY-101-A", nil
}

func TestScheduleServiceDecoratesMessagesWithDisplayNames(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stub := &scheduleRepoStub{db: sqlx.NewDb(db, "sqlmock")}
	stub.candidateSets = [][]models.ScheduleEntry{{
		persisted("e1", "S1", "2024-Fall", 3, 540, 600, "R1", "F1"),
	}}
	svc := NewScheduleService(stub, refsStub{}, validator.New(), zap.NewNop(), nil, 0)

	proposed := persisted("", "S1", "2024-Fall", 3, 570, 630, "R1", "F1")
	report, err := svc.Validate(context.Background(), proposed, "")
	require.NoError(t, err)
	require.Len(t, report.Reasons, 3)
	assert.Contains(t, report.Reasons[0].Message, "Physics Lab")
	assert.Contains(t, report.Reasons[1].Message, "Dr. Sari")
	assert.Contains(t, report.Reasons[2].Message, "PHY-101-A")
}

func TestScheduleServiceDelete(t *testing.T) {
	svc, stub, _ := newScheduleServiceFixture(t)
	existing := persisted("e1", "S1", "2024-Fall", 3, 540, 600, "", "")
	stub.existing = &existing

	require.NoError(t, svc.Delete(context.Background(), "e1"))
	assert.Equal(t, []string{"e1"}, stub.deleted)
}

func TestScheduleServiceDeleteNotFound(t *testing.T) {
	svc, _, _ := newScheduleServiceFixture(t)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
