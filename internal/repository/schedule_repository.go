package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const entryColumns = "id, section_id, semester, day_of_week, start_minute, end_minute, room_id, faculty_id, created_at, updated_at"

// ScheduleRepository provides persistence for schedule entries.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BeginTx opens a transaction for a validate+write pass.
func (r *ScheduleRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule tx: %w", err)
	}
	return tx, nil
}

// LockResources takes per-resource advisory locks for the entry's room,
// faculty and section slot keys. The locks are transaction-scoped
// (pg_advisory_xact_lock) so they release on commit and rollback alike.
// Keys are sorted to keep concurrent writers deadlock-free.
func (r *ScheduleRepository) LockResources(ctx context.Context, exec sqlx.ExtContext, entry models.ScheduleEntry) error {
	keys := []int64{lockKey("section", entry.SectionID, entry.Semester, entry.DayOfWeek)}
	if entry.RoomID.Valid {
		keys = append(keys, lockKey("room", entry.RoomID.ID, entry.Semester, entry.DayOfWeek))
	}
	if entry.FacultyID.Valid {
		keys = append(keys, lockKey("faculty", entry.FacultyID.ID, entry.Semester, entry.DayOfWeek))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	target := r.exec(exec)
	for _, key := range keys {
		if _, err := target.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			return fmt.Errorf("acquire advisory lock %d: %w", key, err)
		}
	}
	return nil
}

func lockKey(kind, id, semester string, day int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", kind, id, semester, day)
	return int64(h.Sum64())
}

// FindCandidates returns every persisted entry for the semester and day,
// minus the excluded id when set (self-exclusion during updates). Time
// narrowing is deliberately left to the caller.
func (r *ScheduleRepository) FindCandidates(ctx context.Context, exec sqlx.ExtContext, semester string, dayOfWeek int, excludeID string) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries WHERE semester = $1 AND day_of_week = $2", entryColumns)
	args := []interface{}{semester, dayOfWeek}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += " ORDER BY start_minute ASC, id ASC"

	var entries []models.ScheduleEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("find conflict candidates: %w", err)
	}
	return entries, nil
}

// List returns entries matching the filter ordered by day and start time.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleEntryFilter) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries WHERE 1=1", entryColumns)
	var args []interface{}
	if filter.Semester != "" {
		args = append(args, filter.Semester)
		query += fmt.Sprintf(" AND semester = $%d", len(args))
	}
	if filter.DayOfWeek != 0 {
		args = append(args, filter.DayOfWeek)
		query += fmt.Sprintf(" AND day_of_week = $%d", len(args))
	}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		query += fmt.Sprintf(" AND section_id = $%d", len(args))
	}
	query += " ORDER BY day_of_week ASC, start_minute ASC"

	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// FindByID loads a schedule entry by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries WHERE id = $1", entryColumns)
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create stores a new schedule entry.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO schedule_entries (id, section_id, semester, day_of_week, start_minute, end_minute, room_id, faculty_id, created_at, updated_at) VALUES (:id, :section_id, :semester, :day_of_week, :start_minute, :end_minute, :room_id, :faculty_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create schedule entry: %w", err)
	}
	return nil
}

// Update modifies a schedule entry.
func (r *ScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_entries SET section_id = :section_id, semester = :semester, day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute, room_id = :room_id, faculty_id = :faculty_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("update schedule entry: %w", err)
	}
	return nil
}

// Delete removes a schedule entry by id. Deletes need no conflict check.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	return nil
}

// IsSlotTaken reports whether err is the storage backstop rejecting a write
// that lost a race: the exclusion constraints on schedule_entries raise
// 23P01, plain unique violations 23505.
func IsSlotTaken(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23P01" || pqErr.Code == "23505"
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
