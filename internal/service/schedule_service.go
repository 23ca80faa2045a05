package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/conflict"
	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timeslot"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	LockResources(ctx context.Context, exec sqlx.ExtContext, entry models.ScheduleEntry) error
	FindCandidates(ctx context.Context, exec sqlx.ExtContext, semester string, dayOfWeek int, excludeID string) ([]models.ScheduleEntry, error)
	List(ctx context.Context, filter models.ScheduleEntryFilter) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error
	Update(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error
	Delete(ctx context.Context, id string) error
}

type referenceResolver interface {
	RoomName(ctx context.Context, id string) (string, error)
	FacultyName(ctx context.Context, id string) (string, error)
	SectionCode(ctx context.Context, id string) (string, error)
}

// ScheduleService validates proposed schedule entries against persisted
// state and commits the write only when no conflict remains. Validation and
// write run inside one transaction holding per-resource advisory locks, so
// two concurrent commits for the same room/instructor/section slot cannot
// both pass the check.
type ScheduleService struct {
	repo      scheduleRepository
	refs      referenceResolver
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	timeout   time.Duration
}

// NewScheduleService instantiates ScheduleService. refs and metrics may be
// nil; conflict messages then fall back to raw ids.
func NewScheduleService(repo scheduleRepository, refs referenceResolver, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, timeout time.Duration) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, refs: refs, validator: validate, logger: logger, metrics: metrics, timeout: timeout}
}

// List returns entries matching the filter.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleEntryFilter) ([]models.ScheduleEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr(err, "failed to list schedule entries")
	}
	return entries, nil
}

// Validate runs the read-only conflict check for a proposed entry. The
// excludeID omits the entry's own persisted version during updates. The
// result is deterministic: the same proposal against unchanged stored state
// always yields the same report.
func (s *ScheduleService) Validate(ctx context.Context, proposed models.ScheduleEntry, excludeID string) (models.ConflictReport, error) {
	if err := structuralCheck(proposed); err != nil {
		return models.ConflictReport{}, err
	}
	return s.buildReport(ctx, nil, proposed, excludeID)
}

// Create inserts a new schedule entry after conflict validation.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleEntryRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule entry payload")
	}

	entry, err := entryFromCreate(req)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, &entry, "", s.repo.Create); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update merges the partial payload onto the stored entry, re-validates with
// the entry's own id excluded from candidates, and persists the result.
func (s *ScheduleService) Update(ctx context.Context, id string, req dto.UpdateScheduleEntryRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule entry payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, s.storeErr(err, "failed to load schedule entry")
	}

	merged, err := mergeUpdate(*existing, req)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, &merged, existing.ID, s.repo.Update); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Delete removes a schedule entry. Deletion needs no conflict check.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return s.storeErr(err, "failed to load schedule entry")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeErr(err, "failed to delete schedule entry")
	}
	return nil
}

type writeFunc func(ctx context.Context, exec sqlx.ExtContext, entry *models.ScheduleEntry) error

// commit runs the validate+write sequence inside one transaction. Advisory
// locks on the entry's resource slots are taken before the candidate read,
// so the read set stays valid until the write lands. Locks release with the
// transaction on every exit path.
func (s *ScheduleService) commit(ctx context.Context, entry *models.ScheduleEntry, excludeID string, write writeFunc) error {
	if err := structuralCheck(*entry); err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return s.storeErr(err, "failed to open schedule transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.repo.LockResources(ctx, tx, *entry); err != nil {
		return s.storeErr(err, "failed to lock schedule resources")
	}

	report, err := s.buildReport(ctx, tx, *entry, excludeID)
	if err != nil {
		return err
	}
	if !report.Empty() {
		s.metrics.RecordConflictReasons(report)
		return s.conflictErr(report)
	}

	if err := write(ctx, tx, entry); err != nil {
		if repository.IsSlotTaken(err) {
			return s.raceLoss(ctx, *entry, excludeID, err)
		}
		return s.storeErr(err, "failed to write schedule entry")
	}

	if err := tx.Commit(); err != nil {
		if repository.IsSlotTaken(err) {
			return s.raceLoss(ctx, *entry, excludeID, err)
		}
		return s.storeErr(err, "failed to commit schedule entry")
	}
	committed = true
	return nil
}

// buildReport collects every conflict reason between the proposal and the
// same-semester same-day candidates. Time narrowing happens here, not in
// SQL, via the shared timeslot predicate.
func (s *ScheduleService) buildReport(ctx context.Context, exec sqlx.ExtContext, proposed models.ScheduleEntry, excludeID string) (models.ConflictReport, error) {
	started := time.Now()
	candidates, err := s.repo.FindCandidates(ctx, exec, proposed.Semester, proposed.DayOfWeek, excludeID)
	s.metrics.ObserveDBQuery("find_candidates", time.Since(started))
	if err != nil {
		return models.ConflictReport{}, s.storeErr(err, "failed to load conflict candidates")
	}

	var report models.ConflictReport
	for _, cand := range candidates {
		if !timeslot.Overlaps(proposed.StartMinute, proposed.EndMinute, cand.StartMinute, cand.EndMinute) {
			continue
		}
		reasons := conflict.Classify(proposed, cand)
		for i := range reasons {
			s.decorate(ctx, &reasons[i], cand)
		}
		report.Reasons = append(report.Reasons, reasons...)
	}
	return report, nil
}

// decorate swaps raw ids in a reason message for display names. Lookups are
// best-effort: a failed lookup keeps the id-based message.
func (s *ScheduleService) decorate(ctx context.Context, reason *models.ConflictReason, cand models.ScheduleEntry) {
	if s.refs == nil {
		return
	}
	window := fmt.Sprintf("%s-%s", cand.StartMinute, cand.EndMinute)
	switch reason.Type {
	case models.ConflictRoom:
		if name, err := s.refs.RoomName(ctx, cand.RoomID.ID); err == nil {
			reason.Message = fmt.Sprintf("room %s is already booked %s", name, window)
		}
	case models.ConflictFaculty:
		if name, err := s.refs.FacultyName(ctx, cand.FacultyID.ID); err == nil {
			reason.Message = fmt.Sprintf("instructor %s is already teaching %s", name, window)
		}
	case models.ConflictSection:
		if code, err := s.refs.SectionCode(ctx, cand.SectionID); err == nil {
			reason.Message = fmt.Sprintf("section %s already meets %s", code, window)
		}
	}
}

// raceLoss handles the storage backstop rejecting a write that passed
// in-process validation: re-query and re-classify outside the aborted
// transaction so the caller still receives typed reasons.
func (s *ScheduleService) raceLoss(ctx context.Context, entry models.ScheduleEntry, excludeID string, cause error) error {
	s.logger.Warn("schedule write lost a race, reclassifying",
		zap.String("semester", entry.Semester),
		zap.Int("day_of_week", entry.DayOfWeek),
		zap.Error(cause))

	report, err := s.buildReport(ctx, nil, entry, excludeID)
	if err == nil && !report.Empty() {
		s.metrics.RecordConflictReasons(report)
		return s.conflictErr(report)
	}
	return appErrors.Wrap(cause, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "schedule slot was taken by a concurrent write")
}

func (s *ScheduleService) conflictErr(report models.ConflictReport) error {
	domainErr := &models.ScheduleConflictError{Report: report}
	appErr := appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "schedule conflict detected")
	appErr.Details = report
	return appErr
}

// storeErr classifies store failures so callers can retry transient ones
// instead of treating them as conflicts.
func (s *ScheduleService) storeErr(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "schedule store timed out")
	}
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, message)
}

// structuralCheck rejects malformed entries before any store access.
func structuralCheck(entry models.ScheduleEntry) error {
	if entry.SectionID == "" || entry.Semester == "" {
		return appErrors.Clone(appErrors.ErrValidation, "section_id and semester are required")
	}
	if !timeslot.ValidDay(entry.DayOfWeek) {
		return appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 1 and 7")
	}
	if !timeslot.ValidRange(entry.StartMinute, entry.EndMinute) {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time within one day")
	}
	return nil
}

func entryFromCreate(req dto.CreateScheduleEntryRequest) (models.ScheduleEntry, error) {
	start, err := parseClock(req.StartTime, "start_time")
	if err != nil {
		return models.ScheduleEntry{}, err
	}
	end, err := parseClock(req.EndTime, "end_time")
	if err != nil {
		return models.ScheduleEntry{}, err
	}

	entry := models.ScheduleEntry{
		SectionID:   req.SectionID,
		Semester:    req.Semester,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: start,
		EndMinute:   end,
		RoomID:      refFromPtr(req.RoomID),
		FacultyID:   refFromPtr(req.FacultyID),
	}
	return entry, nil
}

// mergeUpdate overlays the partial payload onto the stored entry. Omitted
// fields keep stored values; an explicit empty string clears a room or
// faculty assignment.
func mergeUpdate(existing models.ScheduleEntry, req dto.UpdateScheduleEntryRequest) (models.ScheduleEntry, error) {
	merged := existing
	if req.SectionID != nil {
		merged.SectionID = *req.SectionID
	}
	if req.Semester != nil {
		merged.Semester = *req.Semester
	}
	if req.DayOfWeek != nil {
		merged.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		start, err := parseClock(*req.StartTime, "start_time")
		if err != nil {
			return models.ScheduleEntry{}, err
		}
		merged.StartMinute = start
	}
	if req.EndTime != nil {
		end, err := parseClock(*req.EndTime, "end_time")
		if err != nil {
			return models.ScheduleEntry{}, err
		}
		merged.EndMinute = end
	}
	if req.RoomID != nil {
		merged.RoomID = refFromPtr(req.RoomID)
	}
	if req.FacultyID != nil {
		merged.FacultyID = refFromPtr(req.FacultyID)
	}
	return merged, nil
}

func refFromPtr(v *string) models.Ref {
	if v == nil || *v == "" {
		return models.Ref{}
	}
	return models.Assigned(*v)
}

func parseClock(raw, field string) (timeslot.Minutes, error) {
	parsed, err := timeslot.Parse(raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s must be HH:MM", field))
	}
	return parsed, nil
}
