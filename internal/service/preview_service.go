package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/conflict"
	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timeslot"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type candidateSource interface {
	FindCandidates(ctx context.Context, exec sqlx.ExtContext, semester string, dayOfWeek int, excludeID string) ([]models.ScheduleEntry, error)
}

// PreviewService re-runs the overlap and classification rules against a
// locally cached candidate set so clients can warn while a form is still
// being edited. Results are advisory: the authoritative check happens in
// ScheduleService on submit, and a preview never blocks it.
type PreviewService struct {
	source    candidateSource
	cache     *gocache.Cache
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewPreviewService builds the preview service. The cache's default TTL
// bounds candidate staleness on the happy path; a stale copy is kept without
// expiry to serve when the store is unreachable.
func NewPreviewService(source candidateSource, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cache *gocache.Cache) *PreviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = gocache.New(gocache.NoExpiration, 0)
	}
	return &PreviewService{source: source, cache: cache, validator: validate, logger: logger, metrics: metrics}
}

// Preview classifies the hypothetical entry described by the query against
// the cached candidate set, refreshing from the store on cache miss. On
// store failure a stale cached set is served rather than failing the
// preview; only a cold cache plus a dead store yields an error.
func (s *PreviewService) Preview(ctx context.Context, q dto.PreviewConflictsQuery) (models.ConflictReport, error) {
	if err := s.validator.Struct(q); err != nil {
		return models.ConflictReport{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preview query")
	}

	start, err := parseClock(q.StartTime, "start_time")
	if err != nil {
		return models.ConflictReport{}, err
	}
	end, err := parseClock(q.EndTime, "end_time")
	if err != nil {
		return models.ConflictReport{}, err
	}
	if !timeslot.ValidRange(start, end) {
		return models.ConflictReport{}, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time within one day")
	}

	proposed := models.ScheduleEntry{
		SectionID:   q.SectionID,
		Semester:    q.Semester,
		DayOfWeek:   q.DayOfWeek,
		StartMinute: start,
		EndMinute:   end,
		RoomID:      refFromString(q.RoomID),
		FacultyID:   refFromString(q.FacultyID),
	}

	candidates, err := s.candidates(ctx, q.Semester, q.DayOfWeek)
	if err != nil {
		return models.ConflictReport{}, err
	}

	var report models.ConflictReport
	for _, cand := range candidates {
		if q.ExcludeID != "" && cand.ID == q.ExcludeID {
			continue
		}
		if !timeslot.Overlaps(proposed.StartMinute, proposed.EndMinute, cand.StartMinute, cand.EndMinute) {
			continue
		}
		report.Reasons = append(report.Reasons, conflict.Classify(proposed, cand)...)
	}
	return report, nil
}

func (s *PreviewService) candidates(ctx context.Context, semester string, dayOfWeek int) ([]models.ScheduleEntry, error) {
	key := fmt.Sprintf("%s|%d", semester, dayOfWeek)

	if cached, ok := s.cache.Get(key); ok {
		s.metrics.RecordPreviewCache(true)
		return cached.([]models.ScheduleEntry), nil
	}
	s.metrics.RecordPreviewCache(false)

	fetched, err := s.source.FindCandidates(ctx, nil, semester, dayOfWeek, "")
	if err != nil {
		if stale, ok := s.cache.Get(key + ":stale"); ok {
			s.logger.Warn("preview serving stale candidates", zap.String("key", key), zap.Error(err))
			return stale.([]models.ScheduleEntry), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load preview candidates")
	}

	s.cache.Set(key, fetched, gocache.DefaultExpiration)
	s.cache.Set(key+":stale", fetched, gocache.NoExpiration)
	return fetched, nil
}

func refFromString(v string) models.Ref {
	if v == "" {
		return models.Ref{}
	}
	return models.Assigned(v)
}
