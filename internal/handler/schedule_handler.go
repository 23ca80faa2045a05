package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type scheduleService interface {
	List(ctx context.Context, filter models.ScheduleEntryFilter) ([]models.ScheduleEntry, error)
	Create(ctx context.Context, req dto.CreateScheduleEntryRequest) (*models.ScheduleEntry, error)
	Update(ctx context.Context, id string, req dto.UpdateScheduleEntryRequest) (*models.ScheduleEntry, error)
	Delete(ctx context.Context, id string) error
}

type previewService interface {
	Preview(ctx context.Context, q dto.PreviewConflictsQuery) (models.ConflictReport, error)
}

// ScheduleHandler manages schedule entry endpoints.
type ScheduleHandler struct {
	service scheduleService
	preview previewService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService, preview previewService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, preview: preview}
}

// List godoc
// @Summary List schedule entries
// @Tags Schedules
// @Produce json
// @Param semester query string false "Filter by semester"
// @Param day_of_week query int false "Filter by day (1-7, Monday=1)"
// @Param section_id query string false "Filter by section"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var filter models.ScheduleEntryFilter
	filter.Semester = c.Query("semester")
	filter.SectionID = c.Query("section_id")
	if day, err := strconv.Atoi(c.DefaultQuery("day_of_week", "0")); err == nil {
		filter.DayOfWeek = day
	}

	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Create godoc
// @Summary Create schedule entry
// @Description Validates the proposed entry against persisted entries sharing
// @Description the same room, instructor or section before writing.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateScheduleEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Conflict report in error.details"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req dto.CreateScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Update schedule entry
// @Description Merges the partial payload onto the stored entry and
// @Description re-validates, excluding the entry's own prior version.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.UpdateScheduleEntryRequest true "Partial entry payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Conflict report in error.details"
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req dto.UpdateScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Entry ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preview godoc
// @Summary Preview conflicts for a hypothetical entry
// @Description Best-effort advisory check for live form feedback. Never
// @Description authoritative; the server re-validates on submit.
// @Tags Schedules
// @Produce json
// @Param semester query string true "Semester label"
// @Param day_of_week query int true "Day (1-7, Monday=1)"
// @Param start_time query string true "Start time HH:MM"
// @Param end_time query string true "End time HH:MM"
// @Param room_id query string false "Room id"
// @Param faculty_id query string false "Instructor id"
// @Param section_id query string false "Section id"
// @Param exclude_id query string false "Entry id to exclude (editing)"
// @Success 200 {object} response.Envelope
// @Router /schedules/preview [get]
func (h *ScheduleHandler) Preview(c *gin.Context) {
	var q dto.PreviewConflictsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview query"))
		return
	}
	report, err := h.preview.Preview(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{"advisory": true})
}
