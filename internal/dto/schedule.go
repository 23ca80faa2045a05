package dto

// CreateScheduleEntryRequest describes payload for creating a schedule entry.
// Times use "HH:MM"; day_of_week is 1-7, Monday first. Room and faculty are
// optional: omitting one means no constraint on that dimension.
type CreateScheduleEntryRequest struct {
	SectionID string  `json:"section_id" validate:"required"`
	Semester  string  `json:"semester" validate:"required"`
	DayOfWeek int     `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	RoomID    *string `json:"room_id"`
	FacultyID *string `json:"faculty_id"`
}

// UpdateScheduleEntryRequest carries a partial update. Omitted fields keep
// the stored entry's values; the merged result is re-validated with the
// entry's own id excluded from conflict candidates.
type UpdateScheduleEntryRequest struct {
	SectionID *string `json:"section_id"`
	Semester  *string `json:"semester"`
	DayOfWeek *int    `json:"day_of_week" validate:"omitempty,min=1,max=7"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	RoomID    *string `json:"room_id"`
	FacultyID *string `json:"faculty_id"`
}

// PreviewConflictsQuery describes the advisory preview parameters. It
// mirrors a proposed entry without requiring one to exist.
type PreviewConflictsQuery struct {
	Semester  string `form:"semester" validate:"required"`
	DayOfWeek int    `form:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `form:"start_time" validate:"required"`
	EndTime   string `form:"end_time" validate:"required"`
	RoomID    string `form:"room_id"`
	FacultyID string `form:"faculty_id"`
	SectionID string `form:"section_id"`
	ExcludeID string `form:"exclude_id"`
}
