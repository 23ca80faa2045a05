// Package conflict classifies why two time-overlapping schedule entries
// cannot coexist. Like timeslot it is pure and dependency-free so the
// server-side validator and the advisory preview share one rule set.
package conflict

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Classify reports every shared-resource reason the candidate conflicts
// with the proposed entry. Callers must pre-filter: both entries share
// semester and day of week, and their time ranges already overlap.
//
// Reasons come out in a fixed order (room, faculty, section) so error
// messages are reproducible. A single candidate may contribute several
// reasons, e.g. the same room and the same instructor.
func Classify(proposed, candidate models.ScheduleEntry) []models.ConflictReason {
	var reasons []models.ConflictReason

	if proposed.RoomID.Same(candidate.RoomID) {
		reasons = append(reasons, models.ConflictReason{
			Type:               models.ConflictRoom,
			ConflictingEntryID: candidate.ID,
			Message: fmt.Sprintf("room %s is already booked %s-%s",
				candidate.RoomID.ID, candidate.StartMinute, candidate.EndMinute),
		})
	}

	if proposed.FacultyID.Same(candidate.FacultyID) {
		reasons = append(reasons, models.ConflictReason{
			Type:               models.ConflictFaculty,
			ConflictingEntryID: candidate.ID,
			Message: fmt.Sprintf("instructor %s is already teaching %s-%s",
				candidate.FacultyID.ID, candidate.StartMinute, candidate.EndMinute),
		})
	}

	if proposed.SectionID == candidate.SectionID {
		reasons = append(reasons, models.ConflictReason{
			Type:               models.ConflictSection,
			ConflictingEntryID: candidate.ID,
			Message: fmt.Sprintf("section %s already meets %s-%s",
				candidate.SectionID, candidate.StartMinute, candidate.EndMinute),
		})
	}

	return reasons
}
