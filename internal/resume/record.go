package resume

import (
	"math"
	"time"

	"github.com/pot-code/course-player/internal/course"
)

// Record last viewed position of a course
type Record struct {
	LessonID      string         `json:"lessonId"`
	Lesson        *course.Lesson `json:"lesson,omitempty"` // snapshot at save time, informational only
	OffsetSeconds float64        `json:"time"`
	SavedAt       time.Time      `json:"savedAt"`
}

// LessonRef id of the referenced lesson, older records carry only the snapshot
func (r Record) LessonRef() string {
	if r.LessonID != "" {
		return r.LessonID
	}
	if r.Lesson != nil {
		return r.Lesson.ID
	}
	return ""
}

// Valid a record must reference a lesson and carry a finite, non-negative offset
func (r Record) Valid() bool {
	if r.LessonRef() == "" {
		return false
	}
	if math.IsNaN(r.OffsetSeconds) || math.IsInf(r.OffsetSeconds, 0) {
		return false
	}
	return r.OffsetSeconds >= 0
}
