package course

import (
	"sort"
	"strings"
)

// CourseStatus lifecycle status of a course
type CourseStatus string

// course lifecycle
const (
	StatusLaunched CourseStatus = "launched"
	StatusDraft    CourseStatus = "draft"
	StatusArchived CourseStatus = "archived"
)

// LessonStatus access state of a lesson
type LessonStatus string

// lesson access
const (
	LessonUnlocked LessonStatus = "unlocked"
	LessonLocked   LessonStatus = "locked"
)

// Lesson one playable unit of a course
type Lesson struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Duration         int          `json:"duration"` // seconds
	Order            int          `json:"order"`
	Type             string       `json:"type"`
	Status           LessonStatus `json:"status"`
	Link             string       `json:"link"` // HLS manifest
	PreviewImageLink string       `json:"previewImageLink"`
}

// Playable locked lessons are listed but can not be selected
func (l Lesson) Playable() bool {
	return l.Status == LessonUnlocked
}

// VideoPreview course teaser video
type VideoPreview struct {
	Link             string `json:"link"`
	Duration         int    `json:"duration"`
	PreviewImageLink string `json:"previewImageLink"`
}

// CourseMeta nested metadata block
type CourseMeta struct {
	Slug               string        `json:"slug"`
	Skills             []string      `json:"skills"`
	CourseVideoPreview *VideoPreview `json:"courseVideoPreview,omitempty"`
}

// Course as delivered by the catalog, treat as read-only once fetched
type Course struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title"`
	Tags                  []string     `json:"tags"`
	LaunchDate            string       `json:"launchDate"`
	Status                CourseStatus `json:"status"`
	Description           string       `json:"description"`
	Duration              int          `json:"duration"` // seconds
	LessonsCount          int          `json:"lessonsCount"`
	ContainsLockedLessons bool         `json:"containsLockedLessons"`
	PreviewImageLink      string       `json:"previewImageLink"`
	Rating                float64      `json:"rating"`
	Meta                  CourseMeta   `json:"meta"`
	Lessons               []Lesson     `json:"lessons"`
}

// SortedLessons lessons ordered by Order ascending, the source order is not guaranteed
func (c *Course) SortedLessons() []Lesson {
	lessons := make([]Lesson, len(c.Lessons))
	copy(lessons, c.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Order < lessons[j].Order
	})
	return lessons
}

// FindLesson look up a lesson by id
func (c *Course) FindLesson(id string) (Lesson, bool) {
	if id == "" {
		return Lesson{}, false
	}
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// FirstPlayable the lowest order unlocked lesson
func (c *Course) FirstPlayable() (Lesson, bool) {
	for _, l := range c.SortedLessons() {
		if l.Playable() {
			return l, true
		}
	}
	return Lesson{}, false
}

// Skills lower-cased, comma separated skill list
func (c *Course) Skills() string {
	return strings.ToLower(strings.Join(c.Meta.Skills, ", "))
}

// CoverImage cover rendition of the preview image
func (c *Course) CoverImage() string {
	if c.PreviewImageLink == "" {
		return ""
	}
	return strings.TrimSuffix(c.PreviewImageLink, "/") + "/cover.webp"
}
