package handler

import "github.com/pot-code/course-player/internal/course"

// CourseSummary catalog list entry
type CourseSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Status       string   `json:"status"`
	Rating       float64  `json:"rating"`
	LessonsCount int      `json:"lessons_count"`
	Skills       string   `json:"skills"`
	CoverImage   string   `json:"cover_image"`
	LaunchDate   string   `json:"launch_date"`
	PreviewVideo string   `json:"preview_video,omitempty"`
}

// LessonView lesson with display duration
type LessonView struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Order            int    `json:"order"`
	Duration         int    `json:"duration"`
	DurationText     string `json:"duration_text"`
	Locked           bool   `json:"locked"`
	Link             string `json:"link,omitempty"`
	PreviewImageLink string `json:"preview_image_link"`
}

// CourseDetail course page
type CourseDetail struct {
	CourseSummary
	Duration     int          `json:"duration"`
	DurationText string       `json:"duration_text"`
	Lessons      []LessonView `json:"lessons"`
}

// CoursePage paginated summaries
type CoursePage struct {
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Pages   int             `json:"pages"`
	Total   int             `json:"total"`
	Courses []CourseSummary `json:"courses"`
}

func newCourseSummary(c *course.Course) CourseSummary {
	summary := CourseSummary{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Tags:         c.Tags,
		Status:       string(c.Status),
		Rating:       c.Rating,
		LessonsCount: c.LessonsCount,
		Skills:       c.Skills(),
		CoverImage:   c.CoverImage(),
		LaunchDate:   c.LaunchDate,
	}
	if c.Meta.CourseVideoPreview != nil {
		summary.PreviewVideo = c.Meta.CourseVideoPreview.Link
	}
	return summary
}

func newCourseDetail(c *course.Course) CourseDetail {
	lessons := make([]LessonView, 0, len(c.Lessons))
	for _, l := range c.SortedLessons() {
		view := LessonView{
			ID:               l.ID,
			Title:            l.Title,
			Order:            l.Order,
			Duration:         l.Duration,
			DurationText:     course.FormatDuration(l.Duration),
			Locked:           !l.Playable(),
			PreviewImageLink: l.PreviewImageLink,
		}
		// locked media stays hidden
		if l.Playable() {
			view.Link = l.Link
		}
		lessons = append(lessons, view)
	}
	return CourseDetail{
		CourseSummary: newCourseSummary(c),
		Duration:      c.Duration,
		DurationText:  course.FormatDuration(c.Duration),
		Lessons:       lessons,
	}
}

func newCoursePage(p *course.Page) CoursePage {
	courses := make([]CourseSummary, 0, len(p.Courses))
	for _, c := range p.Courses {
		courses = append(courses, newCourseSummary(c))
	}
	return CoursePage{
		Page:    p.Page,
		PerPage: p.PerPage,
		Pages:   p.Pages,
		Total:   p.Total,
		Courses: courses,
	}
}
