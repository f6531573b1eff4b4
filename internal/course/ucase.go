package course

import (
	"context"

	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// CourseUseCase catalog browsing
type CourseUseCase interface {
	ListCourses(ctx context.Context, page int) (*Page, error)
	GetCourse(ctx context.Context, id string) (*Course, error)
}

// CourseUseCaseImpl ...
type CourseUseCaseImpl struct {
	Catalog  CatalogService
	PageSize int
	logger   *zap.Logger
}

var _ CourseUseCase = &CourseUseCaseImpl{}

// NewCourseUseCase ...
func NewCourseUseCase(
	Catalog CatalogService,
	PageSize int,
	logger *zap.Logger,
) *CourseUseCaseImpl {
	if PageSize < 1 {
		PageSize = DefaultPageSize
	}
	return &CourseUseCaseImpl{Catalog, PageSize, logger}
}

// ListCourses one page of the catalog, a failed fetch is served as an empty catalog
func (cu *CourseUseCaseImpl) ListCourses(ctx context.Context, page int) (*Page, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "CourseUseCaseImpl.ListCourses", "service")
	defer apmSpan.End()

	courses, err := cu.Catalog.FetchCourses(ctx)
	if err != nil {
		cu.logger.Warn("Serving empty catalog", zap.Error(err))
		courses = nil
	}
	return Paginate(courses, page, cu.PageSize), nil
}

// GetCourse course with its lessons in playback order
func (cu *CourseUseCaseImpl) GetCourse(ctx context.Context, id string) (*Course, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "CourseUseCaseImpl.GetCourse", "service")
	defer apmSpan.End()

	course, err := cu.Catalog.FetchCourseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sorted := *course
	sorted.Lessons = course.SortedLessons()
	return &sorted, nil
}
