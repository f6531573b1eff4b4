package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrCourseUnavailable the catalog failed or returned nothing for the request
var ErrCourseUnavailable = errors.New("course unavailable")

// CatalogService remote course catalog
type CatalogService interface {
	FetchCourses(ctx context.Context) ([]*Course, error)
	FetchCourseByID(ctx context.Context, id string) (*Course, error)
}

// CatalogConfig catalog client options
type CatalogConfig struct {
	BaseURL string
	Token   string // bearer credential attached to every request
	Timeout time.Duration
}

// CatalogClient CatalogService over the preview-courses HTTP API
type CatalogClient struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

var _ CatalogService = &CatalogClient{}

// NewCatalogClient create a catalog client, requests are not retried
func NewCatalogClient(cfg *CatalogConfig, logger *zap.Logger) *CatalogClient {
	client := resty.New().
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.Token)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &CatalogClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type coursesEnvelope struct {
	Courses []*Course `json:"courses"`
}

// FetchCourses list every course of the catalog
func (cc *CatalogClient) FetchCourses(ctx context.Context) ([]*Course, error) {
	var envelope coursesEnvelope
	if err := cc.get(ctx, cc.baseURL, &envelope); err != nil {
		return nil, err
	}
	return envelope.Courses, nil
}

// FetchCourseByID fetch one course including its lessons
func (cc *CatalogClient) FetchCourseByID(ctx context.Context, id string) (*Course, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty course id", ErrCourseUnavailable)
	}
	course := new(Course)
	if err := cc.get(ctx, cc.baseURL+"/"+url.PathEscape(id), course); err != nil {
		return nil, err
	}
	if course.ID == "" {
		cc.logger.Warn("Catalog returned an empty course", zap.String("course.id", id))
		return nil, fmt.Errorf("%w: %s", ErrCourseUnavailable, id)
	}
	return course, nil
}

// get performs the request and decodes the body into out, every failure is logged and
// reported as ErrCourseUnavailable
func (cc *CatalogClient) get(ctx context.Context, target string, out interface{}) error {
	startTime := time.Now()
	resp, err := cc.client.R().SetContext(ctx).Get(target)
	if err != nil {
		cc.logger.Error("Catalog request failed", zap.String("url.full", target), zap.Error(err))
		return fmt.Errorf("%w: %s", ErrCourseUnavailable, err)
	}
	if resp.IsError() {
		cc.logger.Error("Catalog responded with an error",
			zap.String("url.full", target),
			zap.Int("http.response.status_code", resp.StatusCode()),
		)
		return fmt.Errorf("%w: upstream status %d", ErrCourseUnavailable, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		cc.logger.Error("Failed to decode catalog response", zap.String("url.full", target), zap.Error(err))
		return fmt.Errorf("%w: %s", ErrCourseUnavailable, err)
	}
	cc.logger.Debug("Catalog request", zap.String("url.full", target),
		zap.Int("http.response.status_code", resp.StatusCode()),
		zap.Duration("event.duration", time.Since(startTime)),
	)
	return nil
}
