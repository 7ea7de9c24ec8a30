package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const apiPrefix = "/customvision/v3.3/training"

// Client is the remote surface of the training service.
type Client interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	CreateProject(ctx context.Context, name string) (*Project, error)
	GetTags(ctx context.Context, projectID string) ([]Tag, error)
	CreateTag(ctx context.Context, projectID, name, description string) (*Tag, error)
	DeleteTag(ctx context.Context, projectID, tagID string) error
	GetTaggedImageCount(ctx context.Context, projectID string) (int, error)
	GetTaggedImages(ctx context.Context, projectID string, take, skip int) ([]TaggedImage, error)
	CreateImagesFromFiles(ctx context.Context, projectID string, batch ImageFileCreateBatch) (*ImageCreateSummary, error)
	TrainProject(ctx context.Context, projectID string) (*Iteration, error)
	// GetIterations returns the iterations of the project, newest first.
	GetIterations(ctx context.Context, projectID string) ([]Iteration, error)
	DeleteIteration(ctx context.Context, projectID, iterationID string) error
	GetIterationPerformance(ctx context.Context, projectID, iterationID string) (*IterationPerformance, error)
	GetExports(ctx context.Context, projectID, iterationID string) ([]Export, error)
	ExportIteration(ctx context.Context, projectID, iterationID string) (*Export, error)
}

// RestClient talks to a Custom Vision compatible training API.
type RestClient struct {
	endpoint       string
	trainingKey    string
	exportPlatform string
	httpClient     *http.Client
	log            *zap.SugaredLogger
}

var _ Client = (*RestClient)(nil)

func NewRestClient(endpoint, trainingKey, exportPlatform string, timeout time.Duration) *RestClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if exportPlatform == "" {
		exportPlatform = "ONNX"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return &RestClient{
		endpoint:       strings.TrimSuffix(endpoint, "/"),
		trainingKey:    trainingKey,
		exportPlatform: exportPlatform,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: zap.S().Named("trainer"),
	}
}

// NewFromConfig builds a client from the service configuration. It fails with
// ErrNotConfigured when the endpoint or the training key is missing.
func NewFromConfig(cfg *config.Config) (*RestClient, error) {
	tc := cfg.Service.Trainer
	if tc.Endpoint == "" || tc.TrainingKey == "" {
		return nil, ErrNotConfigured
	}
	return NewRestClient(tc.Endpoint, tc.TrainingKey, tc.ExportPlatform, 0), nil
}

func (c *RestClient) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, nil, &project); err != nil {
		return nil, errors.Wrapf(err, "failed to get project %s", projectID)
	}
	return &project, nil
}

func (c *RestClient) CreateProject(ctx context.Context, name string) (*Project, error) {
	q := url.Values{}
	q.Set("name", name)

	var project Project
	if err := c.do(ctx, http.MethodPost, "/projects", q, nil, &project); err != nil {
		return nil, errors.Wrapf(err, "failed to create project %q", name)
	}
	return &project, nil
}

func (c *RestClient) GetTags(ctx context.Context, projectID string) ([]Tag, error) {
	var tags []Tag
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "tags"), nil, nil, &tags); err != nil {
		return nil, errors.Wrap(err, "failed to list tags")
	}
	return tags, nil
}

func (c *RestClient) CreateTag(ctx context.Context, projectID, name, description string) (*Tag, error) {
	q := url.Values{}
	q.Set("name", name)
	if description != "" {
		q.Set("description", description)
	}

	var tag Tag
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "tags"), q, nil, &tag); err != nil {
		return nil, errors.Wrapf(err, "failed to create tag %q", name)
	}
	return &tag, nil
}

func (c *RestClient) DeleteTag(ctx context.Context, projectID, tagID string) error {
	if err := c.do(ctx, http.MethodDelete, c.projectPath(projectID, "tags", tagID), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete tag %s", tagID)
	}
	return nil
}

func (c *RestClient) GetTaggedImageCount(ctx context.Context, projectID string) (int, error) {
	var count int
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "images", "tagged", "count"), nil, nil, &count); err != nil {
		return 0, errors.Wrap(err, "failed to count tagged images")
	}
	return count, nil
}

func (c *RestClient) GetTaggedImages(ctx context.Context, projectID string, take, skip int) ([]TaggedImage, error) {
	q := url.Values{}
	q.Set("take", strconv.Itoa(take))
	q.Set("skip", strconv.Itoa(skip))

	var images []TaggedImage
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "images", "tagged"), q, nil, &images); err != nil {
		return nil, errors.Wrap(err, "failed to list tagged images")
	}
	return images, nil
}

func (c *RestClient) CreateImagesFromFiles(ctx context.Context, projectID string, batch ImageFileCreateBatch) (*ImageCreateSummary, error) {
	var summary ImageCreateSummary
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "images", "files"), nil, batch, &summary); err != nil {
		return nil, errors.Wrap(err, "failed to upload images")
	}
	return &summary, nil
}

func (c *RestClient) TrainProject(ctx context.Context, projectID string) (*Iteration, error) {
	var iteration Iteration
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "train"), nil, nil, &iteration); err != nil {
		return nil, errors.Wrap(err, "failed to submit training")
	}
	return &iteration, nil
}

func (c *RestClient) GetIterations(ctx context.Context, projectID string) ([]Iteration, error) {
	var iterations []Iteration
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "iterations"), nil, nil, &iterations); err != nil {
		return nil, errors.Wrap(err, "failed to list iterations")
	}
	sort.SliceStable(iterations, func(i, j int) bool {
		return iterations[i].Created.After(iterations[j].Created)
	})
	return iterations, nil
}

func (c *RestClient) DeleteIteration(ctx context.Context, projectID, iterationID string) error {
	if err := c.do(ctx, http.MethodDelete, c.projectPath(projectID, "iterations", iterationID), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete iteration %s", iterationID)
	}
	return nil
}

func (c *RestClient) GetIterationPerformance(ctx context.Context, projectID, iterationID string) (*IterationPerformance, error) {
	var perf IterationPerformance
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "iterations", iterationID, "performance"), nil, nil, &perf); err != nil {
		return nil, errors.Wrapf(err, "failed to get performance of iteration %s", iterationID)
	}
	return &perf, nil
}

func (c *RestClient) GetExports(ctx context.Context, projectID, iterationID string) ([]Export, error) {
	var exports []Export
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "iterations", iterationID, "export"), nil, nil, &exports); err != nil {
		return nil, errors.Wrapf(err, "failed to list exports of iteration %s", iterationID)
	}
	return exports, nil
}

func (c *RestClient) ExportIteration(ctx context.Context, projectID, iterationID string) (*Export, error) {
	q := url.Values{}
	q.Set("platform", c.exportPlatform)

	var export Export
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "iterations", iterationID, "export"), q, nil, &export); err != nil {
		return nil, errors.Wrapf(err, "failed to export iteration %s", iterationID)
	}
	return &export, nil
}

func (c *RestClient) projectPath(projectID string, elems ...string) string {
	path := "/projects/" + url.PathEscape(projectID)
	for _, e := range elems {
		path += "/" + url.PathEscape(e)
	}
	return path
}

func (c *RestClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.endpoint + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Training-Key", c.trainingKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call trainer service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debugw("trainer call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remoteErr := &Error{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *Error `json:"error"`
		}
		// both {"code","message"} and {"error":{"code","message"}} are in use
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			remoteErr.Code, remoteErr.Message = envelope.Error.Code, envelope.Error.Message
		} else if json.Unmarshal(data, remoteErr) != nil || remoteErr.Message == "" {
			remoteErr.Message = strings.TrimSpace(string(data))
		}
		remoteErr.StatusCode = resp.StatusCode
		return remoteErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
