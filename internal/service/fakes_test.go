package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"gorm.io/gorm"
)

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		PollInterval:     5 * time.Millisecond,
		MaxPrepareWaits:  3,
		PartWaitAttempts: 2,
		PartWaitInterval: 5 * time.Millisecond,
		UploadBatchSize:  5,
	}
}

func cleanTables(db *gorm.DB) {
	db.Exec("DELETE FROM notifications;")
	db.Exec("DELETE FROM training_statuses;")
	db.Exec("DELETE FROM images;")
	db.Exec("DELETE FROM parts;")
	db.Exec("DELETE FROM projects;")
	db.Exec("DELETE FROM cameras;")
}

// fakeTrainer is an in-memory trainer service. Iterations and exports are
// produced by the optional hooks.
type fakeTrainer struct {
	mu sync.Mutex

	projects    map[string]trainer.Project
	tags        map[string][]trainer.Tag
	batches     [][]trainer.ImageFileCreateEntry
	trainCalls  int
	exportCalls int
	deletedTags []string
	deletedIts  []string
	tagged      []trainer.TaggedImage
	performance trainer.IterationPerformance

	createProjectErr error
	iterations       func(call int) ([]trainer.Iteration, error)
	exports          func(call int) []trainer.Export
	iterationCalls   int
	exportListCalls  int
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{
		projects: map[string]trainer.Project{},
		tags:     map[string][]trainer.Tag{},
	}
}

func (f *fakeTrainer) provider() func(ctx context.Context) (trainer.Client, error) {
	return func(ctx context.Context) (trainer.Client, error) { return f, nil }
}

func (f *fakeTrainer) GetProject(ctx context.Context, projectID string) (*trainer.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return nil, &trainer.Error{StatusCode: http.StatusNotFound, Code: "NotFound", Message: "project not found"}
	}
	return &p, nil
}

func (f *fakeTrainer) CreateProject(ctx context.Context, name string) (*trainer.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createProjectErr != nil {
		return nil, f.createProjectErr
	}
	p := trainer.Project{ID: fmt.Sprintf("remote-%d", len(f.projects)+1), Name: name}
	f.projects[p.ID] = p
	return &p, nil
}

func (f *fakeTrainer) GetTags(ctx context.Context, projectID string) ([]trainer.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trainer.Tag{}, f.tags[projectID]...), nil
}

func (f *fakeTrainer) CreateTag(ctx context.Context, projectID, name, description string) (*trainer.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := trainer.Tag{ID: fmt.Sprintf("tag-%s", name), Name: name, Description: description}
	f.tags[projectID] = append(f.tags[projectID], t)
	return &t, nil
}

func (f *fakeTrainer) DeleteTag(ctx context.Context, projectID, tagID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedTags = append(f.deletedTags, tagID)
	return nil
}

func (f *fakeTrainer) GetTaggedImageCount(ctx context.Context, projectID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tagged), nil
}

func (f *fakeTrainer) GetTaggedImages(ctx context.Context, projectID string, take, skip int) ([]trainer.TaggedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if skip >= len(f.tagged) {
		return nil, nil
	}
	return f.tagged[skip:min(skip+take, len(f.tagged))], nil
}

func (f *fakeTrainer) CreateImagesFromFiles(ctx context.Context, projectID string, batch trainer.ImageFileCreateBatch) (*trainer.ImageCreateSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch.Images)
	return &trainer.ImageCreateSummary{IsBatchSuccessful: true}, nil
}

func (f *fakeTrainer) TrainProject(ctx context.Context, projectID string) (*trainer.Iteration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trainCalls++
	return &trainer.Iteration{ID: "it-1", Name: "Iteration 1", Status: "Training"}, nil
}

func (f *fakeTrainer) GetIterations(ctx context.Context, projectID string) ([]trainer.Iteration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iterationCalls++
	if f.iterations == nil {
		return nil, nil
	}
	return f.iterations(f.iterationCalls)
}

func (f *fakeTrainer) DeleteIteration(ctx context.Context, projectID, iterationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIts = append(f.deletedIts, iterationID)
	return nil
}

func (f *fakeTrainer) GetIterationPerformance(ctx context.Context, projectID, iterationID string) (*trainer.IterationPerformance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.performance
	return &p, nil
}

func (f *fakeTrainer) GetExports(ctx context.Context, projectID, iterationID string) ([]trainer.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportListCalls++
	if f.exports == nil {
		return nil, nil
	}
	return f.exports(f.exportListCalls), nil
}

func (f *fakeTrainer) ExportIteration(ctx context.Context, projectID, iterationID string) (*trainer.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportCalls++
	return &trainer.Export{Platform: "ONNX", Status: "Exporting"}, nil
}

func (f *fakeTrainer) uploadedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeTrainer) tagNames(projectID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := []string{}
	for _, t := range f.tags[projectID] {
		names = append(names, t.Name)
	}
	return names
}

// readyIterations answers with no iteration, then a training one, then a
// completed exportable one.
func readyIterations(call int) ([]trainer.Iteration, error) {
	switch call {
	case 1:
		return nil, nil
	case 2:
		return []trainer.Iteration{{ID: "it-1", Name: "Iteration 1", Status: "Training"}}, nil
	default:
		return []trainer.Iteration{{ID: "it-1", Name: "Iteration 1", Status: trainer.IterationStatusCompleted, Exportable: true}}, nil
	}
}

// exportedAfterFirstCall has no export on the first call and a downloadable
// one afterwards.
func exportedAfterFirstCall(call int) []trainer.Export {
	if call == 1 {
		return nil
	}
	return []trainer.Export{{Platform: "ONNX", Status: trainer.ExportStatusDone, DownloadURI: "https://models/model.zip"}}
}

// inferenceServer records the calls received by a fake inference module.
type inferenceServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*url.URL
	metrics  map[string]any
}

func newInferenceServer() *inferenceServer {
	s := &inferenceServer{
		metrics: map[string]any{
			"success_rate":           0.4567,
			"inference_num":          12,
			"unidentified_num":       3,
			"is_gpu":                 false,
			"average_inference_time": 0.25,
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL)
		s.mu.Unlock()

		if r.URL.Path == "/metrics" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(s.metrics)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return s
}

func (s *inferenceServer) calls(path string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []url.Values{}
	for _, u := range s.requests {
		if u.Path == path {
			out = append(out, u.Query())
		}
	}
	return out
}

type writtenEvent struct {
	kind string
	body any
}

type testEventWriter struct {
	mu     sync.Mutex
	events []writtenEvent
}

func (w *testEventWriter) WriteJSON(ctx context.Context, kind string, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, writtenEvent{kind: kind, body: v})
	return nil
}

func (w *testEventWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}
