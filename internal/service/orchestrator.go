package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"
)

// SyncResult describes what a synchronization changed on the trainer service.
type SyncResult struct {
	ProjectCreated bool
	NewTags        int
	UploadedImages int
	// Submitted is true when a training job was sent.
	Submitted bool
}

func (r SyncResult) ProjectChanged() bool {
	return r.NewTags > 0 || r.UploadedImages > 0
}

// Orchestrator pushes the local parts and images of a project to the trainer
// service and submits a training job when something changed.
type Orchestrator struct {
	store  store.Store
	cfg    config.WorkerConfig
	status statusWriter
}

func NewOrchestrator(s store.Store, cfg config.WorkerConfig) *Orchestrator {
	return &Orchestrator{store: s, cfg: cfg, status: statusWriter{store: s}}
}

// NormalizeRegion converts a pixel bounding box into a region relative to the
// image size.
func NormalizeRegion(box model.BoundingBox, width, height int, tagID string) trainer.Region {
	w, h := float64(width), float64(height)
	return trainer.Region{
		TagID:  tagID,
		Left:   box.X1 / w,
		Top:    box.Y1 / h,
		Width:  (box.X2 - box.X1) / w,
		Height: (box.Y2 - box.Y1) / h,
	}
}

func (o *Orchestrator) Sync(ctx context.Context, project *model.Project, client trainer.Client) (*SyncResult, error) {
	log := zap.S().Named("orchestrator").With("project_id", project.ID)
	result := &SyncResult{}

	parts, err := o.waitForParts(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	log.Infow("parts found", "parts", parts.Names())

	created, err := o.ensureRemoteProject(ctx, project, client)
	if err != nil {
		return nil, err
	}
	result.ProjectCreated = created

	o.status.set(ctx, project.ID, model.StatusSending, logSendingData)

	tagIDs, newTags, err := o.syncTags(ctx, project.RemoteProjectID, parts, client)
	if err != nil {
		return nil, err
	}
	result.NewTags = newTags
	log.Infow("tags synchronized", "created", newTags)

	uploaded, err := o.uploadImages(ctx, project.RemoteProjectID, parts, tagIDs, client)
	if err != nil {
		return nil, err
	}
	result.UploadedImages = uploaded
	log.Infow("images uploaded", "count", uploaded)

	if !result.ProjectChanged() {
		o.status.set(ctx, project.ID, model.StatusDeploying, logNothingChanged)
		return result, nil
	}

	o.status.set(ctx, project.ID, model.StatusTraining, logProjectChanged)
	o.dequeueIterations(ctx, project.RemoteProjectID, client)
	if _, err := client.TrainProject(ctx, project.RemoteProjectID); err != nil {
		return nil, err
	}
	result.Submitted = true

	// a new model is coming, the next export has to be deployed again
	if err := o.store.Project().ClearDeployment(ctx, project.ID); err != nil {
		return nil, err
	}

	retraining := project.TrainingCounter > 0
	if err := o.store.Project().IncrementCounters(ctx, project.ID, retraining); err != nil {
		log.Warnw("failed to increment usage counters", "error", err)
	}
	metrics.IncreaseTrainingSubmissionsMetric(retraining)
	log.Infow("training submitted", "new_tags", newTags, "uploaded_images", uploaded, "retraining", retraining)

	return result, nil
}

// waitForParts polls the parts of the project until at least one exists or the
// attempts are exhausted. Running out of attempts is not an error.
func (o *Orchestrator) waitForParts(ctx context.Context, projectID uuid.UUID) (model.PartList, error) {
	filter := store.NewPartQueryFilter().ByProjectID(projectID).WithSortOrder(store.SortByCreatedTime)

	var parts model.PartList
	for attempt := 0; attempt < max(o.cfg.PartWaitAttempts, 1); attempt++ {
		var err error
		parts, err = o.store.Part().List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(parts) > 0 || attempt == o.cfg.PartWaitAttempts-1 {
			break
		}

		zap.S().Named("orchestrator").Debugw("waiting parts", "project_id", projectID, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.PartWaitInterval):
		}
	}
	return parts, nil
}

// ensureRemoteProject creates the remote project when it cannot be fetched.
func (o *Orchestrator) ensureRemoteProject(ctx context.Context, project *model.Project, client trainer.Client) (bool, error) {
	if project.RemoteProjectID != "" {
		if _, err := client.GetProject(ctx, project.RemoteProjectID); err == nil {
			o.status.set(ctx, project.ID, model.StatusPreparing,
				fmt.Sprintf("Project %s found on Custom Vision", project.RemoteProjectName))
			return false, nil
		}
	}

	name := project.RemoteProjectName
	if name == "" {
		name = fmt.Sprintf("edge-trainer-%s", project.ID.String()[:8])
	}

	remote, err := client.CreateProject(ctx, name)
	if err != nil {
		return false, err
	}

	if err := o.store.Project().SetRemoteProject(ctx, project.ID, remote.ID, remote.Name); err != nil {
		return false, err
	}
	project.RemoteProjectID = remote.ID
	project.RemoteProjectName = remote.Name

	o.status.set(ctx, project.ID, model.StatusPreparing,
		fmt.Sprintf("Project created on CustomVision. Name: %s", remote.Name))
	zap.S().Named("orchestrator").Infow("remote project created", "project_id", project.ID, "remote_id", remote.ID, "name", remote.Name)
	return true, nil
}

// dequeueIterations deletes the oldest iterations so that the project keeps at
// most MaxIterations once the next training is submitted. Failures are logged.
func (o *Orchestrator) dequeueIterations(ctx context.Context, remoteID string, client trainer.Client) {
	if o.cfg.MaxIterations <= 0 {
		return
	}
	log := zap.S().Named("orchestrator").With("remote_project_id", remoteID)

	iterations, err := client.GetIterations(ctx, remoteID)
	if err != nil {
		log.Warnw("failed to list iterations", "error", err)
		return
	}

	keep := o.cfg.MaxIterations - 1
	if len(iterations) <= keep {
		return
	}
	for _, it := range iterations[keep:] {
		if err := client.DeleteIteration(ctx, remoteID, it.ID); err != nil {
			log.Warnw("failed to delete iteration", "iteration_id", it.ID, "error", err)
			continue
		}
		log.Infow("iteration deleted", "iteration_id", it.ID)
	}
}

// syncTags creates a remote tag for every part missing one and returns the tag
// id of every part name.
func (o *Orchestrator) syncTags(ctx context.Context, remoteID string, parts model.PartList, client trainer.Client) (map[string]string, int, error) {
	tags, err := client.GetTags(ctx, remoteID)
	if err != nil {
		return nil, 0, err
	}

	tagIDs := make(map[string]string, len(tags))
	for _, t := range tags {
		tagIDs[t.Name] = t.ID
	}
	existing := sets.KeySet(tagIDs)

	created := 0
	for _, part := range parts {
		if existing.Has(part.Name) {
			continue
		}
		tag, err := client.CreateTag(ctx, remoteID, part.Name, part.Description)
		if err != nil {
			return nil, 0, err
		}
		tagIDs[tag.Name] = tag.ID
		existing.Insert(tag.Name)
		created++
	}

	return tagIDs, created, nil
}

type pendingImage struct {
	id    uuid.UUID
	entry trainer.ImageFileCreateEntry
}

// uploadImages sends the images not yet uploaded in batches and flags each
// batch once the trainer accepted it.
func (o *Orchestrator) uploadImages(ctx context.Context, remoteID string, parts model.PartList, tagIDs map[string]string, client trainer.Client) (int, error) {
	log := zap.S().Named("orchestrator")
	if len(parts) == 0 {
		return 0, nil
	}

	partNames := make(map[uuid.UUID]string, len(parts))
	for _, p := range parts {
		partNames[p.ID] = p.Name
	}

	images, err := o.store.Image().List(ctx, store.NewImageQueryFilter().
		ByPartIDs(parts.IDs()).
		ByRelabel(false).
		ByUploaded(false).
		WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return 0, err
	}

	pending := make([]pendingImage, 0, len(images))
	for _, img := range images {
		entry, ok, err := buildImageEntry(img, tagIDs[partNames[img.PartID]])
		if err != nil {
			log.Warnw("skipping image", "image_id", img.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		pending = append(pending, pendingImage{id: img.ID, entry: entry})
	}

	batchSize := max(o.cfg.UploadBatchSize, 1)
	uploaded := 0
	for start := 0; start < len(pending); start += batchSize {
		batch := pending[start:min(start+batchSize, len(pending))]

		entries := make([]trainer.ImageFileCreateEntry, 0, len(batch))
		ids := make([]uuid.UUID, 0, len(batch))
		for _, p := range batch {
			entries = append(entries, p.entry)
			ids = append(ids, p.id)
		}

		summary, err := client.CreateImagesFromFiles(ctx, remoteID, trainer.ImageFileCreateBatch{Images: entries})
		if err != nil {
			return uploaded, err
		}
		if !summary.IsBatchSuccessful {
			log.Warnw("trainer reported a partially failed batch", "size", len(batch))
		}

		if err := o.store.Image().MarkUploaded(ctx, ids); err != nil {
			return uploaded, err
		}
		uploaded += len(batch)
	}

	return uploaded, nil
}

// buildImageEntry returns false when the image carries no region.
func buildImageEntry(img model.Image, tagID string) (trainer.ImageFileCreateEntry, bool, error) {
	boxes, err := img.Boxes()
	if err != nil {
		return trainer.ImageFileCreateEntry{}, false, fmt.Errorf("invalid labels: %w", err)
	}
	if len(boxes) == 0 {
		return trainer.ImageFileCreateEntry{}, false, nil
	}
	if tagID == "" {
		return trainer.ImageFileCreateEntry{}, false, fmt.Errorf("no tag for part %s", img.PartID)
	}

	width, height := img.Width, img.Height
	if width <= 0 || height <= 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Contents))
		if err != nil {
			return trainer.ImageFileCreateEntry{}, false, fmt.Errorf("unknown image size: %w", err)
		}
		width, height = cfg.Width, cfg.Height
	}

	regions := make([]trainer.Region, 0, len(boxes))
	for _, b := range boxes {
		regions = append(regions, NormalizeRegion(b, width, height, tagID))
	}

	return trainer.ImageFileCreateEntry{
		Name:     fmt.Sprintf("img-%s", img.ID),
		Contents: img.Contents,
		Regions:  regions,
	}, true, nil
}
