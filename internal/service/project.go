package service

import (
	"context"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	"go.uber.org/zap"
)

// page size used to list the tagged images of a remote project
const taggedImagesPageSize = 50

var validate = validator.New()

type ExportStatus struct {
	Status          model.TrainingStatusValue `json:"status"`
	Log             string                    `json:"log"`
	DownloadURI     string                    `json:"download_uri"`
	SuccessRate     float64                   `json:"success_rate"`
	InferenceNum    int                       `json:"inference_num"`
	UnidentifiedNum int                       `json:"unidentified_num"`
	GPU             bool                      `json:"gpu"`
	AverageTime     float64                   `json:"average_time"`
}

type IterationScore struct {
	Status    string  `json:"status"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	MAP       float64 `json:"map"`
}

// TrainPerformance holds the scores of the two latest iterations. Demo
// projects report fixed values instead.
type TrainPerformance struct {
	New      *IterationScore `json:"new,omitempty"`
	Previous *IterationScore `json:"previous,omitempty"`

	Demo bool `json:"-"`
}

// InferenceModule describes the inference module the models are deployed to.
type InferenceModule struct {
	URL            string  `json:"url"`
	RecommendedFPS float64 `json:"recommended_fps"`
	Device         string  `json:"device"`
	IsVPU          bool    `json:"is_vpu"`
}

type ResetForm struct {
	ProjectName string `validate:"required"`
}

type ThresholdForm struct {
	ProbThreshold int `validate:"min=0,max=100"`
}

type ProjectService struct {
	store    store.Store
	notifier InferenceNotifier
	trainer  TrainerProvider
	registry *WorkerRegistry
}

func NewProjectService(s store.Store, notifier InferenceNotifier, provider TrainerProvider, registry *WorkerRegistry) *ProjectService {
	return &ProjectService{store: s, notifier: notifier, trainer: provider, registry: registry}
}

func (ps *ProjectService) getProject(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	project, err := ps.store.Project().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrProjectNotFound(id)
		}
		return nil, err
	}
	return project, nil
}

// Status returns the status record of the project. A project never trained is waiting.
func (ps *ProjectService) Status(ctx context.Context, id uuid.UUID) (*model.TrainingStatus, error) {
	if _, err := ps.getProject(ctx, id); err != nil {
		return nil, err
	}

	status, err := ps.store.TrainingStatus().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return model.NewWaitingStatus(id), nil
		}
		return nil, err
	}
	return status, nil
}

// ExportStatus merges the status record with the metrics reported by the
// inference module.
func (ps *ProjectService) ExportStatus(ctx context.Context, id uuid.UUID) (*ExportStatus, error) {
	project, err := ps.getProject(ctx, id)
	if err != nil {
		return nil, err
	}

	status, err := ps.Status(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := ps.notifier.Metrics(ctx)
	if err != nil {
		var unreachable *inference.UnreachableError
		if errors.As(err, &unreachable) {
			zap.S().Named("project_service").Errorw("inference module unreachable", "url", ps.notifier.URL(), "error", err)
			return nil, NewErrInferenceUnreachable(ps.notifier.URL())
		}
		return nil, err
	}

	return &ExportStatus{
		Status:          status.Status,
		Log:             status.Log,
		DownloadURI:     project.DownloadURI,
		SuccessRate:     math.Trunc(m.SuccessRate*100) / 100,
		InferenceNum:    m.InferenceNum,
		UnidentifiedNum: m.UnidentifiedNum,
		GPU:             m.IsGPU,
		AverageTime:     m.AverageInferenceTime,
	}, nil
}

func (ps *ProjectService) TrainPerformance(ctx context.Context, id uuid.UUID) (*TrainPerformance, error) {
	project, err := ps.getProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.IsDemo {
		return &TrainPerformance{Demo: true}, nil
	}

	client, err := ps.client(ctx)
	if err != nil {
		return nil, err
	}

	iterations, err := client.GetIterations(ctx, project.RemoteProjectID)
	if err != nil {
		return nil, remoteError(err)
	}

	result := &TrainPerformance{}
	for i, it := range iterations {
		if i == performanceIterations {
			break
		}
		score := &IterationScore{Status: it.Status}
		if it.Status == trainer.IterationStatusCompleted {
			p, err := client.GetIterationPerformance(ctx, project.RemoteProjectID, it.ID)
			if err != nil {
				return nil, remoteError(err)
			}
			score.Precision, score.Recall, score.MAP = p.Precision, p.Recall, p.AveragePrecision
		}
		if i == 0 {
			result.New = score
		} else {
			result.Previous = score
		}
	}
	return result, nil
}

// PullRemoteProject replaces the local parts of the project with the tags of
// a remote project. Unless partial is set, the tagged images are imported too.
func (ps *ProjectService) PullRemoteProject(ctx context.Context, id uuid.UUID, remoteID string, partial bool) error {
	log := zap.S().Named("project_service").With("project_id", id, "remote_project_id", remoteID)

	if remoteID == "" {
		return NewErrValidation("customvision_project_id required")
	}
	if ps.registry.IsActive(id) {
		return NewErrTrainingInProgress(id)
	}

	if _, err := ps.getProject(ctx, id); err != nil {
		return err
	}

	client, err := ps.client(ctx)
	if err != nil {
		return err
	}

	remote, err := client.GetProject(ctx, remoteID)
	if err != nil {
		return remoteError(err)
	}
	tags, err := client.GetTags(ctx, remoteID)
	if err != nil {
		return remoteError(err)
	}

	var tagged []trainer.TaggedImage
	if !partial {
		if tagged, err = listTaggedImages(ctx, client, remoteID); err != nil {
			return remoteError(err)
		}
	}

	ctx, err = ps.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := ps.clearParts(ctx, id); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	partByTag := make(map[string]uuid.UUID, len(tags))
	for _, tag := range tags {
		part, err := ps.store.Part().Create(ctx, model.Part{
			ProjectID:   id,
			Name:        tag.Name,
			Description: tag.Description,
		})
		if err != nil {
			_, _ = store.Rollback(ctx)
			return err
		}
		partByTag[tag.ID] = part.ID
	}

	imported := 0
	for _, img := range tagged {
		for partID, boxes := range denormalizeRegions(img, partByTag) {
			if _, err := ps.store.Image().Create(ctx, model.Image{
				PartID:    partID,
				Width:     img.Width,
				Height:    img.Height,
				Labels:    model.MakeLabels(boxes),
				RemoteURI: img.OriginalImageURI,
				Uploaded:  true,
			}); err != nil {
				_, _ = store.Rollback(ctx)
				return err
			}
			imported++
		}
	}

	if err := ps.store.Project().SetRemoteProject(ctx, id, remote.ID, remote.Name); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}
	if err := ps.store.Project().ResetDeployment(ctx, id); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	if _, err := store.Commit(ctx); err != nil {
		return err
	}

	log.Infow("remote project pulled", "parts", len(tags), "images", imported, "partial", partial)
	return nil
}

// ResetProject removes the local training data and links the project to a new
// remote project named name. A missing trainer configuration is tolerated.
func (ps *ProjectService) ResetProject(ctx context.Context, id uuid.UUID, name string) error {
	log := zap.S().Named("project_service").With("project_id", id)

	if err := validate.Struct(ResetForm{ProjectName: name}); err != nil {
		return NewErrValidation("project_name required")
	}
	if ps.registry.IsActive(id) {
		return NewErrTrainingInProgress(id)
	}

	project, err := ps.getProject(ctx, id)
	if err != nil {
		return err
	}

	ctx, err = ps.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := ps.clearParts(ctx, id); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	project.ResetRetrainingParameters()
	project.RemoteProjectName = name
	if _, err := ps.store.Project().Update(ctx, *project); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	if ctx, err = store.Commit(ctx); err != nil {
		return err
	}

	client, err := ps.trainer(ctx)
	if err != nil {
		if errors.Is(err, trainer.ErrNotConfigured) {
			log.Info("trainer not configured, remote project will be created on training")
			return nil
		}
		return NewErrInvalidCredentials()
	}

	remote, err := client.CreateProject(ctx, name)
	if err != nil {
		return remoteError(err)
	}

	if err := ps.store.Project().SetRemoteProject(ctx, id, remote.ID, remote.Name); err != nil {
		return err
	}

	log.Infow("project reset", "remote_project_id", remote.ID, "name", remote.Name)
	return nil
}

// UpdateProbThreshold persists the detection threshold and pushes it to the
// inference module.
func (ps *ProjectService) UpdateProbThreshold(ctx context.Context, id uuid.UUID, threshold int) error {
	if _, err := ps.getProject(ctx, id); err != nil {
		return err
	}

	if err := validate.Struct(ThresholdForm{ProbThreshold: threshold}); err != nil {
		return NewErrValidation("prob_threshold out of range")
	}

	if err := ps.store.Project().SetProbThreshold(ctx, id, threshold); err != nil {
		return err
	}

	if err := ps.notifier.UpdateProbThreshold(ctx, threshold); err != nil {
		zap.S().Named("project_service").Warnw("failed to push threshold to inference module", "project_id", id, "error", err)
	}
	return nil
}

// ResetCamera links the project to the demo camera.
func (ps *ProjectService) ResetCamera(ctx context.Context, id uuid.UUID) error {
	if _, err := ps.getProject(ctx, id); err != nil {
		return err
	}

	camera, err := ps.store.Camera().GetDemo(ctx)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrDemoCameraNotFound()
		}
		return err
	}

	if err := ps.store.Project().SetCamera(ctx, id, camera.ID); err != nil {
		return err
	}
	zap.S().Named("project_service").Infow("demo camera linked", "project_id", id, "camera_id", camera.ID)
	return nil
}

// InferenceModule queries the capabilities of the inference module. Each query
// falls back to its default when the module does not answer.
func (ps *ProjectService) InferenceModule(ctx context.Context) *InferenceModule {
	return &InferenceModule{
		URL:            ps.notifier.URL(),
		RecommendedFPS: ps.notifier.RecommendedFPS(ctx),
		Device:         ps.notifier.Device(ctx),
		IsVPU:          ps.notifier.IsVPU(ctx),
	}
}

// DeleteTag deletes the remote tag of a part designated by id or name.
func (ps *ProjectService) DeleteTag(ctx context.Context, id uuid.UUID, partID *uuid.UUID, partName string) error {
	if partID == nil && partName == "" {
		return NewErrValidation("part_name or part_id not found")
	}

	project, err := ps.getProject(ctx, id)
	if err != nil {
		return err
	}

	if partID != nil {
		part, err := ps.store.Part().Get(ctx, *partID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return NewErrResourceNotFound(*partID, "part")
			}
			return err
		}
		partName = part.Name
	}

	client, err := ps.client(ctx)
	if err != nil {
		return err
	}

	tags, err := client.GetTags(ctx, project.RemoteProjectID)
	if err != nil {
		return remoteError(err)
	}
	for _, tag := range tags {
		if tag.Name != partName {
			continue
		}
		if err := client.DeleteTag(ctx, project.RemoteProjectID, tag.ID); err != nil {
			return remoteError(err)
		}
		zap.S().Named("project_service").Infow("tag deleted", "project_id", id, "tag", tag.Name)
	}
	return nil
}

func (ps *ProjectService) client(ctx context.Context) (trainer.Client, error) {
	client, err := ps.trainer(ctx)
	if err != nil {
		return nil, NewErrInvalidCredentials()
	}
	return client, nil
}

// clearParts deletes the non demo parts of the project and their images.
func (ps *ProjectService) clearParts(ctx context.Context, projectID uuid.UUID) error {
	parts, err := ps.store.Part().List(ctx, store.NewPartQueryFilter().ByProjectID(projectID).ByDemo(false))
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return nil
	}
	if err := ps.store.Image().Delete(ctx, store.NewImageQueryFilter().ByPartIDs(parts.IDs())); err != nil {
		return err
	}
	return ps.store.Part().Delete(ctx, store.NewPartQueryFilter().ByIDs(parts.IDs()))
}

func remoteError(err error) error {
	if trainer.IsAccessDenied(err) {
		return NewErrInvalidCredentials()
	}
	var remoteErr *trainer.Error
	if errors.As(err, &remoteErr) {
		return NewErrRemoteService(trainer.Message(err))
	}
	return err
}

func listTaggedImages(ctx context.Context, client trainer.Client, remoteID string) ([]trainer.TaggedImage, error) {
	count, err := client.GetTaggedImageCount(ctx, remoteID)
	if err != nil {
		return nil, err
	}

	images := make([]trainer.TaggedImage, 0, count)
	for skip := 0; skip < count; skip += taggedImagesPageSize {
		page, err := client.GetTaggedImages(ctx, remoteID, taggedImagesPageSize, skip)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		images = append(images, page...)
	}
	return images, nil
}

// denormalizeRegions groups the regions of a remote image by local part and
// converts them back to pixel boxes.
func denormalizeRegions(img trainer.TaggedImage, partByTag map[string]uuid.UUID) map[uuid.UUID][]model.BoundingBox {
	w, h := float64(img.Width), float64(img.Height)
	boxes := make(map[uuid.UUID][]model.BoundingBox)
	for _, r := range img.Regions {
		partID, ok := partByTag[r.TagID]
		if !ok {
			continue
		}
		boxes[partID] = append(boxes[partID], model.BoundingBox{
			X1: r.Left * w,
			Y1: r.Top * h,
			X2: (r.Left + r.Width) * w,
			Y2: (r.Top + r.Height) * h,
		})
	}
	return boxes
}
