package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/service"
	"github.com/kubev2v/edge-trainer/pkg/requestid"
)

const (
	statusOk     = "ok"
	statusFailed = "failed"
)

type ServiceHandler struct {
	trainingSrv *service.TrainingService
	projectSrv  *service.ProjectService
}

func NewServiceHandler(trainingService *service.TrainingService, projectService *service.ProjectService) *ServiceHandler {
	return &ServiceHandler{
		trainingSrv: trainingService,
		projectSrv:  projectService,
	}
}

// RegisterRoutes mounts the project endpoints under /api/v1.
func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/api/v1/inference_module", h.InferenceModule)
	router.Route("/api/v1/projects/{id}", func(r chi.Router) {
		r.Get("/train", h.Train)
		r.Get("/export", h.Export)
		r.Get("/train_performance", h.TrainPerformance)
		r.Get("/pull_cv_project", h.PullRemoteProject)
		r.Get("/reset_project", h.ResetProject)
		r.Get("/update_prob_threshold", h.UpdateProbThreshold)
		r.Get("/delete_tag", h.DeleteTag)
		r.Get("/status", h.Status)
		r.Get("/reset_camera", h.ResetCamera)
	})
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, StatusReply{Status: statusOk})
}

type StatusReply struct {
	Status string `json:"status"`
	Log    string `json:"log,omitempty"`
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func renderOk(w http.ResponseWriter, r *http.Request, code int) {
	render.Status(r, code)
	_ = render.Render(w, r, StatusReply{Status: statusOk})
}

func renderFailed(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	_ = render.Render(w, r, StatusReply{Status: statusFailed, Log: message})
}

// renderError translates a service error into the failed envelope. remoteCode
// is the status used for errors reported by the trainer service.
func renderError(w http.ResponseWriter, r *http.Request, err error, remoteCode int) {
	switch err.(type) {
	case *service.ErrValidation:
		renderFailed(w, r, http.StatusBadRequest, err.Error())
	case *service.ErrResourceNotFound:
		renderFailed(w, r, http.StatusNotFound, err.Error())
	case *service.ErrInvalidCredentials, *service.ErrInferenceUnreachable:
		renderFailed(w, r, http.StatusServiceUnavailable, err.Error())
	case *service.ErrRemoteService:
		renderFailed(w, r, remoteCode, err.Error())
	case *service.ErrTrainingInProgress:
		renderFailed(w, r, http.StatusConflict, err.Error())
	default:
		requestid.Logger(r.Context(), "handler").Errorw("unexpected error", "path", r.URL.Path, "error", err)
		renderFailed(w, r, http.StatusInternalServerError, err.Error())
	}
}

func projectID(w http.ResponseWriter, r *http.Request, invalidCode int) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderFailed(w, r, invalidCode, "invalid project id")
		return uuid.Nil, false
	}
	return id, true
}
