package v1alpha1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/handlers/validator"
	"github.com/kubev2v/edge-trainer/internal/service"
)

type resetForm struct {
	ProjectName string `query:"project_name" validate:"required,project_name"`
}

type pullForm struct {
	RemoteProjectID string `query:"customvision_project_id" validate:"required,remote_project_id"`
}

type ExportReply service.ExportStatus

func (e ExportReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type PerformanceReply struct {
	Status    string                  `json:"status,omitempty"`
	Precision any                     `json:"precision,omitempty"`
	Recall    any                     `json:"recall,omitempty"`
	Map       any                     `json:"map,omitempty"`
	New       *service.IterationScore `json:"new,omitempty"`
	Previous  *service.IterationScore `json:"previous,omitempty"`
}

func (p PerformanceReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type TrainingStatusReply struct {
	ProjectID   string          `json:"project_id"`
	Status      string          `json:"status"`
	Log         string          `json:"log"`
	Performance json.RawMessage `json:"performance,omitempty"`
}

func (t TrainingStatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// (GET /api/v1/projects/{id}/train)
func (h *ServiceHandler) Train(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	demo, _ := strconv.ParseBool(r.URL.Query().Get("demo"))
	if err := h.trainingSrv.Train(r.Context(), id, demo); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	renderOk(w, r, http.StatusAccepted)
}

// (GET /api/v1/projects/{id}/export)
func (h *ServiceHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	export, err := h.projectSrv.ExportStatus(r.Context(), id)
	if err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	_ = render.Render(w, r, ExportReply(*export))
}

// (GET /api/v1/projects/{id}/train_performance)
func (h *ServiceHandler) TrainPerformance(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	perf, err := h.projectSrv.TrainPerformance(r.Context(), id)
	if err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	if perf.Demo {
		_ = render.Render(w, r, PerformanceReply{Status: statusOk, Precision: 1, Recall: "demo_recall", Map: "demo_map"})
		return
	}
	_ = render.Render(w, r, PerformanceReply{New: perf.New, Previous: perf.Previous})
}

// (GET /api/v1/projects/{id}/pull_cv_project)
func (h *ServiceHandler) PullRemoteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	form := pullForm{RemoteProjectID: r.URL.Query().Get("customvision_project_id")}
	v := validator.NewValidator()
	v.Register(validator.NewProjectValidationRules()...)
	if err := v.Struct(form); err != nil {
		renderFailed(w, r, http.StatusBadRequest, validator.Message(err))
		return
	}

	partial, err := strconv.ParseBool(r.URL.Query().Get("partial"))
	if err != nil {
		partial = true
	}

	if err := h.projectSrv.PullRemoteProject(r.Context(), id, form.RemoteProjectID, partial); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	renderOk(w, r, http.StatusOK)
}

// (GET /api/v1/projects/{id}/reset_project)
func (h *ServiceHandler) ResetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	form := resetForm{ProjectName: r.URL.Query().Get("project_name")}
	v := validator.NewValidator()
	v.Register(validator.NewProjectValidationRules()...)
	if err := v.Struct(form); err != nil {
		renderFailed(w, r, http.StatusBadRequest, validator.Message(err))
		return
	}

	if err := h.projectSrv.ResetProject(r.Context(), id, form.ProjectName); err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	renderOk(w, r, http.StatusOK)
}

// (GET /api/v1/projects/{id}/update_prob_threshold)
func (h *ServiceHandler) UpdateProbThreshold(w http.ResponseWriter, r *http.Request) {
	const notInteger = "prob_threshold must be given as Integer"

	id, ok := projectID(w, r, http.StatusBadRequest)
	if !ok {
		return
	}

	threshold, err := strconv.Atoi(r.URL.Query().Get("prob_threshold"))
	if err != nil {
		renderFailed(w, r, http.StatusBadRequest, notInteger)
		return
	}

	if err := h.projectSrv.UpdateProbThreshold(r.Context(), id, threshold); err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderFailed(w, r, http.StatusBadRequest, "project with project_id not found")
		default:
			renderError(w, r, err, http.StatusServiceUnavailable)
		}
		return
	}

	renderOk(w, r, http.StatusOK)
}

// (GET /api/v1/projects/{id}/delete_tag)
func (h *ServiceHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	var partID *uuid.UUID
	if raw := r.URL.Query().Get("part_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			renderFailed(w, r, http.StatusBadRequest, "part_id invalid")
			return
		}
		partID = &parsed
	}

	if err := h.projectSrv.DeleteTag(r.Context(), id, partID, r.URL.Query().Get("part_name")); err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	renderOk(w, r, http.StatusOK)
}

// (GET /api/v1/projects/{id}/status)
func (h *ServiceHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	status, err := h.projectSrv.Status(r.Context(), id)
	if err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	_ = render.Render(w, r, TrainingStatusReply{
		ProjectID:   status.ProjectID.String(),
		Status:      string(status.Status),
		Log:         status.Log,
		Performance: json.RawMessage(status.Performance),
	})
}

// (GET /api/v1/projects/{id}/reset_camera)
func (h *ServiceHandler) ResetCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	if err := h.projectSrv.ResetCamera(r.Context(), id); err != nil {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}

	renderOk(w, r, http.StatusOK)
}

type InferenceModuleReply struct {
	*service.InferenceModule
}

func (i InferenceModuleReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// (GET /api/v1/inference_module)
func (h *ServiceHandler) InferenceModule(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, InferenceModuleReply{h.projectSrv.InferenceModule(r.Context())})
}
