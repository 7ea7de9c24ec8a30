package service

import (
	"fmt"

	"github.com/google/uuid"
)

// InvalidCredentialsMessage is the user facing message for a rejected training key or endpoint.
const InvalidCredentialsMessage = "Training key or Endpoint is invalid. Please change the settings"

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrDemoCameraNotFound() *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("demo camera not found")}
}

func NewErrProjectNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "project")
}

type ErrInvalidCredentials struct {
	error
}

func NewErrInvalidCredentials() *ErrInvalidCredentials {
	return &ErrInvalidCredentials{fmt.Errorf("%s", InvalidCredentialsMessage)}
}

// ErrRemoteService wraps a failure reported by the trainer service. Its message
// is the one sent by the service.
type ErrRemoteService struct {
	error
}

func NewErrRemoteService(message string) *ErrRemoteService {
	return &ErrRemoteService{fmt.Errorf("%s", message)}
}

type ErrInferenceUnreachable struct {
	error
}

func NewErrInferenceUnreachable(url string) *ErrInferenceUnreachable {
	return &ErrInferenceUnreachable{fmt.Errorf("Export failed. Inference module url: %s unreachable", url)}
}

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

type ErrTrainingInProgress struct {
	error
}

func NewErrTrainingInProgress(id uuid.UUID) *ErrTrainingInProgress {
	return &ErrTrainingInProgress{fmt.Errorf("project %s is being trained", id)}
}
