package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/pkg/metrics"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"
)

// FailureHandler is called when a supervised task ends with an error or a panic.
type FailureHandler func(ctx context.Context, projectID uuid.UUID, err error)

// WorkerRegistry runs at most one background task per project. Tasks share the
// lifetime of the registry context.
type WorkerRegistry struct {
	ctx       context.Context
	lock      sync.Mutex
	active    sets.Set[uuid.UUID]
	wg        sync.WaitGroup
	onFailure FailureHandler
}

func NewWorkerRegistry(ctx context.Context, onFailure FailureHandler) *WorkerRegistry {
	return &WorkerRegistry{
		ctx:       ctx,
		active:    sets.New[uuid.UUID](),
		onFailure: onFailure,
	}
}

// TryAcquire reserves the project. It returns false when a task already owns it.
func (r *WorkerRegistry) TryAcquire(projectID uuid.UUID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.active.Has(projectID) {
		return false
	}
	r.active.Insert(projectID)
	metrics.UpdateActiveReconcilersMetric(r.active.Len())
	return true
}

func (r *WorkerRegistry) Release(projectID uuid.UUID) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.active.Delete(projectID)
	metrics.UpdateActiveReconcilersMetric(r.active.Len())
}

func (r *WorkerRegistry) IsActive(projectID uuid.UUID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.active.Has(projectID)
}

// Go runs task for a project acquired with TryAcquire and releases it when
// the task returns. Errors and panics are handed to the failure handler unless
// the registry context was cancelled.
func (r *WorkerRegistry) Go(projectID uuid.UUID, task func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.Release(projectID)

		err := r.supervise(task)
		if err == nil {
			return
		}
		if r.ctx.Err() != nil {
			zap.S().Named("worker_registry").Infow("task stopped", "project_id", projectID, "reason", r.ctx.Err())
			return
		}
		zap.S().Named("worker_registry").Errorw("task failed", "project_id", projectID, "error", err)
		if r.onFailure != nil {
			r.onFailure(context.WithoutCancel(r.ctx), projectID, err)
		}
	}()
}

func (r *WorkerRegistry) supervise(task func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task(r.ctx)
}

// Wait blocks until every task started with Go returned.
func (r *WorkerRegistry) Wait() {
	r.wg.Wait()
}
