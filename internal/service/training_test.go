package service_test

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/inference"
	"github.com/kubev2v/edge-trainer/internal/service"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("training service", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		fake     *fakeTrainer
		server   *inferenceServer
		notifier *inference.Notifier
		writer   *testEventWriter
		registry *service.WorkerRegistry
		cancel   context.CancelFunc
		project  *model.Project
	)

	newServiceWithConfig := func(provider service.TrainerProvider, cfg config.WorkerConfig) *service.TrainingService {
		return service.NewTrainingService(s, notifier, provider, registry,
			service.NewOrchestrator(s, cfg),
			service.NewReconciler(s, notifier, writer, cfg))
	}

	newService := func(provider service.TrainerProvider) *service.TrainingService {
		return newServiceWithConfig(provider, testWorkerConfig())
	}

	// slowParts waits up to 2s for the parts of a project.
	slowParts := func() config.WorkerConfig {
		cfg := testWorkerConfig()
		cfg.PartWaitAttempts = 200
		cfg.PartWaitInterval = 10 * time.Millisecond
		return cfg
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		registry = service.NewWorkerRegistry(ctx, service.MarkFailed(s))

		fake = newFakeTrainer()
		server = newInferenceServer()
		notifier = inference.NewNotifier(server.URL, time.Second)
		writer = &testEventWriter{}

		camera, err := s.Camera().Create(context.TODO(), model.Camera{Name: "cam", RTSP: "rtsp://cam/1"})
		Expect(err).To(BeNil())
		p := model.NewProject("bolts")
		p.CameraID = &camera.ID
		project, err = s.Project().Create(context.TODO(), p)
		Expect(err).To(BeNil())
		part, err := s.Part().Create(context.TODO(), model.Part{ProjectID: project.ID, Name: "bolt"})
		Expect(err).To(BeNil())
		_, err = s.Image().Create(context.TODO(), model.Image{
			PartID:   part.ID,
			Contents: []byte("jpeg"),
			Width:    100,
			Height:   100,
			Labels:   model.MakeLabels([]model.BoundingBox{{X1: 1, Y1: 1, X2: 10, Y2: 10}}),
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		cancel()
		registry.Wait()
		notifier.Wait()
		server.Close()
		cleanTables(gormdb)
	})

	It("fails for an unknown project", func() {
		err := newService(fake.provider()).Train(context.TODO(), uuid.New(), false)
		Expect(err).NotTo(BeNil())
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
	})

	It("deploys the demo model without training", func() {
		Expect(newService(fake.provider()).Train(context.TODO(), project.ID, true)).To(BeNil())
		notifier.Wait()

		Expect(fake.trainCalls).To(Equal(0))
		models := server.calls("/update_model")
		Expect(models).To(HaveLen(1))
		Expect(models[0].Get("model_dir")).To(Equal("default_model"))

		retrain := server.calls("/update_retrain_parameters")
		Expect(retrain).To(HaveLen(1))
		Expect(retrain[0].Get("confidence_min")).To(Equal("30"))
		Expect(retrain[0].Get("confidence_max")).To(Equal("30"))
		Expect(retrain[0].Get("max_images")).To(Equal("10"))

		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusOk))
		Expect(status.Log).To(Equal("demo ok"))

		updated, err := s.Project().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(updated.HasConfigured).To(BeTrue())
	})

	It("trains, deploys and completes in background", func() {
		fake.iterations = readyIterations
		fake.exports = exportedAfterFirstCall

		Expect(newService(fake.provider()).Train(context.TODO(), project.ID, false)).To(BeNil())
		Expect(fake.trainCalls).To(Equal(1))
		Expect(fake.uploadedCount()).To(Equal(1))

		Eventually(func() model.TrainingStatusValue {
			status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
			if err != nil {
				return ""
			}
			return status.Status
		}).WithTimeout(5 * time.Second).Should(Equal(model.StatusOk))

		registry.Wait()
		notifier.Wait()
		Expect(registry.IsActive(project.ID)).To(BeFalse())
		Expect(writer.Len()).To(Equal(1))
		Expect(server.calls("/update_model")).To(HaveLen(1))
		// parts are pushed on trigger and with the trained model
		Expect(server.calls("/update_parts")).To(HaveLen(2))
	})

	It("ignores a trigger while the project is being reconciled", func() {
		Expect(registry.TryAcquire(project.ID)).To(BeTrue())
		defer registry.Release(project.ID)

		Expect(newService(fake.provider()).Train(context.TODO(), project.ID, false)).To(BeNil())
		Expect(fake.trainCalls).To(Equal(0))
		Expect(fake.uploadedCount()).To(Equal(0))

		_, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})

	It("reports invalid credentials when the trainer is not configured", func() {
		provider := func(context.Context) (trainer.Client, error) { return nil, trainer.ErrNotConfigured }

		err := newService(provider).Train(context.TODO(), project.ID, false)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidCredentials{})))
		Expect(err.Error()).To(Equal(service.InvalidCredentialsMessage))
		Expect(registry.IsActive(project.ID)).To(BeFalse())

		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusFailed))
		Expect(status.Log).To(Equal(service.InvalidCredentialsMessage))
	})

	It("reports the message of the trainer service", func() {
		fake.createProjectErr = &trainer.Error{StatusCode: 400, Code: "BadRequest", Message: "invalid project name"}

		err := newService(fake.provider()).Train(context.TODO(), project.ID, false)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrRemoteService{})))
		Expect(err.Error()).To(Equal("invalid project name"))
		Expect(registry.IsActive(project.ID)).To(BeFalse())

		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusFailed))
		Expect(status.Log).To(Equal("invalid project name"))
	})

	It("maps access denied to invalid credentials", func() {
		fake.createProjectErr = &trainer.Error{StatusCode: 401, Message: "Access Denied"}

		err := newService(fake.provider()).Train(context.TODO(), project.ID, false)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidCredentials{})))
	})

	It("records the failure when the caller gives up during synchronization", func() {
		gormdb.Exec("DELETE FROM images;")
		gormdb.Exec("DELETE FROM parts;")

		ctx, cancelTrain := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancelTrain()

		err := newServiceWithConfig(fake.provider(), slowParts()).Train(ctx, project.ID, false)
		Expect(err).NotTo(BeNil())
		Expect(registry.IsActive(project.ID)).To(BeFalse())

		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusFailed))
		Expect(status.Log).To(HavePrefix("failed: "))
	})

	It("keeps a threshold updated while the project is synchronized", func() {
		gormdb.Exec("DELETE FROM images;")
		gormdb.Exec("DELETE FROM parts;")

		projectSrv := service.NewProjectService(s, notifier, fake.provider(), registry)

		done := make(chan error, 1)
		go func() {
			done <- newServiceWithConfig(fake.provider(), slowParts()).Train(context.TODO(), project.ID, false)
		}()

		Eventually(func() model.TrainingStatusValue {
			status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
			if err != nil {
				return ""
			}
			return status.Status
		}).WithTimeout(time.Second).Should(Equal(model.StatusPreparing))

		Expect(projectSrv.UpdateProbThreshold(context.TODO(), project.ID, 77)).To(Succeed())
		_, err := s.Part().Create(context.TODO(), model.Part{ProjectID: project.ID, Name: "bolt"})
		Expect(err).To(BeNil())

		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))

		updated, err := s.Project().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(updated.ProbThreshold).To(Equal(77))
		Expect(updated.RemoteProjectID).NotTo(BeEmpty())
	})

	It("marks the project failed when the reconciliation fails", func() {
		fake.iterations = func(int) ([]trainer.Iteration, error) {
			return nil, &trainer.Error{StatusCode: 500, Message: "internal error"}
		}

		Expect(newService(fake.provider()).Train(context.TODO(), project.ID, false)).To(BeNil())
		registry.Wait()

		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusFailed))
		Expect(status.Log).To(Equal("internal error"))
		Expect(registry.IsActive(project.ID)).To(BeFalse())
	})
})

var _ = Describe("worker registry", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		cleanTables(gormdb)
	})

	It("runs at most one task per project", func() {
		registry := service.NewWorkerRegistry(context.TODO(), nil)
		id := uuid.New()

		Expect(registry.TryAcquire(id)).To(BeTrue())
		Expect(registry.TryAcquire(id)).To(BeFalse())
		Expect(registry.TryAcquire(uuid.New())).To(BeTrue())

		registry.Release(id)
		Expect(registry.TryAcquire(id)).To(BeTrue())
	})

	It("records a panic as a failed status", func() {
		project, err := s.Project().Create(context.TODO(), model.NewProject("bolts"))
		Expect(err).To(BeNil())

		registry := service.NewWorkerRegistry(context.TODO(), service.MarkFailed(s))
		Expect(registry.TryAcquire(project.ID)).To(BeTrue())
		registry.Go(project.ID, func(ctx context.Context) error {
			panic("boom")
		})
		registry.Wait()

		Expect(registry.IsActive(project.ID)).To(BeFalse())
		status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		Expect(status.Status).To(Equal(model.StatusFailed))
		Expect(status.Log).To(ContainSubstring("boom"))
	})

	It("does not record tasks stopped by cancellation", func() {
		project, err := s.Project().Create(context.TODO(), model.NewProject("bolts"))
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.TODO())
		registry := service.NewWorkerRegistry(ctx, service.MarkFailed(s))
		Expect(registry.TryAcquire(project.ID)).To(BeTrue())
		registry.Go(project.ID, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		cancel()
		registry.Wait()

		_, err = s.TrainingStatus().Get(context.TODO(), project.ID)
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})
})
