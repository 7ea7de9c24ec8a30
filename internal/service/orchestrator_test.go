package service_test

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/service"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("orchestrator", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		fake   *fakeTrainer
		orch   *service.Orchestrator
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

	BeforeEach(func() {
		fake = newFakeTrainer()
		orch = service.NewOrchestrator(s, testWorkerConfig())
	})

	AfterEach(func() {
		cleanTables(gormdb)
	})

	createProject := func(partNames ...string) *model.Project {
		project, err := s.Project().Create(context.TODO(), model.NewProject("bolts"))
		Expect(err).To(BeNil())
		for _, name := range partNames {
			_, err := s.Part().Create(context.TODO(), model.Part{ProjectID: project.ID, Name: name})
			Expect(err).To(BeNil())
		}
		project, err = s.Project().Get(context.TODO(), project.ID)
		Expect(err).To(BeNil())
		return project
	}

	addImage := func(part model.Part, boxes ...model.BoundingBox) *model.Image {
		img, err := s.Image().Create(context.TODO(), model.Image{
			PartID:   part.ID,
			Contents: []byte("jpeg"),
			Width:    100,
			Height:   200,
			Labels:   model.MakeLabels(boxes),
		})
		Expect(err).To(BeNil())
		return img
	}

	Context("normalize region", func() {
		It("converts pixel boxes to fractions of the image size", func() {
			r := service.NormalizeRegion(model.BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 80}, 100, 200, "tag-1")
			Expect(r.TagID).To(Equal("tag-1"))
			Expect(r.Left).To(BeNumerically("~", 0.10, 1e-9))
			Expect(r.Top).To(BeNumerically("~", 0.10, 1e-9))
			Expect(r.Width).To(BeNumerically("~", 0.40, 1e-9))
			Expect(r.Height).To(BeNumerically("~", 0.30, 1e-9))
		})
	})

	Context("sync", func() {
		It("creates the remote project, the tags and submits a training", func() {
			project := createProject("bolt", "nut")
			addImage(project.Parts[0], model.BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 80})

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.ProjectCreated).To(BeTrue())
			Expect(result.NewTags).To(Equal(2))
			Expect(result.UploadedImages).To(Equal(1))
			Expect(result.Submitted).To(BeTrue())
			Expect(fake.trainCalls).To(Equal(1))

			updated, err := s.Project().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			Expect(updated.RemoteProjectID).To(Equal("remote-1"))
			Expect(updated.TrainingCounter).To(Equal(1))
			Expect(updated.RetrainingCounter).To(Equal(0))

			status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.StatusTraining))
		})

		It("does not create a tag twice", func() {
			project := createProject("bolt", "nut")
			project.RemoteProjectID = "existing"
			_, err := s.Project().Update(context.TODO(), *project)
			Expect(err).To(BeNil())
			fake.projects["existing"] = trainer.Project{ID: "existing", Name: "bolts"}
			fake.tags["existing"] = []trainer.Tag{{ID: "tag-bolt", Name: "bolt"}}

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.ProjectCreated).To(BeFalse())
			Expect(result.NewTags).To(Equal(1))
			Expect(fake.tagNames("existing")).To(ConsistOf("bolt", "nut"))

			result, err = orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.NewTags).To(Equal(0))
			Expect(fake.tagNames("existing")).To(HaveLen(2))
		})

		It("leaves images without labels out of the upload", func() {
			project := createProject("bolt")
			labeled := addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})
			unlabeled := addImage(project.Parts[0])

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.UploadedImages).To(Equal(1))

			images, err := s.Image().List(context.TODO(), store.NewImageQueryFilter().ByIDs([]uuid.UUID{labeled.ID, unlabeled.ID}))
			Expect(err).To(BeNil())
			for _, img := range images {
				Expect(img.Uploaded).To(Equal(img.ID == labeled.ID))
			}
		})

		It("uploads in batches", func() {
			project := createProject("bolt")
			for i := 0; i < 7; i++ {
				addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})
			}

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.UploadedImages).To(Equal(7))
			Expect(fake.batches).To(HaveLen(2))
			Expect(fake.batches[0]).To(HaveLen(5))
			Expect(fake.batches[1]).To(HaveLen(2))
		})

		It("reads the size from the image when unknown", func() {
			project := createProject("bolt")

			var buf bytes.Buffer
			Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 200)))).To(BeNil())
			_, err := s.Image().Create(context.TODO(), model.Image{
				PartID:   project.Parts[0].ID,
				Contents: buf.Bytes(),
				Labels:   model.MakeLabels([]model.BoundingBox{{X1: 10, Y1: 20, X2: 50, Y2: 80}}),
			})
			Expect(err).To(BeNil())

			_, err = orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(fake.batches).To(HaveLen(1))
			region := fake.batches[0][0].Regions[0]
			Expect(region.TagID).To(Equal("tag-bolt"))
			Expect(region.Width).To(BeNumerically("~", 0.40, 1e-9))
			Expect(region.Height).To(BeNumerically("~", 0.30, 1e-9))
		})

		It("goes to deploying when nothing changed", func() {
			project := createProject("bolt")
			addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})

			_, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(fake.trainCalls).To(Equal(1))

			project, err = s.Project().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.ProjectChanged()).To(BeFalse())
			Expect(result.Submitted).To(BeFalse())
			Expect(fake.trainCalls).To(Equal(1))

			status, err := s.TrainingStatus().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			Expect(status.Status).To(Equal(model.StatusDeploying))
		})

		It("counts a second submission as retraining", func() {
			project := createProject("bolt")
			addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})
			_, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())

			addImage(project.Parts[0], model.BoundingBox{X1: 2, Y1: 2, X2: 6, Y2: 6})
			project, err = s.Project().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			_, err = orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())

			project, err = s.Project().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			Expect(project.TrainingCounter).To(Equal(2))
			Expect(project.RetrainingCounter).To(Equal(1))
		})

		It("drops the oldest iterations before submitting", func() {
			cfg := testWorkerConfig()
			cfg.MaxIterations = 3
			orch = service.NewOrchestrator(s, cfg)
			fake.iterations = func(int) ([]trainer.Iteration, error) {
				return []trainer.Iteration{{ID: "it-4"}, {ID: "it-3"}, {ID: "it-2"}, {ID: "it-1"}}, nil
			}

			project := createProject("bolt")
			addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})

			result, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())
			Expect(result.Submitted).To(BeTrue())
			Expect(fake.deletedIts).To(Equal([]string{"it-2", "it-1"}))
		})

		It("keeps the columns written while synchronizing", func() {
			project := createProject("bolt")
			addImage(project.Parts[0], model.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 5})

			// project is now a stale copy
			Expect(s.Project().SetProbThreshold(context.TODO(), project.ID, 77)).To(Succeed())

			_, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).To(BeNil())

			updated, err := s.Project().Get(context.TODO(), project.ID)
			Expect(err).To(BeNil())
			Expect(updated.ProbThreshold).To(Equal(77))
			Expect(updated.RemoteProjectID).To(Equal("remote-1"))
		})

		It("fails when the remote project cannot be created", func() {
			project := createProject("bolt")
			fake.createProjectErr = &trainer.Error{StatusCode: 400, Code: "BadRequest", Message: "invalid name"}

			_, err := orch.Sync(context.TODO(), project, fake)
			Expect(err).NotTo(BeNil())
			Expect(trainer.Message(err)).To(Equal("invalid name"))
		})
	})
})
