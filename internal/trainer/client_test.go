package trainer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/kubev2v/edge-trainer/internal/config"
	"github.com/kubev2v/edge-trainer/internal/trainer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("trainer client", func() {
	var (
		ctx    context.Context
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("NewFromConfig", func() {
		It("fails when the training key is missing", func() {
			cfg := config.NewDefault()
			cfg.Service.Trainer.Endpoint = "https://example.cognitiveservices.azure.com"

			_, err := trainer.NewFromConfig(cfg)
			Expect(err).To(MatchError(trainer.ErrNotConfigured))
			Expect(trainer.IsAccessDenied(err)).To(BeTrue())
		})

		It("builds a client when endpoint and key are set", func() {
			cfg := config.NewDefault()
			cfg.Service.Trainer.Endpoint = "example.cognitiveservices.azure.com"
			cfg.Service.Trainer.TrainingKey = "key"

			c, err := trainer.NewFromConfig(cfg)
			Expect(err).To(BeNil())
			Expect(c).ToNot(BeNil())
		})
	})

	Describe("requests", func() {
		It("sends the training key and decodes the project", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/customvision/v3.3/training/projects/p1"))
				Expect(r.Header.Get("Training-Key")).To(Equal("secret"))
				_ = json.NewEncoder(w).Encode(trainer.Project{ID: "p1", Name: "project"})
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			project, err := c.GetProject(ctx, "p1")
			Expect(err).To(BeNil())
			Expect(project.Name).To(Equal("project"))
		})

		It("creates a tag with name and description", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/customvision/v3.3/training/projects/p1/tags"))
				Expect(r.URL.Query().Get("name")).To(Equal("bolt"))
				Expect(r.URL.Query().Get("description")).To(Equal("a bolt"))
				_ = json.NewEncoder(w).Encode(trainer.Tag{ID: "t1", Name: "bolt"})
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			tag, err := c.CreateTag(ctx, "p1", "bolt", "a bolt")
			Expect(err).To(BeNil())
			Expect(tag.ID).To(Equal("t1"))
		})

		It("posts image batches as json", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				var batch trainer.ImageFileCreateBatch
				Expect(json.NewDecoder(r.Body).Decode(&batch)).To(Succeed())
				Expect(batch.Images).To(HaveLen(1))
				Expect(batch.Images[0].Contents).To(Equal([]byte("img")))
				Expect(batch.Images[0].Regions[0].TagID).To(Equal("t1"))
				_ = json.NewEncoder(w).Encode(trainer.ImageCreateSummary{IsBatchSuccessful: true})
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			summary, err := c.CreateImagesFromFiles(ctx, "p1", trainer.ImageFileCreateBatch{
				Images: []trainer.ImageFileCreateEntry{{
					Name:     "img",
					Contents: []byte("img"),
					Regions:  []trainer.Region{{TagID: "t1", Left: 0.1, Top: 0.1, Width: 0.4, Height: 0.3}},
				}},
			})
			Expect(err).To(BeNil())
			Expect(summary.IsBatchSuccessful).To(BeTrue())
		})

		It("returns iterations newest first", func() {
			now := time.Now().UTC()
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode([]trainer.Iteration{
					{ID: "old", Created: now.Add(-time.Hour)},
					{ID: "new", Created: now},
				})
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			iterations, err := c.GetIterations(ctx, "p1")
			Expect(err).To(BeNil())
			Expect(iterations).To(HaveLen(2))
			Expect(iterations[0].ID).To(Equal("new"))
		})

		It("deletes an iteration", func() {
			var method, path string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				w.WriteHeader(http.StatusNoContent)
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			Expect(c.DeleteIteration(ctx, "p1", "i1")).To(Succeed())
			Expect(method).To(Equal(http.MethodDelete))
			Expect(path).To(Equal("/customvision/v3.3/training/projects/p1/iterations/i1"))
		})

		It("requests an export with the configured platform", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/customvision/v3.3/training/projects/p1/iterations/i1/export"))
				Expect(r.URL.Query().Get("platform")).To(Equal("TensorFlow"))
				_ = json.NewEncoder(w).Encode(trainer.Export{Platform: "TensorFlow", Status: "Exporting"})
			}))

			c := trainer.NewRestClient(server.URL, "secret", "TensorFlow", time.Second)
			export, err := c.ExportIteration(ctx, "p1", "i1")
			Expect(err).To(BeNil())
			Expect(export.Status).To(Equal("Exporting"))
		})
	})

	Describe("errors", func() {
		It("classifies access denied responses", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key"}}`))
			}))

			c := trainer.NewRestClient(server.URL, "bad", "", time.Second)
			_, err := c.GetTags(ctx, "p1")
			Expect(err).ToNot(BeNil())
			Expect(trainer.IsAccessDenied(err)).To(BeTrue())
			Expect(trainer.Message(err)).To(Equal("Access denied due to invalid subscription key"))
		})

		It("classifies not found responses", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"code":"NotFound","message":"project missing"}`))
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			_, err := c.GetProject(ctx, "p1")
			Expect(trainer.IsNotFound(err)).To(BeTrue())
			Expect(trainer.IsAccessDenied(err)).To(BeFalse())
			Expect(trainer.Message(err)).To(Equal("project missing"))
		})

		It("keeps a plain text body as the message", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			}))

			c := trainer.NewRestClient(server.URL, "secret", "", time.Second)
			_, err := c.TrainProject(ctx, "p1")
			Expect(trainer.Message(err)).To(Equal("upstream down"))
		})
	})
})
