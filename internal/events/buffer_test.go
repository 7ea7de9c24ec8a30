package events

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", func() {
	completed := func(projectID string) *message {
		data, err := json.Marshal(TrainingCompletedEvent{
			ProjectID: projectID,
			Title:     "Training Complete",
			Details:   "Project is trained and deployed",
		})
		Expect(err).To(BeNil())
		return &message{Kind: TrainingCompletedMessageKind, Data: data}
	}

	projectOf := func(m *message) string {
		var event TrainingCompletedEvent
		Expect(json.Unmarshal(m.Data, &event)).To(Succeed())
		return event.ProjectID
	}

	It("hands out the completion events in arrival order", func() {
		b := newBuffer(0)
		for _, id := range []string{"p1", "p2", "p3"} {
			Expect(b.PushBack(completed(id))).To(Succeed())
		}
		Expect(b.Size()).To(Equal(3))

		Expect(projectOf(b.Pop())).To(Equal("p1"))
		Expect(projectOf(b.Pop())).To(Equal("p2"))
		Expect(b.Size()).To(Equal(1))
		Expect(projectOf(b.Pop())).To(Equal("p3"))

		Expect(b.Pop()).To(BeNil())
		Expect(b.Size()).To(Equal(0))
	})

	It("refuses events beyond its capacity", func() {
		b := newBuffer(2)
		Expect(b.PushBack(completed("p1"))).To(Succeed())
		Expect(b.PushBack(completed("p2"))).To(Succeed())
		Expect(b.PushBack(completed("p3"))).To(MatchError(ErrBufferFull))

		b.Pop()
		Expect(b.PushBack(completed("p3"))).To(Succeed())
	})

	It("drains the pending events", func() {
		b := newBuffer(0)
		Expect(b.PushBack(completed("p1"))).To(Succeed())
		Expect(b.PushBack(completed("p2"))).To(Succeed())

		pending := b.Drain()
		Expect(pending).To(HaveLen(2))
		Expect(projectOf(pending[0])).To(Equal("p1"))
		Expect(pending[1].Kind).To(Equal(TrainingCompletedMessageKind))
		Expect(b.Size()).To(Equal(0))
		Expect(b.Drain()).To(BeEmpty())
	})
})
