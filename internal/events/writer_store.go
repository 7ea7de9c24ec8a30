package events

import (
	"context"
	"encoding/json"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/kubev2v/edge-trainer/internal/store/model"
	"go.uber.org/zap"
)

// NotificationWriter turns training completed events into persisted
// notifications. Other kinds are ignored.
type NotificationWriter struct {
	store store.Store
	next  Writer
}

// NewNotificationWriter returns a writer persisting notifications. When next is
// not nil every event is forwarded to it as well.
func NewNotificationWriter(s store.Store, next Writer) *NotificationWriter {
	return &NotificationWriter{store: s, next: next}
}

func (n *NotificationWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	if e.Type() == TrainingCompletedMessageKind {
		var ev TrainingCompletedEvent
		if err := json.Unmarshal(e.Data(), &ev); err != nil {
			return err
		}

		notification := model.Notification{
			NotificationType: ev.NotificationType,
			Sender:           ev.Sender,
			Title:            ev.Title,
			Details:          ev.Details,
		}
		if id, err := uuid.Parse(ev.ProjectID); err == nil {
			notification.ProjectID = &id
		}

		if _, err := n.store.Notification().Create(ctx, notification); err != nil {
			return err
		}
		zap.S().Named("notification_writer").Infow("notification stored", "project_id", ev.ProjectID, "title", ev.Title)
	}

	if n.next != nil {
		return n.next.Write(ctx, topic, e)
	}
	return nil
}

func (n *NotificationWriter) Close(ctx context.Context) error {
	if n.next != nil {
		return n.next.Close(ctx)
	}
	return nil
}
