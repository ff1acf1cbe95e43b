package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/anonto42/questlog/backend/pkg/metrics"
)

var notificationTypes = map[string]string{
	UserFollowed: "follow",
	PostJoined:   "post_join",
	QuestJoined:  "quest_join",
}

// Processor records every event in the activity log and notifies the
// recipient of follows and joins.
type Processor struct {
	activities    repositories.ActivityRepository
	notifications repositories.NotificationRepository
}

func NewProcessor(activities repositories.ActivityRepository, notifications repositories.NotificationRepository) *Processor {
	return &Processor{activities: activities, notifications: notifications}
}

func (p *Processor) Handle(ctx context.Context, event Event) (err error) {
	defer func() {
		metrics.EventsProcessed.WithLabelValues(event.Type, metrics.Outcome(err)).Inc()
	}()

	activity := &models.Activity{
		ID:          event.ID,
		Type:        event.Type,
		ActorID:     event.ActorID,
		SubjectID:   event.SubjectID,
		SubjectType: event.SubjectType,
		Summary:     event.Summary,
		CreatedAt:   event.OccurredAt,
	}
	if err := p.activities.Record(ctx, activity); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	notifType, ok := notificationTypes[event.Type]
	if !ok || event.RecipientID == 0 || event.RecipientID == event.ActorID {
		return nil
	}

	notification := &models.Notification{
		EventID:     &event.ID,
		Type:        notifType,
		ActorID:     event.ActorID,
		RecipientID: event.RecipientID,
		TargetID:    strconv.FormatUint(uint64(event.SubjectID), 10),
		TargetType:  event.SubjectType,
		Message:     event.Summary,
	}
	if err := p.notifications.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
