// Package events carries domain events from request handlers to the
// activity log and notification inbox, either through Kafka or in-process.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	UserRegistered  = "user.registered"
	UserFollowed    = "user.followed"
	PostCreated     = "post.created"
	PostJoined      = "post.joined"
	QuestCreated    = "quest.created"
	QuestJoined     = "quest.joined"
	QuestProgressed = "quest.progressed"
)

type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ActorID     uint      `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	RecipientID uint      `json:"recipient_id,omitempty"`
	SubjectID   uint      `json:"subject_id"`
	SubjectType string    `json:"subject_type"`
	Summary     string    `json:"summary"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// New stamps an event with an id and the current time.
func New(eventType string, actorID uint, actorName string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ActorID:    actorID,
		ActorName:  actorName,
		OccurredAt: time.Now().UTC(),
	}
}

// About sets the subject the event refers to.
func (e Event) About(subjectType string, subjectID uint, summary string) Event {
	e.SubjectType = subjectType
	e.SubjectID = subjectID
	e.Summary = summary
	return e
}

// For sets the user who should be notified.
func (e Event) For(recipientID uint) Event {
	e.RecipientID = recipientID
	return e
}

// Key is the Kafka message key, "<type>.<subject id>".
func (e Event) Key() string {
	return fmt.Sprintf("%s.%d", e.Type, e.SubjectID)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Handler consumes a single event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}
