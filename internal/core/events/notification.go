package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTaskAssigned  Kind = "TaskAssigned"
	KindTaskCompleted Kind = "TaskCompleted"
	KindTaskCommented Kind = "TaskCommented"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTaskAssigned, KindTaskCompleted, KindTaskCommented:
		return true
	}
	return false
}

// NotificationEvent is addressed to exactly one recipient. It is never persisted.
type NotificationEvent struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	RecipientID int64     `json:"recipientId"`
	TaskID      int64     `json:"taskId"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
}

// Message is the client-facing shape written to websocket sessions.
type Message struct {
	Kind      Kind      `json:"kind"`
	TaskID    int64     `json:"taskId"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

var ErrInvalidEvent = errors.New("invalid notification event")

func (e NotificationEvent) Message() Message {
	return Message{
		Kind:      e.Kind,
		TaskID:    e.TaskID,
		Summary:   e.Summary,
		Timestamp: e.Timestamp,
	}
}

func (e NotificationEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.RecipientID <= 0 {
		return fmt.Errorf("%w: recipient is required", ErrInvalidEvent)
	}
	return nil
}

func Encode(e NotificationEvent) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (NotificationEvent, error) {
	var e NotificationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return NotificationEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return e, e.Validate()
}

func newEvent(kind Kind, recipientID, taskID int64, summary string) NotificationEvent {
	return NotificationEvent{
		ID:          uuid.New().String(),
		Kind:        kind,
		RecipientID: recipientID,
		TaskID:      taskID,
		Summary:     summary,
		Timestamp:   time.Now().UTC(),
	}
}

func NewTaskAssignedEvent(assigneeID, taskID int64, title string) NotificationEvent {
	return newEvent(KindTaskAssigned, assigneeID, taskID, fmt.Sprintf("You have been assigned to %q", title))
}

func NewTaskCompletedEvent(creatorID, taskID int64, title, completedBy string) NotificationEvent {
	return newEvent(KindTaskCompleted, creatorID, taskID, fmt.Sprintf("%s completed %q", completedBy, title))
}

func NewTaskCommentedEvent(recipientID, taskID int64, title, author string) NotificationEvent {
	return newEvent(KindTaskCommented, recipientID, taskID, fmt.Sprintf("%s commented on %q", author, title))
}
