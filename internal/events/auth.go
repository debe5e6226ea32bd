// Package events carries security events from the authentication flows to the
// notification worker over the messaging layer. Publishing is fire-and-forget:
// a failed publish is logged and never fails the authentication operation that
// triggered it.
package events

import (
	"encoding/json"
	"time"

	"authd/internal/messaging"
	"authd/internal/notifier"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const (
	TypeUserSignedIn    = "user_signed_in"
	TypeMfaEnrolled     = "mfa_enrolled"
	TypeMfaRemoved      = "mfa_removed"
	TypePasswordChanged = "password_changed"
)

// AuthEvent is the wire payload for the auth events topic.
type AuthEvent struct {
	Type     string            `json:"type"`
	Email    string            `json:"email"`
	Username string            `json:"username"`
	Time     string            `json:"time"`
	Args     map[string]string `json:"args"`
}

type Event struct {
	publisher messaging.IPublisher
	payload   AuthEvent
}

func newEvent(publisher messaging.IPublisher, eventType, email, username string, args map[string]string) Event {
	return Event{
		publisher: publisher,
		payload: AuthEvent{
			Type:     eventType,
			Email:    email,
			Username: username,
			Time:     time.Now().UTC().Format(time.RFC3339),
			Args:     args,
		},
	}
}

func NewUserSignedIn(publisher messaging.IPublisher, email, username string) Event {
	return newEvent(publisher, TypeUserSignedIn, email, username, nil)
}

func NewMfaEnrolled(publisher messaging.IPublisher, email, username, webURL string) Event {
	return newEvent(publisher, TypeMfaEnrolled, email, username, map[string]string{"WebURL": webURL})
}

func NewMfaRemoved(publisher messaging.IPublisher, email, username, webURL string) Event {
	return newEvent(publisher, TypeMfaRemoved, email, username, map[string]string{"WebURL": webURL})
}

func NewPasswordChanged(publisher messaging.IPublisher, email, username, webURL string) Event {
	return newEvent(publisher, TypePasswordChanged, email, username, map[string]string{
		"WebURL": webURL,
		"Date":   time.Now().Format("January 2, 2006 at 3:04 PM MST"),
	})
}

// Trigger publishes the event. Errors are logged, never propagated.
func (e Event) Trigger() {
	content, err := json.Marshal(e.payload)
	if err != nil {
		zap.L().Error("Failed to marshal auth event", zap.Error(err))
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), content)
	if err = e.publisher.Publish(msg); err != nil {
		zap.L().Error("Failed to publish auth event",
			zap.String("type", e.payload.Type), zap.Error(err))
	}
}

// notifiedEvents maps event types to the mail that should go out. Sign-in
// events are consumed for audit logging only.
var notifiedEvents = map[string]string{
	TypeMfaEnrolled:     "Two-factor authentication enabled",
	TypeMfaRemoved:      "Two-factor authentication removed",
	TypePasswordChanged: "Your password was changed",
}

// HandleEvents is the notification worker loop. It acks every message;
// notification failures are logged and not retried.
func HandleEvents(notify notifier.INotifier, messages <-chan *message.Message) {
	for msg := range messages {
		var event AuthEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			zap.L().Error("Failed to decode auth event", zap.Error(err))
			msg.Ack()
			continue
		}

		zap.L().Info("Auth event received",
			zap.String("type", event.Type),
			zap.String("username", event.Username),
		)

		if subject, ok := notifiedEvents[event.Type]; ok && event.Email != "" {
			if err := notify.NotifyFromTemplate(event.Email, subject, event.Type, event.Args); err != nil {
				zap.L().Warn("Failed to send notification",
					zap.String("type", event.Type), zap.Error(err))
			}
		}

		msg.Ack()
	}
}
