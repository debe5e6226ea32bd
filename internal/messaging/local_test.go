package messaging

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const testTimeout = 2 * time.Second

func receiveOne(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestEventBusPublishAndSubscribe(t *testing.T) {
	bus := NewEventBus()
	pub := bus.Publisher("auth.events")
	sub := bus.Subscriber("auth.events")
	defer pub.Close()

	msgCh := sub.Subscribe()

	uuid := watermill.NewUUID()
	payload := []byte(`{"type":"user_signed_in"}`)
	err := pub.Publish(message.NewMessage(uuid, payload))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := receiveOne(t, msgCh)
	if msg.UUID != uuid {
		t.Errorf("expected UUID %s, got %s", uuid, msg.UUID)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("expected payload %q, got %q", payload, msg.Payload)
	}
	msg.Ack()
}

func TestEventBusDeliversBeforeWorkerAttaches(t *testing.T) {
	bus := NewEventBus()
	pub := bus.Publisher("auth.events")
	defer pub.Close()

	uuid := watermill.NewUUID()
	err := pub.Publish(message.NewMessage(uuid, []byte(`{"type":"mfa_enrolled"}`)))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgCh := bus.Subscriber("auth.events").Subscribe()
	msg := receiveOne(t, msgCh)
	if msg.UUID != uuid {
		t.Errorf("expected UUID %s, got %s", uuid, msg.UUID)
	}
	msg.Ack()
}

func TestEventBusMultipleMessages(t *testing.T) {
	bus := NewEventBus()
	pub := bus.Publisher("auth.events")
	sub := bus.Subscriber("auth.events")
	defer pub.Close()

	msgCh := sub.Subscribe()

	const count = 5
	expected := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		uuid := watermill.NewUUID()
		expected[uuid] = false
		err := pub.Publish(message.NewMessage(uuid, []byte("msg")))
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	for i := 0; i < count; i++ {
		msg := receiveOne(t, msgCh)
		if _, ok := expected[msg.UUID]; !ok {
			t.Errorf("received unexpected UUID %s", msg.UUID)
		}
		expected[msg.UUID] = true
		msg.Ack()
	}

	for uuid, received := range expected {
		if !received {
			t.Errorf("message %s was never received", uuid)
		}
	}
}

func TestEventBusPublisherClose(t *testing.T) {
	bus := NewEventBus()
	pub := bus.Publisher("auth.events")

	err := pub.Close()
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	err = pub.Publish(message.NewMessage(watermill.NewUUID(), []byte("after-close")))
	if err == nil {
		t.Error("expected error when publishing after Close, got nil")
	}
}

func TestEventBusIndependentTopics(t *testing.T) {
	bus := NewEventBus()
	pub := bus.Publisher("auth.events")
	subOther := bus.Subscriber("other.topic")
	defer pub.Close()

	otherCh := subOther.Subscribe()

	err := pub.Publish(message.NewMessage(watermill.NewUUID(), []byte("auth-only")))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case m := <-otherCh:
		t.Errorf("other.topic should not have received a message, got UUID %s", m.UUID)
	case <-time.After(200 * time.Millisecond):
		// expected: no message on the other topic
	}
}
