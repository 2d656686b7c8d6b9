package domain

// EventID identifies one inbound transport update. Redeliveries keep the same id.
type EventID int64

// MessageRef points at a message already shown to a user, so it can be edited in place.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Sender describes who produced an inbound event, as reported by the transport.
type Sender struct {
	ID          UserID
	DisplayName string
	Handle      string
}

// Event is one inbound update: typed text, a command, or a button press.
type Event interface {
	EventID() EventID
	From() Sender
}

// TextEvent is a plain text message or a slash command.
type TextEvent struct {
	ID     EventID
	Sender Sender
	Text   string
}

func (e TextEvent) EventID() EventID { return e.ID }
func (e TextEvent) From() Sender     { return e.Sender }

// InteractionEvent is a press on an inline button.
type InteractionEvent struct {
	ID            EventID
	Sender        Sender
	InteractionID string
	Payload       string
	Origin        *MessageRef
}

func (e InteractionEvent) EventID() EventID { return e.ID }
func (e InteractionEvent) From() Sender     { return e.Sender }
