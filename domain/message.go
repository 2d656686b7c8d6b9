// Package domain contains core concepts of the gift exchange.
// This file defines outbound messages.
// Messages are immutable once built and carry no transport details.
package domain

// ParseMode tells the transport how to interpret message markup.
type ParseMode string

const (
	PlainText ParseMode = ""
	HTML      ParseMode = "HTML"
)

// Button is one key of a keyboard. Payload is empty for reply keyboards,
// where pressing the key simply sends its text.
type Button struct {
	Text    string
	Payload string
}

// Keyboard is attached below a message.
// Inline keyboards produce interaction events; reply keyboards produce text events.
type Keyboard struct {
	Inline bool
	Rows   [][]Button
}

// Message is an outbound chat message.
type Message struct {
	Text      string
	ParseMode ParseMode
	Keyboard  *Keyboard
}
