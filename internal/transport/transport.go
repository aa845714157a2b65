// internal/transport/transport.go
//
// Package transport abstracts the chat platform. The platform adapter
// (command registration, component parsing) lives outside the core; the core
// only posts text and receives normalized interaction events.
package transport

import "context"

// EventKind classifies a normalized user interaction.
type EventKind string

const (
	// EventPreset selects one of the menu's preset entries.
	EventPreset EventKind = "preset"
	// EventCustom requests free-form numeric input.
	EventCustom EventKind = "custom"
	// EventCancel aborts the flow.
	EventCancel EventKind = "cancel"
	// EventConfirm explicitly confirms a previewed swap.
	EventConfirm EventKind = "confirm"
	// EventMessage is a plain-text message from the same user.
	EventMessage EventKind = "message"
)

// Event is one user interaction delivered by the platform adapter. SessionID
// is the id the adapter echoes back from the prompt the user acted on; it is
// what keeps a user's concurrent swaps apart.
type Event struct {
	Kind      EventKind
	Index     int    // preset index, valid for EventPreset
	Content   string // raw text, valid for EventMessage
	UserID    string
	SessionID string
}

// Poster lets the core write back to the conversation. Post targets the
// invoking user's ephemeral exchange; Announce is the optional public
// trade summary.
type Poster interface {
	Post(ctx context.Context, text string) error
	Announce(ctx context.Context, text string) error
}
