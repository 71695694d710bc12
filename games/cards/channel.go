package cards

import "encoding/json"

// Channel is how the game reaches one connected participant.
//
// Send must not block; it is called with the game lock held. A handler
// registered with OnMessage replaces any earlier handler for the same
// event. Handlers and disconnect callbacks must not be invoked while the
// transport holds locks the game might need.
type Channel interface {
	ID() string
	Send(event string, payload any)
	OnMessage(event string, handler func(data json.RawMessage))
	OnDisconnect(handler func())
}
