package mcp

import "encoding/json"

// Event is a typed session notification delivered on Session.Events.
type Event interface {
	ServerName() string
}

// EventStatus reports a status transition.
type EventStatus struct {
	Server string
	From   Status
	To     Status
	Err    error
}

// EventResourcesChanged reports that the resource-list cache was invalidated by the server.
type EventResourcesChanged struct {
	Server string
}

// EventToolsChanged reports that the tool-list cache was invalidated by the server.
type EventToolsChanged struct {
	Server string
}

// EventNotification carries any other server notification.
type EventNotification struct {
	Server string
	Method string
	Params json.RawMessage
}

func (e EventStatus) ServerName() string           { return e.Server }
func (e EventResourcesChanged) ServerName() string { return e.Server }
func (e EventToolsChanged) ServerName() string     { return e.Server }
func (e EventNotification) ServerName() string     { return e.Server }

const eventBufferSize = 64
