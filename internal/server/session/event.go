package session

import (
	"fmt"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

// EventKind enumerates everything a user can do to their session.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventHelp
	EventRequestChat
	EventInboundMessage
	EventExitChat
	EventExitThenChat
	EventEnterAgentMode
	EventExitAgentMode
	EventPlatformRevokedAccess
	EventRequestStats
)

var eventNames = map[EventKind]string{
	EventStart:                 "start",
	EventHelp:                  "help",
	EventRequestChat:           "request_chat",
	EventInboundMessage:        "inbound_message",
	EventExitChat:              "exit_chat",
	EventExitThenChat:          "exit_then_chat",
	EventEnterAgentMode:        "enter_agent_mode",
	EventExitAgentMode:         "exit_agent_mode",
	EventPlatformRevokedAccess: "platform_revoked_access",
	EventRequestStats:          "request_stats",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one input to a user's state machine. Content is only meaningful
// for EventInboundMessage.
type Event struct {
	Kind    EventKind
	UserID  int64
	Content models.Content
}
