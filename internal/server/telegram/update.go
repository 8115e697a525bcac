package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/session"
)

var commandEvents = map[string]session.EventKind{
	"start":   session.EventStart,
	"help":    session.EventHelp,
	"chat":    session.EventRequestChat,
	"exit":    session.EventExitChat,
	"newchat": session.EventExitThenChat,
	"chat_ai": session.EventEnterAgentMode,
	"exit_ai": session.EventExitAgentMode,
	"stats":   session.EventRequestStats,
}

// ToEvent maps an update to a session event. Updates from groups, channels
// and anything the relay does not handle yield false.
func ToEvent(u tgbotapi.Update) (session.Event, bool) {
	if m := u.MyChatMember; m != nil {
		if m.Chat.Type != "private" {
			return session.Event{}, false
		}
		if m.OldChatMember.Status == "member" && m.NewChatMember.Status == "kicked" {
			return session.Event{Kind: session.EventPlatformRevokedAccess, UserID: m.From.ID}, true
		}
		return session.Event{}, false
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return session.Event{}, false
	}

	if msg.IsCommand() {
		if kind, ok := commandEvents[strings.ToLower(msg.Command())]; ok {
			return session.Event{Kind: kind, UserID: msg.From.ID}, true
		}
	}

	content := models.Content{Text: msg.Text, MessageRef: msg.MessageID}
	if msg.Text == "" {
		content.Text = msg.Caption
		content.Attachment = true
	}
	return session.Event{Kind: session.EventInboundMessage, UserID: msg.From.ID, Content: content}, true
}

// routingKey is the user an update belongs to, used to keep one user's
// updates in order.
func routingKey(u tgbotapi.Update) int64 {
	switch {
	case u.MyChatMember != nil:
		return u.MyChatMember.From.ID
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	}
	return 0
}
