// Package outbound defines how the core talks back to users, independent of
// the chat platform that carries the messages.
package outbound

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

// Channel delivers messages to users.
//
// Send queues a notice and may return before delivery; a nil error only
// means the notice was accepted. ForwardContent delivers synchronously so
// the caller learns whether the recipient was reached.
type Channel interface {
	Send(ctx context.Context, userID int64, text string) error
	ForwardContent(ctx context.Context, fromUserID, toUserID int64, content models.Content) error
}
