// Package agent connects users in ChattingWithAgent mode to an external
// conversational model. The core keeps no conversation history: every
// message is a standalone question.
package agent

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/common"
)

// Bridge answers a single user message. Failures are reported as
// common.ErrAgentUnavailable.
type Bridge interface {
	Ask(ctx context.Context, userID int64, text string) (string, error)
}

// Unavailable is the Bridge used when no agent endpoint is configured.
type Unavailable struct{}

func (Unavailable) Ask(context.Context, int64, string) (string, error) {
	return "", common.ErrAgentUnavailable
}
