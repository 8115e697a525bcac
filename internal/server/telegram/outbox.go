package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/outbound"
)

// ErrOutboxFull is returned by Send when notices arrive faster than the
// platform lets us deliver them.
var ErrOutboxFull = errors.New("outbox full")

type notice struct {
	chatID int64
	text   string
}

// Outbox delivers messages through the Bot API under one rate limit.
// Notices are queued and sent by Run, relayed messages go out inline.
type Outbox struct {
	api     botAPI
	limiter *rate.Limiter
	queue   chan notice
	log     logging.Logger
	pseudo  *logging.Pseudonymizer
}

var _ outbound.Channel = (*Outbox)(nil)

// NewOutbox allows perSecond messages per second overall and buffers up to
// size notices.
func NewOutbox(api botAPI, perSecond float64, size int, log logging.Logger, pseudo *logging.Pseudonymizer) *Outbox {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	if size < 1 {
		size = 1
	}
	return &Outbox{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		queue:   make(chan notice, size),
		log:     log.With("module", "outbox"),
		pseudo:  pseudo,
	}
}

func (o *Outbox) Send(ctx context.Context, userID int64, text string) error {
	select {
	case o.queue <- notice{chatID: userID, text: text}:
		return nil
	default:
		return fmt.Errorf("%w: %w", common.ErrDeliveryFailure, ErrOutboxFull)
	}
}

// ForwardContent copies the original message when the platform still has
// it, so attachments travel without being downloaded.
func (o *Outbox) ForwardContent(ctx context.Context, from, to int64, content models.Content) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	var err error
	if content.MessageRef != 0 {
		_, err = o.api.Request(tgbotapi.NewCopyMessage(to, from, content.MessageRef))
	} else {
		_, err = o.api.Send(tgbotapi.NewMessage(to, content.Text))
	}
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Run sends queued notices until ctx is done. Failures are logged and
// dropped.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-o.queue:
			if err := o.limiter.Wait(ctx); err != nil {
				return nil
			}
			if _, err := o.api.Send(tgbotapi.NewMessage(n.chatID, n.text)); err != nil {
				o.log.Warn(ctx, "notice dropped", "user", o.pseudo.UserID(n.chatID), "error", err)
			}
		}
	}
}
