package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/anonchat/internal/logging"
)

// Bot polls the Bot API for updates and runs the outbox alongside.
type Bot struct {
	api         botAPI
	outbox      *Outbox
	dispatcher  *Dispatcher
	pollTimeout time.Duration
	log         logging.Logger
}

// NewAPI logs in with token. It fails when the token is rejected.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api botAPI, outbox *Outbox, dispatcher *Dispatcher, pollTimeout time.Duration, log logging.Logger) *Bot {
	return &Bot{
		api:         api,
		outbox:      outbox,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeout,
		log:         log.With("module", "telegram"),
	}
}

// Run blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(Commands...)); err != nil {
		b.log.Warn(ctx, "command menu not registered", "error", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(b.pollTimeout / time.Second)
	cfg.AllowedUpdates = []string{"message", "my_chat_member"}
	updates := b.api.GetUpdatesChan(cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.outbox.Run(ctx)
	})
	g.Go(func() error {
		return b.dispatcher.Run(ctx, updates)
	})
	g.Go(func() error {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
		return nil
	})

	b.log.Info(ctx, "polling for updates")
	return g.Wait()
}
