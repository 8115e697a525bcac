package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/dedup"
	"github.com/dmitrijs2005/anonchat/internal/server/session"
)

type Handler interface {
	Handle(ctx context.Context, ev session.Event) error
}

// Dispatcher fans updates out to a fixed set of workers. All updates of one
// user land on the same worker, so they are handled in arrival order while
// different users proceed in parallel.
type Dispatcher struct {
	handler Handler
	dedup   dedup.Deduplicator
	workers int
	log     logging.Logger
	pseudo  *logging.Pseudonymizer
}

func NewDispatcher(h Handler, d dedup.Deduplicator, workers int, log logging.Logger, pseudo *logging.Pseudonymizer) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{handler: h, dedup: d, workers: workers, log: log.With("module", "dispatcher"), pseudo: pseudo}
}

// Run consumes updates until the channel closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g, ctx := errgroup.WithContext(ctx)

	shards := make([]chan tgbotapi.Update, d.workers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 64)
		ch := shards[i]
		g.Go(func() error {
			for u := range ch {
				d.process(ctx, u)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				if !d.firstSeen(ctx, u) {
					continue
				}
				shard := shards[shardOf(routingKey(u), d.workers)]
				select {
				case shard <- u:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func shardOf(userID int64, n int) int {
	s := userID % int64(n)
	if s < 0 {
		s = -s
	}
	return int(s)
}

// firstSeen fails open: if the store is down a duplicate is better than a
// lost message.
func (d *Dispatcher) firstSeen(ctx context.Context, u tgbotapi.Update) bool {
	if d.dedup == nil {
		return true
	}
	ok, err := d.dedup.FirstSeen(ctx, strconv.Itoa(u.UpdateID))
	if err != nil {
		d.log.Warn(ctx, "dedup unavailable", "update_id", u.UpdateID, "error", err)
		return true
	}
	if !ok {
		d.log.Debug(ctx, "duplicate update skipped", "update_id", u.UpdateID)
	}
	return ok
}

func (d *Dispatcher) process(ctx context.Context, u tgbotapi.Update) {
	ev, ok := ToEvent(u)
	if !ok {
		return
	}

	log := d.log.With("request_id", uuid.NewString(), "event", ev.Kind.String(), "user", d.pseudo.UserID(ev.UserID))
	log.Debug(ctx, "handling update")
	if err := d.handler.Handle(ctx, ev); err != nil {
		log.Error(ctx, "update failed", "error", err)
	}
}
