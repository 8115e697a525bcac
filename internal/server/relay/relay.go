// Package relay forwards messages between the two members of a pair.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/notices"
	"github.com/dmitrijs2005/anonchat/internal/server/outbound"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/users"
)

type Relay struct {
	repo   users.Repository
	out    outbound.Channel
	log    logging.Logger
	pseudo *logging.Pseudonymizer
}

func New(repo users.Repository, out outbound.Channel, log logging.Logger, pseudo *logging.Pseudonymizer) *Relay {
	return &Relay{repo: repo, out: out, log: log.With("module", "relay"), pseudo: pseudo}
}

// Forward delivers content from sender to recipient verbatim.
//
// The sender must still be Paired with recipient, otherwise ErrNotPaired or
// ErrStalePartner is returned and nothing is sent. When delivery fails the
// sender is told so and ErrDeliveryFailure is returned. The sender's message
// counter moves only after a successful delivery.
func (r *Relay) Forward(ctx context.Context, sender, recipient int64, content models.Content) error {
	u, err := r.repo.Get(ctx, sender)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownUser
		}
		return err
	}
	if u.State != models.StatePaired {
		return common.ErrNotPaired
	}
	partner, ok := u.Partner()
	if !ok {
		return common.ErrNotPaired
	}
	if partner != recipient {
		return common.ErrStalePartner
	}

	if err := r.out.ForwardContent(ctx, sender, recipient, content); err != nil {
		r.log.Warn(ctx, "relay failed", "from", r.pseudo.UserID(sender), "to", r.pseudo.UserID(recipient), "error", err)
		if nerr := r.out.Send(ctx, sender, notices.DeliveryFailed); nerr != nil {
			r.log.Warn(ctx, "failure notice not sent", "user", r.pseudo.UserID(sender), "error", nerr)
		}
		return fmt.Errorf("%w: %w", common.ErrDeliveryFailure, err)
	}

	if _, err := r.repo.IncrementMessageCount(ctx, sender); err != nil {
		// The message is out; only the statistic is lost.
		r.log.Error(ctx, "message counter not updated", "user", r.pseudo.UserID(sender), "error", err)
	}
	return nil
}
