// Package matchmaker pairs searching users and dissolves pairs. Every
// operation is a single store transaction, so a user is never observed
// half-paired and no user ends up paired with two partners.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/users"
	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 10 * time.Millisecond
	maxRetryDelay     = 250 * time.Millisecond
)

// Matchmaker owns the Searching queue and the partner links.
type Matchmaker struct {
	rm         repomanager.RepositoryManager
	log        logging.Logger
	pseudo     *logging.Pseudonymizer
	maxRetries uint64
	retryBase  time.Duration
}

type Option func(*Matchmaker)

// WithRetry bounds how often a transaction that lost a race is replayed.
func WithRetry(max uint64, base time.Duration) Option {
	return func(m *Matchmaker) {
		m.maxRetries = max
		m.retryBase = base
	}
}

func WithPseudonymizer(p *logging.Pseudonymizer) Option {
	return func(m *Matchmaker) { m.pseudo = p }
}

func New(rm repomanager.RepositoryManager, log logging.Logger, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		rm:         rm,
		log:        log.With("module", "matchmaker"),
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// inTx runs fn in a transaction, replaying it from scratch when the store
// reports a conflict.
func (m *Matchmaker) inTx(ctx context.Context, fn repomanager.TxFunc) error {
	b := retry.NewExponential(m.retryBase)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	b = retry.WithMaxRetries(m.maxRetries, b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := m.rm.WithTx(ctx, fn)
		if errors.Is(err, common.ErrTxConflict) {
			m.log.Debug(ctx, "transaction conflict, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Enter pairs userID with the longest-waiting Searching user or, when nobody
// waits, puts userID in the queue. It returns the partner id and true on a
// match. A user who is already Searching or Paired gets ErrAlreadySearching
// or ErrAlreadyPaired and nothing changes.
func (m *Matchmaker) Enter(ctx context.Context, userID int64) (int64, bool, error) {
	var (
		partner int64
		matched bool
	)

	err := m.inTx(ctx, func(ctx context.Context, repo users.Repository) error {
		partner, matched = 0, false

		u, err := repo.GetForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUnknownUser
			}
			return err
		}
		switch u.State {
		case models.StateSearching:
			return common.ErrAlreadySearching
		case models.StatePaired:
			return common.ErrAlreadyPaired
		}

		other, err := repo.ClaimSearching(ctx, userID)
		if errors.Is(err, common.ErrorNotFound) {
			return repo.SetState(ctx, userID, models.StateSearching)
		}
		if err != nil {
			return err
		}

		if err := link(ctx, repo, userID, other.ID); err != nil {
			return err
		}
		partner, matched = other.ID, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	if matched {
		m.log.Info(ctx, "users paired", "user", m.pseudo.UserID(userID), "partner", m.pseudo.UserID(partner))
	} else {
		m.log.Debug(ctx, "user searching", "user", m.pseudo.UserID(userID))
	}
	return partner, matched, nil
}

func link(ctx context.Context, repo users.Repository, a, b int64) error {
	for _, p := range [][2]int64{{a, b}, {b, a}} {
		partner := p[1]
		if err := repo.SetPartner(ctx, p[0], &partner); err != nil {
			return fmt.Errorf("link %d: %w", p[0], err)
		}
		if err := repo.SetState(ctx, p[0], models.StatePaired); err != nil {
			return fmt.Errorf("link %d: %w", p[0], err)
		}
	}
	return nil
}

// Dissolve ends userID's pairing: both partner links are cleared, userID
// becomes Idle and the former partner PartnerLeft. It returns the former
// partner and true when a pairing was dissolved. An absent link is a no-op.
func (m *Matchmaker) Dissolve(ctx context.Context, userID int64) (int64, bool, error) {
	partner, dissolved, err := m.dissolve(ctx, userID, false)
	if err != nil {
		return 0, false, err
	}
	if dissolved {
		m.log.Info(ctx, "pair dissolved", "user", m.pseudo.UserID(userID), "partner", m.pseudo.UserID(partner))
	}
	return partner, dissolved, nil
}

// Leave removes userID for good, dissolving any pairing in the same
// transaction so the former partner becomes PartnerLeft. Removing an unknown
// user is a no-op.
func (m *Matchmaker) Leave(ctx context.Context, userID int64) (int64, bool, error) {
	partner, dissolved, err := m.dissolve(ctx, userID, true)
	if err != nil {
		return 0, false, err
	}
	m.log.Info(ctx, "user removed", "user", m.pseudo.UserID(userID), "had_partner", dissolved)
	return partner, dissolved, nil
}

func (m *Matchmaker) dissolve(ctx context.Context, userID int64, remove bool) (int64, bool, error) {
	var (
		partner   int64
		dissolved bool
	)

	err := m.inTx(ctx, func(ctx context.Context, repo users.Repository) error {
		partner, dissolved = 0, false

		// The partner is unknown until read, so read first, then lock both
		// rows in id order and confirm nothing moved in between.
		u, err := repo.Get(ctx, userID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		p, ok := u.Partner()
		if !ok {
			return m.releaseSingle(ctx, repo, userID, remove)
		}

		locked, err := repo.LockPair(ctx, userID, p)
		if err != nil {
			return err
		}
		self, ok := locked[userID]
		if !ok {
			return nil
		}
		if cur, _ := self.Partner(); cur != p {
			return common.ErrTxConflict
		}

		other, ok := locked[p]
		if !ok || !other.IsPairedWith(userID) {
			// One-sided link: repair the caller, the other side owes us nothing.
			m.log.Warn(ctx, "one-sided partner link repaired", "user", m.pseudo.UserID(userID))
			return finish(ctx, repo, userID, remove)
		}

		if err := repo.SetPartner(ctx, p, nil); err != nil {
			return err
		}
		if err := repo.SetState(ctx, p, models.StatePartnerLeft); err != nil {
			return err
		}
		if err := finish(ctx, repo, userID, remove); err != nil {
			return err
		}
		partner, dissolved = p, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return partner, dissolved, nil
}

// releaseSingle handles a caller without a partner link. Leave removes the
// record. Dissolve only repairs a Paired record whose link is gone.
func (m *Matchmaker) releaseSingle(ctx context.Context, repo users.Repository, userID int64, remove bool) error {
	u, err := repo.GetForUpdate(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.PartnerID != nil {
		// Paired between our read and the lock.
		return common.ErrTxConflict
	}
	if remove {
		return repo.RemoveUser(ctx, userID)
	}
	if u.State == models.StatePaired {
		m.log.Warn(ctx, "paired user without partner repaired", "user", m.pseudo.UserID(userID))
		return repo.SetState(ctx, userID, models.StateIdle)
	}
	return nil
}

func finish(ctx context.Context, repo users.Repository, userID int64, remove bool) error {
	if remove {
		return repo.RemoveUser(ctx, userID)
	}
	if err := repo.SetPartner(ctx, userID, nil); err != nil {
		return err
	}
	return repo.SetState(ctx, userID, models.StateIdle)
}
