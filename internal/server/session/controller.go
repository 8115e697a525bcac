// Package session is the per-user state machine. It turns commands and
// messages into store transitions through the matchmaker, relay and agent
// bridge, and tells the users involved what happened.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/agent"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/notices"
	"github.com/dmitrijs2005/anonchat/internal/server/outbound"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/users"
	"github.com/dmitrijs2005/anonchat/internal/server/services"
)

// maxAgentSwitchAttempts bounds the re-reads when the state changes under an
// agent mode switch, e.g. a searching user being matched at that moment.
const maxAgentSwitchAttempts = 3

type Matchmaker interface {
	Enter(ctx context.Context, userID int64) (int64, bool, error)
	Dissolve(ctx context.Context, userID int64) (int64, bool, error)
	Leave(ctx context.Context, userID int64) (int64, bool, error)
}

type Relay interface {
	Forward(ctx context.Context, sender, recipient int64, content models.Content) error
}

type StatsSource interface {
	Collect(ctx context.Context) (*models.Stats, error)
}

type Deps struct {
	Users      users.Repository
	Matchmaker Matchmaker
	Relay      Relay
	Agent      agent.Bridge
	Out        outbound.Channel
	Stats      StatsSource
	Logger     logging.Logger
	Pseudo     *logging.Pseudonymizer
	// AdminID is the only user allowed to read statistics. Zero disables
	// the chat admin panel.
	AdminID int64
}

type Controller struct {
	users   users.Repository
	mm      Matchmaker
	relay   Relay
	agent   agent.Bridge
	out     outbound.Channel
	stats   StatsSource
	log     logging.Logger
	pseudo  *logging.Pseudonymizer
	adminID int64
}

func NewController(d Deps) *Controller {
	bridge := d.Agent
	if bridge == nil {
		bridge = agent.Unavailable{}
	}
	log := d.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &Controller{
		users:   d.Users,
		mm:      d.Matchmaker,
		relay:   d.Relay,
		agent:   bridge,
		out:     d.Out,
		stats:   d.Stats,
		log:     log.With("module", "session"),
		pseudo:  d.Pseudo,
		adminID: d.AdminID,
	}
}

// Handle applies ev to the user's state machine. Guard failures become
// notices, so a returned error means the store or a collaborator failed and
// the event had no effect beyond what was already committed.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	if ev.Kind == EventPlatformRevokedAccess {
		return c.revoked(ctx, ev.UserID)
	}

	created, err := c.users.CreateIfAbsent(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if created {
		c.log.Info(ctx, "new user", "user", c.pseudo.UserID(ev.UserID))
	}

	u, err := c.users.Get(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	switch ev.Kind {
	case EventStart:
		c.notify(ctx, u.ID, notices.Welcome)
		return nil
	case EventHelp:
		c.notify(ctx, u.ID, notices.Help)
		return nil
	case EventRequestChat:
		return c.requestChat(ctx, u)
	case EventInboundMessage:
		return c.inbound(ctx, u, ev.Content)
	case EventExitChat:
		return c.exitChat(ctx, u)
	case EventExitThenChat:
		return c.exitThenChat(ctx, u)
	case EventEnterAgentMode:
		return c.enterAgentMode(ctx, u.ID)
	case EventExitAgentMode:
		return c.exitAgentMode(ctx, u)
	case EventRequestStats:
		return c.requestStats(ctx, u.ID)
	default:
		return fmt.Errorf("unsupported event %s", ev.Kind)
	}
}

// notify sends best effort. A lost notice never undoes a transition.
func (c *Controller) notify(ctx context.Context, userID int64, text string) {
	if err := c.out.Send(ctx, userID, text); err != nil {
		c.log.Warn(ctx, "notice not delivered", "user", c.pseudo.UserID(userID), "error", err)
	}
}

func (c *Controller) requestChat(ctx context.Context, u *models.User) error {
	switch u.State {
	case models.StateIdle:
		return c.search(ctx, u.ID)

	case models.StateSearching:
		c.notify(ctx, u.ID, notices.AlreadySearching)
		return nil

	case models.StatePaired:
		intact, err := c.linkIntact(ctx, u)
		if err != nil {
			return err
		}
		if intact {
			c.notify(ctx, u.ID, notices.AlreadyInChat)
			return nil
		}
		c.log.Warn(ctx, "severed partner link, searching again", "user", c.pseudo.UserID(u.ID))
		if _, _, err := c.mm.Dissolve(ctx, u.ID); err != nil {
			return fmt.Errorf("repair link: %w", err)
		}
		return c.search(ctx, u.ID)

	case models.StatePartnerLeft:
		if _, err := c.users.CompareAndSetState(ctx, u.ID, models.StatePartnerLeft, models.StateIdle); err != nil {
			return fmt.Errorf("reset to idle: %w", err)
		}
		return c.search(ctx, u.ID)

	case models.StateChattingWithAgent:
		c.notify(ctx, u.ID, notices.AgentBusy)
		return nil
	}
	return fmt.Errorf("user in unknown state %q", u.State)
}

// linkIntact reports whether u's partner points back at u.
func (c *Controller) linkIntact(ctx context.Context, u *models.User) (bool, error) {
	p, ok := u.Partner()
	if !ok {
		return false, nil
	}
	other, err := c.users.Get(ctx, p)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return other.IsPairedWith(u.ID), nil
}

func (c *Controller) search(ctx context.Context, userID int64) error {
	partner, matched, err := c.mm.Enter(ctx, userID)
	switch {
	case errors.Is(err, common.ErrAlreadySearching):
		c.notify(ctx, userID, notices.AlreadySearching)
		return nil
	case errors.Is(err, common.ErrAlreadyPaired):
		c.notify(ctx, userID, notices.AlreadyInChat)
		return nil
	case err != nil:
		return fmt.Errorf("enter search: %w", err)
	}

	c.notify(ctx, userID, notices.Searching)
	if matched {
		c.notify(ctx, userID, notices.Connected)
		c.notify(ctx, partner, notices.Connected)
	}
	return nil
}

func (c *Controller) inbound(ctx context.Context, u *models.User, content models.Content) error {
	switch u.State {
	case models.StatePaired:
		partner, ok := u.Partner()
		if !ok {
			c.notify(ctx, u.ID, notices.NotInChatStartOne)
			return nil
		}
		err := c.relay.Forward(ctx, u.ID, partner, content)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, common.ErrDeliveryFailure):
			// the sender has already been told
			return nil
		case errors.Is(err, common.ErrNotPaired), errors.Is(err, common.ErrStalePartner):
			c.notify(ctx, u.ID, notices.NotInChatStartOne)
			return nil
		default:
			return fmt.Errorf("relay: %w", err)
		}

	case models.StateSearching:
		c.notify(ctx, u.ID, notices.StillSearching)
		return nil

	case models.StateIdle, models.StatePartnerLeft:
		c.notify(ctx, u.ID, notices.NotInChatStartOne)
		return nil

	case models.StateChattingWithAgent:
		return c.askAgent(ctx, u.ID, content)
	}
	return fmt.Errorf("user in unknown state %q", u.State)
}

func (c *Controller) askAgent(ctx context.Context, userID int64, content models.Content) error {
	if !content.IsText() {
		c.notify(ctx, userID, notices.AgentTextOnly)
		return nil
	}

	reply, err := c.agent.Ask(ctx, userID, content.Text)
	if err != nil {
		c.log.Warn(ctx, "agent failed", "user", c.pseudo.UserID(userID), "error", err)
		c.notify(ctx, userID, notices.AgentUnavailable)
		return nil
	}
	c.notify(ctx, userID, reply)
	return nil
}

func (c *Controller) exitChat(ctx context.Context, u *models.User) error {
	if u.State != models.StatePaired {
		c.notify(ctx, u.ID, notices.NotInChat)
		return nil
	}

	c.notify(ctx, u.ID, notices.Leaving)
	dissolved, err := c.leavePair(ctx, u.ID)
	if err != nil {
		return err
	}
	if !dissolved {
		c.notify(ctx, u.ID, notices.NotInChat)
	}
	return nil
}

// leavePair dissolves u's pair and tells both sides.
func (c *Controller) leavePair(ctx context.Context, userID int64) (bool, error) {
	partner, dissolved, err := c.mm.Dissolve(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("dissolve: %w", err)
	}
	if dissolved {
		c.notify(ctx, partner, notices.PartnerLeft)
		c.notify(ctx, userID, notices.YouLeft)
	}
	return dissolved, nil
}

func (c *Controller) exitThenChat(ctx context.Context, u *models.User) error {
	switch u.State {
	case models.StateSearching:
		c.notify(ctx, u.ID, notices.AlreadySearching)
		return nil
	case models.StatePaired:
		if _, err := c.leavePair(ctx, u.ID); err != nil {
			return err
		}
		fresh, err := c.users.Get(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("reload user: %w", err)
		}
		return c.requestChat(ctx, fresh)
	default:
		return c.requestChat(ctx, u)
	}
}

func (c *Controller) enterAgentMode(ctx context.Context, userID int64) error {
	for attempt := 0; attempt < maxAgentSwitchAttempts; attempt++ {
		u, err := c.users.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		from := u.State
		switch u.State {
		case models.StateChattingWithAgent:
			c.notify(ctx, userID, notices.AgentAlready)
			return nil
		case models.StatePaired:
			if _, err := c.leavePair(ctx, userID); err != nil {
				return err
			}
			from = models.StateIdle
		}

		swapped, err := c.users.CompareAndSetState(ctx, userID, from, models.StateChattingWithAgent)
		if err != nil {
			return fmt.Errorf("enter agent mode: %w", err)
		}
		if swapped {
			c.log.Debug(ctx, "agent mode on", "user", c.pseudo.UserID(userID))
			c.notify(ctx, userID, notices.AgentStarted)
			return nil
		}
	}

	c.notify(ctx, userID, notices.Unavailable)
	return fmt.Errorf("enter agent mode: %w", common.ErrTxConflict)
}

func (c *Controller) exitAgentMode(ctx context.Context, u *models.User) error {
	if u.State != models.StateChattingWithAgent {
		c.notify(ctx, u.ID, notices.AgentNotActive)
		return nil
	}

	swapped, err := c.users.CompareAndSetState(ctx, u.ID, models.StateChattingWithAgent, models.StateIdle)
	if err != nil {
		return fmt.Errorf("exit agent mode: %w", err)
	}
	if !swapped {
		c.notify(ctx, u.ID, notices.AgentNotActive)
		return nil
	}
	c.notify(ctx, u.ID, notices.AgentStopped)
	return nil
}

func (c *Controller) revoked(ctx context.Context, userID int64) error {
	partner, dissolved, err := c.mm.Leave(ctx, userID)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	if dissolved {
		c.notify(ctx, partner, notices.PartnerLeft)
	}
	return nil
}

func (c *Controller) requestStats(ctx context.Context, userID int64) error {
	if c.adminID == 0 || userID != c.adminID || c.stats == nil {
		c.log.Warn(ctx, "stats requested by non-admin", "user", c.pseudo.UserID(userID))
		c.notify(ctx, userID, notices.StatsNoAccess)
		return nil
	}

	st, err := c.stats.Collect(ctx)
	if err != nil {
		c.notify(ctx, userID, notices.Unavailable)
		return fmt.Errorf("collect stats: %w", err)
	}
	c.notify(ctx, userID, notices.StatsHeader)
	c.notify(ctx, userID, services.FormatStats(st))
	return nil
}
