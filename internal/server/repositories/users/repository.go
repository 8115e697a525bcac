// Package users is the UserRecord store: the durable mapping from a platform
// user id to lifecycle state, partner and message counter.
package users

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

// Repository is the store contract consumed by the matchmaker, relay,
// session controller and statistics.
//
// A Repository obtained from RepositoryManager.Users runs every call on its
// own. One handed to a RepositoryManager.WithTx callback is bound to that
// transaction: locks taken by GetForUpdate, LockPair and ClaimSearching are
// held, and writes become visible, only when the transaction commits.
type Repository interface {
	// CreateIfAbsent inserts an Idle record and reports whether it did.
	CreateIfAbsent(ctx context.Context, userID int64) (bool, error)
	// Get returns the record or common.ErrorNotFound.
	Get(ctx context.Context, userID int64) (*models.User, error)
	GetState(ctx context.Context, userID int64) (models.State, error)
	GetPartner(ctx context.Context, userID int64) (*int64, error)

	// SetState writes the state. Entering StateSearching stamps the queue
	// position, any other state clears it.
	SetState(ctx context.Context, userID int64, state models.State) error
	SetPartner(ctx context.Context, userID int64, partnerID *int64) error
	// CompareAndSetState moves the user from one state to another only if
	// the stored state still equals from.
	CompareAndSetState(ctx context.Context, userID int64, from, to models.State) (bool, error)
	RemoveUser(ctx context.Context, userID int64) error
	// ResetAllToIdle clears every partner link and returns everyone to Idle.
	ResetAllToIdle(ctx context.Context) (int64, error)

	Count(ctx context.Context) (int64, error)
	CountByState(ctx context.Context, state models.State) (int64, error)
	IncrementMessageCount(ctx context.Context, userID int64) (int64, error)
	TotalMessages(ctx context.Context) (int64, error)
	// TopMessageSender returns common.ErrorNotFound when nobody has sent
	// anything yet.
	TopMessageSender(ctx context.Context) (*models.Sender, error)

	// GetForUpdate reads and locks one record.
	GetForUpdate(ctx context.Context, userID int64) (*models.User, error)
	// LockPair locks both records in ascending id order and returns them
	// keyed by id. Missing records are absent from the map.
	LockPair(ctx context.Context, a, b int64) (map[int64]*models.User, error)
	// ClaimSearching locks the longest-waiting Searching user other than
	// excludeID, skipping records locked by someone else. It returns
	// common.ErrorNotFound when there is none.
	ClaimSearching(ctx context.Context, excludeID int64) (*models.User, error)
}
