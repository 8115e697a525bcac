package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

// MemoryStore keeps user records in process memory. Each record carries its
// own row lock which a transaction holds from the first locking read or
// write until commit or rollback. The store mutex only guards the map, the
// committed snapshots and the searching queue and is never held while
// waiting for a row lock.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[int64]*memoryRecord
	searching map[int64]uint64
	seq       uint64
	now       func() time.Time
}

type memoryRecord struct {
	lock sync.Mutex
	user models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[int64]*memoryRecord),
		searching: make(map[int64]uint64),
		now:       time.Now,
	}
}

// Begin starts a transaction. The caller must end it with Commit or Rollback.
func (s *MemoryStore) Begin() *MemoryTx {
	return &MemoryTx{
		store:   s,
		held:    make(map[int64]*memoryRecord),
		staged:  make(map[int64]*models.User),
		created: make(map[int64]bool),
	}
}

func (s *MemoryStore) lookup(id int64) (*memoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *MemoryStore) committed(id int64) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.user.Clone(), true
}

// MemoryTx is a Repository bound to one in-memory transaction.
//
// Reads of records the transaction has not locked see the last committed
// value. Writes are staged on private copies and published at Commit.
type MemoryTx struct {
	store   *MemoryStore
	held    map[int64]*memoryRecord
	staged  map[int64]*models.User // nil value means removed
	created map[int64]bool

	// scanSeq is the queue sequence observed by a ClaimSearching that found
	// nobody. Commit fails if someone joined the queue since then or if the
	// scan skipped a candidate held by another transaction.
	scanned   bool
	scanSeq   uint64
	contended bool
	done      bool
}

var _ Repository = (*MemoryTx)(nil)

// lock acquires the row lock for id, blocking while another transaction
// holds it.
func (tx *MemoryTx) lock(ctx context.Context, id int64) (*models.User, error) {
	if u, ok := tx.staged[id]; ok {
		if u == nil {
			return nil, common.ErrorNotFound
		}
		return u, nil
	}

	rec, ok := tx.store.lookup(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec.lock.Lock()
	return tx.adopt(id, rec)
}

// adopt registers a freshly acquired row lock and stages a private copy.
// The record may have been removed while we waited for it.
func (tx *MemoryTx) adopt(id int64, rec *memoryRecord) (*models.User, error) {
	tx.store.mu.Lock()
	current, ok := tx.store.records[id]
	var u *models.User
	if ok && current == rec {
		u = rec.user.Clone()
	}
	tx.store.mu.Unlock()

	if u == nil {
		rec.lock.Unlock()
		return nil, common.ErrorNotFound
	}
	tx.held[id] = rec
	tx.staged[id] = u
	return u, nil
}

func (tx *MemoryTx) read(id int64) (*models.User, error) {
	if u, ok := tx.staged[id]; ok {
		if u == nil {
			return nil, common.ErrorNotFound
		}
		return u.Clone(), nil
	}
	u, ok := tx.store.committed(id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (tx *MemoryTx) CreateIfAbsent(ctx context.Context, userID int64) (bool, error) {
	if u, ok := tx.staged[userID]; ok && u != nil {
		return false, nil
	}

	rec := &memoryRecord{user: models.User{ID: userID, State: models.StateIdle}}
	rec.lock.Lock()

	tx.store.mu.Lock()
	if _, exists := tx.store.records[userID]; exists {
		tx.store.mu.Unlock()
		rec.lock.Unlock()
		return false, nil
	}
	tx.store.records[userID] = rec
	tx.store.mu.Unlock()

	tx.held[userID] = rec
	tx.staged[userID] = rec.user.Clone()
	tx.created[userID] = true
	return true, nil
}

func (tx *MemoryTx) Get(ctx context.Context, userID int64) (*models.User, error) {
	return tx.read(userID)
}

func (tx *MemoryTx) GetState(ctx context.Context, userID int64) (models.State, error) {
	u, err := tx.read(userID)
	if err != nil {
		return "", err
	}
	return u.State, nil
}

func (tx *MemoryTx) GetPartner(ctx context.Context, userID int64) (*int64, error) {
	u, err := tx.read(userID)
	if err != nil {
		return nil, err
	}
	return u.PartnerID, nil
}

func (tx *MemoryTx) setState(u *models.User, state models.State) {
	u.State = state
	if state == models.StateSearching {
		t := tx.store.now().UTC()
		u.SearchingSince = &t
	} else {
		u.SearchingSince = nil
	}
}

func (tx *MemoryTx) SetState(ctx context.Context, userID int64, state models.State) error {
	u, err := tx.lock(ctx, userID)
	if err != nil {
		return err
	}
	tx.setState(u, state)
	return nil
}

func (tx *MemoryTx) SetPartner(ctx context.Context, userID int64, partnerID *int64) error {
	u, err := tx.lock(ctx, userID)
	if err != nil {
		return err
	}
	if partnerID == nil {
		u.PartnerID = nil
	} else {
		p := *partnerID
		u.PartnerID = &p
	}
	return nil
}

func (tx *MemoryTx) CompareAndSetState(ctx context.Context, userID int64, from, to models.State) (bool, error) {
	u, err := tx.lock(ctx, userID)
	if err != nil {
		if err == common.ErrorNotFound {
			return false, nil
		}
		return false, err
	}
	if u.State != from || u.PartnerID != nil {
		return false, nil
	}
	tx.setState(u, to)
	return true, nil
}

func (tx *MemoryTx) RemoveUser(ctx context.Context, userID int64) error {
	if _, err := tx.lock(ctx, userID); err != nil {
		return err
	}
	tx.staged[userID] = nil
	return nil
}

func (tx *MemoryTx) ResetAllToIdle(ctx context.Context) (int64, error) {
	tx.store.mu.Lock()
	ids := make([]int64, 0, len(tx.store.records))
	for id, rec := range tx.store.records {
		if rec.user.State != models.StateIdle || rec.user.PartnerID != nil {
			ids = append(ids, id)
		}
	}
	tx.store.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var n int64
	for _, id := range ids {
		u, err := tx.lock(ctx, id)
		if err == common.ErrorNotFound {
			continue
		}
		if err != nil {
			return n, err
		}
		if u.State == models.StateIdle && u.PartnerID == nil {
			continue
		}
		tx.setState(u, models.StateIdle)
		u.PartnerID = nil
		n++
	}
	return n, nil
}

// snapshot returns committed users merged with this transaction's staged
// changes.
func (tx *MemoryTx) snapshot() []*models.User {
	tx.store.mu.Lock()
	out := make([]*models.User, 0, len(tx.store.records))
	for id, rec := range tx.store.records {
		if _, mine := tx.staged[id]; mine {
			continue
		}
		out = append(out, rec.user.Clone())
	}
	tx.store.mu.Unlock()

	for _, u := range tx.staged {
		if u != nil {
			out = append(out, u.Clone())
		}
	}
	return out
}

func (tx *MemoryTx) Count(ctx context.Context) (int64, error) {
	return int64(len(tx.snapshot())), nil
}

func (tx *MemoryTx) CountByState(ctx context.Context, state models.State) (int64, error) {
	var n int64
	for _, u := range tx.snapshot() {
		if u.State == state {
			n++
		}
	}
	return n, nil
}

func (tx *MemoryTx) IncrementMessageCount(ctx context.Context, userID int64) (int64, error) {
	u, err := tx.lock(ctx, userID)
	if err != nil {
		return 0, err
	}
	u.MessageCount++
	return u.MessageCount, nil
}

func (tx *MemoryTx) TotalMessages(ctx context.Context) (int64, error) {
	var n int64
	for _, u := range tx.snapshot() {
		n += u.MessageCount
	}
	return n, nil
}

func (tx *MemoryTx) TopMessageSender(ctx context.Context) (*models.Sender, error) {
	var top *models.Sender
	for _, u := range tx.snapshot() {
		if u.MessageCount == 0 {
			continue
		}
		if top == nil || u.MessageCount > top.MessageCount ||
			(u.MessageCount == top.MessageCount && u.ID < top.UserID) {
			top = &models.Sender{UserID: u.ID, MessageCount: u.MessageCount}
		}
	}
	if top == nil {
		return nil, common.ErrorNotFound
	}
	return top, nil
}

func (tx *MemoryTx) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	u, err := tx.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

func (tx *MemoryTx) LockPair(ctx context.Context, a, b int64) (map[int64]*models.User, error) {
	ids := []int64{a, b}
	if b < a {
		ids = []int64{b, a}
	}

	locked := make(map[int64]*models.User, 2)
	for _, id := range ids {
		u, err := tx.lock(ctx, id)
		if err == common.ErrorNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = u.Clone()
	}
	return locked, nil
}

func (tx *MemoryTx) ClaimSearching(ctx context.Context, excludeID int64) (*models.User, error) {
	type entry struct {
		id  int64
		seq uint64
	}

	tx.store.mu.Lock()
	queue := make([]entry, 0, len(tx.store.searching))
	for id, seq := range tx.store.searching {
		if id == excludeID {
			continue
		}
		if _, mine := tx.held[id]; mine {
			continue
		}
		queue = append(queue, entry{id: id, seq: seq})
	}
	observed := tx.store.seq
	tx.store.mu.Unlock()

	sort.Slice(queue, func(i, j int) bool {
		if queue[i].seq != queue[j].seq {
			return queue[i].seq < queue[j].seq
		}
		return queue[i].id < queue[j].id
	})

	for _, e := range queue {
		rec, ok := tx.store.lookup(e.id)
		if !ok {
			continue
		}
		if !rec.lock.TryLock() {
			tx.contended = true
			continue
		}
		u, err := tx.adopt(e.id, rec)
		if err != nil {
			continue
		}
		if u.State != models.StateSearching {
			delete(tx.held, e.id)
			delete(tx.staged, e.id)
			rec.lock.Unlock()
			continue
		}
		return u.Clone(), nil
	}

	if !tx.scanned {
		tx.scanned = true
		tx.scanSeq = observed
	}
	return nil, common.ErrorNotFound
}

// Commit publishes staged writes and releases every row lock. It fails with
// common.ErrTxConflict, applying nothing, when the transaction found the
// searching queue empty and is itself joining a queue that has grown since.
func (tx *MemoryTx) Commit() error {
	if tx.done {
		return nil
	}
	s := tx.store

	s.mu.Lock()
	if tx.scanned && (s.seq != tx.scanSeq || tx.contended) && tx.joinsQueue() {
		s.mu.Unlock()
		tx.release(true)
		return common.ErrTxConflict
	}

	for id, u := range tx.staged {
		rec := tx.held[id]
		if u == nil {
			delete(s.records, id)
			delete(s.searching, id)
			continue
		}
		wasSearching := rec.user.State == models.StateSearching
		rec.user = *u
		switch {
		case u.State == models.StateSearching && (!wasSearching || tx.created[id]):
			s.seq++
			s.searching[id] = s.seq
		case u.State != models.StateSearching:
			delete(s.searching, id)
		}
	}
	s.mu.Unlock()

	tx.release(false)
	return nil
}

func (tx *MemoryTx) joinsQueue() bool {
	for id, u := range tx.staged {
		if u == nil || u.State != models.StateSearching {
			continue
		}
		if rec := tx.held[id]; tx.created[id] || rec.user.State != models.StateSearching {
			return true
		}
	}
	return false
}

// Rollback discards staged writes and releases every row lock.
func (tx *MemoryTx) Rollback() {
	if tx.done {
		return
	}
	tx.release(true)
}

func (tx *MemoryTx) release(rollback bool) {
	if rollback && len(tx.created) > 0 {
		tx.store.mu.Lock()
		for id := range tx.created {
			if tx.store.records[id] == tx.held[id] {
				delete(tx.store.records, id)
			}
		}
		tx.store.mu.Unlock()
	}
	for _, rec := range tx.held {
		rec.lock.Unlock()
	}
	tx.held = nil
	tx.staged = nil
	tx.done = true
}

// MemoryRepository runs each call in its own short transaction.
type MemoryRepository struct {
	store *MemoryStore
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(store *MemoryStore) *MemoryRepository {
	return &MemoryRepository{store: store}
}

func autocommit[T any](s *MemoryStore, fn func(tx *MemoryTx) (T, error)) (T, error) {
	tx := s.Begin()
	v, err := fn(tx)
	if err != nil {
		tx.Rollback()
		var zero T
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (r *MemoryRepository) CreateIfAbsent(ctx context.Context, userID int64) (bool, error) {
	return autocommit(r.store, func(tx *MemoryTx) (bool, error) { return tx.CreateIfAbsent(ctx, userID) })
}

func (r *MemoryRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	u, ok := r.store.committed(userID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r *MemoryRepository) GetState(ctx context.Context, userID int64) (models.State, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.State, nil
}

func (r *MemoryRepository) GetPartner(ctx context.Context, userID int64) (*int64, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.PartnerID, nil
}

func (r *MemoryRepository) SetState(ctx context.Context, userID int64, state models.State) error {
	_, err := autocommit(r.store, func(tx *MemoryTx) (struct{}, error) {
		return struct{}{}, tx.SetState(ctx, userID, state)
	})
	return err
}

func (r *MemoryRepository) SetPartner(ctx context.Context, userID int64, partnerID *int64) error {
	_, err := autocommit(r.store, func(tx *MemoryTx) (struct{}, error) {
		return struct{}{}, tx.SetPartner(ctx, userID, partnerID)
	})
	return err
}

func (r *MemoryRepository) CompareAndSetState(ctx context.Context, userID int64, from, to models.State) (bool, error) {
	return autocommit(r.store, func(tx *MemoryTx) (bool, error) { return tx.CompareAndSetState(ctx, userID, from, to) })
}

func (r *MemoryRepository) RemoveUser(ctx context.Context, userID int64) error {
	_, err := autocommit(r.store, func(tx *MemoryTx) (struct{}, error) {
		return struct{}{}, tx.RemoveUser(ctx, userID)
	})
	return err
}

func (r *MemoryRepository) ResetAllToIdle(ctx context.Context) (int64, error) {
	return autocommit(r.store, func(tx *MemoryTx) (int64, error) { return tx.ResetAllToIdle(ctx) })
}

func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	return r.store.Begin().Count(ctx)
}

func (r *MemoryRepository) CountByState(ctx context.Context, state models.State) (int64, error) {
	return r.store.Begin().CountByState(ctx, state)
}

func (r *MemoryRepository) IncrementMessageCount(ctx context.Context, userID int64) (int64, error) {
	return autocommit(r.store, func(tx *MemoryTx) (int64, error) { return tx.IncrementMessageCount(ctx, userID) })
}

func (r *MemoryRepository) TotalMessages(ctx context.Context) (int64, error) {
	return r.store.Begin().TotalMessages(ctx)
}

func (r *MemoryRepository) TopMessageSender(ctx context.Context) (*models.Sender, error) {
	return r.store.Begin().TopMessageSender(ctx)
}

// GetForUpdate outside a transaction releases the lock straight away and
// behaves like Get.
func (r *MemoryRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	return autocommit(r.store, func(tx *MemoryTx) (*models.User, error) { return tx.GetForUpdate(ctx, userID) })
}

func (r *MemoryRepository) LockPair(ctx context.Context, a, b int64) (map[int64]*models.User, error) {
	return autocommit(r.store, func(tx *MemoryTx) (map[int64]*models.User, error) { return tx.LockPair(ctx, a, b) })
}

func (r *MemoryRepository) ClaimSearching(ctx context.Context, excludeID int64) (*models.User, error) {
	return autocommit(r.store, func(tx *MemoryTx) (*models.User, error) { return tx.ClaimSearching(ctx, excludeID) })
}
