package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/dbx"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

const userColumns = `user_id, status, partner_id, message_count, searching_since`

type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		status  string
		partner sql.NullInt64
		since   sql.NullTime
	)
	if err := row.Scan(&u.ID, &status, &partner, &u.MessageCount, &since); err != nil {
		return nil, err
	}

	st, err := models.ParseState(status)
	if err != nil {
		return nil, err
	}
	u.State = st

	if partner.Valid {
		p := partner.Int64
		u.PartnerID = &p
	}
	if since.Valid {
		t := since.Time
		u.SearchingSince = &t
	}
	return &u, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (r *PostgresRepository) searchingSince(state models.State) sql.NullTime {
	if state != models.StateSearching {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: r.now().UTC(), Valid: true}
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, userID int64) (bool, error) {
	query :=
		`INSERT INTO users (user_id, status)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, userID, string(models.StateIdle))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE user_id = $1
		 `
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) GetState(ctx context.Context, userID int64) (models.State, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.State, nil
}

func (r *PostgresRepository) GetPartner(ctx context.Context, userID int64) (*int64, error) {
	query :=
		`SELECT partner_id FROM users
		 WHERE user_id = $1
		 `

	var partner sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&partner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if !partner.Valid {
		return nil, nil
	}
	p := partner.Int64
	return &p, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetState(ctx context.Context, userID int64, state models.State) error {
	query :=
		`UPDATE users SET status = $2, searching_since = $3
		 WHERE user_id = $1
		 `
	return r.execOne(ctx, query, userID, string(state), r.searchingSince(state))
}

func (r *PostgresRepository) SetPartner(ctx context.Context, userID int64, partnerID *int64) error {
	query :=
		`UPDATE users SET partner_id = $2
		 WHERE user_id = $1
		 `
	return r.execOne(ctx, query, userID, nullableID(partnerID))
}

func (r *PostgresRepository) CompareAndSetState(ctx context.Context, userID int64, from, to models.State) (bool, error) {
	query :=
		`UPDATE users SET status = $3, searching_since = $4
		 WHERE user_id = $1 AND status = $2 AND partner_id IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, userID, string(from), string(to), r.searchingSince(to))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) RemoveUser(ctx context.Context, userID int64) error {
	query :=
		`DELETE FROM users
		 WHERE user_id = $1
		 `
	return r.execOne(ctx, query, userID)
}

func (r *PostgresRepository) ResetAllToIdle(ctx context.Context) (int64, error) {
	query :=
		`UPDATE users SET status = $1, partner_id = NULL, searching_since = NULL
		 WHERE status <> $1 OR partner_id IS NOT NULL
		 `

	res, err := r.db.ExecContext(ctx, query, string(models.StateIdle))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (r *PostgresRepository) CountByState(ctx context.Context, state models.State) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users WHERE status = $1`, string(state))
}

func (r *PostgresRepository) TotalMessages(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM users`)
}

func (r *PostgresRepository) IncrementMessageCount(ctx context.Context, userID int64) (int64, error) {
	query :=
		`UPDATE users SET message_count = message_count + 1
		 WHERE user_id = $1
		 RETURNING message_count
		 `

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) TopMessageSender(ctx context.Context) (*models.Sender, error) {
	query :=
		`SELECT user_id, message_count FROM users
		 WHERE message_count > 0
		 ORDER BY message_count DESC, user_id
		 LIMIT 1
		 `

	s := &models.Sender{}
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.UserID, &s.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE user_id = $1
		 FOR UPDATE
		 `
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) LockPair(ctx context.Context, a, b int64) (map[int64]*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE user_id IN ($1, $2)
		 ORDER BY user_id
		 FOR UPDATE
		 `

	rows, err := r.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]*models.User, 2)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		locked[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return locked, nil
}

func (r *PostgresRepository) ClaimSearching(ctx context.Context, excludeID int64) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE status = $1 AND user_id <> $2
		 ORDER BY searching_since, user_id
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED
		 `
	return r.getOne(ctx, query, string(models.StateSearching), excludeID)
}
