package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
)

var userCols = []string{"user_id", "status", "partner_id", "message_count", "searching_since"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock, db
}

func TestCreateIfAbsent(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+users\s*\(user_id,\s*status\)\s*VALUES\s*\(\$1,\s*\$2\)\s*ON\s+CONFLICT\s*\(user_id\)\s*DO\s+NOTHING\s*$`

	tests := []struct {
		name    string
		rows    int64
		created bool
	}{
		{"inserted", 1, true},
		{"exists", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(q).
				WithArgs(int64(7), "idle").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			got, err := repo.CreateIfAbsent(context.Background(), 7)
			if err != nil {
				t.Fatalf("CreateIfAbsent error: %v", err)
			}
			if got != tt.created {
				t.Fatalf("created = %v, want %v", got, tt.created)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCreateIfAbsent_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs(int64(7), "idle").
		WillReturnError(errors.New("db down"))

	_, err := repo.CreateIfAbsent(context.Background(), 7)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+user_id,\s*status,\s*partner_id,\s*message_count,\s*searching_since\s+FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows(userCols).AddRow(int64(1), "paired", int64(2), int64(5), nil)
	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(rows)

	got, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != 1 || got.State != models.StatePaired || !got.IsPairedWith(2) || got.MessageCount != 5 {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.SearchingSince != nil {
		t.Fatalf("searching_since should be nil, got %v", got.SearchingSince)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id`).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 9)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGet_UnknownStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userCols).AddRow(int64(1), "dancing", nil, int64(0), nil)
	mock.ExpectQuery(`(?s)^SELECT\s+user_id`).WithArgs(int64(1)).WillReturnRows(rows)

	_, err := repo.Get(context.Background(), 1)
	if err == nil || !regexp.MustCompile(`db error: .*unknown user state`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped state error, got %v", err)
	}
}

func TestGetState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(userCols).AddRow(int64(3), "searching", nil, int64(0), since)
	mock.ExpectQuery(`(?s)^SELECT\s+user_id`).WithArgs(int64(3)).WillReturnRows(rows)

	st, err := repo.GetState(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetState error: %v", err)
	}
	if st != models.StateSearching {
		t.Fatalf("state = %q, want searching", st)
	}
}

func TestGetPartner(t *testing.T) {
	q := `(?s)^SELECT\s+partner_id\s+FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1\s*$`

	t.Run("set", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(int64(2)))

		p, err := repo.GetPartner(context.Background(), 1)
		if err != nil || p == nil || *p != 2 {
			t.Fatalf("GetPartner = %v, %v", p, err)
		}
	})

	t.Run("null", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"partner_id"}).AddRow(nil))

		p, err := repo.GetPartner(context.Background(), 1)
		if err != nil || p != nil {
			t.Fatalf("GetPartner = %v, %v", p, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetPartner(context.Background(), 1)
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}

func TestSetState_StampsSearching(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+status\s*=\s*\$2,\s*searching_since\s*=\s*\$3\s+WHERE\s+user_id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).
		WithArgs(int64(1), "searching", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(int64(1), "idle", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetState(context.Background(), 1, models.StateSearching); err != nil {
		t.Fatalf("SetState searching: %v", err)
	}
	if err := repo.SetState(context.Background(), 1, models.StateIdle); err != nil {
		t.Fatalf("SetState idle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetState_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+status`).
		WithArgs(int64(1), "paired", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetState(context.Background(), 1, models.StatePaired)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSetPartner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+partner_id\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(1), nil).WillReturnResult(sqlmock.NewResult(0, 1))

	p := int64(2)
	if err := repo.SetPartner(context.Background(), 1, &p); err != nil {
		t.Fatalf("SetPartner: %v", err)
	}
	if err := repo.SetPartner(context.Background(), 1, nil); err != nil {
		t.Fatalf("SetPartner nil: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCompareAndSetState(t *testing.T) {
	q := `(?s)^UPDATE\s+users\s+SET\s+status\s*=\s*\$3,\s*searching_since\s*=\s*\$4\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+status\s*=\s*\$2\s+AND\s+partner_id\s+IS\s+NULL\s*$`

	for _, tc := range []struct {
		rows int64
		want bool
	}{{1, true}, {0, false}} {
		repo, mock, db := newRepoWithMock(t)

		mock.ExpectExec(q).
			WithArgs(int64(1), "partner_left", "idle", nil).
			WillReturnResult(sqlmock.NewResult(0, tc.rows))

		ok, err := repo.CompareAndSetState(context.Background(), 1, models.StatePartnerLeft, models.StateIdle)
		if err != nil {
			t.Fatalf("CompareAndSetState error: %v", err)
		}
		if ok != tc.want {
			t.Fatalf("swapped = %v, want %v", ok, tc.want)
		}
		db.Close()
	}
}

func TestRemoveUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1\s*$`
	mock.ExpectExec(q).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RemoveUser(context.Background(), 1); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if err := repo.RemoveUser(context.Background(), 1); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound on second remove, got %v", err)
	}
}

func TestResetAllToIdle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+status\s*=\s*\$1,\s*partner_id\s*=\s*NULL,\s*searching_since\s*=\s*NULL\s+WHERE\s+status\s*<>\s*\$1\s+OR\s+partner_id\s+IS\s+NOT\s+NULL\s*$`
	mock.ExpectExec(q).WithArgs("idle").WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ResetAllToIdle(context.Background())
	if err != nil {
		t.Fatalf("ResetAllToIdle: %v", err)
	}
	if n != 4 {
		t.Fatalf("reset %d rows, want 4", n)
	}
}

func TestCounts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(10)))
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+status\s*=\s*\$1\s*$`).
		WithArgs("searching").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`(?s)^SELECT\s+COALESCE\(SUM\(message_count\),\s*0\)\s+FROM\s+users\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(42)))

	ctx := context.Background()
	total, err := repo.Count(ctx)
	if err != nil || total != 10 {
		t.Fatalf("Count = %d, %v", total, err)
	}
	searching, err := repo.CountByState(ctx, models.StateSearching)
	if err != nil || searching != 3 {
		t.Fatalf("CountByState = %d, %v", searching, err)
	}
	msgs, err := repo.TotalMessages(ctx)
	if err != nil || msgs != 42 {
		t.Fatalf("TotalMessages = %d, %v", msgs, err)
	}
}

func TestCount_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT`).WillReturnError(errors.New("boom"))

	_, err := repo.Count(context.Background())
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestIncrementMessageCount(t *testing.T) {
	q := `(?s)^UPDATE\s+users\s+SET\s+message_count\s*=\s*message_count\s*\+\s*1\s+WHERE\s+user_id\s*=\s*\$1\s+RETURNING\s+message_count\s*$`

	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"message_count"}).AddRow(int64(8)))

		n, err := repo.IncrementMessageCount(context.Background(), 1)
		if err != nil || n != 8 {
			t.Fatalf("IncrementMessageCount = %d, %v", n, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)

		_, err := repo.IncrementMessageCount(context.Background(), 1)
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}

func TestTopMessageSender(t *testing.T) {
	q := `(?s)^SELECT\s+user_id,\s*message_count\s+FROM\s+users\s+WHERE\s+message_count\s*>\s*0\s+ORDER\s+BY\s+message_count\s+DESC,\s*user_id\s+LIMIT\s+1\s*$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "message_count"}).AddRow(int64(5), int64(99)))

		s, err := repo.TopMessageSender(context.Background())
		if err != nil {
			t.Fatalf("TopMessageSender: %v", err)
		}
		if s.UserID != 5 || s.MessageCount != 99 {
			t.Fatalf("unexpected sender %+v", s)
		}
	})

	t.Run("none", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.TopMessageSender(context.Background())
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}

func TestGetForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+user_id,.*FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1\s+FOR\s+UPDATE\s*$`
	mock.ExpectQuery(q).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(1), "idle", nil, int64(0), nil))

	u, err := repo.GetForUpdate(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetForUpdate: %v", err)
	}
	if u.State != models.StateIdle || u.PartnerID != nil {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestLockPair(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+user_id,.*FROM\s+users\s+WHERE\s+user_id\s+IN\s*\(\$1,\s*\$2\)\s+ORDER\s+BY\s+user_id\s+FOR\s+UPDATE\s*$`
	mock.ExpectQuery(q).WithArgs(int64(9), int64(4)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(4), "paired", int64(9), int64(0), nil))

	got, err := repo.LockPair(context.Background(), 9, 4)
	if err != nil {
		t.Fatalf("LockPair: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want only the existing record, got %v", got)
	}
	if !got[4].IsPairedWith(9) {
		t.Fatalf("unexpected record %+v", got[4])
	}
}

func TestLockPair_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id,.*FOR\s+UPDATE`).
		WithArgs(int64(1), int64(2)).
		WillReturnError(errors.New("deadlock"))

	_, err := repo.LockPair(context.Background(), 1, 2)
	if err == nil || !regexp.MustCompile(`db error: .*deadlock`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestClaimSearching(t *testing.T) {
	q := `(?s)^SELECT\s+user_id,.*FROM\s+users\s+WHERE\s+status\s*=\s*\$1\s+AND\s+user_id\s*<>\s*\$2\s+ORDER\s+BY\s+searching_since,\s*user_id\s+LIMIT\s+1\s+FOR\s+UPDATE\s+SKIP\s+LOCKED\s*$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(q).WithArgs("searching", int64(1)).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(2), "searching", nil, int64(0), since))

		u, err := repo.ClaimSearching(context.Background(), 1)
		if err != nil {
			t.Fatalf("ClaimSearching: %v", err)
		}
		if u.ID != 2 || u.SearchingSince == nil || !u.SearchingSince.Equal(since) {
			t.Fatalf("unexpected user %+v", u)
		}
	})

	t.Run("empty", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("searching", int64(1)).WillReturnError(sql.ErrNoRows)

		_, err := repo.ClaimSearching(context.Background(), 1)
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want common.ErrorNotFound, got %v", err)
		}
	})
}
