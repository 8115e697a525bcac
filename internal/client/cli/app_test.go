package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/client/config"
	"github.com/dmitrijs2005/anonchat/internal/server/auth"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsClient struct {
	stats  *models.Stats
	err    error
	closed bool
}

func (f *fakeStatsClient) GetStats(context.Context) (*models.Stats, error) { return f.stats, f.err }
func (f *fakeStatsClient) Close() error                                    { f.closed = true; return nil }

func newTestApp(secret string, fc *fakeStatsClient) (*App, *bytes.Buffer, *string) {
	var out bytes.Buffer
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = secret

	var gotToken string
	app := NewApp(cfg, &out)
	app.dial = func(addr, token string) (StatsClient, error) {
		gotToken = token
		return fc, nil
	}
	return app, &out, &gotToken
}

func stubPassword(t *testing.T, pw string, err error) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) { return []byte(pw), err }
}

func TestRun_PrintsStats(t *testing.T) {
	fc := &fakeStatsClient{stats: &models.Stats{TotalUsers: 4, PairedPairs: 1, Idle: 2, Searching: 0, TotalMessages: 9,
		TopSender: &models.Sender{UserID: 3, MessageCount: 9}}}
	app, out, token := newTestApp("s3cret", fc)

	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Users: 4")
	assert.Contains(t, out.String(), "Top sender: 3 (9 messages)")
	assert.True(t, fc.closed)
	assert.NoError(t, auth.CheckAdminToken(*token, []byte("s3cret")))
}

func TestRun_PromptsForSecret(t *testing.T) {
	stubPassword(t, "typed", nil)
	app, out, token := newTestApp("", &fakeStatsClient{stats: &models.Stats{}})

	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Admin secret: ")
	assert.NoError(t, auth.CheckAdminToken(*token, []byte("typed")))
}

func TestRun_Errors(t *testing.T) {
	t.Run("empty secret", func(t *testing.T) {
		stubPassword(t, "", nil)
		app, _, _ := newTestApp("", &fakeStatsClient{})
		assert.ErrorContains(t, app.Run(context.Background()), "empty secret")
	})

	t.Run("terminal error", func(t *testing.T) {
		stubPassword(t, "", errors.New("not a tty"))
		app, _, _ := newTestApp("", &fakeStatsClient{})
		assert.ErrorContains(t, app.Run(context.Background()), "not a tty")
	})

	t.Run("rpc error", func(t *testing.T) {
		fc := &fakeStatsClient{err: errors.New("unavailable")}
		app, _, _ := newTestApp("k", fc)
		assert.ErrorContains(t, app.Run(context.Background()), "error fetching statistics")
		assert.True(t, fc.closed)
	})

	t.Run("dial error", func(t *testing.T) {
		app, _, _ := newTestApp("k", nil)
		app.dial = func(string, string) (StatsClient, error) { return nil, errors.New("bad target") }
		assert.ErrorContains(t, app.Run(context.Background()), "error connecting")
	})
}

func TestRun_UsesRequestTimeout(t *testing.T) {
	app, _, _ := newTestApp("k", nil)
	app.config.RequestTimeout = 10 * time.Millisecond

	var deadline time.Time
	app.dial = func(string, string) (StatsClient, error) {
		return deadlineClient{fn: func(d time.Time) { deadline = d }}, nil
	}
	require.NoError(t, app.Run(context.Background()))
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

type deadlineClient struct{ fn func(time.Time) }

func (d deadlineClient) GetStats(ctx context.Context) (*models.Stats, error) {
	dl, _ := ctx.Deadline()
	d.fn(dl)
	return &models.Stats{}, nil
}
func (deadlineClient) Close() error { return nil }
