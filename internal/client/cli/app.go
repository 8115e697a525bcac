// Package cli implements the admin command line: it mints an admin token
// from the shared secret and prints the relay statistics.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/anonchat/internal/client/client"
	"github.com/dmitrijs2005/anonchat/internal/client/config"
	"github.com/dmitrijs2005/anonchat/internal/server/auth"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/services"
)

type StatsClient interface {
	GetStats(ctx context.Context) (*models.Stats, error)
	Close() error
}

type App struct {
	config *config.Config
	out    io.Writer
	// dial is a seam for tests.
	dial func(addr, token string) (StatsClient, error)
}

func NewApp(c *config.Config, out io.Writer) *App {
	return &App{
		config: c,
		out:    out,
		dial: func(addr, token string) (StatsClient, error) {
			return client.NewGRPCClient(addr, token)
		},
	}
}

func (a *App) secret() ([]byte, error) {
	if a.config.SecretKey != "" {
		return []byte(a.config.SecretKey), nil
	}
	s, err := GetSecret(a.out, "Admin secret: ")
	if err != nil {
		return nil, err
	}
	if len(s) == 0 {
		return nil, errors.New("empty secret")
	}
	return s, nil
}

func (a *App) Run(ctx context.Context) error {
	secret, err := a.secret()
	if err != nil {
		return fmt.Errorf("error reading secret: %w", err)
	}

	token, err := auth.GenerateAdminToken(secret, a.config.TokenValidity)
	if err != nil {
		return fmt.Errorf("error minting token: %w", err)
	}

	c, err := a.dial(a.config.ServerEndpointAddr, token)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", a.config.ServerEndpointAddr, err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	st, err := c.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("error fetching statistics: %w", err)
	}

	_, err = fmt.Fprintln(a.out, services.FormatStats(st))
	return err
}
