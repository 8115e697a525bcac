// Package services contains server-side business logic shared by the chat
// and admin surfaces. This file implements StatsService, which aggregates
// the administrator statistics.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/repomanager"
)

type StatsService struct {
	repomanager repomanager.RepositoryManager
}

func NewStatsService(m repomanager.RepositoryManager) *StatsService {
	return &StatsService{repomanager: m}
}

// Collect reads the counters one by one. The snapshot is not transactional,
// figures taken while users move between states may be off by a pair.
func (s *StatsService) Collect(ctx context.Context) (*models.Stats, error) {
	repo := s.repomanager.Users()
	st := &models.Stats{}

	var err error
	if st.TotalUsers, err = repo.Count(ctx); err != nil {
		return nil, fmt.Errorf("error counting users: %w", err)
	}

	paired, err := repo.CountByState(ctx, models.StatePaired)
	if err != nil {
		return nil, fmt.Errorf("error counting paired users: %w", err)
	}
	st.PairedPairs = paired / 2

	if st.Searching, err = repo.CountByState(ctx, models.StateSearching); err != nil {
		return nil, fmt.Errorf("error counting searching users: %w", err)
	}
	if st.Idle, err = repo.CountByState(ctx, models.StateIdle); err != nil {
		return nil, fmt.Errorf("error counting idle users: %w", err)
	}
	if st.TotalMessages, err = repo.TotalMessages(ctx); err != nil {
		return nil, fmt.Errorf("error counting messages: %w", err)
	}

	top, err := repo.TopMessageSender(ctx)
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return nil, fmt.Errorf("error finding top sender: %w", err)
	default:
		st.TopSender = top
	}

	return st, nil
}

// FormatStats renders st for the chat admin panel.
func FormatStats(st *models.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Statistics\n")
	fmt.Fprintf(&b, "Users: %d\n", st.TotalUsers)
	fmt.Fprintf(&b, "Active pairs: %d\n", st.PairedPairs)
	fmt.Fprintf(&b, "Searching: %d\n", st.Searching)
	fmt.Fprintf(&b, "Idle: %d\n", st.Idle)
	fmt.Fprintf(&b, "Messages relayed: %d\n", st.TotalMessages)
	if st.TopSender != nil {
		fmt.Fprintf(&b, "Top sender: %d (%d messages)", st.TopSender.UserID, st.TopSender.MessageCount)
	} else {
		b.WriteString("Top sender: none yet")
	}
	return b.String()
}
