package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
)

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
	TotalPoints int    `json:"total_points"`
}

// LeaderboardService is a read-only projection over awards, recomputed on
// every read. Ordering is deterministic: points descending, ties broken by
// who reached the total first.
type LeaderboardService interface {
	Top(ctx context.Context, courseID string, limit int) ([]*LeaderboardEntry, error)
}

type leaderboardService struct {
	db     *gorm.DB
	log    *logger.Logger
	awards repos.AwardRepo
}

func NewLeaderboardService(db *gorm.DB, baseLog *logger.Logger, awards repos.AwardRepo) LeaderboardService {
	return &leaderboardService{
		db:     db,
		log:    baseLog.With("service", "LeaderboardService"),
		awards: awards,
	}
}

func (s *leaderboardService) Top(ctx context.Context, courseID string, limit int) ([]*LeaderboardEntry, error) {
	rows, err := s.awards.LeaderboardTotals(ctx, nil, courseID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]*LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, &LeaderboardEntry{
			Rank:        i + 1,
			ActorID:     row.ActorID.String(),
			DisplayName: row.DisplayName,
			TotalPoints: row.TotalPoints,
		})
	}
	return entries, nil
}
