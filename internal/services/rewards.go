package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

type RewardPoints struct {
	VideoComplete int
	QuizPassed    int
	StepComplete  int
}

type AwardView struct {
	BadgeID string `json:"badge_id"`
	ClassID string `json:"class_id,omitempty"`
	Points  int    `json:"points"`
}

type masteryTier struct {
	badge   string
	percent float64
	points  int
}

// Tier bands over aggregate course progress. Order matters: crossing several
// bands in one update awards each of them.
var masteryTiers = []masteryTier{
	{badge: types.BadgeTierBronze, percent: 25, points: 10},
	{badge: types.BadgeTierSilver, percent: 50, points: 25},
	{badge: types.BadgeTierGold, percent: 75, points: 50},
	{badge: types.BadgeTierMaster, percent: 100, points: 100},
}

// RewardService issues points and badges at-most-once. Issuance rides on the
// (badge_id, actor_id) uniqueness constraint, so two near-simultaneous
// triggers for the same transition produce exactly one award row.
type RewardService interface {
	EvaluateCompletion(ctx context.Context, tx *gorm.DB, event *types.Event, projection *Projection) ([]AwardView, error)
	EvaluateTiers(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string, prevPercent, newPercent float64) ([]AwardView, error)
}

type rewardService struct {
	db     *gorm.DB
	log    *logger.Logger
	awards repos.AwardRepo
	points RewardPoints
}

func NewRewardService(db *gorm.DB, baseLog *logger.Logger, awards repos.AwardRepo, points RewardPoints) RewardService {
	if points.VideoComplete <= 0 {
		points.VideoComplete = 10
	}
	if points.QuizPassed <= 0 {
		points.QuizPassed = 20
	}
	if points.StepComplete <= 0 {
		points.StepComplete = 5
	}
	return &rewardService{
		db:     db,
		log:    baseLog.With("service", "RewardService"),
		awards: awards,
		points: points,
	}
}

func (s *rewardService) EvaluateCompletion(ctx context.Context, tx *gorm.DB, event *types.Event, projection *Projection) ([]AwardView, error) {
	if event == nil || projection == nil {
		return nil, nil
	}

	type candidate struct {
		badge  string
		points int
		when   bool
	}
	candidates := []candidate{
		{badge: types.BadgeVideoComplete, points: s.points.VideoComplete, when: projection.NewlyVideoCompleted},
		{badge: types.BadgeQuizPassed, points: s.points.QuizPassed, when: projection.NewlyQuizPassed},
		{badge: types.BadgeStepComplete, points: s.points.StepComplete, when: projection.NewlyStepCompleted},
	}

	now := time.Now().UTC()
	var issued []AwardView
	for _, c := range candidates {
		if !c.when {
			continue
		}
		badgeID := fmt.Sprintf("%s:%s", c.badge, event.ClassID)
		created, err := s.awards.InsertIfAbsent(ctx, tx, &types.Award{
			ID:        uuid.New(),
			BadgeID:   badgeID,
			ActorID:   event.ActorID,
			CourseID:  event.CourseID,
			ClassID:   event.ClassID,
			Points:    c.points,
			AwardedAt: now,
		})
		if err != nil {
			return nil, err
		}
		if created {
			issued = append(issued, AwardView{BadgeID: badgeID, ClassID: event.ClassID, Points: c.points})
		}
	}
	return issued, nil
}

func (s *rewardService) EvaluateTiers(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string, prevPercent, newPercent float64) ([]AwardView, error) {
	now := time.Now().UTC()
	var issued []AwardView
	// Enumerate every band between the previous and the new percentage, not
	// only the highest: a bulk update from 0% to 100% must yield all four.
	for _, tier := range masteryTiers {
		if newPercent < tier.percent || prevPercent >= tier.percent {
			continue
		}
		badgeID := fmt.Sprintf("%s:%s", tier.badge, courseID)
		created, err := s.awards.InsertIfAbsent(ctx, tx, &types.Award{
			ID:        uuid.New(),
			BadgeID:   badgeID,
			ActorID:   actorID,
			CourseID:  courseID,
			Points:    tier.points,
			AwardedAt: now,
		})
		if err != nil {
			return nil, err
		}
		if created {
			issued = append(issued, AwardView{BadgeID: badgeID, Points: tier.points})
		}
	}
	return issued, nil
}
