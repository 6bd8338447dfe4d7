package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/types"
)

type LeaderboardRow struct {
	ActorID       uuid.UUID `json:"actor_id"`
	DisplayName   string    `json:"display_name"`
	TotalPoints   int       `json:"total_points"`
	LastAwardedAt string    `json:"last_awarded_at"`
}

type AwardRepo interface {
	// InsertIfAbsent attempts the insert and treats a (badge_id, actor_id)
	// uniqueness conflict as a benign no-op. Returns whether the row was
	// actually created; under concurrent duplicate triggers exactly one
	// caller sees true.
	InsertIfAbsent(ctx context.Context, tx *gorm.DB, award *types.Award) (bool, error)
	GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Award, error)
	DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error
	LeaderboardTotals(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*LeaderboardRow, error)
}

type awardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAwardRepo(db *gorm.DB, baseLog *logger.Logger) AwardRepo {
	repoLog := baseLog.With("repo", "AwardRepo")
	return &awardRepo{db: db, log: repoLog}
}

func (r *awardRepo) InsertIfAbsent(ctx context.Context, tx *gorm.DB, award *types.Award) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if award == nil {
		return false, nil
	}

	result := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "badge_id"}, {Name: "actor_id"}},
			DoNothing: true,
		}).
		Create(award)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *awardRepo) GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Award, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Award
	if actorID == uuid.Nil || courseID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Order("awarded_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *awardRepo) DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if actorID == uuid.Nil || courseID == "" {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Delete(&types.Award{}).Error; err != nil {
		return err
	}
	return nil
}

func (r *awardRepo) LeaderboardTotals(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*LeaderboardRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 50
	}

	query := transaction.WithContext(ctx).
		Model(&types.Award{}).
		Select("gamification_award.actor_id AS actor_id, app_user.display_name AS display_name, SUM(gamification_award.points) AS total_points, MAX(gamification_award.awarded_at) AS last_awarded_at").
		Joins("JOIN app_user ON app_user.id = gamification_award.actor_id").
		Group("gamification_award.actor_id, app_user.display_name").
		// Ties resolve to whoever reached the total first: a later last
		// award means a later arrival at the shared total.
		Order("total_points DESC, last_awarded_at ASC").
		Limit(limit)
	if courseID != "" {
		query = query.Where("gamification_award.course_id = ?", courseID)
	}

	var rows []*LeaderboardRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
