package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/types"
)

type VideoPositionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.VideoPosition) error
	GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.VideoPosition, error)
	DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error
}

type videoPositionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoPositionRepo(db *gorm.DB, baseLog *logger.Logger) VideoPositionRepo {
	repoLog := baseLog.With("repo", "VideoPositionRepo")
	return &videoPositionRepo{db: db, log: repoLog}
}

func (r *videoPositionRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.VideoPosition) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	// Last report wins: position is resume state, not progress state.
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "class_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position_sec", "duration_sec", "updated_at"}),
		}).
		Create(row).Error; err != nil {
		return err
	}
	return nil
}

func (r *videoPositionRepo) GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.VideoPosition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.VideoPosition
	if actorID == uuid.Nil || courseID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoPositionRepo) DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if actorID == uuid.Nil || courseID == "" {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Delete(&types.VideoPosition{}).Error; err != nil {
		return err
	}
	return nil
}
