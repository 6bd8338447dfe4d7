package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/types"
)

type SignalRepo interface {
	// Upgrade applies a monotonic write: a signal can go false->true but the
	// conflict clause guarantees it never goes back, regardless of delivery
	// order. Returns whether the stored value changed to true by this call.
	Upgrade(ctx context.Context, tx *gorm.DB, row *types.Signal) (bool, error)
	Get(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, classID, kind string) (*types.Signal, error)
	GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Signal, error)
	DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error
}

type signalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignalRepo(db *gorm.DB, baseLog *logger.Logger) SignalRepo {
	repoLog := baseLog.With("repo", "SignalRepo")
	return &signalRepo{db: db, log: repoLog}
}

func (r *signalRepo) Upgrade(ctx context.Context, tx *gorm.DB, row *types.Signal) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return false, nil
	}

	var existing types.Signal
	err := transaction.WithContext(ctx).
		Where("actor_id = ? AND class_id = ? AND kind = ?", row.ActorID, row.ClassID, row.Kind).
		First(&existing).Error
	alreadyTrue := err == nil && existing.Value

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "actor_id"}, {Name: "class_id"}, {Name: "kind"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value":      gorm.Expr("lms_signal.value OR excluded.value"),
				"metadata":   gorm.Expr("CASE WHEN lms_signal.value THEN lms_signal.metadata ELSE excluded.metadata END"),
				"updated_at": gorm.Expr("CASE WHEN lms_signal.value THEN lms_signal.updated_at ELSE excluded.updated_at END"),
			}),
		}).
		Create(row).Error; err != nil {
		return false, err
	}

	return row.Value && !alreadyTrue, nil
}

func (r *signalRepo) Get(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, classID, kind string) (*types.Signal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Signal
	err := transaction.WithContext(ctx).
		Where("actor_id = ? AND class_id = ? AND kind = ?", actorID, classID, kind).
		First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *signalRepo) GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Signal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Signal
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

func (r *signalRepo) DeleteByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if actorID == uuid.Nil || courseID == "" {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Delete(&types.Signal{}).Error; err != nil {
		return err
	}
	return nil
}
