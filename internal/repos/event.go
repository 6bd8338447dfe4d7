package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/types"
)

// EventRepo is append-only. There is deliberately no update or delete method:
// stored events are the durable source of truth and survive progress resets.
type EventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.Event) ([]*types.Event, error)
	GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Event, error)
	GetByActorAndClassID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, classID string) ([]*types.Event, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	repoLog := baseLog.With("repo", "EventRepo")
	return &eventRepo{db: db, log: repoLog}
}

func (r *eventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.Event) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(events) == 0 {
		return []*types.Event{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepo) GetByActorAndCourseID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, courseID string) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Event
	if actorID == uuid.Nil || courseID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND course_id = ?", actorID, courseID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *eventRepo) GetByActorAndClassID(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, classID string) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Event
	if actorID == uuid.Nil || classID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("actor_id = ? AND class_id = ?", actorID, classID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *eventRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n int64
	if err := transaction.WithContext(ctx).Model(&types.Event{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
