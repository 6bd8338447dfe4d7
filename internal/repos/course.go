package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/types"
)

type CourseRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, courseID string) (*types.Course, error)
	GetSteps(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.CourseStep, error)
	GetStep(ctx context.Context, tx *gorm.DB, classID string) (*types.CourseStep, error)
	GetQuizKey(ctx context.Context, tx *gorm.DB, classID string) (*types.QuizKey, error)
	UpsertCourse(ctx context.Context, tx *gorm.DB, course *types.Course) error
	UpsertStep(ctx context.Context, tx *gorm.DB, step *types.CourseStep) error
	UpsertQuizKey(ctx context.Context, tx *gorm.DB, key *types.QuizKey) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	repoLog := baseLog.With("repo", "CourseRepo")
	return &courseRepo{db: db, log: repoLog}
}

func (r *courseRepo) GetByID(ctx context.Context, tx *gorm.DB, courseID string) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Course
	err := transaction.WithContext(ctx).Where("id = ?", courseID).First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *courseRepo) GetSteps(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.CourseStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CourseStep
	if courseID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("idx ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) GetStep(ctx context.Context, tx *gorm.DB, classID string) (*types.CourseStep, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.CourseStep
	err := transaction.WithContext(ctx).Where("class_id = ?", classID).First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *courseRepo) GetQuizKey(ctx context.Context, tx *gorm.DB, classID string) (*types.QuizKey, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.QuizKey
	err := transaction.WithContext(ctx).Where("class_id = ?", classID).First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *courseRepo) UpsertCourse(ctx context.Context, tx *gorm.DB, course *types.Course) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if course == nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).
		Create(course).Error; err != nil {
		return err
	}
	return nil
}

func (r *courseRepo) UpsertStep(ctx context.Context, tx *gorm.DB, step *types.CourseStep) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if step == nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "class_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"course_id", "idx", "title", "has_video", "has_quiz", "video_duration_sec", "updated_at"}),
		}).
		Create(step).Error; err != nil {
		return err
	}
	return nil
}

func (r *courseRepo) UpsertQuizKey(ctx context.Context, tx *gorm.DB, key *types.QuizKey) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if key == nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "class_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"form_id", "answers", "updated_at"}),
		}).
		Create(key).Error; err != nil {
		return err
	}
	return nil
}

func (r *courseRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n int64
	if err := transaction.WithContext(ctx).Model(&types.Course{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
