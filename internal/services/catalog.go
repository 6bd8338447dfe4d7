package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/types"
)

// CatalogService is the content collaborator surface: step order, media
// presence and quiz answer keys. The engine reads it on every projection and
// never hardcodes content.
type CatalogService interface {
	GetCourse(ctx context.Context, tx *gorm.DB, courseID string) (*types.Course, []*types.CourseStep, error)
	GetStep(ctx context.Context, tx *gorm.DB, courseID, classID string) (*types.CourseStep, error)
	GetQuizKey(ctx context.Context, tx *gorm.DB, classID string) (*types.QuizKey, error)
	SeedFromYAML(ctx context.Context, path string) error
}

type catalogService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.CourseRepo
}

func NewCatalogService(db *gorm.DB, baseLog *logger.Logger, repo repos.CourseRepo) CatalogService {
	return &catalogService{
		db:   db,
		log:  baseLog.With("service", "CatalogService"),
		repo: repo,
	}
}

func (s *catalogService) GetCourse(ctx context.Context, tx *gorm.DB, courseID string) (*types.Course, []*types.CourseStep, error) {
	course, err := s.repo.GetByID(ctx, tx, courseID)
	if err != nil {
		return nil, nil, err
	}
	if course == nil {
		return nil, nil, NotFoundError("course %q not found", courseID)
	}
	steps, err := s.repo.GetSteps(ctx, tx, courseID)
	if err != nil {
		return nil, nil, err
	}
	return course, steps, nil
}

func (s *catalogService) GetStep(ctx context.Context, tx *gorm.DB, courseID, classID string) (*types.CourseStep, error) {
	step, err := s.repo.GetStep(ctx, tx, classID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, NotFoundError("class %q not found", classID)
	}
	if courseID != "" && step.CourseID != courseID {
		return nil, NotFoundError("class %q does not belong to course %q", classID, courseID)
	}
	return step, nil
}

func (s *catalogService) GetQuizKey(ctx context.Context, tx *gorm.DB, classID string) (*types.QuizKey, error) {
	key, err := s.repo.GetQuizKey(ctx, tx, classID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, NotFoundError("no quiz defined for class %q", classID)
	}
	return key, nil
}

// Seed file layout mirrors how course material is authored:
//
//	courses:
//	  - id: wge-onboarding
//	    title: Onboarding
//	    steps:
//	      - class_id: wge-onboarding-1
//	        title: Welcome video
//	        video: { duration_sec: 300 }
//	        quiz:
//	          form_id: mVkXyz
//	          answers: { q1: "b", q2: ["a", "c"] }
type seedFile struct {
	Courses []seedCourse `yaml:"courses"`
}

type seedCourse struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Steps []seedStep `yaml:"steps"`
}

type seedStep struct {
	ClassID string     `yaml:"class_id"`
	Title   string     `yaml:"title"`
	Video   *seedVideo `yaml:"video"`
	Quiz    *seedQuiz  `yaml:"quiz"`
}

type seedVideo struct {
	DurationSec float64 `yaml:"duration_sec"`
}

type seedQuiz struct {
	FormID  string         `yaml:"form_id"`
	Answers map[string]any `yaml:"answers"`
}

func (s *catalogService) SeedFromYAML(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range file.Courses {
			if c.ID == "" {
				return fmt.Errorf("seed course with empty id")
			}
			if err := s.repo.UpsertCourse(ctx, tx, &types.Course{
				ID:        c.ID,
				Title:     c.Title,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
			for idx, st := range c.Steps {
				if st.ClassID == "" {
					return fmt.Errorf("seed step with empty class_id in course %q", c.ID)
				}
				step := &types.CourseStep{
					ClassID:   st.ClassID,
					CourseID:  c.ID,
					Idx:       idx,
					Title:     st.Title,
					HasVideo:  st.Video != nil,
					HasQuiz:   st.Quiz != nil,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if st.Video != nil {
					step.VideoDurationSec = st.Video.DurationSec
				}
				if err := s.repo.UpsertStep(ctx, tx, step); err != nil {
					return err
				}
				if st.Quiz != nil {
					answers, err := json.Marshal(st.Quiz.Answers)
					if err != nil {
						return fmt.Errorf("marshal answers for %q: %w", st.ClassID, err)
					}
					if err := s.repo.UpsertQuizKey(ctx, tx, &types.QuizKey{
						ClassID:   st.ClassID,
						FormID:    st.Quiz.FormID,
						Answers:   datatypes.JSON(answers),
						CreatedAt: now,
						UpdatedAt: now,
					}); err != nil {
						return err
					}
				}
			}
			s.log.Info("Seeded course", "course_id", c.ID, "steps", len(c.Steps))
		}
		return nil
	})
}
